package providers

import "github.com/upb/multicloud-dashboard/models"

// Fallback returns the canonical dataset served when a provider is
// unconfigured or its live fetch fails. Each call returns a fresh copy.
func Fallback(provider models.Provider) *models.ProviderInventory {
	switch provider {
	case models.ProviderAWS:
		return awsFallback()
	case models.ProviderAzure:
		return azureFallback()
	case models.ProviderGCP:
		return gcpFallback()
	}
	return &models.ProviderInventory{
		Provider:     provider,
		Instances:    []models.Instance{},
		Storage:      []models.StorageVolume{},
		Databases:    []models.Database{},
		Alerts:       []models.Alert{},
		TopResources: []models.CostResource{},
	}
}

func awsFallback() *models.ProviderInventory {
	return &models.ProviderInventory{
		Provider: models.ProviderAWS,
		Instances: []models.Instance{
			{Name: "web-server-1", Type: "t3.medium", Status: "running", Region: "us-east-1", Provider: "AWS", CPU: 2, MemoryGB: 4},
			{Name: "api-server-1", Type: "t3.large", Status: "running", Region: "us-east-1", Provider: "AWS", CPU: 2, MemoryGB: 8},
			{Name: "worker-1", Type: "t3.small", Status: "stopped", Region: "us-west-2", Provider: "AWS", CPU: 2, MemoryGB: 2},
		},
		Storage: []models.StorageVolume{
			{Name: "app-data-bucket", SizeGB: 250, Type: "S3", Region: "us-east-1", Provider: "AWS"},
			{Name: "backup-bucket", SizeGB: 500, Type: "S3", Region: "us-west-2", Provider: "AWS"},
		},
		Databases: []models.Database{
			{Name: "production-db", Engine: "PostgreSQL", Version: "14.7", Size: "db.t3.medium", Provider: "AWS"},
		},
		HealthyResources:  4,
		WarningResources:  1,
		CriticalResources: 0,
		MonthlyCost:       850,
		Alerts: []models.Alert{
			{Severity: "warning", Message: "1 EC2 instance is stopped", Provider: "AWS", Resource: "EC2", Time: "2 hours ago"},
		},
		TopResources: []models.CostResource{
			{Name: "web-server-1", Type: "EC2 Instance", Provider: "AWS", Cost: 150, Region: "us-east-1"},
			{Name: "production-db", Type: "RDS Database", Provider: "AWS", Cost: 200, Region: "us-east-1"},
		},
	}
}

func azureFallback() *models.ProviderInventory {
	return &models.ProviderInventory{
		Provider: models.ProviderAzure,
		Instances: []models.Instance{
			{Name: "app-vm-1", Type: "Standard_B2s", Status: "running", Region: "eastus", Provider: "Azure", CPU: 2, MemoryGB: 4},
			{Name: "db-vm-1", Type: "Standard_D2s_v3", Status: "running", Region: "westus", Provider: "Azure", CPU: 2, MemoryGB: 8},
		},
		Storage: []models.StorageVolume{
			{Name: "azurestorage01", SizeGB: 300, Type: "Blob Storage", Region: "eastus", Provider: "Azure"},
		},
		Databases: []models.Database{
			{Name: "azure-sql-db", Engine: "SQL Server", Version: "2019", Size: "Standard S2", Provider: "Azure"},
		},
		HealthyResources:  4,
		WarningResources:  0,
		CriticalResources: 0,
		MonthlyCost:       620,
		Alerts:            []models.Alert{},
		TopResources: []models.CostResource{
			{Name: "app-vm-1", Type: "Virtual Machine", Provider: "Azure", Cost: 120, Region: "eastus"},
			{Name: "azure-sql-db", Type: "SQL Database", Provider: "Azure", Cost: 180, Region: "eastus"},
		},
	}
}

func gcpFallback() *models.ProviderInventory {
	return &models.ProviderInventory{
		Provider: models.ProviderGCP,
		Instances: []models.Instance{
			{Name: "gcp-web-1", Type: "n1-standard-2", Status: "running", Region: "us-central1-a", Provider: "GCP", CPU: 2, MemoryGB: 7.5},
			{Name: "gcp-api-1", Type: "n1-standard-1", Status: "running", Region: "us-east1-b", Provider: "GCP", CPU: 1, MemoryGB: 3.75},
		},
		Storage: []models.StorageVolume{
			{Name: "gcp-storage-bucket", SizeGB: 200, Type: "Cloud Storage", Region: "us-central1", Provider: "GCP"},
		},
		Databases: []models.Database{
			{Name: "gcp-cloud-sql", Engine: "MySQL", Version: "8.0", Size: "db-n1-standard-1", Provider: "GCP"},
		},
		HealthyResources:  4,
		WarningResources:  0,
		CriticalResources: 0,
		MonthlyCost:       555,
		Alerts:            []models.Alert{},
		TopResources: []models.CostResource{
			{Name: "gcp-web-1", Type: "Compute Engine", Provider: "GCP", Cost: 130, Region: "us-central1-a"},
			{Name: "gcp-cloud-sql", Type: "Cloud SQL", Provider: "GCP", Cost: 190, Region: "us-central1"},
		},
	}
}
