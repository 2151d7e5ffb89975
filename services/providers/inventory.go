package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/upb/multicloud-dashboard/models"
)

// topResourcesPerProvider caps the cost leaders reported by one provider
const topResourcesPerProvider = 5

// InventoryBuilder accumulates a live provider inventory and derives cost,
// health counters and cost leaders from it
type InventoryBuilder struct {
	provider models.Provider
	rates    Rates
	inv      *models.ProviderInventory
	priced   []models.CostResource
}

// NewInventoryBuilder creates a builder for provider
func NewInventoryBuilder(provider models.Provider, rates Rates) *InventoryBuilder {
	return &InventoryBuilder{
		provider: provider,
		rates:    rates,
		inv: &models.ProviderInventory{
			Provider:     provider,
			Instances:    []models.Instance{},
			Storage:      []models.StorageVolume{},
			Databases:    []models.Database{},
			Alerts:       []models.Alert{},
			TopResources: []models.CostResource{},
		},
	}
}

func (b *InventoryBuilder) count(h Health) {
	switch h {
	case Healthy:
		b.inv.HealthyResources++
	case Warning:
		b.inv.WarningResources++
	default:
		b.inv.CriticalResources++
	}
}

// AddInstance records a compute instance
func (b *InventoryBuilder) AddInstance(i models.Instance, h Health, costType string) {
	i.Provider = b.provider.DisplayName()
	b.inv.Instances = append(b.inv.Instances, i)
	b.count(h)
	b.priced = append(b.priced, models.CostResource{
		Name: i.Name, Type: costType, Provider: i.Provider, Cost: b.rates.Instance, Region: i.Region,
	})
}

// AddStorage records a storage bucket or container
func (b *InventoryBuilder) AddStorage(s models.StorageVolume, h Health) {
	s.Provider = b.provider.DisplayName()
	b.inv.Storage = append(b.inv.Storage, s)
	b.count(h)
}

// AddDatabase records a managed database
func (b *InventoryBuilder) AddDatabase(d models.Database, h Health, costType, region string) {
	d.Provider = b.provider.DisplayName()
	b.inv.Databases = append(b.inv.Databases, d)
	b.count(h)
	b.priced = append(b.priced, models.CostResource{
		Name: d.Name, Type: costType, Provider: d.Provider, Cost: b.rates.Database, Region: region,
	})
}

// AddAlert records an operational alert
func (b *InventoryBuilder) AddAlert(severity, resource, message string) {
	b.inv.Alerts = append(b.inv.Alerts, models.Alert{
		Severity: severity,
		Message:  message,
		Provider: b.provider.DisplayName(),
		Resource: resource,
		Time:     "just now",
	})
}

// Build computes the monthly cost estimate and cost leaders
func (b *InventoryBuilder) Build() *models.ProviderInventory {
	b.inv.MonthlyCost = float64(len(b.inv.Instances))*b.rates.Instance +
		float64(len(b.inv.Storage))*b.rates.Storage +
		float64(len(b.inv.Databases))*b.rates.Database

	sort.SliceStable(b.priced, func(i, j int) bool { return b.priced[i].Cost > b.priced[j].Cost })
	if len(b.priced) > topResourcesPerProvider {
		b.priced = b.priced[:topResourcesPerProvider]
	}
	b.inv.TopResources = append(b.inv.TopResources, b.priced...)
	return b.inv
}

// StoppedAlert formats the alert raised for stopped instances
func StoppedAlert(n int, kind string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s instance is stopped", kind)
	}
	return fmt.Sprintf("%d %s instances are stopped", n, kind)
}

// MemoryForSize estimates memory in GB from an instance size name
func MemoryForSize(size string) float64 {
	switch {
	case size == "":
		return 4
	case strings.Contains(size, "nano"):
		return 0.5
	case strings.Contains(size, "micro"):
		return 1
	case strings.Contains(size, "small"):
		return 2
	case strings.Contains(size, "medium"):
		return 4
	case strings.Contains(size, "xlarge"):
		return 16
	case strings.Contains(size, "large"):
		return 8
	}
	return 4
}
