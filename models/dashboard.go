package models

// Instance is a compute instance reported by a provider
type Instance struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Status   string  `json:"status"`
	Region   string  `json:"region"`
	Provider string  `json:"provider"`
	CPU      int     `json:"cpu"`
	MemoryGB float64 `json:"memory"`
}

// StorageVolume is a bucket, container or volume reported by a provider
type StorageVolume struct {
	Name     string `json:"name"`
	SizeGB   int    `json:"size"`
	Type     string `json:"type"`
	Region   string `json:"region"`
	Provider string `json:"provider"`
}

// Database is a managed database reported by a provider
type Database struct {
	Name     string `json:"name"`
	Engine   string `json:"engine"`
	Version  string `json:"version"`
	Size     string `json:"size"`
	Provider string `json:"provider"`
}

// Alert is an operational warning surfaced on the dashboard
type Alert struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Provider string `json:"provider"`
	Resource string `json:"resource"`
	Time     string `json:"time"`
}

// CostResource is a single resource contributing to monthly cost
type CostResource struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Provider string  `json:"provider"`
	Cost     float64 `json:"cost"`
	Region   string  `json:"region"`
}

// DataSource tells the caller whether a provider contribution is live or canned
type DataSource string

const (
	DataSourceLive     DataSource = "live"
	DataSourceFallback DataSource = "fallback"
)

// ProviderInventory is one provider's partial result
type ProviderInventory struct {
	Provider          Provider        `json:"provider"`
	Instances         []Instance      `json:"instances"`
	Storage           []StorageVolume `json:"storage"`
	Databases         []Database      `json:"databases"`
	HealthyResources  int             `json:"healthyResources"`
	WarningResources  int             `json:"warningResources"`
	CriticalResources int             `json:"criticalResources"`
	MonthlyCost       float64         `json:"cost"`
	Alerts            []Alert         `json:"alerts"`
	TopResources      []CostResource  `json:"topResources"`
}

// ProviderStatus is the per-provider health slice of the summary
type ProviderStatus struct {
	Name              string     `json:"name"`
	HealthyResources  int        `json:"healthyResources"`
	WarningResources  int        `json:"warningResources"`
	CriticalResources int        `json:"criticalResources"`
	DataSource        DataSource `json:"dataSource"`
	Reason            string     `json:"reason,omitempty"`
}

// SummaryTotals are the headline counters
type SummaryTotals struct {
	TotalInstances int     `json:"totalInstances"`
	TotalStorage   int     `json:"totalStorage"`
	TotalStorageGB int     `json:"totalStorageGB"`
	TotalDatabases int     `json:"totalDatabases"`
	MonthlyCost    float64 `json:"monthlyCost"`
}

// ResourceLists holds the flattened resource inventories
type ResourceLists struct {
	Instances []Instance      `json:"instances"`
	Storage   []StorageVolume `json:"storage"`
	Databases []Database      `json:"databases"`
}

// CostSlice is one labelled value in a cost breakdown
type CostSlice struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// CostBreakdown groups cost analytics
type CostBreakdown struct {
	ByProvider    []CostSlice    `json:"byProvider"`
	ByService     []CostSlice    `json:"byService"`
	MonthlyChange float64        `json:"monthlyChange"`
	TopResources  []CostResource `json:"topResources"`
}

// CostTrendPoint is one month of the trend series
type CostTrendPoint struct {
	Month string  `json:"month"`
	AWS   float64 `json:"aws"`
	Azure float64 `json:"azure"`
	GCP   float64 `json:"gcp"`
}

// DashboardSummary is the merged multi-provider result
type DashboardSummary struct {
	Summary        SummaryTotals    `json:"summary"`
	Providers      []ProviderStatus `json:"providers"`
	Resources      ResourceLists    `json:"resources"`
	Costs          CostBreakdown    `json:"costs"`
	Alerts         []Alert          `json:"alerts"`
	CostTrend      []CostTrendPoint `json:"costTrend"`
	Degraded       bool             `json:"degraded"`
	ResponseTimeMs int64            `json:"responseTimeMs"`
}

// ResourceCount returns the number of inventoried resources
func (s *DashboardSummary) ResourceCount() int {
	return len(s.Resources.Instances) + len(s.Resources.Storage) + len(s.Resources.Databases)
}
