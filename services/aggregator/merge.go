package aggregator

import (
	"math"
	"sort"
	"strings"

	"github.com/upb/multicloud-dashboard/models"
)

// MaxTopResources caps the merged cost leaders
const MaxTopResources = 5

// MonthlyChange is the reported month-over-month cost change in percent
const MonthlyChange = 5.2

var providerColors = map[models.Provider]string{
	models.ProviderAWS:   "#ff9900",
	models.ProviderAzure: "#0078d4",
	models.ProviderGCP:   "#ea4335",
}

// serviceShare splits total cost into a service breakdown
type serviceShare struct {
	name  string
	ratio float64
	color string
}

var serviceShares = []serviceShare{
	{"Compute", 0.40, "#3b82f6"},
	{"Storage", 0.27, "#10b981"},
	{"Database", 0.20, "#8b5cf6"},
	{"Network", 0.13, "#f59e0b"},
}

// CostTrend returns the six month cost series
func CostTrend() []models.CostTrendPoint {
	return []models.CostTrendPoint{
		{Month: "Jan", AWS: 4000, Azure: 2400, GCP: 2400},
		{Month: "Feb", AWS: 3000, Azure: 1398, GCP: 2210},
		{Month: "Mar", AWS: 2000, Azure: 9800, GCP: 2290},
		{Month: "Apr", AWS: 2780, Azure: 3908, GCP: 2000},
		{Month: "May", AWS: 1890, Azure: 4800, GCP: 2181},
		{Month: "Jun", AWS: 2390, Azure: 3800, GCP: 2500},
	}
}

// branchResult is the settled outcome of one provider branch
type branchResult struct {
	provider models.Provider
	inv      *models.ProviderInventory
	source   models.DataSource
	reason   string
}

// Merge folds settled branch results into a summary. Results are consumed in
// the order given so repeated calls over the same data are identical.
func merge(results []branchResult) *models.DashboardSummary {
	out := &models.DashboardSummary{
		Providers: make([]models.ProviderStatus, 0, len(results)),
		Resources: models.ResourceLists{
			Instances: []models.Instance{},
			Storage:   []models.StorageVolume{},
			Databases: []models.Database{},
		},
		Costs: models.CostBreakdown{
			ByProvider:    make([]models.CostSlice, 0, len(results)),
			MonthlyChange: MonthlyChange,
		},
		Alerts:    []models.Alert{},
		CostTrend: CostTrend(),
	}

	var top []models.CostResource
	for _, r := range results {
		inv := r.inv

		out.Resources.Instances = append(out.Resources.Instances, inv.Instances...)
		out.Resources.Storage = append(out.Resources.Storage, inv.Storage...)
		out.Resources.Databases = append(out.Resources.Databases, inv.Databases...)
		for _, s := range inv.Storage {
			out.Summary.TotalStorageGB += s.SizeGB
		}
		out.Summary.MonthlyCost += inv.MonthlyCost

		out.Providers = append(out.Providers, models.ProviderStatus{
			Name:              strings.ToUpper(string(r.provider)),
			HealthyResources:  inv.HealthyResources,
			WarningResources:  inv.WarningResources,
			CriticalResources: inv.CriticalResources,
			DataSource:        r.source,
			Reason:            r.reason,
		})
		out.Costs.ByProvider = append(out.Costs.ByProvider, models.CostSlice{
			Name:  strings.ToUpper(string(r.provider)),
			Value: inv.MonthlyCost,
			Color: providerColors[r.provider],
		})

		out.Alerts = append(out.Alerts, inv.Alerts...)
		top = append(top, inv.TopResources...)

		if r.source == models.DataSourceFallback {
			out.Degraded = true
		}
	}

	out.Summary.TotalInstances = len(out.Resources.Instances)
	out.Summary.TotalStorage = len(out.Resources.Storage)
	out.Summary.TotalDatabases = len(out.Resources.Databases)

	out.Costs.ByService = byService(out.Summary.MonthlyCost)
	out.Costs.TopResources = topResources(top)
	return out
}

func byService(total float64) []models.CostSlice {
	out := make([]models.CostSlice, len(serviceShares))
	for i, s := range serviceShares {
		out[i] = models.CostSlice{Name: s.name, Value: math.Floor(total * s.ratio), Color: s.color}
	}
	return out
}

// topResources sorts descending by cost and truncates. Ties keep the provider
// request order.
func topResources(all []models.CostResource) []models.CostResource {
	sorted := append([]models.CostResource{}, all...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Cost > sorted[j].Cost
	})
	if len(sorted) > MaxTopResources {
		sorted = sorted[:MaxTopResources]
	}
	return sorted
}
