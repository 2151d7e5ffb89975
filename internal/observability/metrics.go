package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Credential metrics
	CredentialCacheHits   *prometheus.CounterVec
	CredentialCacheMisses *prometheus.CounterVec
	CredentialResolutions *prometheus.CounterVec

	// Aggregation metrics
	ProviderFetchesTotal *prometheus.CounterVec
	AggregateDuration    prometheus.Histogram

	// Rate limiting
	RateLimitedTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dashboard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		CredentialCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_credential_cache_hits_total",
				Help: "Credential lookups served from cache",
			},
			[]string{"provider"},
		),
		CredentialCacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_credential_cache_misses_total",
				Help: "Credential lookups that required resolution",
			},
			[]string{"provider"},
		),
		CredentialResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_credential_resolutions_total",
				Help: "Credential strategy executions by outcome",
			},
			[]string{"provider", "strategy", "status"},
		),
		ProviderFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_provider_fetches_total",
				Help: "Provider inventory fetches by data source",
			},
			[]string{"provider", "source"},
		),
		AggregateDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dashboard_aggregate_duration_seconds",
				Help:    "Duration of multi-provider aggregation",
				Buckets: prometheus.DefBuckets,
			},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dashboard_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CredentialCacheHits,
		m.CredentialCacheMisses,
		m.CredentialResolutions,
		m.ProviderFetchesTotal,
		m.AggregateDuration,
		m.RateLimitedTotal,
	)

	return m
}

// NewDefaultMetrics creates metrics on a fresh registry that also exports
// Go runtime and process collectors
func NewDefaultMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetrics(registry)
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
