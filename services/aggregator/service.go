// Package aggregator fans a dashboard request out to every requested provider
// and merges the settled results into one summary.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/upb/multicloud-dashboard/internal/observability"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services"
	"github.com/upb/multicloud-dashboard/services/audit"
	"github.com/upb/multicloud-dashboard/services/providers"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fallback reasons reported on a provider status
const (
	ReasonNotRegistered = "not_registered"
	ReasonTimeout       = "timeout"
	ReasonFetchFailed   = "fetch_failed"
	ReasonPanic         = "panic"
)

// DefaultProviderTimeout bounds a single provider branch
const DefaultProviderTimeout = 20 * time.Second

// Options tunes the aggregator
type Options struct {
	ProviderTimeout time.Duration
	Now             func() time.Time
}

// Service is the resource aggregator
type Service struct {
	registry *providers.Registry
	recorder audit.Recorder
	logger   *zap.Logger
	metrics  *observability.Metrics
	timeout  time.Duration
	now      func() time.Time
}

// NewService creates an aggregator over the registered provider clients
func NewService(registry *providers.Registry, recorder audit.Recorder, logger *zap.Logger, metrics *observability.Metrics, opts Options) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultProviderTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		registry: registry,
		recorder: recorder,
		logger:   logger,
		metrics:  metrics,
		timeout:  opts.ProviderTimeout,
		now:      opts.Now,
	}
}

// ParseProviders validates a requested provider list. The list must be non-empty
// and every entry known; duplicates are dropped keeping first occurrence.
func ParseProviders(names []string) ([]models.Provider, error) {
	if len(names) == 0 {
		return nil, services.NewValidationError("At least one provider must be specified")
	}
	seen := make(map[models.Provider]bool, len(names))
	out := make([]models.Provider, 0, len(names))
	for _, name := range names {
		p, err := models.ParseProvider(name)
		if err != nil {
			return nil, services.NewValidationError(fmt.Sprintf("Invalid provider: %s", name)).
				WithDetail("validProviders", models.AllProviders)
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

// Aggregate fetches every requested provider concurrently, waits for all of
// them to settle and merges the results. A failing provider contributes its
// fallback dataset; only invalid input fails the call.
func (s *Service) Aggregate(ctx context.Context, requested []models.Provider, principal *models.Principal) (summary *models.DashboardSummary, err error) {
	names := make([]string, len(requested))
	for i, p := range requested {
		names[i] = string(p)
	}
	requested, err = ParseProviders(names)
	if err != nil {
		return nil, err
	}
	names = names[:0]
	for _, p := range requested {
		names = append(names, string(p))
	}

	start := s.now()
	principalID := ""
	if principal != nil {
		principalID = principal.ID
	}
	s.recorder.Record(ctx, models.AuditActionDashboardAccess, principalID, map[string]interface{}{
		"providers":     names,
		"userId":        principalIDOrAnonymous(principalID),
		"authenticated": principal != nil,
		"ip":            audit.ClientIP(ctx),
		"userAgent":     audit.UserAgent(ctx),
	})

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("dashboard aggregation panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			s.recorder.Record(ctx, models.AuditActionDashboardError, principalID, map[string]interface{}{
				"providers": names,
				"error":     fmt.Sprint(r),
			})
			summary, err = nil, services.WrapInternal("failed to aggregate dashboard data", fmt.Errorf("panic: %v", r))
		}
	}()

	results := s.fanOut(ctx, requested, principal)
	summary = merge(results)

	elapsed := s.now().Sub(start)
	summary.ResponseTimeMs = elapsed.Milliseconds()
	if s.metrics != nil {
		s.metrics.AggregateDuration.Observe(elapsed.Seconds())
	}

	s.recorder.Record(ctx, models.AuditActionDashboardResponse, principalID, map[string]interface{}{
		"providers":     names,
		"responseTime":  fmt.Sprintf("%dms", summary.ResponseTimeMs),
		"resourceCount": summary.ResourceCount(),
		"degraded":      summary.Degraded,
	})
	return summary, nil
}

// fanOut runs one branch per provider and returns results in request order
func (s *Service) fanOut(ctx context.Context, requested []models.Provider, principal *models.Principal) []branchResult {
	results := make([]branchResult, len(requested))

	var g errgroup.Group
	for i, p := range requested {
		g.Go(func() error {
			results[i] = s.branch(ctx, p, principal)
			return nil
		})
	}
	// Branches never return errors; failures become fallback results.
	_ = g.Wait()
	return results
}

func (s *Service) branch(ctx context.Context, p models.Provider, principal *models.Principal) branchResult {
	bctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	inv, err := s.fetch(bctx, p, principal)
	if err == nil && inv != nil {
		s.countFetch(p, models.DataSourceLive)
		return branchResult{provider: p, inv: inv, source: models.DataSourceLive}
	}
	if err == nil {
		err = errors.New("provider returned no inventory")
	}

	reason := classify(bctx, err)
	s.logger.Warn("provider fetch failed, using fallback data",
		zap.String("provider", string(p)),
		zap.String("reason", reason),
		zap.Error(err))

	principalID := ""
	if principal != nil {
		principalID = principal.ID
	}
	s.recorder.Record(ctx, models.AuditActionProviderFetchFailed, principalID, map[string]interface{}{
		"provider": string(p),
		"reason":   reason,
		"error":    err.Error(),
	})
	s.countFetch(p, models.DataSourceFallback)

	return branchResult{provider: p, inv: providers.Fallback(p), source: models.DataSourceFallback, reason: reason}
}

// fetch calls the provider client, converting a panic into an error so one
// branch cannot take down the process
func (s *Service) fetch(ctx context.Context, p models.Provider, principal *models.Principal) (inv *models.ProviderInventory, err error) {
	client, err := s.registry.GetClient(p)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("provider client panicked",
				zap.String("provider", string(p)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			inv, err = nil, &branchPanic{value: r}
		}
	}()
	return client.FetchInventory(ctx, principal)
}

type branchPanic struct {
	value interface{}
}

func (e *branchPanic) Error() string {
	return fmt.Sprintf("provider client panicked: %v", e.value)
}

func classify(ctx context.Context, err error) string {
	var bp *branchPanic
	switch {
	case errors.Is(err, providers.ErrProviderNotFound):
		return ReasonNotRegistered
	case errors.As(err, &bp):
		return ReasonPanic
	case services.IsCredentialError(err):
		return string(services.GetCredentialReason(err))
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ReasonTimeout
	}
	return ReasonFetchFailed
}

func (s *Service) countFetch(p models.Provider, source models.DataSource) {
	if s.metrics != nil {
		s.metrics.ProviderFetchesTotal.WithLabelValues(string(p), string(source)).Inc()
	}
}

func principalIDOrAnonymous(id string) string {
	if id == "" {
		return "anonymous"
	}
	return id
}
