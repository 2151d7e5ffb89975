package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/multicloud-dashboard/internal/observability"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services"
	"github.com/upb/multicloud-dashboard/services/audit"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ResolveTimeout bounds one shared credential resolution
const ResolveTimeout = 30 * time.Second

// Resolver returns provider credentials for a principal, consulting the TTL
// cache before the configured strategy. Concurrent misses for the same key
// share one resolution, which runs detached from any single caller's
// cancellation. Returned credentials are shared and must not be mutated.
type Resolver struct {
	strategies map[models.Provider]Strategy
	cache      *Cache
	group      singleflight.Group
	timeout    time.Duration
	recorder   audit.Recorder
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewResolver creates a resolver. metrics may be nil.
func NewResolver(
	strategies map[models.Provider]Strategy,
	cache *Cache,
	recorder audit.Recorder,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Resolver {
	if cache == nil {
		cache = NewCache(0, DefaultTTL, nil)
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	copied := make(map[models.Provider]Strategy, len(strategies))
	for p, s := range strategies {
		copied[p] = s
	}
	return &Resolver{
		strategies: copied,
		cache:      cache,
		timeout:    ResolveTimeout,
		recorder:   recorder,
		logger:     logger,
		metrics:    metrics,
	}
}

// StrategyFor returns the strategy kind configured for provider
func (r *Resolver) StrategyFor(provider models.Provider) (models.CredentialStrategy, bool) {
	s, ok := r.strategies[provider]
	if !ok {
		return "", false
	}
	return s.Kind(), true
}

// GetCredentials returns credentials for (provider, principal). principal may
// be nil for anonymous dashboard requests.
func (r *Resolver) GetCredentials(ctx context.Context, provider models.Provider, principal *models.Principal) (*models.Credentials, error) {
	if !provider.IsValid() {
		return nil, services.NewValidationError(fmt.Sprintf("unknown provider %q", provider))
	}

	id := principalID(principal)
	if creds, ok := r.cache.Get(provider, id); ok {
		r.observeCache(provider, true)
		return creds, nil
	}
	r.observeCache(provider, false)

	strategy, ok := r.strategies[provider]
	if !ok {
		return nil, services.NewCredentialError(services.CredentialNotConfigured,
			fmt.Sprintf("no credential strategy configured for %s", provider.DisplayName()), nil)
	}

	generation := r.cache.Generation(provider, id)
	flight := r.group.DoChan(CacheKey(provider, id), func() (interface{}, error) {
		// the first caller leaving must not fail the callers sharing this flight
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		creds, err := r.resolve(rctx, strategy, provider, principal)
		if err != nil {
			return nil, err
		}
		if !r.cache.PutIfCurrent(provider, id, generation, creds) {
			r.logger.Debug("credentials invalidated during resolution, not cached",
				zap.String("provider", string(provider)),
				zap.String("principal_id", id))
		}
		return creds, nil
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.logger.Debug("credential resolution shared",
				zap.String("provider", string(provider)),
				zap.String("principal_id", id))
		}
		return res.Val.(*models.Credentials), nil
	case <-ctx.Done():
		return nil, services.NewCredentialError(services.CredentialUpstreamUnavailable,
			fmt.Sprintf("gave up waiting for %s credentials", provider.DisplayName()), ctx.Err())
	}
}

func (r *Resolver) resolve(ctx context.Context, strategy Strategy, provider models.Provider, principal *models.Principal) (*models.Credentials, error) {
	kind := strategy.Kind()
	id := principalID(principal)

	creds, err := strategy.Resolve(ctx, provider, principal)
	if err == nil && creds == nil {
		err = services.NewCredentialError(services.CredentialNotConfigured,
			fmt.Sprintf("%s credentials are not configured", provider.DisplayName()), nil)
	}
	if err != nil {
		if !services.IsCredentialError(err) {
			err = services.NewCredentialError(services.CredentialUpstreamUnavailable,
				fmt.Sprintf("failed to resolve %s credentials", provider.DisplayName()), err)
		}
		r.observeResolution(provider, kind, string(services.GetCredentialReason(err)))
		r.logger.Warn("credential resolution failed",
			zap.String("provider", string(provider)),
			zap.String("strategy", string(kind)),
			zap.String("principal_id", id),
			zap.Error(err))
		return nil, err
	}

	if creds.Provider == "" {
		creds.Provider = provider
	}
	if creds.Strategy == "" {
		creds.Strategy = kind
	}

	r.observeResolution(provider, kind, "success")
	r.recorder.Record(ctx, models.AuditActionCredentialsRetrieved, id, map[string]interface{}{
		"provider": string(provider),
		"strategy": string(creds.Strategy),
	})
	return creds, nil
}

// Invalidate drops cached credentials of a principal for the given providers,
// or for every provider when none are given
func (r *Resolver) Invalidate(ctx context.Context, principalID string, providers ...models.Provider) {
	if len(providers) == 0 {
		providers = models.AllProviders
	}
	for _, p := range providers {
		r.group.Forget(CacheKey(p, principalID))
	}
	removed := r.cache.Invalidate(principalID, providers...)

	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = string(p)
	}
	r.recorder.Record(ctx, models.AuditActionCredentialCacheClear, principalID, map[string]interface{}{
		"providers": names,
		"removed":   removed,
	})
}

func (r *Resolver) observeCache(provider models.Provider, hit bool) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.CredentialCacheHits.WithLabelValues(string(provider)).Inc()
		return
	}
	r.metrics.CredentialCacheMisses.WithLabelValues(string(provider)).Inc()
}

func (r *Resolver) observeResolution(provider models.Provider, kind models.CredentialStrategy, status string) {
	if r.metrics == nil {
		return
	}
	r.metrics.CredentialResolutions.WithLabelValues(string(provider), string(kind), status).Inc()
}
