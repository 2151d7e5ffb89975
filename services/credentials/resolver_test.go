package credentials

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/multicloud-dashboard/internal/observability"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services"
	"go.uber.org/zap"
)

// countingStrategy counts upstream resolutions
type countingStrategy struct {
	calls   atomic.Int32
	kind    models.CredentialStrategy
	err     error
	none    bool
	release chan struct{}
}

func (s *countingStrategy) Kind() models.CredentialStrategy {
	if s.kind == "" {
		return models.StrategyEnvironment
	}
	return s.kind
}

func (s *countingStrategy) Resolve(ctx context.Context, provider models.Provider, _ *models.Principal) (*models.Credentials, error) {
	n := s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.none {
		return nil, nil
	}
	return &models.Credentials{
		Provider: provider,
		AWS:      &models.AWSCredentials{AccessKeyID: "AKIA" + string(rune('0'+n))},
	}, nil
}

type recordedEvent struct {
	action      models.AuditAction
	principalID string
	details     map[string]interface{}
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *fakeRecorder) Record(_ context.Context, action models.AuditAction, principalID string, details map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{action, principalID, details})
}

func (r *fakeRecorder) actions() []models.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuditAction, len(r.events))
	for i, e := range r.events {
		out[i] = e.action
	}
	return out
}

var alice = &models.Principal{ID: "alice-id", Username: "alice", Role: models.RoleUser}

func newTestResolver(s Strategy, clock *fakeClock) (*Resolver, *fakeRecorder) {
	rec := &fakeRecorder{}
	cache := NewCache(16, time.Hour, clock.Now)
	r := NewResolver(map[models.Provider]Strategy{models.ProviderAWS: s}, cache, rec, zap.NewNop(), nil)
	return r, rec
}

func TestResolver_CacheHitResolvesOnce(t *testing.T) {
	strategy := &countingStrategy{}
	r, rec := newTestResolver(strategy, newFakeClock())
	ctx := context.Background()

	first, err := r.GetCredentials(ctx, models.ProviderAWS, alice)
	require.NoError(t, err)
	second, err := r.GetCredentials(ctx, models.ProviderAWS, alice)
	require.NoError(t, err)

	assert.Equal(t, int32(1), strategy.calls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, models.StrategyEnvironment, first.Strategy)
	assert.Equal(t, []models.AuditAction{models.AuditActionCredentialsRetrieved}, rec.actions())
}

func TestResolver_InvalidateForcesFreshResolution(t *testing.T) {
	strategy := &countingStrategy{}
	r, rec := newTestResolver(strategy, newFakeClock())
	ctx := context.Background()

	first, err := r.GetCredentials(ctx, models.ProviderAWS, alice)
	require.NoError(t, err)

	r.Invalidate(ctx, alice.ID, models.ProviderAWS)

	second, err := r.GetCredentials(ctx, models.ProviderAWS, alice)
	require.NoError(t, err)

	assert.Equal(t, int32(2), strategy.calls.Load())
	assert.NotEqual(t, first.AWS.AccessKeyID, second.AWS.AccessKeyID)
	assert.Contains(t, rec.actions(), models.AuditActionCredentialCacheClear)
}

func TestResolver_InvalidateAllProviders(t *testing.T) {
	strategy := &countingStrategy{}
	r, _ := newTestResolver(strategy, newFakeClock())
	ctx := context.Background()

	_, err := r.GetCredentials(ctx, models.ProviderAWS, alice)
	require.NoError(t, err)
	r.Invalidate(ctx, alice.ID)
	_, err = r.GetCredentials(ctx, models.ProviderAWS, alice)
	require.NoError(t, err)

	assert.Equal(t, int32(2), strategy.calls.Load())
}

func TestResolver_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	strategy := &countingStrategy{}
	r, _ := newTestResolver(strategy, clock)
	ctx := context.Background()

	_, err := r.GetCredentials(ctx, models.ProviderAWS, alice)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	_, err = r.GetCredentials(ctx, models.ProviderAWS, alice)
	require.NoError(t, err)
	assert.Equal(t, int32(1), strategy.calls.Load())

	clock.Advance(31 * time.Minute)
	_, err = r.GetCredentials(ctx, models.ProviderAWS, alice)
	require.NoError(t, err)
	assert.Equal(t, int32(2), strategy.calls.Load())
}

func TestResolver_AnonymousUsesDefaultKey(t *testing.T) {
	strategy := &countingStrategy{}
	r, _ := newTestResolver(strategy, newFakeClock())
	ctx := context.Background()

	_, err := r.GetCredentials(ctx, models.ProviderAWS, nil)
	require.NoError(t, err)
	_, err = r.GetCredentials(ctx, models.ProviderAWS, nil)
	require.NoError(t, err)
	_, err = r.GetCredentials(ctx, models.ProviderAWS, alice)
	require.NoError(t, err)

	assert.Equal(t, int32(2), strategy.calls.Load())
}

func TestResolver_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown provider", func(t *testing.T) {
		r, _ := newTestResolver(&countingStrategy{}, newFakeClock())
		_, err := r.GetCredentials(ctx, models.Provider("oracle"), alice)
		assert.True(t, services.IsValidationError(err))
	})

	t.Run("no strategy for provider", func(t *testing.T) {
		r, _ := newTestResolver(&countingStrategy{}, newFakeClock())
		_, err := r.GetCredentials(ctx, models.ProviderGCP, alice)
		require.Error(t, err)
		assert.Equal(t, services.CredentialNotConfigured, services.GetCredentialReason(err))
	})

	t.Run("unconfigured result is not cached", func(t *testing.T) {
		strategy := &countingStrategy{none: true}
		r, _ := newTestResolver(strategy, newFakeClock())

		_, err := r.GetCredentials(ctx, models.ProviderAWS, alice)
		assert.Equal(t, services.CredentialNotConfigured, services.GetCredentialReason(err))
		_, err = r.GetCredentials(ctx, models.ProviderAWS, alice)
		assert.Error(t, err)
		assert.Equal(t, int32(2), strategy.calls.Load())
	})

	t.Run("plain errors become upstream unavailable", func(t *testing.T) {
		r, _ := newTestResolver(&countingStrategy{err: errors.New("connection refused")}, newFakeClock())
		_, err := r.GetCredentials(ctx, models.ProviderAWS, alice)
		assert.True(t, services.IsCredentialError(err))
		assert.Equal(t, services.CredentialUpstreamUnavailable, services.GetCredentialReason(err))
	})

	t.Run("credential errors pass through", func(t *testing.T) {
		want := services.NewCredentialError(services.CredentialMissingConfiguration, "no role", nil)
		r, _ := newTestResolver(&countingStrategy{err: want}, newFakeClock())
		_, err := r.GetCredentials(ctx, models.ProviderAWS, alice)
		assert.Equal(t, services.CredentialMissingConfiguration, services.GetCredentialReason(err))
	})
}

func TestResolver_ConcurrentMissesShareResolution(t *testing.T) {
	strategy := &countingStrategy{release: make(chan struct{})}
	r, _ := newTestResolver(strategy, newFakeClock())

	var wg sync.WaitGroup
	results := make([]*models.Credentials, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			creds, err := r.GetCredentials(context.Background(), models.ProviderAWS, alice)
			assert.NoError(t, err)
			results[i] = creds
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(strategy.release)
	wg.Wait()

	assert.Equal(t, int32(1), strategy.calls.Load())
	for _, c := range results {
		assert.Equal(t, results[0], c)
	}
}

func TestResolver_Metrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cache := NewCache(16, time.Hour, nil)
	r := NewResolver(map[models.Provider]Strategy{models.ProviderAWS: &countingStrategy{}}, cache, nil, zap.NewNop(), metrics)

	for i := 0; i < 3; i++ {
		_, err := r.GetCredentials(context.Background(), models.ProviderAWS, alice)
		require.NoError(t, err)
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CredentialCacheHits.WithLabelValues("aws")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CredentialCacheMisses.WithLabelValues("aws")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.CredentialResolutions.WithLabelValues("aws", string(models.StrategyEnvironment), "success")))
}

func TestResolver_StrategyFor(t *testing.T) {
	r, _ := newTestResolver(&countingStrategy{kind: models.StrategyUserSupplied}, newFakeClock())

	kind, ok := r.StrategyFor(models.ProviderAWS)
	assert.True(t, ok)
	assert.Equal(t, models.StrategyUserSupplied, kind)

	_, ok = r.StrategyFor(models.ProviderAzure)
	assert.False(t, ok)
}

// blockingStrategy resolves once release is closed, or fails when its
// context ends first
type blockingStrategy struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (s *blockingStrategy) Kind() models.CredentialStrategy { return models.StrategyDelegatedRole }

func (s *blockingStrategy) Resolve(ctx context.Context, provider models.Provider, _ *models.Principal) (*models.Credentials, error) {
	if s.calls.Add(1) == 1 {
		close(s.started)
	}
	select {
	case <-s.release:
		return &models.Credentials{Provider: provider, AWS: &models.AWSCredentials{AccessKeyID: "AKIASHARED"}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestResolver_CallerCancellationDoesNotFailSharedResolution(t *testing.T) {
	strategy := &blockingStrategy{started: make(chan struct{}), release: make(chan struct{})}
	r, _ := newTestResolver(strategy, newFakeClock())

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.GetCredentials(first, models.ProviderAWS, alice)
		firstErr <- err
	}()
	<-strategy.started

	type result struct {
		creds *models.Credentials
		err   error
	}
	second := make(chan result, 1)
	go func() {
		creds, err := r.GetCredentials(context.Background(), models.ProviderAWS, alice)
		second <- result{creds, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		require.Error(t, err)
		assert.Equal(t, services.CredentialUpstreamUnavailable, services.GetCredentialReason(err))
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting for the shared resolution")
	}

	close(strategy.release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Equal(t, "AKIASHARED", res.creds.AWS.AccessKeyID)
	case <-time.After(time.Second):
		t.Fatal("shared resolution never completed")
	}
	assert.Equal(t, int32(1), strategy.calls.Load())

	// the detached resolution still populated the cache
	creds, err := r.GetCredentials(context.Background(), models.ProviderAWS, alice)
	require.NoError(t, err)
	assert.Equal(t, "AKIASHARED", creds.AWS.AccessKeyID)
	assert.Equal(t, int32(1), strategy.calls.Load())
}

func TestResolver_SharedResolutionIsBounded(t *testing.T) {
	strategy := &blockingStrategy{started: make(chan struct{}), release: make(chan struct{})}
	r, _ := newTestResolver(strategy, newFakeClock())
	r.timeout = 20 * time.Millisecond

	_, err := r.GetCredentials(context.Background(), models.ProviderAWS, alice)
	require.Error(t, err)
	assert.Equal(t, services.CredentialUpstreamUnavailable, services.GetCredentialReason(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
