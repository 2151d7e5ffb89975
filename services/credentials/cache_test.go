package credentials

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/multicloud-dashboard/models"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func awsCreds(key string) *models.Credentials {
	return &models.Credentials{
		Provider: models.ProviderAWS,
		AWS:      &models.AWSCredentials{AccessKeyID: key, SecretAccessKey: "secret"},
	}
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "aws-user-1", CacheKey(models.ProviderAWS, "user-1"))
	assert.Equal(t, "gcp-default", CacheKey(models.ProviderGCP, ""))
}

func TestCache_TTL(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(10, time.Hour, clock.Now)

	_, ok := cache.Get(models.ProviderAWS, "u1")
	assert.False(t, ok)

	cache.Put(models.ProviderAWS, "u1", awsCreds("AKIA1"))

	clock.Advance(59 * time.Minute)
	got, ok := cache.Get(models.ProviderAWS, "u1")
	require.True(t, ok)
	assert.Equal(t, "AKIA1", got.AWS.AccessKeyID)

	clock.Advance(time.Minute)
	_, ok = cache.Get(models.ProviderAWS, "u1")
	assert.False(t, ok, "entry must expire once its age reaches the ttl")

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.Equal(t, 0, stats.Size)
}

func TestCache_KeysArePerPrincipalAndProvider(t *testing.T) {
	cache := NewCache(10, time.Hour, nil)
	cache.Put(models.ProviderAWS, "u1", awsCreds("AKIA1"))

	_, ok := cache.Get(models.ProviderAWS, "u2")
	assert.False(t, ok)
	_, ok = cache.Get(models.ProviderAzure, "u1")
	assert.False(t, ok)
	_, ok = cache.Get(models.ProviderAWS, "")
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	cache := NewCache(10, time.Hour, nil)
	for _, p := range models.AllProviders {
		cache.Put(p, "u1", &models.Credentials{Provider: p})
	}
	cache.Put(models.ProviderAWS, "u2", awsCreds("AKIA2"))

	assert.Equal(t, 1, cache.Invalidate("u1", models.ProviderAWS))
	_, ok := cache.Get(models.ProviderAWS, "u1")
	assert.False(t, ok)
	_, ok = cache.Get(models.ProviderAzure, "u1")
	assert.True(t, ok)

	assert.Equal(t, 2, cache.Invalidate("u1"))
	_, ok = cache.Get(models.ProviderGCP, "u1")
	assert.False(t, ok)

	_, ok = cache.Get(models.ProviderAWS, "u2")
	assert.True(t, ok, "other principals are untouched")
}

func TestCache_PutIfCurrentSkipsStaleResolution(t *testing.T) {
	cache := NewCache(10, time.Hour, nil)

	gen := cache.Generation(models.ProviderAWS, "u1")
	cache.Invalidate("u1", models.ProviderAWS)

	assert.False(t, cache.PutIfCurrent(models.ProviderAWS, "u1", gen, awsCreds("stale")))
	_, ok := cache.Get(models.ProviderAWS, "u1")
	assert.False(t, ok)

	gen = cache.Generation(models.ProviderAWS, "u1")
	assert.True(t, cache.PutIfCurrent(models.ProviderAWS, "u1", gen, awsCreds("fresh")))
	got, ok := cache.Get(models.ProviderAWS, "u1")
	require.True(t, ok)
	assert.Equal(t, "fresh", got.AWS.AccessKeyID)
}

func TestCache_Purge(t *testing.T) {
	cache := NewCache(10, time.Hour, nil)
	cache.Put(models.ProviderAWS, "u1", awsCreds("a"))
	cache.Put(models.ProviderGCP, "u2", &models.Credentials{Provider: models.ProviderGCP})

	cache.Purge()
	assert.Equal(t, 0, cache.Stats().Size)
}
