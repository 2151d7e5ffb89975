package credentials

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/upb/multicloud-dashboard/models"
)

// DefaultTTL is how long a resolved credential stays valid
const DefaultTTL = time.Hour

// DefaultPrincipalKey keys lookups made without an authenticated principal
const DefaultPrincipalKey = "default"

// cacheEntry pairs resolved credentials with their fetch time
type cacheEntry struct {
	creds     *models.Credentials
	fetchedAt time.Time
}

// Cache is a bounded TTL cache keyed by (provider, principal). The expirable
// LRU evicts in the background; the fetch timestamp is re-checked on every
// read against the injected clock so expiry is exact.
type Cache struct {
	mu          sync.Mutex
	lru         *expirable.LRU[string, cacheEntry]
	generations map[string]uint64
	ttl         time.Duration
	now         func() time.Time
	hits        uint64
	misses      uint64
}

// NewCache creates a cache holding at most size entries. A nil clock uses time.Now.
func NewCache(size int, ttl time.Duration, now func() time.Time) *Cache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		lru:         expirable.NewLRU[string, cacheEntry](size, nil, ttl),
		generations: make(map[string]uint64),
		ttl:         ttl,
		now:         now,
	}
}

// CacheKey returns the "<provider>-<principal>" key
func CacheKey(provider models.Provider, principalID string) string {
	if principalID == "" {
		principalID = DefaultPrincipalKey
	}
	return string(provider) + "-" + principalID
}

// Get returns cached credentials while now - fetchedAt < ttl
func (c *Cache) Get(provider models.Provider, principalID string) (*models.Credentials, bool) {
	key := CacheKey(provider, principalID)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().Sub(entry.fetchedAt) >= c.ttl {
		c.lru.Remove(key)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.creds, true
}

// Generation returns the invalidation generation of a key. Pass it to
// PutIfCurrent so a resolution started before an invalidation cannot
// repopulate the cache with stale credentials.
func (c *Cache) Generation(provider models.Provider, principalID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[CacheKey(provider, principalID)]
}

// Put stores credentials with the current time as fetch timestamp
func (c *Cache) Put(provider models.Provider, principalID string, creds *models.Credentials) {
	key := CacheKey(provider, principalID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, cacheEntry{creds: creds, fetchedAt: c.now()})
}

// PutIfCurrent stores credentials only if the key was not invalidated since
// generation was read. Reports whether the entry was stored.
func (c *Cache) PutIfCurrent(provider models.Provider, principalID string, generation uint64, creds *models.Credentials) bool {
	key := CacheKey(provider, principalID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key] != generation {
		return false
	}
	c.lru.Add(key, cacheEntry{creds: creds, fetchedAt: c.now()})
	return true
}

// Invalidate removes the principal's entries for the given providers, or for
// every provider when none are given. Returns the number of entries removed.
func (c *Cache) Invalidate(principalID string, providers ...models.Provider) int {
	if len(providers) == 0 {
		providers = models.AllProviders
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, p := range providers {
		key := CacheKey(p, principalID)
		c.generations[key]++
		if c.lru.Remove(key) {
			removed++
		}
	}
	return removed
}

// Purge drops every entry
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.lru.Keys() {
		c.generations[key]++
	}
	c.lru.Purge()
}

// CacheStats represents credential cache statistics
type CacheStats struct {
	Size   int
	Hits   uint64
	Misses uint64
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Size: c.lru.Len(), Hits: c.hits, Misses: c.misses}
}
