package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fahad0samara/commerce-forecast-go/internal/metrics"
)

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// LocalForecastCache is a size-bounded in-process cache with per-entry expiry.
// Least recently used entries are evicted when full.
type LocalForecastCache struct {
	cache *lru.Cache[string, localEntry]
	now   func() time.Time
	stats *statsCounter

	mu      sync.Mutex
	evicted int64
}

// NewLocalForecastCache creates a cache holding at most size entries.
func NewLocalForecastCache(size int) (*LocalForecastCache, error) {
	c := &LocalForecastCache{now: time.Now, stats: &statsCounter{}}
	cache, err := lru.NewWithEvict[string, localEntry](size, func(string, localEntry) {
		c.mu.Lock()
		c.evicted++
		c.mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

func (c *LocalForecastCache) Get(_ context.Context, key string) ([]byte, bool) {
	entry, ok := c.cache.Get(key)
	if ok && !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.cache.Remove(key)
		ok = false
	}
	if !ok {
		c.stats.add(func(s *CacheStats) { s.Misses++ })
		metrics.CacheRequestsTotal.WithLabelValues("local", "miss").Inc()
		return nil, false
	}
	c.stats.add(func(s *CacheStats) { s.Hits++ })
	metrics.CacheRequestsTotal.WithLabelValues("local", "hit").Inc()
	return entry.value, true
}

// Set stores value for ttl. A non-positive ttl keeps the entry until it is evicted.
func (c *LocalForecastCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	entry := localEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.cache.Add(key, entry)
	c.stats.add(func(s *CacheStats) { s.Sets++ })
}

// Len returns the number of entries, including expired ones not yet touched.
func (c *LocalForecastCache) Len() int {
	return c.cache.Len()
}

// Purge drops every entry.
func (c *LocalForecastCache) Purge() {
	c.cache.Purge()
}

func (c *LocalForecastCache) GetStats() CacheStats {
	return c.stats.snapshot()
}

// Evictions returns how many entries left the cache through capacity, expiry or Purge.
func (c *LocalForecastCache) Evictions() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evicted
}

// TieredForecastCache reads through a fast local tier before a shared one.
// Hits on the shared tier are copied into the local tier with the local TTL.
type TieredForecastCache struct {
	local    ForecastCache
	shared   ForecastCache
	localTTL time.Duration
}

// NewTieredForecastCache layers local in front of shared. shared may be nil when Redis is unavailable.
func NewTieredForecastCache(local, shared ForecastCache, localTTL time.Duration) *TieredForecastCache {
	return &TieredForecastCache{local: local, shared: shared, localTTL: localTTL}
}

func (c *TieredForecastCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := c.local.Get(ctx, key); ok {
		return value, true
	}
	if c.shared == nil {
		return nil, false
	}
	value, ok := c.shared.Get(ctx, key)
	if ok {
		c.local.Set(ctx, key, value, c.localTTL)
	}
	return value, ok
}

func (c *TieredForecastCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	localTTL := c.localTTL
	if ttl > 0 && (localTTL <= 0 || ttl < localTTL) {
		localTTL = ttl
	}
	c.local.Set(ctx, key, value, localTTL)
	if c.shared != nil {
		c.shared.Set(ctx, key, value, ttl)
	}
}
