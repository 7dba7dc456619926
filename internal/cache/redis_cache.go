package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fahad0samara/commerce-forecast-go/internal/metrics"
)

// ForecastCache is a best-effort byte cache. A failed lookup is a miss and a failed store is
// dropped, so callers never see an error.
type ForecastCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// ForecastCacheEntry wraps a cached payload with its timing metadata
type ForecastCacheEntry struct {
	Payload   json.RawMessage `json:"payload"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

type statsCounter struct {
	mu    sync.RWMutex
	stats CacheStats
}

func (s *statsCounter) add(f func(*CacheStats)) {
	s.mu.Lock()
	f(&s.stats)
	s.mu.Unlock()
}

func (s *statsCounter) snapshot() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// RedisForecastCache stores forecast responses in Redis so every replica shares them
type RedisForecastCache struct {
	redis  *redis.Client
	stats  *statsCounter
	prefix string
	logger *logrus.Logger
}

// NewRedisForecastCache creates a new Redis-based forecast cache
func NewRedisForecastCache(redisClient *redis.Client, logger *logrus.Logger) *RedisForecastCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisForecastCache{
		redis:  redisClient,
		stats:  &statsCounter{},
		prefix: "forecast_cache:",
		logger: logger,
	}
}

func (c *RedisForecastCache) miss() {
	c.stats.add(func(s *CacheStats) { s.Misses++ })
	metrics.CacheRequestsTotal.WithLabelValues("redis", "miss").Inc()
}

// Get returns the cached payload for key
func (c *RedisForecastCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.redis.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.logger.WithField("key", key).WithError(err).Warn("Redis error reading forecast cache")
		c.stats.add(func(s *CacheStats) { s.Errors++ })
		c.miss()
		return nil, false
	}

	var entry ForecastCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.WithField("key", key).WithError(err).Warn("Discarding undecodable forecast cache entry")
		c.miss()
		return nil, false
	}

	// Redis expiry is authoritative; this only guards entries written without a TTL.
	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		c.miss()
		return nil, false
	}

	c.stats.add(func(s *CacheStats) { s.Hits++ })
	metrics.CacheRequestsTotal.WithLabelValues("redis", "hit").Inc()
	return entry.Payload, true
}

// Set stores value under key for ttl. value must be JSON.
func (c *RedisForecastCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	now := time.Now()
	entry := ForecastCacheEntry{Payload: value, CachedAt: now}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.WithField("key", key).WithError(err).Warn("Error serializing forecast cache entry")
		return
	}

	if err := c.redis.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		c.logger.WithField("key", key).WithError(err).Warn("Redis error writing forecast cache")
		c.stats.add(func(s *CacheStats) { s.Errors++ })
		return
	}

	c.stats.add(func(s *CacheStats) { s.Sets++ })
}

// GetStats returns current cache statistics
func (c *RedisForecastCache) GetStats() CacheStats {
	return c.stats.snapshot()
}

// LogStats logs current cache performance statistics
func (c *RedisForecastCache) LogStats() {
	stats := c.GetStats()
	c.logger.WithFields(logrus.Fields{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"errors":   stats.Errors,
		"hit_rate": hitRate(stats),
	}).Info("Redis forecast cache stats")
}

func hitRate(stats CacheStats) float64 {
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0
	}
	return float64(stats.Hits) / float64(total) * 100
}

// Clear removes all cached forecasts
func (c *RedisForecastCache) Clear(ctx context.Context) (int, error) {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("error scanning cache keys: %w", err)
	}

	if len(keys) == 0 {
		return 0, nil
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("error clearing cache: %w", err)
	}

	c.logger.WithField("entries", len(keys)).Info("Cleared forecast cache")
	return len(keys), nil
}
