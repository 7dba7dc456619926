package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fahad0samara/commerce-forecast-go/internal/config"
)

type RedisClient struct {
	Client *redis.Client
}

func NewRedisConnection(cfg config.RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.Info("Successfully connected to Redis")

	return &RedisClient{Client: rdb}, nil
}

// NewRedisConnectionWithRetry retries the initial connection with a linear backoff.
// The server starts without a cache when every attempt fails.
func NewRedisConnectionWithRetry(cfg config.RedisConfig, attempts int, backoff time.Duration) (*RedisClient, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		client, err := NewRedisConnection(cfg)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logrus.WithFields(logrus.Fields{"attempt": i, "max_attempts": attempts}).WithError(err).Warn("Redis connection failed")
		if i < attempts {
			time.Sleep(time.Duration(i) * backoff)
		}
	}
	return nil, fmt.Errorf("redis unavailable after %d attempts: %w", attempts, lastErr)
}

func (r *RedisClient) Close() {
	if r.Client != nil {
		r.Client.Close()
		logrus.Info("Redis connection closed")
	}
}

func (r *RedisClient) HealthCheck(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}
