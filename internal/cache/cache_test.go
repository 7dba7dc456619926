package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahad0samara/commerce-forecast-go/internal/testutil"
)

func TestRedisForecastCache_SetAndGet(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	cache := NewRedisForecastCache(client, nil)
	ctx := context.Background()

	cache.Set(ctx, "forecast:7:3:arima:30", []byte(`{"algorithm":"arima"}`), time.Hour)
	value, found := cache.Get(ctx, "forecast:7:3:arima:30")

	assert.True(t, found)
	assert.JSONEq(t, `{"algorithm":"arima"}`, string(value))

	stats := cache.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestRedisForecastCache_Miss(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	cache := NewRedisForecastCache(client, nil)

	value, found := cache.Get(context.Background(), "absent")

	assert.False(t, found)
	assert.Nil(t, value)
	assert.Equal(t, int64(1), cache.GetStats().Misses)
}

func TestRedisForecastCache_ExpiresWithTTL(t *testing.T) {
	client, server := testutil.NewRedis(t)
	cache := NewRedisForecastCache(client, nil)
	ctx := context.Background()

	cache.Set(ctx, "k", []byte(`1`), time.Minute)
	server.FastForward(2 * time.Minute)

	_, found := cache.Get(ctx, "k")
	assert.False(t, found)
}

func TestRedisForecastCache_CorruptEntryIsMiss(t *testing.T) {
	client, server := testutil.NewRedis(t)
	cache := NewRedisForecastCache(client, nil)
	require.NoError(t, server.Set("forecast_cache:k", "not json"))

	_, found := cache.Get(context.Background(), "k")

	assert.False(t, found)
}

func TestRedisForecastCache_UnavailableDegradesToMiss(t *testing.T) {
	client, server := testutil.NewRedis(t)
	cache := NewRedisForecastCache(client, nil)
	server.Close()
	ctx := context.Background()

	assert.NotPanics(t, func() { cache.Set(ctx, "k", []byte(`1`), time.Minute) })
	_, found := cache.Get(ctx, "k")

	assert.False(t, found)
	assert.Equal(t, int64(2), cache.GetStats().Errors)
}

func TestRedisForecastCache_Clear(t *testing.T) {
	client, server := testutil.NewRedis(t)
	cache := NewRedisForecastCache(client, nil)
	ctx := context.Background()
	require.NoError(t, server.Set("other:key", "x"))

	cache.Set(ctx, "a", []byte(`1`), time.Hour)
	cache.Set(ctx, "b", []byte(`2`), time.Hour)
	n, err := cache.Clear(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, server.Exists("other:key"))
	assert.False(t, server.Exists("forecast_cache:a"))
}

func TestLocalForecastCache_TTL(t *testing.T) {
	cache, err := NewLocalForecastCache(4)
	require.NoError(t, err)
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	cache.Set(ctx, "k", []byte("v"), time.Hour)
	value, found := cache.Get(ctx, "k")
	require.True(t, found)
	assert.Equal(t, []byte("v"), value)

	now = now.Add(61 * time.Minute)
	_, found = cache.Get(ctx, "k")
	assert.False(t, found)
	assert.Equal(t, 0, cache.Len())
}

func TestLocalForecastCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache, err := NewLocalForecastCache(2)
	require.NoError(t, err)
	ctx := context.Background()

	cache.Set(ctx, "a", []byte("1"), 0)
	cache.Set(ctx, "b", []byte("2"), 0)
	_, _ = cache.Get(ctx, "a")
	cache.Set(ctx, "c", []byte("3"), 0)

	_, foundA := cache.Get(ctx, "a")
	_, foundB := cache.Get(ctx, "b")
	assert.True(t, foundA)
	assert.False(t, foundB)
	assert.Equal(t, int64(1), cache.Evictions())
}

func TestNewLocalForecastCache_InvalidSize(t *testing.T) {
	_, err := NewLocalForecastCache(0)
	assert.Error(t, err)
}

func TestTieredForecastCache_PromotesSharedHits(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	shared := NewRedisForecastCache(client, nil)
	local, err := NewLocalForecastCache(8)
	require.NoError(t, err)
	tiered := NewTieredForecastCache(local, shared, 5*time.Minute)
	ctx := context.Background()

	shared.Set(ctx, "k", []byte(`{"n":1}`), time.Hour)

	value, found := tiered.Get(ctx, "k")
	require.True(t, found)
	assert.JSONEq(t, `{"n":1}`, string(value))

	value, found = local.Get(ctx, "k")
	require.True(t, found)
	assert.JSONEq(t, `{"n":1}`, string(value))
}

func TestTieredForecastCache_WritesBothTiers(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	shared := NewRedisForecastCache(client, nil)
	local, err := NewLocalForecastCache(8)
	require.NoError(t, err)
	tiered := NewTieredForecastCache(local, shared, 5*time.Minute)
	ctx := context.Background()

	tiered.Set(ctx, "k", []byte(`2`), time.Hour)

	_, inLocal := local.Get(ctx, "k")
	_, inShared := shared.Get(ctx, "k")
	assert.True(t, inLocal)
	assert.True(t, inShared)
}

func TestTieredForecastCache_WithoutSharedTier(t *testing.T) {
	local, err := NewLocalForecastCache(8)
	require.NoError(t, err)
	tiered := NewTieredForecastCache(local, nil, time.Minute)
	ctx := context.Background()

	_, found := tiered.Get(ctx, "k")
	assert.False(t, found)

	tiered.Set(ctx, "k", []byte(`3`), time.Hour)
	_, found = tiered.Get(ctx, "k")
	assert.True(t, found)
}
