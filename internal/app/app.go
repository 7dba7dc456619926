// Package app wires configuration, storage and services into the runnable forecasting
// service. Both the HTTP server and the forecastctl CLI start from New.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fahad0samara/commerce-forecast-go/internal/cache"
	"github.com/fahad0samara/commerce-forecast-go/internal/config"
	"github.com/fahad0samara/commerce-forecast-go/internal/database"
	"github.com/fahad0samara/commerce-forecast-go/internal/logging"
	"github.com/fahad0samara/commerce-forecast-go/internal/services"
	"github.com/fahad0samara/commerce-forecast-go/internal/telemetry"
)

const (
	redisAttempts = 3
	redisBackoff  = 2 * time.Second
)

// App holds the long-lived components of the service.
type App struct {
	Config *config.Config
	Logger *logrus.Logger

	DB *database.PostgresDB
	// Redis is nil when every connection attempt failed; forecasts are then cached in process only.
	Redis *database.RedisClient

	Forecasting *services.ForecastingService
	Batch       *services.BatchForecaster
	Monitor     *services.ForecastMonitor
	Cleanup     *services.CleanupService
	Optimizer   *services.ResourceOptimizer

	telemetry *telemetry.Provider
	otlpHook  *logging.OTLPHook
}

// New connects to PostgreSQL and Redis and builds every service. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	a := &App{Config: cfg, Logger: logger}

	provider, err := telemetry.InitTelemetry(ctx, telemetry.TelemetryConfig{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Environment,
		Release:     telemetry.ServiceVersion,
		SampleRate:  1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.telemetry = provider

	if cfg.Telemetry.Enabled && cfg.Telemetry.LogExport {
		hook, err := logging.NewOTLPHook(logging.OTLPConfig{
			Enabled:        true,
			Endpoint:       cfg.Telemetry.OTLPEndpoint,
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: telemetry.ServiceVersion,
			Environment:    cfg.Environment,
		})
		if err != nil {
			logger.WithError(err).Warn("OTLP log export disabled")
		} else {
			logger.AddHook(hook)
			a.otlpHook = hook
		}
	}

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = db

	redisClient, err := database.NewRedisConnectionWithRetry(cfg.Redis, redisAttempts, redisBackoff)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, forecasts are cached in process only")
	} else {
		a.Redis = redisClient
	}

	forecastCache, err := a.buildCache()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	pool := database.NewTracedPool(db.Pool)
	sales := database.NewSalesRepository(pool)
	store := database.NewForecastRepository(pool)
	catalog := database.NewCatalogRepository(pool)

	a.Forecasting = services.NewForecastingService(sales, catalog, store, forecastCache, cfg.Forecasting, logger)
	a.Optimizer = services.NewResourceOptimizer(services.ResourceOptimizerConfig{MaxWorkers: cfg.Forecasting.MaxWorkers}, logger)
	a.Batch = services.NewBatchForecaster(
		a.Forecasting,
		sales,
		services.NewReorderPointService(store, logger),
		a.Optimizer,
		services.BatchConfig{
			HorizonDays:  cfg.Forecasting.DefaultHorizonDays,
			LookbackDays: cfg.Forecasting.RetentionDays,
			MaxWorkers:   cfg.Forecasting.MaxWorkers,
			ScopeTimeout: cfg.Forecasting.ScopeTimeout,
		},
		logger,
	)
	a.Monitor = services.NewForecastMonitor(store, sales, a.alertSink(database.NewNotificationRepository(pool)), cfg.Telegram.AlertChatIDs, cfg.Monitoring, logger)
	a.Cleanup = services.NewCleanupService(store, cfg.Forecasting.RetentionDays, logger)

	return a, nil
}

// buildCache layers the in-process LRU in front of Redis when Redis is reachable.
func (a *App) buildCache() (cache.ForecastCache, error) {
	local, err := cache.NewLocalForecastCache(a.Config.Forecasting.LocalCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create local forecast cache: %w", err)
	}
	if a.Redis == nil {
		return local, nil
	}
	shared := cache.NewRedisForecastCache(a.Redis.Client, a.Logger)
	return cache.NewTieredForecastCache(local, shared, a.Config.Forecasting.CacheTTL), nil
}

// alertSink returns the Telegram sink when a bot token and chats are configured, and the
// log sink otherwise.
func (a *App) alertSink(history services.NotificationLogger) services.AlertSink {
	tg := a.Config.Telegram
	if tg.BotToken == "" || len(tg.AlertChatIDs) == 0 {
		a.Logger.Info("Telegram alerts disabled, alerts are logged only")
		return services.NewLogAlertSink(a.Logger)
	}
	sink, err := services.NewTelegramAlertSink(tg.BotToken, history, tg.RatePerSecond, a.Logger)
	if err != nil {
		a.Logger.WithError(err).Warn("Failed to create Telegram alert sink, alerts are logged only")
		return services.NewLogAlertSink(a.Logger)
	}
	return sink
}

// Scheduler builds the background schedule over the app's services.
func (a *App) Scheduler() *services.Scheduler {
	return services.NewForecastScheduler(a.Config.Scheduler, a.Batch, a.Monitor, a.Cleanup, a.Logger)
}

// Close releases connections and flushes telemetry. It is safe on a partially built App.
func (a *App) Close(ctx context.Context) {
	if a.Batch != nil {
		a.Batch.Shutdown()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.otlpHook != nil {
		if err := a.otlpHook.Shutdown(ctx); err != nil {
			a.Logger.WithError(err).Warn("Failed to flush OTLP logs")
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.Logger.WithError(err).Warn("Failed to shutdown telemetry")
	}
}
