package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/fahad0samara/commerce-forecast-go/internal/api"
	"github.com/fahad0samara/commerce-forecast-go/internal/api/handlers"
	"github.com/fahad0samara/commerce-forecast-go/internal/app"
	"github.com/fahad0samara/commerce-forecast-go/internal/config"
	"github.com/fahad0samara/commerce-forecast-go/internal/logging"
	"github.com/fahad0samara/commerce-forecast-go/internal/middleware"
	"github.com/fahad0samara/commerce-forecast-go/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment and config.yaml still apply.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		application.Close(closeCtx)
	}()
	logger := application.Logger

	scheduler := application.Scheduler()
	scheduler.Start()
	defer scheduler.Stop()

	deps := api.Dependencies{
		Forecasts: application.Forecasting,
		Batch:     application.Batch,
		Monitor:   application.Monitor,
		Cleanup:   application.Cleanup,
		Health:    healthChecks(application),
		Logger:    logger,
	}
	if application.Optimizer != nil {
		deps.SystemInfo = application.Optimizer.GetSystemInfo
	}
	router := newRouter(cfg, deps)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.LogStartup(logger, telemetry.ServiceName, telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logging.LogShutdown(logger, telemetry.ServiceName, sig.String())
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

// newRouter builds the gin engine with recovery, tracing and request metrics in front of
// the API routes. deps.Auth and deps.Admin are filled from cfg.Security.
func newRouter(cfg *config.Config, deps api.Dependencies) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.Logger))
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(middleware.TelemetryMiddleware())

	deps.Auth = middleware.NewAuthMiddleware(cfg.Security.JWTSecret)
	deps.Admin = middleware.NewAdminMiddleware(cfg.Security.AdminAPIKey, deps.Auth)
	api.SetupRoutes(router, deps)

	return router
}

// healthChecks lists the dependencies reported by /health. A Redis outage at startup is
// reported as not configured.
func healthChecks(a *app.App) map[string]handlers.HealthChecker {
	checks := map[string]handlers.HealthChecker{
		"database": nil,
		"redis":    nil,
	}
	if a.DB != nil {
		checks["database"] = a.DB
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis
	}
	return checks
}

// requestLogger writes one structured line per request.
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logging.WithComponent(logger, "http").WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("Request failed")
		case status >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Debug("Request served")
		}
	}
}
