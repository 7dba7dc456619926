package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/fahad0samara/commerce-forecast-go/internal/api/handlers"
	"github.com/fahad0samara/commerce-forecast-go/internal/middleware"
)

// Dependencies are the services behind the HTTP API.
type Dependencies struct {
	Forecasts handlers.ForecastInterface
	// Batch is optional; without it the batch endpoint answers 503.
	Batch   handlers.BatchInterface
	Monitor handlers.MonitorInterface
	Cleanup handlers.CleanupInterface
	// Health maps dependency names ("database", "redis") to their checkers.
	Health map[string]handlers.HealthChecker
	// SystemInfo is optional host sizing reported on /health.
	SystemInfo func() map[string]interface{}

	Auth   *middleware.AuthMiddleware
	Admin  *middleware.AdminMiddleware
	Logger *logrus.Logger
}

// SetupRoutes registers the health, metrics and v1 API routes on router.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.Health).WithSystemInfo(deps.SystemInfo)
	forecastHandler := handlers.NewForecastHandler(deps.Forecasts, deps.Batch, deps.Logger)
	monitorHandler := handlers.NewMonitorHandler(deps.Monitor, deps.Logger)
	cleanupHandler := handlers.NewCleanupHandler(deps.Cleanup)

	// Health check endpoints
	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)
	router.GET("/health/live", healthHandler.LivenessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(deps.Auth.RequireAuth())
	{
		forecasts := v1.Group("/forecast")
		{
			forecasts.GET("/:product_id/:warehouse_id", forecastHandler.GetForecast)
			forecasts.GET("/seasonality/:product_id", forecastHandler.GetSeasonality)

			forecasts.GET("/monitor", monitorHandler.RunAll)
			forecasts.GET("/accuracy", monitorHandler.Accuracy)
			forecasts.GET("/anomalies", monitorHandler.Anomalies)
			forecasts.GET("/models/comparison", monitorHandler.Comparison)
		}

		maintenance := v1.Group("/maintenance")
		{
			maintenance.GET("/stats", cleanupHandler.GetDataStats)
		}
	}

	// Admin routes authenticate with the admin API key or an admin token, so they are
	// registered outside the RequireAuth group.
	admin := router.Group("/api/v1")
	admin.Use(deps.Admin.RequireAdminAuth())
	{
		admin.POST("/forecast/batch", forecastHandler.RunBatch)
		admin.POST("/maintenance/cleanup", cleanupHandler.TriggerCleanup)
	}
}
