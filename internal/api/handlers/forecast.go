package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fahad0samara/commerce-forecast-go/internal/forecast"
	"github.com/fahad0samara/commerce-forecast-go/internal/middleware"
	"github.com/fahad0samara/commerce-forecast-go/internal/models"
	"github.com/fahad0samara/commerce-forecast-go/internal/services"
	"github.com/fahad0samara/commerce-forecast-go/internal/utils"
)

// DefaultHorizonDays is used when the days query parameter is missing.
const DefaultHorizonDays = 30

// ForecastInterface defines the forecasting operations exposed over HTTP
type ForecastInterface interface {
	GenerateForecast(ctx context.Context, scope models.Scope, horizonDays int, algorithm *forecast.Algorithm) (*services.ForecastOutcome, error)
	AnalyzeSeasonality(ctx context.Context, productID int64) (*services.SeasonalityAnalysis, error)
}

// BatchInterface defines the batch update operation
type BatchInterface interface {
	UpdateAll(ctx context.Context) (*services.BatchReport, error)
}

// ForecastHandler handles forecast API endpoints
type ForecastHandler struct {
	forecaster ForecastInterface
	batch      BatchInterface
	logger     *logrus.Logger
}

// NewForecastHandler creates a new forecast handler. batch may be nil, in which case the
// batch endpoint answers 503.
func NewForecastHandler(forecaster ForecastInterface, batch BatchInterface, logger *logrus.Logger) *ForecastHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ForecastHandler{
		forecaster: forecaster,
		batch:      batch,
		logger:     logger,
	}
}

// parseID parses a positive integer path parameter.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// GetForecast generates (or serves a cached) forecast for one product in one warehouse.
//
// Query parameters:
//   - days: forecast horizon, 1 to 365, default 30.
//   - algorithm: optional algorithm name; automatic selection when empty.
func (h *ForecastHandler) GetForecast(c *gin.Context) {
	productID, ok := parseID(c, "product_id")
	if !ok {
		return
	}
	warehouseID, ok := parseID(c, "warehouse_id")
	if !ok {
		return
	}

	horizon := DefaultHorizonDays
	if days := c.Query("days"); days != "" {
		parsed, err := strconv.Atoi(days)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid days parameter"})
			return
		}
		horizon = parsed
	}

	var algorithm *forecast.Algorithm
	if name := c.Query("algorithm"); name != "" {
		parsed, err := forecast.ParseAlgorithm(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		algorithm = &parsed
	}

	scope := models.Scope{ProductID: productID, WarehouseID: warehouseID}
	middleware.AddSpanAttribute(c, "forecast.scope", scope.String())
	middleware.AddSpanAttribute(c, "forecast.horizon_days", horizon)
	outcome, err := h.forecaster.GenerateForecast(c.Request.Context(), scope, horizon, algorithm)
	if err != nil {
		h.respondError(c, err, "Failed to generate forecast")
		return
	}

	if outcome.Absent {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "No forecast available",
			"reason": outcome.Reason,
			"detail": outcome.Detail,
		})
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// GetSeasonality returns weekday and monthly sales averages for a product
func (h *ForecastHandler) GetSeasonality(c *gin.Context) {
	productID, ok := parseID(c, "product_id")
	if !ok {
		return
	}

	analysis, err := h.forecaster.AnalyzeSeasonality(c.Request.Context(), productID)
	if err != nil {
		h.respondError(c, err, "Failed to analyze seasonality")
		return
	}
	if analysis.Absent {
		c.JSON(http.StatusNotFound, gin.H{"error": "No sales history for product"})
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// RunBatch refreshes forecasts and reorder points for every active scope
func (h *ForecastHandler) RunBatch(c *gin.Context) {
	if h.batch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Batch updates are not enabled"})
		return
	}

	report, err := h.batch.UpdateAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to run batch update")
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *ForecastHandler) respondError(c *gin.Context, err error, message string) {
	var validation *utils.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
		return
	}

	_ = c.Error(err)
	middleware.RecordError(c, err, message)
	h.logger.WithError(err).WithField("path", c.FullPath()).Error(message)
	if kind, ok := utils.KindOf(err); ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": message, "reason": kind})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}
