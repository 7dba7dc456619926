package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fahad0samara/commerce-forecast-go/internal/database"
	"github.com/fahad0samara/commerce-forecast-go/internal/services"
)

// CleanupInterface defines the interface for cleanup operations
type CleanupInterface interface {
	GetDataStats(ctx context.Context) (*database.DataStats, error)
	RunCleanup(ctx context.Context) (*services.CleanupReport, error)
}

// CleanupHandler handles cleanup-related API endpoints
type CleanupHandler struct {
	cleanupService CleanupInterface
}

// NewCleanupHandler creates a new cleanup handler
func NewCleanupHandler(cleanupService CleanupInterface) *CleanupHandler {
	return &CleanupHandler{
		cleanupService: cleanupService,
	}
}

// DataStatsResponse represents the response for data statistics
type DataStatsResponse struct {
	database.DataStats
	TotalRecords int64 `json:"total_records"`
}

// GetDataStats returns statistics about current data storage
func (h *CleanupHandler) GetDataStats(c *gin.Context) {
	stats, err := h.cleanupService.GetDataStats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get data statistics"})
		return
	}

	c.JSON(http.StatusOK, DataStatsResponse{
		DataStats:    *stats,
		TotalRecords: stats.ModelConfigs + stats.Forecasts + stats.SeasonalityPatterns +
			stats.ReorderPoints + stats.AlertNotifications,
	})
}

// TriggerCleanup manually triggers a cleanup operation
func (h *CleanupHandler) TriggerCleanup(c *gin.Context) {
	report, err := h.cleanupService.RunCleanup(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run cleanup"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cleanup completed successfully",
		"report":  report,
	})
}
