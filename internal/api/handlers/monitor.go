package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
	"github.com/fahad0samara/commerce-forecast-go/internal/services"
)

// MonitorInterface defines the monitoring checks
type MonitorInterface interface {
	RunAll(ctx context.Context) (*services.MonitorReport, error)
	CheckAccuracy(ctx context.Context) ([]models.AccuracyFinding, error)
	DetectAnomalies(ctx context.Context) ([]models.AnomalyFinding, error)
	CompareModels(ctx context.Context) ([]models.ComparisonFinding, error)
}

// MonitorHandler exposes the forecast monitor
type MonitorHandler struct {
	monitor MonitorInterface
	logger  *logrus.Logger
}

// NewMonitorHandler creates a new monitor handler
func NewMonitorHandler(monitor MonitorInterface, logger *logrus.Logger) *MonitorHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MonitorHandler{monitor: monitor, logger: logger}
}

// RunAll runs the accuracy, anomaly and comparison checks. Checks that succeeded are returned
// even when another one failed; the failure is reported in the "error" field.
func (h *MonitorHandler) RunAll(c *gin.Context) {
	report, err := h.monitor.RunAll(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		h.logger.WithError(err).Warn("Monitor run incomplete")
		if report == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run monitor checks"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"report": report, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// Accuracy lists forecasts whose realized error exceeded the threshold
func (h *MonitorHandler) Accuracy(c *gin.Context) {
	findings, err := h.monitor.CheckAccuracy(c.Request.Context())
	respondFindings(h, c, findings, err, "Failed to check forecast accuracy")
}

// Anomalies lists recent sales far from their scope's baseline
func (h *MonitorHandler) Anomalies(c *gin.Context) {
	findings, err := h.monitor.DetectAnomalies(c.Request.Context())
	respondFindings(h, c, findings, err, "Failed to detect anomalies")
}

// Comparison lists scopes whose algorithms disagree sharply on accuracy
func (h *MonitorHandler) Comparison(c *gin.Context) {
	findings, err := h.monitor.CompareModels(c.Request.Context())
	respondFindings(h, c, findings, err, "Failed to compare models")
}

func respondFindings[T any](h *MonitorHandler, c *gin.Context, findings []T, err error, message string) {
	if err != nil {
		_ = c.Error(err)
		h.logger.WithError(err).Error(message)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
		return
	}
	if findings == nil {
		findings = []T{}
	}
	c.JSON(http.StatusOK, gin.H{"findings": findings, "count": len(findings)})
}
