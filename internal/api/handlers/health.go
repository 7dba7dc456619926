package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// HealthChecker is a dependency that can report whether it is reachable.
// *database.PostgresDB and *database.RedisClient both satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports the status of the service dependencies
type HealthHandler struct {
	checks     map[string]HealthChecker
	systemInfo func() map[string]interface{}
}

// HealthResponse is the body of the health endpoint
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	// System is the host sizing the batch forecaster works with, when known.
	System map[string]interface{} `json:"system,omitempty"`
}

// NewHealthHandler creates a health handler over named dependencies. A nil checker is
// reported as not configured.
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// WithSystemInfo adds the output of info to every health response. A nil info is ignored.
func (h *HealthHandler) WithSystemInfo(info func() map[string]interface{}) *HealthHandler {
	h.systemInfo = info
	return h
}

// HealthCheck answers 200 when every dependency is healthy and 503 otherwise
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]string, len(h.checks))
	overallStatus := "ok"
	for name, checker := range h.checks {
		if checker == nil {
			services[name] = "unhealthy: not configured"
			overallStatus = "degraded"
			continue
		}
		if err := checker.HealthCheck(ctx); err != nil {
			services[name] = "unhealthy: " + err.Error()
			overallStatus = "degraded"
		} else {
			services[name] = "healthy"
		}
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  services,
		Version:   os.Getenv("APP_VERSION"),
		Uptime:    time.Since(startTime).String(),
	}
	if h.systemInfo != nil {
		response.System = h.systemInfo()
	}

	statusCode := http.StatusOK
	if overallStatus != "ok" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// LivenessCheck for container restarts
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
