package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahad0samara/commerce-forecast-go/internal/api/handlers"
	"github.com/fahad0samara/commerce-forecast-go/internal/database"
	"github.com/fahad0samara/commerce-forecast-go/internal/forecast"
	"github.com/fahad0samara/commerce-forecast-go/internal/middleware"
	"github.com/fahad0samara/commerce-forecast-go/internal/models"
	"github.com/fahad0samara/commerce-forecast-go/internal/services"
)

const (
	testJWTSecret = "routes-test-secret"
	testAdminKey  = "routes-admin-key"
)

type stubForecasts struct {
	lastScope   models.Scope
	lastHorizon int
}

func (s *stubForecasts) GenerateForecast(_ context.Context, scope models.Scope, horizonDays int, _ *forecast.Algorithm) (*services.ForecastOutcome, error) {
	s.lastScope = scope
	s.lastHorizon = horizonDays
	return &services.ForecastOutcome{Scope: scope, Algorithm: forecast.MovingAverage, Forecasts: []services.ForecastPoint{}}, nil
}

func (s *stubForecasts) AnalyzeSeasonality(_ context.Context, productID int64) (*services.SeasonalityAnalysis, error) {
	return &services.SeasonalityAnalysis{ProductID: productID}, nil
}

type stubBatch struct{ calls int }

func (s *stubBatch) UpdateAll(context.Context) (*services.BatchReport, error) {
	s.calls++
	return &services.BatchReport{Scopes: 1, Succeeded: 1}, nil
}

type stubMonitor struct{ comparisons int }

func (s *stubMonitor) RunAll(context.Context) (*services.MonitorReport, error) {
	return &services.MonitorReport{}, nil
}

func (s *stubMonitor) CheckAccuracy(context.Context) ([]models.AccuracyFinding, error) {
	return nil, nil
}

func (s *stubMonitor) DetectAnomalies(context.Context) ([]models.AnomalyFinding, error) {
	return nil, nil
}

func (s *stubMonitor) CompareModels(context.Context) ([]models.ComparisonFinding, error) {
	s.comparisons++
	return nil, nil
}

type stubCleanup struct{ runs int }

func (s *stubCleanup) GetDataStats(context.Context) (*database.DataStats, error) {
	return &database.DataStats{Forecasts: 10}, nil
}

func (s *stubCleanup) RunCleanup(context.Context) (*services.CleanupReport, error) {
	s.runs++
	return &services.CleanupReport{}, nil
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

type routeFixture struct {
	router    *gin.Engine
	auth      *middleware.AuthMiddleware
	forecasts *stubForecasts
	batch     *stubBatch
	monitor   *stubMonitor
	cleanup   *stubCleanup
}

func newRouteFixture() *routeFixture {
	gin.SetMode(gin.TestMode)
	auth := middleware.NewAuthMiddleware(testJWTSecret)
	f := &routeFixture{
		router:    gin.New(),
		auth:      auth,
		forecasts: &stubForecasts{},
		batch:     &stubBatch{},
		monitor:   &stubMonitor{},
		cleanup:   &stubCleanup{},
	}
	SetupRoutes(f.router, Dependencies{
		Forecasts: f.forecasts,
		Batch:     f.batch,
		Monitor:   f.monitor,
		Cleanup:   f.cleanup,
		Health:    map[string]handlers.HealthChecker{"database": stubHealth{}, "redis": stubHealth{}},
		Auth:      auth,
		Admin:     middleware.NewAdminMiddleware(testAdminKey, auth),
		Logger:    logrus.New(),
	})
	return f
}

func (f *routeFixture) do(t *testing.T, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *routeFixture) bearer(t *testing.T, role string) map[string]string {
	t.Helper()
	token, err := f.auth.GenerateToken("planner-1", role, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestSetupRoutes_Health(t *testing.T) {
	f := newRouteFixture()

	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response handlers.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "healthy", response.Services["database"])
}

func TestSetupRoutes_Metrics(t *testing.T) {
	f := newRouteFixture()

	w := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestSetupRoutes_ForecastRequiresAuth(t *testing.T) {
	f := newRouteFixture()

	w := f.do(t, http.MethodGet, "/api/v1/forecast/7/3", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/forecast/7/3?days=14", f.bearer(t, middleware.RoleViewer))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.Scope{ProductID: 7, WarehouseID: 3}, f.forecasts.lastScope)
	assert.Equal(t, 14, f.forecasts.lastHorizon)
}

func TestSetupRoutes_StaticForecastPaths(t *testing.T) {
	f := newRouteFixture()
	headers := f.bearer(t, middleware.RoleViewer)

	w := f.do(t, http.MethodGet, "/api/v1/forecast/models/comparison", headers)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.monitor.comparisons)
	assert.Equal(t, models.Scope{}, f.forecasts.lastScope, "comparison must not be routed to the forecast handler")

	for _, path := range []string{
		"/api/v1/forecast/monitor",
		"/api/v1/forecast/accuracy",
		"/api/v1/forecast/anomalies",
		"/api/v1/forecast/seasonality/7",
		"/api/v1/maintenance/stats",
	} {
		w := f.do(t, http.MethodGet, path, headers)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestSetupRoutes_AdminRoutes(t *testing.T) {
	tests := []struct {
		name           string
		headers        func(f *routeFixture, t *testing.T) map[string]string
		expectedStatus int
	}{
		{
			name:           "No credentials",
			headers:        func(*routeFixture, *testing.T) map[string]string { return nil },
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Viewer token",
			headers: func(f *routeFixture, t *testing.T) map[string]string {
				return f.bearer(t, middleware.RoleViewer)
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Admin token",
			headers: func(f *routeFixture, t *testing.T) map[string]string {
				return f.bearer(t, middleware.RoleAdmin)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "API key",
			headers: func(*routeFixture, *testing.T) map[string]string {
				return map[string]string{"X-API-Key": testAdminKey}
			},
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouteFixture()
			headers := tt.headers(f, t)

			w := f.do(t, http.MethodPost, "/api/v1/forecast/batch", headers)
			assert.Equal(t, tt.expectedStatus, w.Code)

			w = f.do(t, http.MethodPost, "/api/v1/maintenance/cleanup", headers)
			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, 1, f.batch.calls)
				assert.Equal(t, 1, f.cleanup.runs)
			} else {
				assert.Zero(t, f.batch.calls)
				assert.Zero(t, f.cleanup.runs)
			}
		})
	}
}
