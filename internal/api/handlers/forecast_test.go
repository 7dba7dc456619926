package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fahad0samara/commerce-forecast-go/internal/forecast"
	"github.com/fahad0samara/commerce-forecast-go/internal/models"
	"github.com/fahad0samara/commerce-forecast-go/internal/services"
	"github.com/fahad0samara/commerce-forecast-go/internal/utils"
)

func setupForecastRouter(h *ForecastHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/forecast/:product_id/:warehouse_id", h.GetForecast)
	router.GET("/forecast/seasonality/:product_id", h.GetSeasonality)
	router.POST("/forecast/batch", h.RunBatch)
	return router
}

func isAlgorithm(want forecast.Algorithm) interface{} {
	return mock.MatchedBy(func(a *forecast.Algorithm) bool { return a != nil && *a == want })
}

func sampleOutcome() *services.ForecastOutcome {
	return &services.ForecastOutcome{
		Scope:         models.Scope{ProductID: 7, WarehouseID: 3},
		ProductName:   "Espresso Beans 1kg",
		WarehouseName: "Rotterdam DC",
		Algorithm:     forecast.ARIMA,
		SelectedBy:    "selector",
		ModelConfigID: "cfg-1",
		Metrics:       models.AccuracyMetrics{MAPE: 8.5, RMSE: 4.2, MAE: 3.1},
		Forecasts: []services.ForecastPoint{
			{Date: "2024-06-15", Quantity: 40, LowerBound: 31, UpperBound: 49},
			{Date: "2024-06-16", Quantity: 42, LowerBound: 32, UpperBound: 52},
		},
		GeneratedAt: time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC),
	}
}

func TestNewForecastHandler(t *testing.T) {
	forecaster := &MockForecastService{}
	handler := NewForecastHandler(forecaster, nil, nil)

	assert.NotNil(t, handler)
	assert.Equal(t, forecaster, handler.forecaster)
	assert.Nil(t, handler.batch)
	assert.NotNil(t, handler.logger)
}

func TestForecastHandler_GetForecast(t *testing.T) {
	scope := models.Scope{ProductID: 7, WarehouseID: 3}
	nilAlgorithm := (*forecast.Algorithm)(nil)

	tests := []struct {
		name           string
		path           string
		setup          func(m *MockForecastService)
		expectedStatus int
		expectedError  string
		expectedReason string
	}{
		{
			name: "Default horizon with automatic selection",
			path: "/forecast/7/3",
			setup: func(m *MockForecastService) {
				m.On("GenerateForecast", mock.Anything, scope, 30, nilAlgorithm).Return(sampleOutcome(), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Explicit horizon and algorithm alias",
			path: "/forecast/7/3?days=14&algorithm=holt_winters",
			setup: func(m *MockForecastService) {
				m.On("GenerateForecast", mock.Anything, scope, 14, isAlgorithm(forecast.ExponentialSmoothing)).Return(sampleOutcome(), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Non numeric product",
			path:           "/forecast/abc/3",
			setup:          func(m *MockForecastService) {},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid product_id",
		},
		{
			name:           "Zero warehouse",
			path:           "/forecast/7/0",
			setup:          func(m *MockForecastService) {},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid warehouse_id",
		},
		{
			name:           "Non numeric days",
			path:           "/forecast/7/3?days=month",
			setup:          func(m *MockForecastService) {},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid days parameter",
		},
		{
			name:           "Unknown algorithm",
			path:           "/forecast/7/3?algorithm=lstm",
			setup:          func(m *MockForecastService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Horizon rejected by the service",
			path: "/forecast/7/3?days=400",
			setup: func(m *MockForecastService) {
				m.On("GenerateForecast", mock.Anything, scope, 400, nilAlgorithm).
					Return(nil, utils.NewValidationError("horizon_days", "must be between 1 and 365"))
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "horizon_days: must be between 1 and 365",
		},
		{
			name: "Absent forecast",
			path: "/forecast/7/3",
			setup: func(m *MockForecastService) {
				m.On("GenerateForecast", mock.Anything, scope, 30, nilAlgorithm).Return(&services.ForecastOutcome{
					Scope:  scope,
					Absent: true,
					Reason: utils.InsufficientData,
					Detail: "20 records, need 30",
				}, nil)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedError:  "No forecast available",
			expectedReason: string(utils.InsufficientData),
		},
		{
			name: "Persistence conflict",
			path: "/forecast/7/3",
			setup: func(m *MockForecastService) {
				m.On("GenerateForecast", mock.Anything, scope, 30, nilAlgorithm).
					Return(nil, utils.NewForecastError(utils.PersistenceConflict, "7/3", "persist", errors.New("duplicate key")))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "Failed to generate forecast",
			expectedReason: string(utils.PersistenceConflict),
		},
		{
			name: "Unclassified failure",
			path: "/forecast/7/3",
			setup: func(m *MockForecastService) {
				m.On("GenerateForecast", mock.Anything, scope, 30, nilAlgorithm).Return(nil, assert.AnError)
			},
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "Failed to generate forecast",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forecaster := &MockForecastService{}
			tt.setup(forecaster)
			router := setupForecastRouter(NewForecastHandler(forecaster, nil, nil))

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			switch {
			case tt.expectedStatus == http.StatusOK:
				assert.Equal(t, "arima", response["algorithm"])
				assert.Equal(t, "Espresso Beans 1kg", response["product_name"])
				assert.Len(t, response["forecasts"], 2)
			case tt.expectedError != "":
				assert.Equal(t, tt.expectedError, response["error"])
			default:
				assert.NotEmpty(t, response["error"])
			}
			if tt.expectedReason != "" {
				assert.Equal(t, tt.expectedReason, response["reason"])
			}

			forecaster.AssertExpectations(t)
		})
	}
}

func TestForecastHandler_GetSeasonality(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		forecaster := &MockForecastService{}
		forecaster.On("AnalyzeSeasonality", mock.Anything, int64(7)).Return(&services.SeasonalityAnalysis{
			ProductID:   7,
			ProductName: "Espresso Beans 1kg",
			Daily:       []models.PatternFactor{{Period: 0, Average: 42.5}, {Period: 5, Average: 61}},
			Monthly:     []models.PatternFactor{{Period: 6, Average: 39}},
			Revenue:     &models.ScopeRevenue{Scope: models.Scope{ProductID: 7, WarehouseID: 3}, Days: 30, QuantitySold: 120, Revenue: decimal.NewFromInt(1800)},
		}, nil)

		w := httptest.NewRecorder()
		setupForecastRouter(NewForecastHandler(forecaster, nil, nil)).
			ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast/seasonality/7", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var response services.SeasonalityAnalysis
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, int64(7), response.ProductID)
		require.Len(t, response.Daily, 2)
		assert.Equal(t, 5, response.Daily[1].Period)
		require.NotNil(t, response.Revenue)
		assert.True(t, decimal.NewFromInt(1800).Equal(response.Revenue.Revenue))
		forecaster.AssertExpectations(t)
	})

	t.Run("No history", func(t *testing.T) {
		forecaster := &MockForecastService{}
		forecaster.On("AnalyzeSeasonality", mock.Anything, int64(9)).Return(&services.SeasonalityAnalysis{ProductID: 9, Absent: true}, nil)

		w := httptest.NewRecorder()
		setupForecastRouter(NewForecastHandler(forecaster, nil, nil)).
			ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast/seasonality/9", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Invalid product", func(t *testing.T) {
		forecaster := &MockForecastService{}

		w := httptest.NewRecorder()
		setupForecastRouter(NewForecastHandler(forecaster, nil, nil)).
			ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast/seasonality/-1", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		forecaster.AssertNotCalled(t, "AnalyzeSeasonality", mock.Anything, mock.Anything)
	})

	t.Run("Service error", func(t *testing.T) {
		forecaster := &MockForecastService{}
		forecaster.On("AnalyzeSeasonality", mock.Anything, int64(7)).Return(nil, assert.AnError)

		w := httptest.NewRecorder()
		setupForecastRouter(NewForecastHandler(forecaster, nil, nil)).
			ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast/seasonality/7", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestForecastHandler_RunBatch(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		batch := &MockBatchService{}
		batch.On("UpdateAll", mock.Anything).Return(&services.BatchReport{
			Scopes:    3,
			Workers:   2,
			Succeeded: 2,
			Failed:    1,
			Results:   []services.ScopeResult{{Scope: models.Scope{ProductID: 7, WarehouseID: 3}, Algorithm: forecast.ARIMA, MAPE: 8}},
			Failures:  []services.ScopeFailure{{Scope: models.Scope{ProductID: 9, WarehouseID: 3}, Stage: "forecast", Error: "boom"}},
		}, nil)

		w := httptest.NewRecorder()
		setupForecastRouter(NewForecastHandler(&MockForecastService{}, batch, nil)).
			ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/forecast/batch", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var response services.BatchReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 3, response.Scopes)
		assert.Equal(t, 1, response.Failed)
		require.Len(t, response.Failures, 1)
		assert.Equal(t, "forecast", response.Failures[0].Stage)
		batch.AssertExpectations(t)
	})

	t.Run("Listing failure", func(t *testing.T) {
		batch := &MockBatchService{}
		batch.On("UpdateAll", mock.Anything).Return(nil, errors.New("failed to list active scopes"))

		w := httptest.NewRecorder()
		setupForecastRouter(NewForecastHandler(&MockForecastService{}, batch, nil)).
			ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/forecast/batch", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("Not configured", func(t *testing.T) {
		w := httptest.NewRecorder()
		setupForecastRouter(NewForecastHandler(&MockForecastService{}, nil, nil)).
			ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/forecast/batch", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
