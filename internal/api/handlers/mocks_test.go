package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fahad0samara/commerce-forecast-go/internal/database"
	"github.com/fahad0samara/commerce-forecast-go/internal/forecast"
	"github.com/fahad0samara/commerce-forecast-go/internal/models"
	"github.com/fahad0samara/commerce-forecast-go/internal/services"
)

// MockForecastService mocks the ForecastingService
type MockForecastService struct {
	mock.Mock
}

func (m *MockForecastService) GenerateForecast(ctx context.Context, scope models.Scope, horizonDays int, algorithm *forecast.Algorithm) (*services.ForecastOutcome, error) {
	args := m.Called(ctx, scope, horizonDays, algorithm)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ForecastOutcome), args.Error(1)
}

func (m *MockForecastService) AnalyzeSeasonality(ctx context.Context, productID int64) (*services.SeasonalityAnalysis, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SeasonalityAnalysis), args.Error(1)
}

// MockBatchService mocks the BatchForecaster
type MockBatchService struct {
	mock.Mock
}

func (m *MockBatchService) UpdateAll(ctx context.Context) (*services.BatchReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.BatchReport), args.Error(1)
}

// MockMonitor mocks the ForecastMonitor
type MockMonitor struct {
	mock.Mock
}

func (m *MockMonitor) RunAll(ctx context.Context) (*services.MonitorReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.MonitorReport), args.Error(1)
}

func (m *MockMonitor) CheckAccuracy(ctx context.Context) ([]models.AccuracyFinding, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AccuracyFinding), args.Error(1)
}

func (m *MockMonitor) DetectAnomalies(ctx context.Context) ([]models.AnomalyFinding, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AnomalyFinding), args.Error(1)
}

func (m *MockMonitor) CompareModels(ctx context.Context) ([]models.ComparisonFinding, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ComparisonFinding), args.Error(1)
}

// MockCleanupService mocks the CleanupService
type MockCleanupService struct {
	mock.Mock
}

func (m *MockCleanupService) GetDataStats(ctx context.Context) (*database.DataStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.DataStats), args.Error(1)
}

func (m *MockCleanupService) RunCleanup(ctx context.Context) (*services.CleanupReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CleanupReport), args.Error(1)
}

// MockHealthChecker mocks a database or redis client
type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
