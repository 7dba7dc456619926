package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fahad0samara/commerce-forecast-go/internal/cache"
	"github.com/fahad0samara/commerce-forecast-go/internal/config"
	"github.com/fahad0samara/commerce-forecast-go/internal/database"
	"github.com/fahad0samara/commerce-forecast-go/internal/forecast"
	"github.com/fahad0samara/commerce-forecast-go/internal/metrics"
	"github.com/fahad0samara/commerce-forecast-go/internal/models"
	"github.com/fahad0samara/commerce-forecast-go/internal/selection"
	"github.com/fahad0samara/commerce-forecast-go/internal/telemetry"
	"github.com/fahad0samara/commerce-forecast-go/internal/timeseries"
	"github.com/fahad0samara/commerce-forecast-go/internal/utils"
)

// MaxHorizonDays bounds how far ahead a single request may forecast.
const MaxHorizonDays = 365

// SalesHistoryReader supplies the ordered daily sales of one scope.
type SalesHistoryReader interface {
	GetHistory(ctx context.Context, scope models.Scope) (models.Series, error)
}

// SalesAggregator supplies per-product aggregates used by seasonality analysis.
type SalesAggregator interface {
	WeekdayAverages(ctx context.Context, productID int64) ([]models.PatternFactor, error)
	MonthlyAverages(ctx context.Context, productID int64) ([]models.PatternFactor, error)
	ProductRevenue(ctx context.Context, productID int64, since time.Time) (*models.ScopeRevenue, error)
}

// SalesReader is everything the forecasting service reads from sales history.
type SalesReader interface {
	SalesHistoryReader
	SalesAggregator
}

// CatalogReader resolves display names. A missing entry is (nil, false, nil).
type CatalogReader interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, bool, error)
	GetWarehouse(ctx context.Context, id int64) (*models.Warehouse, bool, error)
}

// ForecastStore persists model configs, forecast records and seasonality patterns.
type ForecastStore interface {
	GetOrCreateModelConfig(ctx context.Context, scope models.Scope, algorithm string) (*models.ForecastModelConfig, error)
	UpdateModelConfig(ctx context.Context, cfg *models.ForecastModelConfig) error
	ReplaceForecasts(ctx context.Context, modelID string, scope models.Scope, from time.Time, records []models.ForecastRecord) error
	UpsertSeasonalityPattern(ctx context.Context, p models.SeasonalityPattern) error
}

// ForecastPoint is one day of a returned forecast.
type ForecastPoint struct {
	Date       string `json:"date"`
	Quantity   int    `json:"quantity"`
	LowerBound int    `json:"lower_bound"`
	UpperBound int    `json:"upper_bound"`
}

// ForecastOutcome is the result of GenerateForecast. When Absent is set no forecast was
// produced and Reason says why; the remaining fields are empty.
type ForecastOutcome struct {
	Scope         models.Scope           `json:"scope"`
	ProductName   string                 `json:"product_name,omitempty"`
	WarehouseName string                 `json:"warehouse_name,omitempty"`
	Algorithm     forecast.Algorithm     `json:"algorithm,omitempty"`
	SelectedBy    string                 `json:"selected_by,omitempty"`
	ModelConfigID string                 `json:"model_id,omitempty"`
	Metrics       models.AccuracyMetrics `json:"metrics"`
	Forecasts     []ForecastPoint        `json:"forecasts"`
	GeneratedAt   time.Time              `json:"generated_at"`
	Cached        bool                   `json:"cached"`
	Absent        bool                   `json:"absent,omitempty"`
	Reason        utils.ErrorKind        `json:"reason,omitempty"`
	Detail        string                 `json:"detail,omitempty"`
}

// SeasonalityAnalysis holds a product's average sales per weekday and per month.
type SeasonalityAnalysis struct {
	ProductID   int64                  `json:"product_id"`
	ProductName string                 `json:"product_name,omitempty"`
	Daily       []models.PatternFactor `json:"daily"`
	Monthly     []models.PatternFactor `json:"monthly"`
	Revenue     *models.ScopeRevenue   `json:"revenue,omitempty"`
	Absent      bool                   `json:"absent,omitempty"`
}

// ForecastingService produces, persists and caches forecasts for one scope at a time.
type ForecastingService struct {
	sales    SalesReader
	catalog  CatalogReader
	store    ForecastStore
	cache    cache.ForecastCache
	registry *forecast.Registry
	selector *selection.Selector
	recovery *ErrorRecoveryManager
	locks    *KeyedMutex
	tracer   *telemetry.BusinessTracer
	config   config.ForecastingConfig
	logger   *logrus.Logger
	now      func() time.Time
}

// NewForecastingService wires the service. forecastCache and catalog may be nil.
func NewForecastingService(
	sales SalesReader,
	catalog CatalogReader,
	store ForecastStore,
	forecastCache cache.ForecastCache,
	cfg config.ForecastingConfig,
	logger *logrus.Logger,
) *ForecastingService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.DefaultHorizonDays <= 0 {
		cfg.DefaultHorizonDays = 30
	}
	if cfg.MinHistoryDays <= 0 {
		cfg.MinHistoryDays = timeseries.MinimumRecords
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}

	registry := forecast.NewRegistry().WithObserver(func(a forecast.Algorithm, elapsed time.Duration, available bool) {
		metrics.ObserveFit(a.String(), elapsed, available)
	})

	return &ForecastingService{
		sales:    sales,
		catalog:  catalog,
		store:    store,
		cache:    forecastCache,
		registry: registry,
		selector: selection.NewSelector(registry, logger),
		recovery: NewErrorRecoveryManager(logger),
		locks:    NewKeyedMutex(),
		tracer:   telemetry.NewBusinessTracer(),
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Registry exposes the strategy registry, e.g. for the batch forecaster's menu.
func (s *ForecastingService) Registry() *forecast.Registry {
	return s.registry
}

func forecastCacheKey(scope models.Scope, algorithm *forecast.Algorithm, horizon int) string {
	name := "auto"
	if algorithm != nil {
		name = algorithm.String()
	}
	return fmt.Sprintf("forecast:%d:%d:%s:%d", scope.ProductID, scope.WarehouseID, name, horizon)
}

func modelLockKey(scope models.Scope, algorithm forecast.Algorithm) string {
	return fmt.Sprintf("model:%d:%d:%s", scope.ProductID, scope.WarehouseID, algorithm)
}

// GenerateForecast forecasts horizonDays days for scope starting today. A nil algorithm lets
// the model selector choose. Too little history or an algorithm that cannot fit yields an
// absent outcome, not an error.
func (s *ForecastingService) GenerateForecast(ctx context.Context, scope models.Scope, horizonDays int, algorithm *forecast.Algorithm) (*ForecastOutcome, error) {
	if horizonDays <= 0 {
		horizonDays = s.config.DefaultHorizonDays
	}
	if horizonDays > MaxHorizonDays {
		return nil, utils.NewValidationError("days", fmt.Sprintf("must be at most %d", MaxHorizonDays))
	}

	label := "auto"
	if algorithm != nil {
		label = algorithm.String()
	}
	start := time.Now()
	ctx, span := s.tracer.TraceForecastGeneration(ctx, scope, label, horizonDays)
	defer span.End()

	key := forecastCacheKey(scope, algorithm, horizonDays)
	if cached, ok := s.fromCache(ctx, key); ok {
		metrics.ForecastRunsTotal.WithLabelValues(cached.Algorithm.String(), "cached").Inc()
		s.tracer.RecordForecastResult(span, telemetry.ForecastResult{
			Outcome: "cached", Algorithm: cached.Algorithm.String(), Records: len(cached.Forecasts),
			MAPE: cached.Metrics.MAPE, CacheHit: true, Duration: time.Since(start),
		})
		return cached, nil
	}

	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Another caller may have produced it while we waited.
	if cached, ok := s.fromCache(ctx, key); ok {
		metrics.ForecastRunsTotal.WithLabelValues(cached.Algorithm.String(), "cached").Inc()
		return cached, nil
	}

	outcome, err := s.generate(ctx, scope, horizonDays, algorithm)
	if err != nil {
		metrics.ForecastRunsTotal.WithLabelValues(label, "error").Inc()
		s.tracer.RecordForecastResult(span, telemetry.ForecastResult{Outcome: "error", Algorithm: label, Duration: time.Since(start)})
		span.RecordError(err)
		return nil, err
	}

	if outcome.Absent {
		metrics.ForecastRunsTotal.WithLabelValues(label, "absent").Inc()
		s.tracer.RecordForecastResult(span, telemetry.ForecastResult{Outcome: "absent", Algorithm: label, Duration: time.Since(start)})
		return outcome, nil
	}

	s.toCache(ctx, key, outcome)
	metrics.ForecastRunsTotal.WithLabelValues(outcome.Algorithm.String(), "generated").Inc()
	s.tracer.RecordForecastResult(span, telemetry.ForecastResult{
		Outcome: "generated", Algorithm: outcome.Algorithm.String(), Records: len(outcome.Forecasts),
		MAPE: outcome.Metrics.MAPE, Duration: time.Since(start),
	})
	return outcome, nil
}

func (s *ForecastingService) generate(ctx context.Context, scope models.Scope, horizon int, requested *forecast.Algorithm) (*ForecastOutcome, error) {
	log := s.logger.WithFields(logrus.Fields{
		"product_id":   scope.ProductID,
		"warehouse_id": scope.WarehouseID,
		"horizon":      horizon,
	})

	history, err := s.sales.GetHistory(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales history: %w", err)
	}
	if history.Len() < s.config.MinHistoryDays {
		log.WithField("points", history.Len()).Debug("Not enough history to forecast")
		return absent(scope, utils.InsufficientData, fmt.Sprintf("%d days of history, need %d", history.Len(), s.config.MinHistoryDays)), nil
	}

	series := timeseries.FillDaily(history)
	algorithm, selectedBy := s.chooseAlgorithm(ctx, series, requested, log)

	// Runs that resolve to the same config row write one at a time, whatever their horizon
	// or how the algorithm was chosen.
	unlock, err := s.locks.Lock(ctx, modelLockKey(scope, algorithm))
	if err != nil {
		return nil, err
	}
	defer unlock()

	cfg, err := s.modelConfig(ctx, scope, algorithm)
	if err != nil {
		return nil, err
	}

	res := s.registry.Run(algorithm, series, horizon)
	if !res.Available() {
		log.WithFields(logrus.Fields{"algorithm": algorithm, "reason": res.Reason}).Warn("Algorithm could not fit series")
		return absent(scope, utils.AlgorithmUnavailable, res.Reason), nil
	}

	now := s.now()
	today := models.Day(now)
	records := buildRecords(scope, cfg.ID, today, now, res.Steps)

	err = s.recovery.ExecuteWithRetry(ctx, "forecast_write", database.IsConflict, func(ctx context.Context) error {
		return s.store.ReplaceForecasts(ctx, cfg.ID, scope, today, records)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist forecasts: %w", err)
	}

	accuracy, ok := s.registry.Backtest(algorithm, series, forecast.HoldoutSize(series.Len(), horizon))
	if !ok {
		log.WithField("algorithm", algorithm).Debug("Backtest unavailable, storing zero metrics")
	}
	cfg.AccuracyMetrics = accuracy
	cfg.Parameters = parameterMap(res.Parameters)
	cfg.LastUpdated = now
	if err := s.store.UpdateModelConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to store model metrics: %w", err)
	}

	outcome := &ForecastOutcome{
		Scope:         scope,
		Algorithm:     algorithm,
		SelectedBy:    selectedBy,
		ModelConfigID: cfg.ID,
		Metrics:       accuracy,
		Forecasts:     make([]ForecastPoint, len(records)),
		GeneratedAt:   now,
	}
	for i, r := range records {
		outcome.Forecasts[i] = ForecastPoint{
			Date:       r.Date.Format("2006-01-02"),
			Quantity:   r.ForecastedQuantity,
			LowerBound: r.ConfidenceLower,
			UpperBound: r.ConfidenceUpper,
		}
	}
	s.attachNames(ctx, outcome, log)

	log.WithFields(logrus.Fields{
		"algorithm": algorithm,
		"records":   len(records),
		"mape":      accuracy.MAPE,
	}).Info("Forecast generated")
	return outcome, nil
}

// chooseAlgorithm honors an explicit request, otherwise runs model selection and falls back
// to the default algorithm when selection fails.
func (s *ForecastingService) chooseAlgorithm(ctx context.Context, series models.Series, requested *forecast.Algorithm, log *logrus.Entry) (forecast.Algorithm, string) {
	if requested != nil {
		return *requested, "request"
	}

	result := s.selector.Select(ctx, series)
	if result.Selected() {
		return result.Algorithm, "selector"
	}

	fallback := forecast.DefaultAlgorithm
	if configured, err := forecast.ParseAlgorithm(s.config.DefaultAlgorithm); err == nil {
		fallback = configured
	}
	log.WithError(result.Err).WithField("fallback", fallback).Warn("Model selection failed, using default algorithm")
	return fallback, "default"
}

// modelConfig resolves the config row, retrying when concurrent writers collide on the unique key.
func (s *ForecastingService) modelConfig(ctx context.Context, scope models.Scope, algorithm forecast.Algorithm) (*models.ForecastModelConfig, error) {
	var cfg *models.ForecastModelConfig
	err := s.recovery.ExecuteWithRetry(ctx, "model_config_upsert", database.IsConflict, func(ctx context.Context) error {
		var err error
		cfg, err = s.store.GetOrCreateModelConfig(ctx, scope, algorithm.String())
		return err
	})
	if err != nil {
		if database.IsConflict(err) {
			return nil, utils.NewForecastError(utils.PersistenceConflict, scope.String(), "model_config", err)
		}
		return nil, fmt.Errorf("failed to resolve model config: %w", err)
	}
	return cfg, nil
}

func (s *ForecastingService) attachNames(ctx context.Context, outcome *ForecastOutcome, log *logrus.Entry) {
	if s.catalog == nil {
		return
	}
	if p, ok, err := s.catalog.GetProduct(ctx, outcome.Scope.ProductID); err != nil {
		log.WithError(err).Warn("Failed to resolve product name")
	} else if ok {
		outcome.ProductName = p.Name
	}
	if w, ok, err := s.catalog.GetWarehouse(ctx, outcome.Scope.WarehouseID); err != nil {
		log.WithError(err).Warn("Failed to resolve warehouse name")
	} else if ok {
		outcome.WarehouseName = w.Name
	}
}

func (s *ForecastingService) fromCache(ctx context.Context, key string) (*ForecastOutcome, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok := s.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var outcome ForecastOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Discarding unreadable cached forecast")
		return nil, false
	}
	outcome.Cached = true
	return &outcome, true
}

func (s *ForecastingService) toCache(ctx context.Context, key string, outcome *ForecastOutcome) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(outcome)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to encode forecast for cache")
		return
	}
	s.cache.Set(ctx, key, data, s.config.CacheTTL)
}

func absent(scope models.Scope, reason utils.ErrorKind, detail string) *ForecastOutcome {
	return &ForecastOutcome{Scope: scope, Absent: true, Reason: reason, Detail: detail, Forecasts: []ForecastPoint{}}
}

// buildRecords turns strategy steps into integer records dated from today, keeping
// 0 <= lower <= point <= upper.
func buildRecords(scope models.Scope, modelID string, today, createdAt time.Time, steps []forecast.Step) []models.ForecastRecord {
	records := make([]models.ForecastRecord, len(steps))
	for i, step := range steps {
		point := roundQuantity(step.Point)
		lower := roundQuantity(step.Lower)
		upper := roundQuantity(step.Upper)
		if lower > point {
			lower = point
		}
		if upper < point {
			upper = point
		}
		records[i] = models.ForecastRecord{
			ID:                 uuid.NewString(),
			Scope:              scope,
			Date:               today.AddDate(0, 0, i),
			ForecastedQuantity: point,
			ConfidenceLower:    lower,
			ConfidenceUpper:    upper,
			ModelConfigID:      modelID,
			CreatedAt:          createdAt,
		}
	}
	return records
}

func roundQuantity(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Round(v))
}

func parameterMap(params map[string]float64) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

// AnalyzeSeasonality stores and returns the average sales of a product per ISO weekday and
// per calendar month, across all warehouses.
func (s *ForecastingService) AnalyzeSeasonality(ctx context.Context, productID int64) (*SeasonalityAnalysis, error) {
	weekdays, err := s.sales.WeekdayAverages(ctx, productID)
	if err != nil {
		return nil, err
	}
	months, err := s.sales.MonthlyAverages(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(weekdays) == 0 && len(months) == 0 {
		return &SeasonalityAnalysis{ProductID: productID, Absent: true, Daily: []models.PatternFactor{}, Monthly: []models.PatternFactor{}}, nil
	}

	if months == nil {
		months = []models.PatternFactor{}
	}
	daily := make([]models.PatternFactor, 7)
	for i := range daily {
		daily[i] = models.PatternFactor{Period: i + 1}
	}
	for _, f := range weekdays {
		if f.Period >= 1 && f.Period <= 7 {
			daily[f.Period-1].Average = f.Average
		}
	}

	now := s.now()
	for _, p := range []models.SeasonalityPattern{
		{ProductID: productID, PatternType: models.PatternDaily, Factors: daily, UpdatedAt: now},
		{ProductID: productID, PatternType: models.PatternMonthly, Factors: months, UpdatedAt: now},
	} {
		if err := s.store.UpsertSeasonalityPattern(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to store %s pattern: %w", p.PatternType, err)
		}
	}

	analysis := &SeasonalityAnalysis{ProductID: productID, Daily: daily, Monthly: months}

	retention := s.config.RetentionDays
	if retention <= 0 {
		retention = 90
	}
	if revenue, err := s.sales.ProductRevenue(ctx, productID, models.Day(now).AddDate(0, 0, -retention)); err != nil {
		s.logger.WithError(err).WithField("product_id", productID).Warn("Failed to summarize product revenue")
	} else {
		revenue.Days = retention
		analysis.Revenue = revenue
	}

	if s.catalog != nil {
		if p, ok, err := s.catalog.GetProduct(ctx, productID); err == nil && ok {
			analysis.ProductName = p.Name
		}
	}

	s.logger.WithFields(logrus.Fields{
		"product_id": productID,
		"weekdays":   len(weekdays),
		"months":     len(months),
	}).Info("Seasonality patterns updated")
	return analysis, nil
}
