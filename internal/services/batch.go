package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fahad0samara/commerce-forecast-go/internal/forecast"
	"github.com/fahad0samara/commerce-forecast-go/internal/metrics"
	"github.com/fahad0samara/commerce-forecast-go/internal/models"
	"github.com/fahad0samara/commerce-forecast-go/internal/telemetry"
)

// BatchMenu is the set of algorithms every scope is forecast with during a batch update.
var BatchMenu = []forecast.Algorithm{
	forecast.ExponentialSmoothing,
	forecast.ARIMA,
	forecast.SeasonalDecomposition,
}

// ScopeForecaster produces a forecast for one scope.
type ScopeForecaster interface {
	GenerateForecast(ctx context.Context, scope models.Scope, horizonDays int, algorithm *forecast.Algorithm) (*ForecastOutcome, error)
}

// ScopeLister lists the scopes with sales since a given day.
type ScopeLister interface {
	ActiveScopes(ctx context.Context, since time.Time) ([]models.Scope, error)
}

// BatchConfig controls a batch update.
type BatchConfig struct {
	HorizonDays  int
	LookbackDays int
	MaxWorkers   int
	ScopeTimeout time.Duration
}

// ScopeResult is the best forecast kept for one scope.
type ScopeResult struct {
	models.Scope
	Algorithm     forecast.Algorithm   `json:"algorithm"`
	ModelConfigID string               `json:"model_id"`
	MAPE          float64              `json:"mape"`
	Reorder       *models.ReorderPoint `json:"reorder_point,omitempty"`
}

// ScopeFailure records why a scope was not updated.
type ScopeFailure struct {
	models.Scope
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// BatchReport summarizes a batch update.
type BatchReport struct {
	Scopes    int            `json:"scopes"`
	Workers   int            `json:"workers"`
	Succeeded int            `json:"succeeded"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Results   []ScopeResult  `json:"results"`
	Failures  []ScopeFailure `json:"failures"`
	Duration  time.Duration  `json:"duration"`
}

// BatchForecaster refreshes forecasts and reorder points for every active scope.
type BatchForecaster struct {
	forecaster ScopeForecaster
	scopes     ScopeLister
	reorder    *ReorderPointService
	optimizer  *ResourceOptimizer
	timeouts   *TimeoutManager
	tracer     *telemetry.BusinessTracer
	config     BatchConfig
	logger     *logrus.Logger
	now        func() time.Time
}

// NewBatchForecaster creates a batch forecaster. reorder and optimizer may be nil.
func NewBatchForecaster(forecaster ScopeForecaster, scopes ScopeLister, reorder *ReorderPointService, optimizer *ResourceOptimizer, cfg BatchConfig, logger *logrus.Logger) *BatchForecaster {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 30
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = DefaultRetentionDays
	}
	timeouts := DefaultTimeoutConfig()
	if cfg.ScopeTimeout > 0 {
		timeouts.ScopeForecast = cfg.ScopeTimeout
	}
	return &BatchForecaster{
		forecaster: forecaster,
		scopes:     scopes,
		reorder:    reorder,
		optimizer:  optimizer,
		timeouts:   NewTimeoutManager(timeouts, logger),
		tracer:     telemetry.NewBusinessTracer(),
		config:     cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// workers picks the pool size: the optimizer's suggestion, capped by the configured maximum.
func (b *BatchForecaster) workers(ctx context.Context) int {
	n := b.config.MaxWorkers
	if b.optimizer != nil {
		if err := b.optimizer.UpdateSystemMetrics(ctx); err != nil {
			b.logger.WithError(err).Debug("Could not sample system load")
		}
		b.optimizer.OptimizeIfNeeded()
		suggested := b.optimizer.GetOptimalConcurrency().MaxWorkers
		if n <= 0 || suggested < n {
			n = suggested
		}
	}
	if n <= 0 {
		n = 4
	}
	return n
}

// UpdateAll updates every scope with sales in the lookback window. Scope failures are
// isolated and reported; only a failure to list scopes is returned as an error.
func (b *BatchForecaster) UpdateAll(ctx context.Context) (*BatchReport, error) {
	start := time.Now()

	since := models.Day(b.now()).AddDate(0, 0, -b.config.LookbackDays)
	scopes, err := b.scopes.ActiveScopes(ctx, since)
	if err != nil {
		metrics.BatchScopeFailuresTotal.WithLabelValues("list").Inc()
		return nil, fmt.Errorf("failed to list active scopes: %w", err)
	}

	workers := b.workers(ctx)
	ctx, span := b.tracer.TraceBatchUpdate(ctx, len(scopes), workers)
	defer span.End()

	report := &BatchReport{Scopes: len(scopes), Workers: workers, Results: []ScopeResult{}, Failures: []ScopeFailure{}}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(workers)
	for _, scope := range scopes {
		g.Go(func() error {
			result, stage, err := b.runScope(ctx, scope)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				report.Failures = append(report.Failures, ScopeFailure{Scope: scope, Stage: stage, Error: err.Error()})
				metrics.BatchScopeFailuresTotal.WithLabelValues(stage).Inc()
			case result == nil:
				report.Skipped++
			default:
				report.Succeeded++
				report.Results = append(report.Results, *result)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Results, func(i, j int) bool { return lessScope(report.Results[i].Scope, report.Results[j].Scope) })
	sort.Slice(report.Failures, func(i, j int) bool { return lessScope(report.Failures[i].Scope, report.Failures[j].Scope) })
	report.Duration = time.Since(start)

	if b.optimizer != nil {
		b.optimizer.RecordBatch(report.Scopes, report.Failed, report.Duration)
	}
	b.tracer.RecordBatchMetrics(span, telemetry.BatchMetrics{
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Skipped:   report.Skipped,
		Duration:  report.Duration,
	})
	b.logger.WithFields(logrus.Fields{
		"scopes":    report.Scopes,
		"workers":   workers,
		"succeeded": report.Succeeded,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
		"duration":  report.Duration,
	}).Info("Batch forecast update completed")
	return report, nil
}

// runScope runs UpdateScope under the per-scope time budget. A scope that runs out of time
// is abandoned and reported with stage "timeout".
func (b *BatchForecaster) runScope(ctx context.Context, scope models.Scope) (*ScopeResult, string, error) {
	type scopeOutcome struct {
		result *ScopeResult
		stage  string
	}
	done := make(chan scopeOutcome, 1)

	err := b.timeouts.ExecuteWithTimeout(ctx, "scope_forecast", "forecast:"+scope.String()+":"+uuid.NewString(), func(ctx context.Context) error {
		result, stage, err := b.updateScope(ctx, scope)
		done <- scopeOutcome{result: result, stage: stage}
		return err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "timeout", err
		}
		select {
		case out := <-done:
			return nil, out.stage, err
		default:
			return nil, "forecast", err
		}
	}
	out := <-done
	return out.result, out.stage, nil
}

// Shutdown cancels the scopes that are still running. UpdateAll reports them as failed.
func (b *BatchForecaster) Shutdown() {
	b.timeouts.Shutdown()
}

// UpdateScope forecasts the scope with every algorithm on the batch menu, keeps the one with
// the lowest MAPE and refreshes the reorder point. A nil result means no algorithm produced
// a forecast.
func (b *BatchForecaster) UpdateScope(ctx context.Context, scope models.Scope) (*ScopeResult, error) {
	result, _, err := b.updateScope(ctx, scope)
	return result, err
}

func (b *BatchForecaster) updateScope(ctx context.Context, scope models.Scope) (*ScopeResult, string, error) {
	var best *ScopeResult
	for _, algorithm := range BatchMenu {
		outcome, err := b.forecaster.GenerateForecast(ctx, scope, b.config.HorizonDays, &algorithm)
		if err != nil {
			return nil, "forecast", fmt.Errorf("%s: %w", algorithm, err)
		}
		if outcome.Absent {
			continue
		}
		mape := outcome.Metrics.MAPE
		if math.IsNaN(mape) {
			mape = math.MaxFloat64
		}
		if best == nil || mape < best.MAPE {
			best = &ScopeResult{Scope: scope, Algorithm: algorithm, ModelConfigID: outcome.ModelConfigID, MAPE: mape}
		}
	}
	if best == nil {
		return nil, "forecast", nil
	}

	if b.reorder != nil {
		rp, ok, err := b.reorder.Update(ctx, scope, best.ModelConfigID)
		if err != nil {
			return nil, "reorder", err
		}
		if ok {
			best.Reorder = rp
		}
	}
	return best, "", nil
}

func lessScope(a, b models.Scope) bool {
	if a.ProductID != b.ProductID {
		return a.ProductID < b.ProductID
	}
	return a.WarehouseID < b.WarehouseID
}
