package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fahad0samara/commerce-forecast-go/internal/config"
	"github.com/fahad0samara/commerce-forecast-go/internal/database"
	"github.com/fahad0samara/commerce-forecast-go/internal/models"
	"github.com/fahad0samara/commerce-forecast-go/internal/telemetry"
	"github.com/fahad0samara/commerce-forecast-go/internal/timeseries"
)

// MonitorStore is what the monitor reads from forecast storage.
type MonitorStore interface {
	ForecastsWithActuals(ctx context.Context, since time.Time) ([]database.ForecastActual, error)
	ListModelConfigs(ctx context.Context) ([]models.ForecastModelConfig, error)
}

// SalesWindowReader returns every sales row dated on or after since.
type SalesWindowReader interface {
	SalesSince(ctx context.Context, since time.Time) ([]models.SalesHistory, error)
}

// MonitorReport bundles the findings of all three checks.
type MonitorReport struct {
	Accuracy    []models.AccuracyFinding   `json:"accuracy_issues"`
	Anomalies   []models.AnomalyFinding    `json:"anomalies"`
	Comparisons []models.ComparisonFinding `json:"model_comparison"`
	CheckedAt   time.Time                  `json:"checked_at"`
}

// ForecastMonitor checks realized accuracy, sales anomalies and model drift, and raises alerts.
type ForecastMonitor struct {
	store      MonitorStore
	sales      SalesWindowReader
	sink       AlertSink
	recipients []string
	config     config.MonitoringConfig
	tracer     *telemetry.BusinessTracer
	logger     *logrus.Logger
	now        func() time.Time
}

// NewForecastMonitor creates a monitor. Zero thresholds fall back to the defaults.
func NewForecastMonitor(store MonitorStore, sales SalesWindowReader, sink AlertSink, recipients []string, cfg config.MonitoringConfig, logger *logrus.Logger) *ForecastMonitor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if sink == nil {
		sink = NewLogAlertSink(logger)
	}
	if cfg.AccuracyWindowDays <= 0 {
		cfg.AccuracyWindowDays = 7
	}
	if cfg.AccuracyThreshold <= 0 {
		cfg.AccuracyThreshold = 50
	}
	if cfg.AnomalyWindowDays <= 0 {
		cfg.AnomalyWindowDays = 30
	}
	if cfg.AnomalyZ <= 0 {
		cfg.AnomalyZ = 3
	}
	if cfg.ComparisonRatio <= 0 {
		cfg.ComparisonRatio = 1.5
	}
	return &ForecastMonitor{
		store:      store,
		sales:      sales,
		sink:       sink,
		recipients: recipients,
		config:     cfg,
		tracer:     telemetry.NewBusinessTracer(),
		logger:     logger,
		now:        time.Now,
	}
}

// RunAll runs the three checks in order. A failing check does not stop the others; the
// first error is returned alongside whatever the other checks found.
func (m *ForecastMonitor) RunAll(ctx context.Context) (*MonitorReport, error) {
	report := &MonitorReport{CheckedAt: m.now()}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	var err error
	report.Accuracy, err = m.CheckAccuracy(ctx)
	keep(err)
	report.Anomalies, err = m.DetectAnomalies(ctx)
	keep(err)
	report.Comparisons, err = m.CompareModels(ctx)
	keep(err)
	return report, firstErr
}

// CheckAccuracy compares forecasts of the last days against what actually sold.
func (m *ForecastMonitor) CheckAccuracy(ctx context.Context) ([]models.AccuracyFinding, error) {
	ctx, span := m.tracer.TraceMonitorCheck(ctx, "accuracy")
	defer span.End()

	since := models.Day(m.now()).AddDate(0, 0, -m.config.AccuracyWindowDays)
	rows, err := m.store.ForecastsWithActuals(ctx, since)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load forecasts with actuals: %w", err)
	}

	findings := []models.AccuracyFinding{}
	for _, r := range rows {
		errPct := math.Abs(float64(r.Actual-r.Forecast)) / math.Max(1, float64(r.Actual)) * 100
		if errPct > m.config.AccuracyThreshold {
			findings = append(findings, models.AccuracyFinding{
				Scope:        r.Scope,
				Date:         r.Date,
				Actual:       r.Actual,
				Forecast:     r.Forecast,
				ErrorPercent: errPct,
				Algorithm:    r.Algorithm,
			})
		}
	}

	m.tracer.RecordMonitorFindings(span, len(rows), len(findings))
	m.raise(ctx, models.AlertAccuracy, findings, len(findings))
	return findings, nil
}

// DetectAnomalies scores the most recent day's sales of every scope against its baseline window.
func (m *ForecastMonitor) DetectAnomalies(ctx context.Context) ([]models.AnomalyFinding, error) {
	ctx, span := m.tracer.TraceMonitorCheck(ctx, "anomalies")
	defer span.End()

	today := models.Day(m.now())
	rows, err := m.sales.SalesSince(ctx, today.AddDate(0, 0, -m.config.AnomalyWindowDays))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load recent sales: %w", err)
	}

	baseline := make(map[models.Scope][]float64)
	recent := make(map[models.Scope][]models.SalesHistory)
	recentFrom := today.AddDate(0, 0, -1)
	for _, r := range rows {
		scope := models.Scope{ProductID: r.ProductID, WarehouseID: r.WarehouseID}
		baseline[scope] = append(baseline[scope], float64(r.QuantitySold))
		if !models.Day(r.Date).Before(recentFrom) {
			recent[scope] = append(recent[scope], r)
		}
	}

	findings := []models.AnomalyFinding{}
	for scope, sales := range recent {
		values := baseline[scope]
		mean := timeseries.Mean(values)
		// Population deviation over the whole window, recent day included.
		sd := timeseries.PopStdDev(values)
		for _, r := range sales {
			z := (float64(r.QuantitySold) - mean) / math.Max(1, sd)
			if math.Abs(z) > m.config.AnomalyZ {
				findings = append(findings, models.AnomalyFinding{
					Scope:    scope,
					Date:     models.Day(r.Date),
					Quantity: r.QuantitySold,
					Mean:     mean,
					StdDev:   sd,
					ZScore:   z,
				})
			}
		}
	}
	sort.Slice(findings, func(i, j int) bool {
		return math.Abs(findings[i].ZScore) > math.Abs(findings[j].ZScore)
	})

	m.tracer.RecordMonitorFindings(span, len(recent), len(findings))
	m.raise(ctx, models.AlertAnomaly, findings, len(findings))
	return findings, nil
}

// CompareModels recommends the best algorithm for scopes where several have been scored
// and the worst is clearly behind.
func (m *ForecastMonitor) CompareModels(ctx context.Context) ([]models.ComparisonFinding, error) {
	ctx, span := m.tracer.TraceMonitorCheck(ctx, "model_comparison")
	defer span.End()

	configs, err := m.store.ListModelConfigs(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list model configs: %w", err)
	}

	byScope := make(map[models.Scope][]models.ForecastModelConfig)
	var order []models.Scope
	for _, c := range configs {
		if c.AccuracyMetrics == (models.AccuracyMetrics{}) {
			continue // never scored
		}
		if _, seen := byScope[c.Scope]; !seen {
			order = append(order, c.Scope)
		}
		byScope[c.Scope] = append(byScope[c.Scope], c)
	}

	findings := []models.ComparisonFinding{}
	for _, scope := range order {
		group := byScope[scope]
		if len(group) < 2 {
			continue
		}
		best, worst := group[0], group[0]
		for _, c := range group[1:] {
			if c.AccuracyMetrics.MAPE < best.AccuracyMetrics.MAPE {
				best = c
			}
			if c.AccuracyMetrics.MAPE > worst.AccuracyMetrics.MAPE {
				worst = c
			}
		}
		if worst.AccuracyMetrics.MAPE > m.config.ComparisonRatio*best.AccuracyMetrics.MAPE {
			findings = append(findings, models.ComparisonFinding{
				Scope:          scope,
				BestAlgorithm:  best.Algorithm,
				BestMAPE:       best.AccuracyMetrics.MAPE,
				WorstAlgorithm: worst.Algorithm,
				WorstMAPE:      worst.AccuracyMetrics.MAPE,
			})
		}
	}

	m.tracer.RecordMonitorFindings(span, len(byScope), len(findings))
	m.raise(ctx, models.AlertModelComparison, findings, len(findings))
	return findings, nil
}

// raise hands a non-empty batch of findings to the sink. Delivery failure is only logged.
func (m *ForecastMonitor) raise(ctx context.Context, kind models.AlertKind, payload interface{}, count int) {
	if count == 0 {
		return
	}
	alert := models.Alert{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: m.now(),
	}
	if err := m.sink.Send(ctx, alert, m.recipients); err != nil {
		m.logger.WithFields(logrus.Fields{
			"alert_kind": kind,
			"findings":   count,
		}).WithError(err).Error("Failed to deliver monitor alert")
		return
	}
	m.logger.WithFields(logrus.Fields{
		"alert_kind": kind,
		"findings":   count,
	}).Info("Monitor alert raised")
}
