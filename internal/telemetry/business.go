package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

const businessTracerName = "github.com/fahad0samara/commerce-forecast-go/business"

// BusinessTracer provides utilities for tracing forecasting operations.
// It names spans and attributes consistently across services so traces can be filtered by scope and algorithm.
type BusinessTracer struct {
	tracer trace.Tracer
}

// NewBusinessTracer creates a new instance of BusinessTracer.
//
// Returns:
//   - A pointer to an initialized BusinessTracer bound to the global tracer provider.
func NewBusinessTracer() *BusinessTracer {
	return &BusinessTracer{tracer: Tracer(businessTracerName)}
}

func scopeAttributes(scope models.Scope) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("forecast.product_id", scope.ProductID),
		attribute.Int64("forecast.warehouse_id", scope.WarehouseID),
	}
}

// TraceForecastGeneration starts a span for one GenerateForecast call.
//
// Parameters:
//   - ctx: The context to attach the span to.
//   - scope: The product/warehouse being forecast.
//   - algorithm: The requested algorithm, or "auto" when selection decides.
//   - horizon: The number of days requested.
//
// Returns:
//   - A context containing the new span.
//   - The created span.
func (bt *BusinessTracer) TraceForecastGeneration(ctx context.Context, scope models.Scope, algorithm string, horizon int) (context.Context, trace.Span) {
	attrs := append(scopeAttributes(scope),
		attribute.String("forecast.algorithm", algorithm),
		attribute.Int("forecast.horizon_days", horizon),
	)
	return bt.tracer.Start(ctx, "forecast.generate", trace.WithAttributes(attrs...))
}

// RecordForecastResult adds the outcome of a generation to an existing span.
func (bt *BusinessTracer) RecordForecastResult(span trace.Span, result ForecastResult) {
	span.SetAttributes(
		attribute.String("forecast.outcome", result.Outcome),
		attribute.String("forecast.algorithm_used", result.Algorithm),
		attribute.Int("forecast.records", result.Records),
		attribute.Float64("forecast.mape", result.MAPE),
		attribute.Bool("forecast.cache_hit", result.CacheHit),
		attribute.Int64("forecast.duration_ms", result.Duration.Milliseconds()),
	)
}

// TraceMonitorCheck starts a span for one monitor check (accuracy, anomalies, model_comparison).
func (bt *BusinessTracer) TraceMonitorCheck(ctx context.Context, check string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "monitor."+check, trace.WithAttributes(attribute.String("monitor.check", check)))
}

// RecordMonitorFindings records how many findings a check produced.
func (bt *BusinessTracer) RecordMonitorFindings(span trace.Span, examined, findings int) {
	span.SetAttributes(
		attribute.Int("monitor.examined", examined),
		attribute.Int("monitor.findings", findings),
	)
}

// TraceBatchUpdate starts a span covering a full batch forecast run.
func (bt *BusinessTracer) TraceBatchUpdate(ctx context.Context, scopes, workers int) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "batch.update_all", trace.WithAttributes(
		attribute.Int("batch.scopes", scopes),
		attribute.Int("batch.workers", workers),
	))
}

// RecordBatchMetrics records batch totals onto a span.
func (bt *BusinessTracer) RecordBatchMetrics(span trace.Span, metrics BatchMetrics) {
	span.SetAttributes(
		attribute.Int("batch.succeeded", metrics.Succeeded),
		attribute.Int("batch.failed", metrics.Failed),
		attribute.Int("batch.skipped", metrics.Skipped),
		attribute.Int64("batch.duration_ms", metrics.Duration.Milliseconds()),
	)
	if metrics.Failed > 0 {
		span.SetStatus(codes.Error, "some scopes failed")
	}
}

// TraceNotification starts a span for tracing the delivery of an alert.
//
// Parameters:
//   - ctx: The context to attach the span to.
//   - alertKind: The kind of alert being delivered.
//   - channel: The delivery channel (e.g., "telegram", "log").
//
// Returns:
//   - A context containing the new span.
//   - The created span.
func (bt *BusinessTracer) TraceNotification(ctx context.Context, alertKind models.AlertKind, channel string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "notification", trace.WithAttributes(
		attribute.String("notification.kind", string(alertKind)),
		attribute.String("notification.channel", channel),
	))
}

// RecordNotificationResult records the outcome of a notification attempt onto a span.
//
// Parameters:
//   - span: The span to update.
//   - recipientCount: The number of recipients addressed.
//   - err: Any error that occurred during sending.
func (bt *BusinessTracer) RecordNotificationResult(span trace.Span, recipientCount int, err error) {
	span.SetAttributes(
		attribute.Bool("notification.success", err == nil),
		attribute.Int("notification.recipient_count", recipientCount),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// ForecastResult summarizes a forecast generation for telemetry.
type ForecastResult struct {
	Outcome   string
	Algorithm string
	Records   int
	MAPE      float64
	CacheHit  bool
	Duration  time.Duration
}

// BatchMetrics summarizes a batch update for telemetry.
type BatchMetrics struct {
	Succeeded int
	Failed    int
	Skipped   int
	Duration  time.Duration
}
