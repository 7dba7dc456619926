package logging

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OTLPConfig holds configuration for OpenTelemetry logging
type OTLPConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// OTLPHook is a logrus hook that forwards every entry to an OpenTelemetry logger.
// Console output is unchanged; the hook only adds an export path.
type OTLPHook struct {
	logger   otellog.Logger
	provider *log.LoggerProvider
	levels   []logrus.Level
}

// NewOTLPHook creates an OTLP/HTTP log exporter and a hook that feeds it.
// Entries are exported in batches; call Shutdown to flush before exit.
func NewOTLPHook(config OTLPConfig) (*OTLPHook, error) {
	ctx := context.Background()

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	exporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(endpoint),
		otlploghttp.WithURLPath("/v1/logs"),
		otlploghttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return NewOTLPHookWithProcessor(config.ServiceName, log.NewBatchProcessor(exporter), log.WithResource(res)), nil
}

// NewOTLPHookWithProcessor builds a hook over an explicit log processor.
func NewOTLPHookWithProcessor(name string, processor log.Processor, opts ...log.LoggerProviderOption) *OTLPHook {
	opts = append(opts, log.WithProcessor(processor))
	provider := log.NewLoggerProvider(opts...)
	return &OTLPHook{
		logger:   provider.Logger(name),
		provider: provider,
		levels:   logrus.AllLevels,
	}
}

// Levels implements logrus.Hook.
func (h *OTLPHook) Levels() []logrus.Level {
	return h.levels
}

// Fire implements logrus.Hook. Fields become string attributes.
func (h *OTLPHook) Fire(entry *logrus.Entry) error {
	var record otellog.Record
	record.SetTimestamp(entry.Time)
	record.SetObservedTimestamp(time.Now())
	record.SetSeverity(convertLogrusLevelToSeverity(entry.Level))
	record.SetSeverityText(entry.Level.String())
	record.SetBody(otellog.StringValue(entry.Message))

	attrs := make([]otellog.KeyValue, 0, len(entry.Data))
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			attrs = append(attrs, otellog.String(k, err.Error()))
			continue
		}
		attrs = append(attrs, otellog.String(k, fmt.Sprint(v)))
	}
	record.AddAttributes(attrs...)

	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}
	h.logger.Emit(ctx, record)
	return nil
}

// Shutdown flushes buffered records and stops the exporter.
func (h *OTLPHook) Shutdown(ctx context.Context) error {
	if h.provider == nil {
		return nil
	}
	return h.provider.Shutdown(ctx)
}

// convertLogrusLevelToSeverity converts logrus.Level to otellog.Severity
func convertLogrusLevelToSeverity(level logrus.Level) otellog.Severity {
	switch level {
	case logrus.TraceLevel:
		return otellog.SeverityTrace
	case logrus.DebugLevel:
		return otellog.SeverityDebug
	case logrus.InfoLevel:
		return otellog.SeverityInfo
	case logrus.WarnLevel:
		return otellog.SeverityWarn
	case logrus.ErrorLevel:
		return otellog.SeverityError
	case logrus.FatalLevel, logrus.PanicLevel:
		return otellog.SeverityFatal
	default:
		return otellog.SeverityInfo
	}
}
