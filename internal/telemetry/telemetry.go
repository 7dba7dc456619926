package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Service information
	ServiceName    = "commerce-forecast"
	ServiceVersion = "1.0.0"

	tracesPath = "/v1/traces"
)

// TelemetryConfig holds configuration for telemetry
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Environment string
	Release     string
	SampleRate  float64
}

// DefaultConfig returns default telemetry configuration
func DefaultConfig() *TelemetryConfig {
	return &TelemetryConfig{
		Enabled:     true,
		Endpoint:    "", // stdout exporter unless provided via env
		ServiceName: ServiceName,
		Environment: "development",
		Release:     ServiceVersion,
		SampleRate:  0.2,
	}
}

// Provider holds the installed tracer provider and its shutdown hook
type Provider struct {
	tp       *sdktrace.TracerProvider
	Endpoint string
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// InitTelemetry installs a global tracer provider and the W3C trace-context propagator.
// Spans go to the OTLP/HTTP collector at config.Endpoint, or to stdout when no endpoint is set.
// A disabled config returns a provider whose Shutdown is a no-op.
func InitTelemetry(ctx context.Context, config TelemetryConfig) (*Provider, error) {
	if !config.Enabled {
		return &Provider{}, nil
	}

	var (
		exporter sdktrace.SpanExporter
		resolved string
		err      error
	)
	if config.Endpoint != "" {
		hostport, urlPath, insecure, full, nerr := normalizeOTLPEndpoint(config.Endpoint)
		if nerr != nil {
			return nil, nerr
		}
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(hostport),
			otlptracehttp.WithURLPath(urlPath),
		}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
		resolved = full
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		resolved = "stdout"
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	name := config.ServiceName
	if name == "" {
		name = ServiceName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(config.Release),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRate))
	if config.SampleRate <= 0 || config.SampleRate >= 1 {
		sampler = sdktrace.AlwaysSample()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp, Endpoint: resolved}, nil
}

// Tracer returns a named tracer from the global provider
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// normalizeOTLPEndpoint splits a collector URL into the pieces otlptracehttp expects.
// The traces path is appended unless the URL already ends with it.
func normalizeOTLPEndpoint(endpoint string) (hostport, urlPath string, insecure bool, resolved string, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", false, "", fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", false, "", errors.New("OTLP endpoint must start with http:// or https://")
	}
	if u.Host == "" {
		return "", "", false, "", fmt.Errorf("OTLP endpoint %q has no host", endpoint)
	}

	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(path, tracesPath) {
		path += tracesPath
	}

	insecure = u.Scheme == "http"
	return u.Host, path, insecure, u.Scheme + "://" + u.Host + path, nil
}
