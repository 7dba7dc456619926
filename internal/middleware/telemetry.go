package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fahad0samara/commerce-forecast-go/internal/metrics"
)

// Route parameters copied onto the request span.
var spanParams = map[string]string{
	"product_id":   "forecast.product_id",
	"warehouse_id": "forecast.warehouse_id",
}

// TelemetryMiddleware annotates the server span started by otelgin and records request
// metrics. It must be registered after otelgin.Middleware.
func TelemetryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		metrics.HTTPRequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestSeconds.WithLabelValues(route, c.Request.Method).Observe(elapsed.Seconds())

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		attrs := []attribute.KeyValue{
			attribute.String("http.client_ip", c.ClientIP()),
			attribute.Int64("http.response.time_ms", elapsed.Milliseconds()),
			attribute.Int64("http.response.size_bytes", int64(c.Writer.Size())),
		}
		for param, key := range spanParams {
			if v := c.Param(param); v != "" {
				attrs = append(attrs, attribute.String(key, v))
			}
		}
		if user := c.GetString(ContextUserID); user != "" {
			attrs = append(attrs, attribute.String("enduser.id", user))
		}
		span.SetAttributes(attrs...)

		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last().Err)
		}
	}
}

// RecordError records an error on the current span
func RecordError(c *gin.Context, err error, description string) {
	span := trace.SpanFromContext(c.Request.Context())
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, description)
	}
}

// AddSpanAttribute adds an attribute to the current span
func AddSpanAttribute(c *gin.Context, key string, value interface{}) {
	span := trace.SpanFromContext(c.Request.Context())
	if span.IsRecording() {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(key, v))
		case int:
			span.SetAttributes(attribute.Int(key, v))
		case int64:
			span.SetAttributes(attribute.Int64(key, v))
		case float64:
			span.SetAttributes(attribute.Float64(key, v))
		case bool:
			span.SetAttributes(attribute.Bool(key, v))
		default:
			span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
		}
	}
}
