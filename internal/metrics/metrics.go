// Package metrics exposes the Prometheus instruments of the forecasting service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "commerce_forecast"

var (
	// ForecastRunsTotal counts GenerateForecast calls by algorithm and outcome
	// (generated, cached, absent, error).
	ForecastRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_runs_total",
			Help:      "Forecast generations by algorithm and outcome.",
		},
		[]string{"algorithm", "outcome"},
	)

	// SelectionOutcomesTotal counts model selection runs by final state and chosen algorithm.
	SelectionOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_outcomes_total",
			Help:      "Model selection runs by final state and selected algorithm.",
		},
		[]string{"state", "algorithm"},
	)

	// CacheRequestsTotal counts forecast cache lookups by tier and result.
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Forecast cache lookups by tier (local, redis) and result (hit, miss).",
		},
		[]string{"tier", "result"},
	)

	// AlertsTotal counts alerts handed to a sink by kind and delivery result.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Monitor alerts by kind and delivery result.",
		},
		[]string{"kind", "delivery"},
	)

	// BatchScopeFailuresTotal counts scopes that failed during a batch update, by stage.
	BatchScopeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_scope_failures_total",
			Help:      "Scopes that failed during a batch forecast update.",
		},
		[]string{"stage"},
	)

	// HTTPRequestsTotal counts API requests by route template, method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestSeconds is the API latency by route template and method.
	HTTPRequestSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_seconds",
			Help:      "API request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// AlgorithmFitSeconds is the latency of a single strategy run.
	AlgorithmFitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "algorithm_fit_seconds",
			Help:      "Duration of one forecasting strategy fit and forecast.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~3.8s
		},
		[]string{"algorithm", "available"},
	)
)

// ObserveFit records one strategy run.
func ObserveFit(algorithm string, elapsed time.Duration, available bool) {
	label := "false"
	if available {
		label = "true"
	}
	AlgorithmFitSeconds.WithLabelValues(algorithm, label).Observe(elapsed.Seconds())
}
