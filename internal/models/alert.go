package models

import "time"

// AlertKind identifies which monitor check raised an alert
type AlertKind string

const (
	AlertAccuracy        AlertKind = "accuracy"
	AlertAnomaly         AlertKind = "anomaly"
	AlertModelComparison AlertKind = "model_comparison"
)

// Alert is a transient value handed to a notification sink. The core never persists it.
type Alert struct {
	ID        string      `json:"id"`
	Kind      AlertKind   `json:"kind"`
	Payload   interface{} `json:"payload"`
	CreatedAt time.Time   `json:"created_at"`
}

// AccuracyFinding is a forecast whose realized error exceeded the threshold
type AccuracyFinding struct {
	Scope
	Date         time.Time `json:"date"`
	Actual       int       `json:"actual"`
	Forecast     int       `json:"forecast"`
	ErrorPercent float64   `json:"error"`
	Algorithm    string    `json:"algorithm"`
}

// AnomalyFinding is a recent sale that deviates from its scope's baseline
type AnomalyFinding struct {
	Scope
	Date     time.Time `json:"date"`
	Quantity int       `json:"quantity"`
	Mean     float64   `json:"mean"`
	StdDev   float64   `json:"std_dev"`
	ZScore   float64   `json:"z_score"`
}

// ComparisonFinding recommends switching a scope to its best performing algorithm
type ComparisonFinding struct {
	Scope
	BestAlgorithm  string  `json:"best_algorithm"`
	BestMAPE       float64 `json:"best_mape"`
	WorstAlgorithm string  `json:"worst_algorithm"`
	WorstMAPE      float64 `json:"worst_mape"`
}
