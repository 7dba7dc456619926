package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesHistory is one day of realized sales for a scope
type SalesHistory struct {
	ID           int64           `json:"id" db:"id"`
	ProductID    int64           `json:"product_id" db:"product_id"`
	WarehouseID  int64           `json:"warehouse_id" db:"warehouse_id"`
	Date         time.Time       `json:"date" db:"date"`
	QuantitySold int             `json:"quantity_sold" db:"quantity_sold"`
	Revenue      decimal.Decimal `json:"revenue" db:"revenue"`
}

// Product is the catalog entry a forecast is produced for
type Product struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Warehouse is the stocking location a forecast is produced for
type Warehouse struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// AccuracyMetrics holds the error measures stored on a model config
type AccuracyMetrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MAPE float64 `json:"mape"`
}

// ForecastModelConfig is the live configuration of one algorithm for one scope.
// There is exactly one per (scope, algorithm); it is updated in place on every run.
type ForecastModelConfig struct {
	ID              string                 `json:"id" db:"id"`
	Scope                                  // product_id, warehouse_id
	Algorithm       string                 `json:"algorithm" db:"algorithm"`
	Parameters      map[string]interface{} `json:"parameters" db:"parameters"`
	AccuracyMetrics AccuracyMetrics        `json:"accuracy_metrics" db:"accuracy_metrics"`
	LastUpdated     time.Time              `json:"last_updated" db:"last_updated"`
}

// ForecastRecord is one forecasted day. Records are immutable once written and are
// superseded by later runs rather than updated.
type ForecastRecord struct {
	ID                 string    `json:"id" db:"id"`
	Scope                        // product_id, warehouse_id
	Date               time.Time `json:"date" db:"date"`
	ForecastedQuantity int       `json:"forecasted_quantity" db:"forecasted_quantity"`
	ConfidenceLower    int       `json:"confidence_interval_lower" db:"confidence_interval_lower"`
	ConfidenceUpper    int       `json:"confidence_interval_upper" db:"confidence_interval_upper"`
	ModelConfigID      string    `json:"model_id" db:"model_id"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// PatternType names the granularity of a seasonality pattern
type PatternType string

const (
	PatternDaily   PatternType = "daily"
	PatternWeekly  PatternType = "weekly"
	PatternMonthly PatternType = "monthly"
	PatternYearly  PatternType = "yearly"
)

// PatternFactor is the average sales for one period index (ISO weekday 1-7, month 1-12, ...)
type PatternFactor struct {
	Period  int     `json:"period"`
	Average float64 `json:"avg_sales"`
}

// SeasonalityPattern is upserted per (product, pattern type)
type SeasonalityPattern struct {
	ProductID   int64           `json:"product_id" db:"product_id"`
	PatternType PatternType     `json:"pattern_type" db:"pattern_type"`
	Factors     []PatternFactor `json:"pattern_data" db:"pattern_data"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// ReorderPoint is the inventory policy derived from the near-term forecast
type ReorderPoint struct {
	Scope
	SafetyStock     int       `json:"safety_stock" db:"safety_stock"`
	ReorderQuantity int       `json:"reorder_quantity" db:"reorder_quantity"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// ScopeRevenue summarizes recent sales for a scope
type ScopeRevenue struct {
	Scope
	Days         int             `json:"days"`
	QuantitySold int64           `json:"quantity_sold"`
	Revenue      decimal.Decimal `json:"revenue"`
}
