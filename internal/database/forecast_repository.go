package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

var forecastColumns = []string{
	"id", "product_id", "warehouse_id", "model_id", "date", "forecasted_quantity",
	"confidence_interval_lower", "confidence_interval_upper", "created_at",
}

// ForecastActual pairs a stored forecast with the quantity that was actually sold on that day.
type ForecastActual struct {
	models.Scope
	Date      time.Time `json:"date"`
	Forecast  int       `json:"forecast"`
	Actual    int       `json:"actual"`
	Algorithm string    `json:"algorithm"`
}

// DataStats holds row counts for the tables this service writes.
type DataStats struct {
	ModelConfigs        int64 `json:"model_configs"`
	Forecasts           int64 `json:"forecasts"`
	SeasonalityPatterns int64 `json:"seasonality_patterns"`
	ReorderPoints       int64 `json:"reorder_points"`
	AlertNotifications  int64 `json:"alert_notifications"`
}

// ForecastRepository persists model configs, forecast records, seasonality patterns and reorder points.
type ForecastRepository struct {
	pool DatabasePool
}

// NewForecastRepository creates a new forecast repository.
func NewForecastRepository(pool DatabasePool) *ForecastRepository {
	return &ForecastRepository{pool: pool}
}

// GetOrCreateModelConfig returns the config for (scope, algorithm), inserting an empty one on first use.
// The no-op update makes RETURNING yield the existing row when another writer got there first.
func (r *ForecastRepository) GetOrCreateModelConfig(ctx context.Context, scope models.Scope, algorithm string) (*models.ForecastModelConfig, error) {
	query := `
		INSERT INTO forecast_models (id, product_id, warehouse_id, algorithm, parameters, accuracy_metrics, last_updated)
		VALUES ($1, $2, $3, $4, '{}'::jsonb, '{}'::jsonb, $5)
		ON CONFLICT (product_id, warehouse_id, algorithm)
		DO UPDATE SET algorithm = EXCLUDED.algorithm
		RETURNING id, parameters, accuracy_metrics, last_updated
	`

	cfg := &models.ForecastModelConfig{Scope: scope, Algorithm: algorithm}
	var params, metrics []byte
	err := r.pool.QueryRow(ctx, query, uuid.New().String(), scope.ProductID, scope.WarehouseID, algorithm, time.Now().UTC()).
		Scan(&cfg.ID, &params, &metrics, &cfg.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create model config: %w", err)
	}
	if err := decodeConfigJSON(cfg, params, metrics); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpdateModelConfig stores the fitted parameters and accuracy metrics of a config.
func (r *ForecastRepository) UpdateModelConfig(ctx context.Context, cfg *models.ForecastModelConfig) error {
	params, err := json.Marshal(cfg.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode model parameters: %w", err)
	}
	metrics, err := json.Marshal(cfg.AccuracyMetrics)
	if err != nil {
		return fmt.Errorf("failed to encode accuracy metrics: %w", err)
	}

	query := `
		UPDATE forecast_models
		SET parameters = $1, accuracy_metrics = $2, last_updated = $3
		WHERE id = $4
	`
	tag, err := r.pool.Exec(ctx, query, params, metrics, cfg.LastUpdated, cfg.ID)
	if err != nil {
		return fmt.Errorf("failed to update model config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("model config %s not found", cfg.ID)
	}
	return nil
}

// ListModelConfigs returns every config ordered by scope.
func (r *ForecastRepository) ListModelConfigs(ctx context.Context) ([]models.ForecastModelConfig, error) {
	query := `
		SELECT id, product_id, warehouse_id, algorithm, parameters, accuracy_metrics, last_updated
		FROM forecast_models
		ORDER BY product_id, warehouse_id, algorithm
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list model configs: %w", err)
	}
	defer rows.Close()

	var configs []models.ForecastModelConfig
	for rows.Next() {
		var (
			cfg             models.ForecastModelConfig
			params, metrics []byte
		)
		if err := rows.Scan(&cfg.ID, &cfg.ProductID, &cfg.WarehouseID, &cfg.Algorithm, &params, &metrics, &cfg.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan model config: %w", err)
		}
		if err := decodeConfigJSON(&cfg, params, metrics); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func decodeConfigJSON(cfg *models.ForecastModelConfig, params, metrics []byte) error {
	cfg.Parameters = map[string]interface{}{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg.Parameters); err != nil {
			return fmt.Errorf("invalid parameters for model config %s: %w", cfg.ID, err)
		}
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &cfg.AccuracyMetrics); err != nil {
			return fmt.Errorf("invalid accuracy metrics for model config %s: %w", cfg.ID, err)
		}
	}
	return nil
}

// ReplaceForecasts writes a run's records in one transaction. Rows the same model produced for
// dates on or after from are removed first, so a rerun supersedes the previous one and
// (scope, date, model) stays unique.
func (r *ForecastRepository) ReplaceForecasts(ctx context.Context, modelID string, scope models.Scope, from time.Time, records []models.ForecastRecord) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `
		DELETE FROM sales_forecasts
		WHERE model_id = $1 AND product_id = $2 AND warehouse_id = $3 AND date >= $4
	`, modelID, scope.ProductID, scope.WarehouseID, from); err != nil {
		return fmt.Errorf("failed to clear superseded forecasts: %w", err)
	}

	rows := make([][]interface{}, len(records))
	for i, rec := range records {
		rows[i] = []interface{}{rec.ID, scope.ProductID, scope.WarehouseID, modelID, rec.Date,
			rec.ForecastedQuantity, rec.ConfidenceLower, rec.ConfidenceUpper, rec.CreatedAt}
	}
	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"sales_forecasts"}, forecastColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy %d forecasts: %w", len(records), err)
	}
	if copied != int64(len(records)) {
		return fmt.Errorf("copied %d of %d forecasts", copied, len(records))
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit forecasts: %w", err)
	}
	return nil
}

// UpcomingForecasts returns up to limit forecast days of one model starting at from.
func (r *ForecastRepository) UpcomingForecasts(ctx context.Context, scope models.Scope, modelID string, from time.Time, limit int) ([]models.ForecastRecord, error) {
	query := `
		SELECT id, date, forecasted_quantity, confidence_interval_lower,
			confidence_interval_upper, model_id, created_at
		FROM sales_forecasts
		WHERE product_id = $1 AND warehouse_id = $2 AND model_id = $3 AND date >= $4
		ORDER BY date
		LIMIT $5
	`

	rows, err := r.pool.Query(ctx, query, scope.ProductID, scope.WarehouseID, modelID, from, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get upcoming forecasts: %w", err)
	}
	defer rows.Close()

	var records []models.ForecastRecord
	for rows.Next() {
		rec := models.ForecastRecord{Scope: scope}
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.ForecastedQuantity, &rec.ConfidenceLower,
			&rec.ConfidenceUpper, &rec.ModelConfigID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan forecast: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ForecastsWithActuals joins forecasts dated on or after since with the sales recorded for the same day.
// Forecasts whose day has no sale yet are not returned.
func (r *ForecastRepository) ForecastsWithActuals(ctx context.Context, since time.Time) ([]ForecastActual, error) {
	query := `
		SELECT f.product_id, f.warehouse_id, f.date, f.forecasted_quantity, s.quantity_sold, m.algorithm
		FROM sales_forecasts f
		JOIN forecast_models m ON m.id = f.model_id
		JOIN sales_history s ON s.product_id = f.product_id
			AND s.warehouse_id = f.warehouse_id
			AND s.date = f.date
		WHERE f.date >= $1
		ORDER BY f.product_id, f.warehouse_id, f.date
	`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get forecasts with actuals: %w", err)
	}
	defer rows.Close()

	var out []ForecastActual
	for rows.Next() {
		var fa ForecastActual
		if err := rows.Scan(&fa.ProductID, &fa.WarehouseID, &fa.Date, &fa.Forecast, &fa.Actual, &fa.Algorithm); err != nil {
			return nil, fmt.Errorf("failed to scan forecast actual: %w", err)
		}
		out = append(out, fa)
	}
	return out, rows.Err()
}

// UpsertSeasonalityPattern stores the pattern for (product, pattern type), replacing any previous one.
func (r *ForecastRepository) UpsertSeasonalityPattern(ctx context.Context, p models.SeasonalityPattern) error {
	data, err := json.Marshal(p.Factors)
	if err != nil {
		return fmt.Errorf("failed to encode pattern data: %w", err)
	}

	query := `
		INSERT INTO seasonality_patterns (product_id, pattern_type, pattern_data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id, pattern_type)
		DO UPDATE SET pattern_data = EXCLUDED.pattern_data, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.pool.Exec(ctx, query, p.ProductID, string(p.PatternType), data, p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert %s pattern: %w", p.PatternType, err)
	}
	return nil
}

// UpsertReorderPoint stores the inventory policy for a scope.
func (r *ForecastRepository) UpsertReorderPoint(ctx context.Context, rp models.ReorderPoint) error {
	query := `
		INSERT INTO inventory_reorder_points (product_id, warehouse_id, safety_stock, reorder_quantity, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, warehouse_id)
		DO UPDATE SET safety_stock = EXCLUDED.safety_stock,
			reorder_quantity = EXCLUDED.reorder_quantity,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.pool.Exec(ctx, query, rp.ProductID, rp.WarehouseID, rp.SafetyStock, rp.ReorderQuantity, rp.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert reorder point: %w", err)
	}
	return nil
}

// DeleteForecastsBefore removes forecasts dated before cutoff and returns how many rows went.
func (r *ForecastRepository) DeleteForecastsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM sales_forecasts WHERE date < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old forecasts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeletePatternsBefore removes seasonality patterns not refreshed since cutoff.
func (r *ForecastRepository) DeletePatternsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM seasonality_patterns WHERE updated_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale seasonality patterns: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetDataStats counts the rows in every table the service writes.
func (r *ForecastRepository) GetDataStats(ctx context.Context) (*DataStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM forecast_models),
			(SELECT COUNT(*) FROM sales_forecasts),
			(SELECT COUNT(*) FROM seasonality_patterns),
			(SELECT COUNT(*) FROM inventory_reorder_points),
			(SELECT COUNT(*) FROM alert_notifications)
	`

	var stats DataStats
	err := r.pool.QueryRow(ctx, query).Scan(
		&stats.ModelConfigs,
		&stats.Forecasts,
		&stats.SeasonalityPatterns,
		&stats.ReorderPoints,
		&stats.AlertNotifications,
	)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to get data stats: %w", err)
	}
	return &stats, nil
}
