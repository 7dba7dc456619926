package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

// SalesRepository reads realized sales. The table is owned by the order pipeline; this service never writes it.
type SalesRepository struct {
	pool DatabasePool
}

// NewSalesRepository creates a new sales repository.
//
// Parameters:
//
//	pool: The database connection pool.
//
// Returns:
//
//	*SalesRepository: The initialized repository.
func NewSalesRepository(pool DatabasePool) *SalesRepository {
	return &SalesRepository{pool: pool}
}

// GetHistory returns every recorded day for a scope ordered by date. Rows are returned as stored:
// gaps, repeated dates and negative corrections are left for the cleaner.
func (r *SalesRepository) GetHistory(ctx context.Context, scope models.Scope) (models.Series, error) {
	query := `
		SELECT date, quantity_sold
		FROM sales_history
		WHERE product_id = $1 AND warehouse_id = $2
		ORDER BY date
	`

	rows, err := r.pool.Query(ctx, query, scope.ProductID, scope.WarehouseID)
	if err != nil {
		return models.Series{}, fmt.Errorf("failed to get sales history: %w", err)
	}
	defer rows.Close()

	series := models.Series{Scope: scope}
	for rows.Next() {
		var (
			date time.Time
			qty  int
		)
		if err := rows.Scan(&date, &qty); err != nil {
			return models.Series{}, fmt.Errorf("failed to scan sales history: %w", err)
		}
		series.Points = append(series.Points, models.Point{Timestamp: models.Day(date), Value: float64(qty)})
	}
	if err := rows.Err(); err != nil {
		return models.Series{}, fmt.Errorf("error iterating sales history: %w", err)
	}

	return series, nil
}

// ActiveScopes lists every (product, warehouse) pair with at least one sale on or after since.
func (r *SalesRepository) ActiveScopes(ctx context.Context, since time.Time) ([]models.Scope, error) {
	query := `
		SELECT DISTINCT product_id, warehouse_id
		FROM sales_history
		WHERE date >= $1
		ORDER BY product_id, warehouse_id
	`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list active scopes: %w", err)
	}
	defer rows.Close()

	var scopes []models.Scope
	for rows.Next() {
		var s models.Scope
		if err := rows.Scan(&s.ProductID, &s.WarehouseID); err != nil {
			return nil, fmt.Errorf("failed to scan scope: %w", err)
		}
		scopes = append(scopes, s)
	}
	return scopes, rows.Err()
}

// SalesSince returns all sales rows dated on or after since, grouped by scope and ordered by date.
func (r *SalesRepository) SalesSince(ctx context.Context, since time.Time) ([]models.SalesHistory, error) {
	query := `
		SELECT id, product_id, warehouse_id, date, quantity_sold, revenue::text
		FROM sales_history
		WHERE date >= $1
		ORDER BY product_id, warehouse_id, date
	`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent sales: %w", err)
	}
	defer rows.Close()

	var sales []models.SalesHistory
	for rows.Next() {
		var (
			s       models.SalesHistory
			revenue string
		)
		if err := rows.Scan(&s.ID, &s.ProductID, &s.WarehouseID, &s.Date, &s.QuantitySold, &revenue); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		if s.Revenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, fmt.Errorf("invalid revenue %q for sale %d: %w", revenue, s.ID, err)
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

// WeekdayAverages averages a product's daily sales per ISO weekday (1 = Monday) across warehouses.
// Weekdays without sales are omitted.
func (r *SalesRepository) WeekdayAverages(ctx context.Context, productID int64) ([]models.PatternFactor, error) {
	return r.periodAverages(ctx, productID, "ISODOW")
}

// MonthlyAverages averages a product's daily sales per calendar month across warehouses and years.
func (r *SalesRepository) MonthlyAverages(ctx context.Context, productID int64) ([]models.PatternFactor, error) {
	return r.periodAverages(ctx, productID, "MONTH")
}

func (r *SalesRepository) periodAverages(ctx context.Context, productID int64, field string) ([]models.PatternFactor, error) {
	// field is one of two constants above, never user input.
	query := fmt.Sprintf(`
		SELECT EXTRACT(%s FROM date)::int AS period, AVG(quantity_sold)::float8 AS avg_sales
		FROM sales_history
		WHERE product_id = $1
		GROUP BY period
		ORDER BY period
	`, field)

	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sales by %s: %w", field, err)
	}
	defer rows.Close()

	var factors []models.PatternFactor
	for rows.Next() {
		var f models.PatternFactor
		if err := rows.Scan(&f.Period, &f.Average); err != nil {
			return nil, fmt.Errorf("failed to scan %s average: %w", field, err)
		}
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

// ProductRevenue sums quantity and revenue for a product across warehouses since the given day.
func (r *SalesRepository) ProductRevenue(ctx context.Context, productID int64, since time.Time) (*models.ScopeRevenue, error) {
	query := `
		SELECT COALESCE(SUM(quantity_sold), 0)::bigint, COALESCE(SUM(revenue), 0)::text
		FROM sales_history
		WHERE product_id = $1 AND date >= $2
	`

	summary := &models.ScopeRevenue{Scope: models.Scope{ProductID: productID}}
	var revenue string
	if err := r.pool.QueryRow(ctx, query, productID, since).Scan(&summary.QuantitySold, &revenue); err != nil {
		return nil, fmt.Errorf("failed to sum product revenue: %w", err)
	}
	amount, err := decimal.NewFromString(revenue)
	if err != nil {
		return nil, fmt.Errorf("invalid revenue total %q: %w", revenue, err)
	}
	summary.Revenue = amount
	return summary, nil
}
