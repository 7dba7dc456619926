package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

var testScope = models.Scope{ProductID: 7, WarehouseID: 3}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSalesRepository_GetHistory(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSalesRepository(mock)

	mock.ExpectQuery("FROM sales_history").
		WithArgs(int64(7), int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"date", "quantity_sold"}).
			AddRow(date(2026, 1, 1), 4).
			AddRow(date(2026, 1, 2), 0).
			AddRow(date(2026, 1, 4), 9))

	series, err := repo.GetHistory(context.Background(), testScope)

	require.NoError(t, err)
	assert.Equal(t, testScope, series.Scope)
	assert.Equal(t, []float64{4, 0, 9}, series.Values())
	assert.True(t, series.Last().Equal(date(2026, 1, 4)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSalesRepository_GetHistory_QueryError(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSalesRepository(mock)

	mock.ExpectQuery("FROM sales_history").WillReturnError(errors.New("connection reset"))

	_, err := repo.GetHistory(context.Background(), testScope)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get sales history")
}

func TestSalesRepository_ActiveScopes(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSalesRepository(mock)
	since := date(2026, 9, 15)

	mock.ExpectQuery("SELECT DISTINCT product_id, warehouse_id").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "warehouse_id"}).
			AddRow(int64(1), int64(1)).
			AddRow(int64(1), int64(2)))

	scopes, err := repo.ActiveScopes(context.Background(), since)

	require.NoError(t, err)
	assert.Equal(t, []models.Scope{{ProductID: 1, WarehouseID: 1}, {ProductID: 1, WarehouseID: 2}}, scopes)
}

func TestSalesRepository_SalesSince(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSalesRepository(mock)

	mock.ExpectQuery("FROM sales_history").
		WillReturnRows(pgxmock.NewRows([]string{"id", "product_id", "warehouse_id", "date", "quantity_sold", "revenue"}).
			AddRow(int64(11), int64(7), int64(3), date(2026, 10, 14), 12, "119.88"))

	sales, err := repo.SalesSince(context.Background(), date(2026, 9, 15))

	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, 12, sales[0].QuantitySold)
	assert.True(t, decimal.RequireFromString("119.88").Equal(sales[0].Revenue))
}

func TestSalesRepository_SalesSince_BadRevenue(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSalesRepository(mock)

	mock.ExpectQuery("FROM sales_history").
		WillReturnRows(pgxmock.NewRows([]string{"id", "product_id", "warehouse_id", "date", "quantity_sold", "revenue"}).
			AddRow(int64(11), int64(7), int64(3), date(2026, 10, 14), 12, "n/a"))

	_, err := repo.SalesSince(context.Background(), date(2026, 9, 15))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid revenue")
}

func TestSalesRepository_WeekdayAverages(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSalesRepository(mock)

	mock.ExpectQuery("EXTRACT\\(ISODOW FROM date\\)").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"period", "avg_sales"}).
			AddRow(1, 10.5).
			AddRow(6, 22.0))

	factors, err := repo.WeekdayAverages(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, []models.PatternFactor{{Period: 1, Average: 10.5}, {Period: 6, Average: 22}}, factors)
}

func TestSalesRepository_MonthlyAverages(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSalesRepository(mock)

	mock.ExpectQuery("EXTRACT\\(MONTH FROM date\\)").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"period", "avg_sales"}).AddRow(12, 40.0))

	factors, err := repo.MonthlyAverages(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, []models.PatternFactor{{Period: 12, Average: 40}}, factors)
}

func TestSalesRepository_ProductRevenue(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSalesRepository(mock)

	mock.ExpectQuery("COALESCE\\(SUM\\(quantity_sold\\), 0\\)").
		WithArgs(int64(7), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"quantity", "revenue"}).AddRow(int64(340), "3399.10"))

	summary, err := repo.ProductRevenue(context.Background(), 7, date(2026, 9, 15))

	require.NoError(t, err)
	assert.Equal(t, int64(340), summary.QuantitySold)
	assert.Equal(t, "3399.1", summary.Revenue.String())
}

func TestForecastRepository_GetOrCreateModelConfig(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)
	updated := date(2026, 10, 1)

	mock.ExpectQuery("INSERT INTO forecast_models").
		WithArgs(pgxmock.AnyArg(), int64(7), int64(3), "arima", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "parameters", "accuracy_metrics", "last_updated"}).
			AddRow("cfg-1", []byte(`{"p":1}`), []byte(`{"mae":1.5,"rmse":2,"mape":12}`), updated))

	cfg, err := repo.GetOrCreateModelConfig(context.Background(), testScope, "arima")

	require.NoError(t, err)
	assert.Equal(t, "cfg-1", cfg.ID)
	assert.Equal(t, testScope, cfg.Scope)
	assert.Equal(t, 1.0, cfg.Parameters["p"])
	assert.Equal(t, models.AccuracyMetrics{MAE: 1.5, RMSE: 2, MAPE: 12}, cfg.AccuracyMetrics)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestForecastRepository_UpdateModelConfig(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)
	cfg := &models.ForecastModelConfig{
		ID:          "cfg-1",
		Parameters:  map[string]interface{}{"alpha": 0.3},
		LastUpdated: date(2026, 10, 15),
	}

	mock.ExpectExec("UPDATE forecast_models").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), cfg.LastUpdated, "cfg-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.UpdateModelConfig(context.Background(), cfg))

	mock.ExpectExec("UPDATE forecast_models").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := repo.UpdateModelConfig(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestForecastRepository_ListModelConfigs(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)

	mock.ExpectQuery("FROM forecast_models").
		WillReturnRows(pgxmock.NewRows([]string{"id", "product_id", "warehouse_id", "algorithm", "parameters", "accuracy_metrics", "last_updated"}).
			AddRow("a", int64(7), int64(3), "arima", []byte(`{}`), []byte(`{"mape":20}`), date(2026, 10, 1)).
			AddRow("b", int64(7), int64(3), "moving_average", []byte(nil), []byte(nil), date(2026, 10, 1)))

	configs, err := repo.ListModelConfigs(context.Background())

	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, 20.0, configs[0].AccuracyMetrics.MAPE)
	assert.NotNil(t, configs[1].Parameters)
}

func forecastRecords(n int) []models.ForecastRecord {
	records := make([]models.ForecastRecord, n)
	for i := range records {
		records[i] = models.ForecastRecord{
			ID:                 "rec",
			Scope:              testScope,
			Date:               date(2026, 10, 15+i),
			ForecastedQuantity: 10 + i,
			ConfidenceLower:    5,
			ConfidenceUpper:    20,
			CreatedAt:          date(2026, 10, 15),
		}
	}
	return records
}

func TestForecastRepository_ReplaceForecasts(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)
	from := date(2026, 10, 15)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sales_forecasts").
		WithArgs("cfg-1", int64(7), int64(3), from).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCopyFrom(pgx.Identifier{"sales_forecasts"}, forecastColumns).
		WillReturnResult(3)
	mock.ExpectCommit()

	err := repo.ReplaceForecasts(context.Background(), "cfg-1", testScope, from, forecastRecords(3))

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestForecastRepository_ReplaceForecasts_RollsBack(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sales_forecasts").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"sales_forecasts"}, forecastColumns).
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := repo.ReplaceForecasts(context.Background(), "cfg-1", testScope, date(2026, 10, 15), forecastRecords(3))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to copy 3 forecasts")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestForecastRepository_ReplaceForecasts_ShortCopyRollsBack(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sales_forecasts").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"sales_forecasts"}, forecastColumns).
		WillReturnResult(2)
	mock.ExpectRollback()

	err := repo.ReplaceForecasts(context.Background(), "cfg-1", testScope, date(2026, 10, 15), forecastRecords(3))

	assert.EqualError(t, err, "copied 2 of 3 forecasts")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestForecastRepository_UpcomingForecasts(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)

	mock.ExpectQuery("AND model_id = \\$3 AND date >= \\$4").
		WithArgs(int64(7), int64(3), "cfg-1", pgxmock.AnyArg(), 7).
		WillReturnRows(pgxmock.NewRows([]string{"id", "date", "forecasted_quantity", "confidence_interval_lower", "confidence_interval_upper", "model_id", "created_at"}).
			AddRow("r1", date(2026, 10, 15), 12, 8, 16, "cfg-1", date(2026, 10, 15)))

	records, err := repo.UpcomingForecasts(context.Background(), testScope, "cfg-1", date(2026, 10, 15), 7)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 12, records[0].ForecastedQuantity)
	assert.Equal(t, testScope, records[0].Scope)
	assert.Equal(t, "cfg-1", records[0].ModelConfigID)
}

func TestForecastRepository_ForecastsWithActuals(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)

	mock.ExpectQuery("JOIN sales_history").
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "warehouse_id", "date", "forecasted_quantity", "quantity_sold", "algorithm"}).
			AddRow(int64(7), int64(3), date(2026, 10, 10), 30, 10, "arima"))

	rows, err := repo.ForecastsWithActuals(context.Background(), date(2026, 10, 8))

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ForecastActual{Scope: testScope, Date: date(2026, 10, 10), Forecast: 30, Actual: 10, Algorithm: "arima"}, rows[0])
}

func TestForecastRepository_Upserts(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)
	now := date(2026, 10, 15)

	mock.ExpectExec("INSERT INTO seasonality_patterns").
		WithArgs(int64(7), "daily", pgxmock.AnyArg(), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO inventory_reorder_points").
		WithArgs(int64(7), int64(3), 40, 140, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.UpsertSeasonalityPattern(context.Background(), models.SeasonalityPattern{
		ProductID:   7,
		PatternType: models.PatternDaily,
		Factors:     []models.PatternFactor{{Period: 1, Average: 3}},
		UpdatedAt:   now,
	}))
	require.NoError(t, repo.UpsertReorderPoint(context.Background(), models.ReorderPoint{
		Scope:           testScope,
		SafetyStock:     40,
		ReorderQuantity: 140,
		UpdatedAt:       now,
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestForecastRepository_Deletes(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)
	cutoff := date(2026, 7, 17)

	mock.ExpectExec("DELETE FROM sales_forecasts").WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 42))
	mock.ExpectExec("DELETE FROM seasonality_patterns").WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 1))

	n, err := repo.DeleteForecastsBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	n, err = repo.DeletePatternsBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestForecastRepository_GetDataStats(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM forecast_models").
		WillReturnRows(pgxmock.NewRows([]string{"a", "b", "c", "d", "e"}).
			AddRow(int64(4), int64(120), int64(2), int64(4), int64(9)))

	stats, err := repo.GetDataStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, &DataStats{ModelConfigs: 4, Forecasts: 120, SeasonalityPatterns: 2, ReorderPoints: 4, AlertNotifications: 9}, stats)
}

func TestCatalogRepository_GetProduct(t *testing.T) {
	mock := newMockPool(t)
	repo := NewCatalogRepository(mock)

	mock.ExpectQuery("FROM products").WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "Espresso beans"))
	mock.ExpectQuery("FROM products").WithArgs(int64(8)).
		WillReturnError(pgx.ErrNoRows)

	product, found, err := repo.GetProduct(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Espresso beans", product.Name)

	product, found, err = repo.GetProduct(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, product)
}

func TestCatalogRepository_GetWarehouse(t *testing.T) {
	mock := newMockPool(t)
	repo := NewCatalogRepository(mock)

	mock.ExpectQuery("FROM warehouses").WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow(int64(3), "Rotterdam"))
	mock.ExpectQuery("FROM warehouses").WithArgs(int64(4)).
		WillReturnError(errors.New("timeout"))

	warehouse, found, err := repo.GetWarehouse(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Rotterdam", warehouse.Name)

	_, found, err = repo.GetWarehouse(context.Background(), 4)
	require.Error(t, err)
	assert.False(t, found)
}

func TestNotificationRepository_LogNotification(t *testing.T) {
	mock := newMockPool(t)
	repo := NewNotificationRepository(mock)
	sent := date(2026, 10, 15)

	mock.ExpectExec("INSERT INTO alert_notifications").
		WithArgs("anomaly", "12345", "text", sent).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.LogNotification(context.Background(), models.AlertAnomaly, "12345", "text", sent))
	require.NoError(t, mock.ExpectationsWereMet())
}
