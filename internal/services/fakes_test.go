package services

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fahad0samara/commerce-forecast-go/internal/database"
	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

// fakeSales serves sales history from memory.
type fakeSales struct {
	mu       sync.Mutex
	history  map[models.Scope]models.Series
	rows     []models.SalesHistory
	weekdays []models.PatternFactor
	months   []models.PatternFactor
	scopes   []models.Scope
	calls    int
	err      error
}

func (f *fakeSales) GetHistory(_ context.Context, scope models.Scope) (models.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return models.Series{}, f.err
	}
	s, ok := f.history[scope]
	if !ok {
		return models.Series{Scope: scope}, nil
	}
	return s.Clone(), nil
}

func (f *fakeSales) WeekdayAverages(context.Context, int64) ([]models.PatternFactor, error) {
	return f.weekdays, f.err
}

func (f *fakeSales) MonthlyAverages(context.Context, int64) ([]models.PatternFactor, error) {
	return f.months, f.err
}

func (f *fakeSales) ProductRevenue(_ context.Context, productID int64, _ time.Time) (*models.ScopeRevenue, error) {
	return &models.ScopeRevenue{Scope: models.Scope{ProductID: productID}, QuantitySold: 10}, nil
}

func (f *fakeSales) SalesSince(_ context.Context, since time.Time) ([]models.SalesHistory, error) {
	var out []models.SalesHistory
	for _, r := range f.rows {
		if !r.Date.Before(since) {
			out = append(out, r)
		}
	}
	return out, f.err
}

func (f *fakeSales) ActiveScopes(context.Context, time.Time) ([]models.Scope, error) {
	return f.scopes, f.err
}

type patternKey struct {
	productID int64
	kind      models.PatternType
}

func conflictError() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

// fakeForecastStore keeps configs, records and patterns in memory with the same uniqueness
// rules as the database.
type fakeForecastStore struct {
	mu        sync.Mutex
	configs   map[string]*models.ForecastModelConfig // key: scope/algorithm
	records   map[string][]models.ForecastRecord     // key: model id
	patterns  map[patternKey]models.SeasonalityPattern
	reorders  map[models.Scope]models.ReorderPoint
	actuals   []database.ForecastActual
	conflicts int // GetOrCreateModelConfig fails with a conflict this many times first
	deleted   []time.Time
	writes    int

	// writeDelay holds ReplaceForecasts open so overlapping writers show up in maxInFlight.
	writeDelay  time.Duration
	inFlight    int
	maxInFlight int
}

func newFakeForecastStore() *fakeForecastStore {
	return &fakeForecastStore{
		configs:  make(map[string]*models.ForecastModelConfig),
		records:  make(map[string][]models.ForecastRecord),
		patterns: make(map[patternKey]models.SeasonalityPattern),
		reorders: make(map[models.Scope]models.ReorderPoint),
	}
}

func (f *fakeForecastStore) GetOrCreateModelConfig(_ context.Context, scope models.Scope, algorithm string) (*models.ForecastModelConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		return nil, conflictError()
	}
	key := scope.String() + "/" + algorithm
	cfg, ok := f.configs[key]
	if !ok {
		cfg = &models.ForecastModelConfig{ID: uuid.NewString(), Scope: scope, Algorithm: algorithm, Parameters: map[string]interface{}{}}
		f.configs[key] = cfg
	}
	out := *cfg
	return &out, nil
}

func (f *fakeForecastStore) UpdateModelConfig(_ context.Context, cfg *models.ForecastModelConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *cfg
	f.configs[cfg.Scope.String()+"/"+cfg.Algorithm] = &stored
	return nil
}

func (f *fakeForecastStore) ReplaceForecasts(_ context.Context, modelID string, _ models.Scope, from time.Time, records []models.ForecastRecord) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.writeDelay
	f.mu.Unlock()
	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	f.writes++
	var kept []models.ForecastRecord
	for _, r := range f.records[modelID] {
		if r.Date.Before(from) {
			kept = append(kept, r)
		}
	}
	f.records[modelID] = append(kept, records...)
	return nil
}

func (f *fakeForecastStore) UpsertSeasonalityPattern(_ context.Context, p models.SeasonalityPattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns[patternKey{p.ProductID, p.PatternType}] = p
	return nil
}

func (f *fakeForecastStore) ForecastsWithActuals(_ context.Context, since time.Time) ([]database.ForecastActual, error) {
	var out []database.ForecastActual
	for _, a := range f.actuals {
		if !a.Date.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeForecastStore) ListModelConfigs(context.Context) ([]models.ForecastModelConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.configs))
	for k := range f.configs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]models.ForecastModelConfig, 0, len(keys))
	for _, k := range keys {
		out = append(out, *f.configs[k])
	}
	return out, nil
}

func (f *fakeForecastStore) UpcomingForecasts(_ context.Context, scope models.Scope, modelID string, from time.Time, limit int) ([]models.ForecastRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ForecastRecord
	for _, r := range f.records[modelID] {
		if r.Scope == scope && !r.Date.Before(from) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeForecastStore) UpsertReorderPoint(_ context.Context, rp models.ReorderPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reorders[rp.Scope] = rp
	return nil
}

func (f *fakeForecastStore) DeleteForecastsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, cutoff)
	var n int64
	for id, recs := range f.records {
		var kept []models.ForecastRecord
		for _, r := range recs {
			if r.Date.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, r)
		}
		f.records[id] = kept
	}
	return n, nil
}

func (f *fakeForecastStore) DeletePatternsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, p := range f.patterns {
		if p.UpdatedAt.Before(cutoff) {
			delete(f.patterns, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeForecastStore) GetDataStats(context.Context) (*database.DataStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &database.DataStats{
		ModelConfigs:        int64(len(f.configs)),
		SeasonalityPatterns: int64(len(f.patterns)),
		ReorderPoints:       int64(len(f.reorders)),
	}
	for _, recs := range f.records {
		stats.Forecasts += int64(len(recs))
	}
	return stats, nil
}

func (f *fakeForecastStore) recordsFor(modelID string) []models.ForecastRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ForecastRecord(nil), f.records[modelID]...)
}

// fakeCatalog resolves a fixed set of names.
type fakeCatalog struct{}

func (fakeCatalog) GetProduct(_ context.Context, id int64) (*models.Product, bool, error) {
	if id == 7 {
		return &models.Product{ID: 7, Name: "Espresso Beans 1kg"}, true, nil
	}
	return nil, false, nil
}

func (fakeCatalog) GetWarehouse(_ context.Context, id int64) (*models.Warehouse, bool, error) {
	if id == 3 {
		return &models.Warehouse{ID: 3, Name: "Rotterdam DC"}, true, nil
	}
	return nil, false, nil
}

// recordingSink captures alerts and optionally fails delivery.
type recordingSink struct {
	mu     sync.Mutex
	alerts []models.Alert
	err    error
}

func (s *recordingSink) Send(_ context.Context, alert models.Alert, _ []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return s.err
}

// seasonalSeries builds n days of trend + weekly sinusoid + gaussian noise ending yesterday.
func seasonalSeries(scope models.Scope, n int, end time.Time, seed int64) models.Series {
	rng := rand.New(rand.NewSource(seed))
	start := models.Day(end).AddDate(0, 0, -n)
	ts := make([]time.Time, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + 0.5*float64(i)
		weekly := 0.3 * base * math.Sin(2*math.Pi*float64(i)/7)
		ts[i] = start.AddDate(0, 0, i)
		values[i] = math.Max(0, math.Round(base+weekly+rng.NormFloat64()*10))
	}
	return models.NewSeries(scope, ts, values)
}
