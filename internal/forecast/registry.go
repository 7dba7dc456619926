package forecast

import (
	"time"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

// MinimumPoints is the shortest series any strategy will attempt.
const MinimumPoints = 2

// Observer receives the duration of every strategy run; metrics plug in here.
type Observer func(algorithm Algorithm, elapsed time.Duration, available bool)

// Registry maps every Algorithm on the menu to its Strategy.
type Registry struct {
	strategies map[Algorithm]Strategy
	observe    Observer
}

// NewRegistry returns a registry holding the default strategy for every algorithm.
func NewRegistry() *Registry {
	return &Registry{strategies: map[Algorithm]Strategy{
		MovingAverage:         StrategyFunc(MovingAverageForecast),
		ExponentialSmoothing:  StrategyFunc(HoltWintersForecast),
		ARIMA:                 StrategyFunc(ARIMAForecast),
		SeasonalDecomposition: StrategyFunc(SeasonalDecompositionForecast),
	}}
}

// WithObserver sets the callback invoked after every run.
func (r *Registry) WithObserver(o Observer) *Registry {
	r.observe = o
	return r
}

// Register replaces the strategy for an algorithm.
func (r *Registry) Register(a Algorithm, s Strategy) {
	r.strategies[a] = s
}

// Run forecasts with the named algorithm. A panic inside the strategy, an unknown
// algorithm or a too-short series all yield an Unavailable result.
func (r *Registry) Run(a Algorithm, series models.Series, horizon int) (res Result) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			res = Unavailable("%s panicked: %v", a, rec)
		}
		if r.observe != nil {
			r.observe(a, time.Since(start), res.Available())
		}
	}()

	s, ok := r.strategies[a]
	if !ok {
		return Unavailable("no strategy registered for %q", a)
	}
	if horizon <= 0 {
		return Unavailable("horizon must be positive, got %d", horizon)
	}
	if series.Len() < MinimumPoints {
		return Unavailable("needs at least %d points, got %d", MinimumPoints, series.Len())
	}
	return s.Forecast(series, horizon)
}
