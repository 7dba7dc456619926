package forecast

import (
	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

// HoldoutSize is the number of trailing points scored by Backtest for a given horizon:
// the horizon itself, capped at a third of the history.
func HoldoutSize(n, horizon int) int {
	h := horizon
	if limit := n / 3; h > limit {
		h = limit
	}
	return h
}

// Backtest refits the algorithm on the series minus its last holdout points and scores the
// forecast of those points against what was observed. ok is false when the holdout is empty
// or the algorithm cannot fit the shortened history.
func (r *Registry) Backtest(a Algorithm, series models.Series, holdout int) (metrics models.AccuracyMetrics, ok bool) {
	n := series.Len()
	if holdout <= 0 || n-holdout < MinimumPoints {
		return models.AccuracyMetrics{}, false
	}
	train := series.Slice(0, n-holdout)
	actual := series.Slice(n-holdout, n).Values()

	res := r.Run(a, train, holdout)
	if !res.Available() {
		return models.AccuracyMetrics{}, false
	}
	return Accuracy(actual, res.Points()), true
}
