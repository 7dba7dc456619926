package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

// MAPE is the mean absolute percentage error. A zero actual uses 1 as the denominator.
func MAPE(actual, predicted []float64) float64 {
	n := pairLen(actual, predicted)
	if n == 0 {
		return math.NaN()
	}
	errs := make([]float64, n)
	for i := 0; i < n; i++ {
		denom := actual[i]
		if denom == 0 {
			denom = 1
		}
		errs[i] = math.Abs((actual[i] - predicted[i]) / denom)
	}
	return stat.Mean(errs, nil) * 100
}

// RMSE is the root mean squared error.
func RMSE(actual, predicted []float64) float64 {
	n := pairLen(actual, predicted)
	if n == 0 {
		return math.NaN()
	}
	sq := make([]float64, n)
	for i := 0; i < n; i++ {
		d := actual[i] - predicted[i]
		sq[i] = d * d
	}
	return math.Sqrt(stat.Mean(sq, nil))
}

// MAE is the mean absolute error.
func MAE(actual, predicted []float64) float64 {
	n := pairLen(actual, predicted)
	if n == 0 {
		return math.NaN()
	}
	abs := make([]float64, n)
	for i := 0; i < n; i++ {
		abs[i] = math.Abs(actual[i] - predicted[i])
	}
	return stat.Mean(abs, nil)
}

// Accuracy bundles MAE, RMSE and MAPE over the common prefix of both slices.
func Accuracy(actual, predicted []float64) models.AccuracyMetrics {
	return models.AccuracyMetrics{
		MAE:  MAE(actual, predicted),
		RMSE: RMSE(actual, predicted),
		MAPE: MAPE(actual, predicted),
	}
}

func pairLen(a, b []float64) int {
	if len(a) < len(b) {
		return len(a)
	}
	return len(b)
}
