package forecast

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"gonum.org/v1/gonum/stat"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

// MovingAverageWindow is the trailing window of the moving-average forecast.
const MovingAverageWindow = 7

// MovingAverageForecast repeats the last trailing mean for every step, bounded by two
// sample standard deviations of the whole history. Histories shorter than the window
// average everything they have.
func MovingAverageForecast(series models.Series, horizon int) Result {
	values := series.Values()
	if len(values) < MinimumPoints {
		return Unavailable("moving average needs %d points", MinimumPoints)
	}

	window := MovingAverageWindow
	if len(values) < window {
		window = len(values)
	}

	sma := trend.NewSmaWithPeriod[float64](window)
	means := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
	if len(means) == 0 {
		return Unavailable("moving average produced no values")
	}
	last := means[len(means)-1]
	sd := stat.StdDev(values, nil)

	steps := make([]Step, horizon)
	for i := range steps {
		steps[i] = Step{Point: last, Lower: last - 2*sd, Upper: last + 2*sd}
	}
	return checkSteps(steps, horizon)
}
