package forecast

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

const arimaMinPoints = 5

// arma11 is an ARMA(1,1) without constant fitted to first differences.
type arma11 struct {
	phi, theta float64
}

// residuals returns the conditional one-step errors, with the pre-sample error taken as zero.
func (m arma11) residuals(d []float64) []float64 {
	e := make([]float64, len(d))
	for t := 1; t < len(d); t++ {
		e[t] = d[t] - m.phi*d[t-1] - m.theta*e[t-1]
	}
	return e
}

func (m arma11) css(d []float64) float64 {
	e := m.residuals(d)
	return floats.Dot(e[1:], e[1:])
}

// ARIMAForecast fits ARIMA(1,1,1) by conditional sum of squares. Both coefficients are
// searched in (-1, 1) but stationarity is not otherwise imposed. Intervals come from the
// psi-weights of the integrated process.
func ARIMAForecast(series models.Series, horizon int) Result {
	y := series.Values()
	if len(y) < arimaMinPoints {
		return Unavailable("arima needs %d points, got %d", arimaMinPoints, len(y))
	}
	d := make([]float64, len(y)-1)
	floats.SubTo(d, y[1:], y[:len(y)-1])

	objective := func(x []float64) float64 {
		v := arma11{phi: math.Tanh(x[0]), theta: math.Tanh(x[1])}.css(d)
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}

	start := []float64{0.1, 0.1}
	best := start
	result, _ := optimize.Minimize(
		optimize.Problem{Func: objective},
		start,
		&optimize.Settings{FuncEvaluations: 1000},
		&optimize.NelderMead{},
	)
	if result != nil && len(result.X) == len(start) && !floats.HasNaN(result.X) && result.F <= objective(start) {
		best = result.X
	}

	model := arma11{phi: math.Tanh(best[0]), theta: math.Tanh(best[1])}
	e := model.residuals(d)
	sigma2 := floats.Dot(e[1:], e[1:]) / float64(len(d)-1)

	steps := make([]Step, horizon)
	level := y[len(y)-1]
	prevDiff := d[len(d)-1]
	prevErr := e[len(e)-1]

	psi := 1.0    // ARMA psi weight at lag j
	cumPsi := 0.0 // psi weight of the integrated process
	variance := 0.0
	for k := 0; k < horizon; k++ {
		var next float64
		if k == 0 {
			next = model.phi*prevDiff + model.theta*prevErr
		} else {
			next = model.phi * prevDiff
		}
		level += next
		prevDiff = next

		switch k {
		case 0:
			psi = 1
		case 1:
			psi = model.phi + model.theta
		default:
			psi *= model.phi
		}
		cumPsi += psi
		variance += cumPsi * cumPsi

		half := z95 * math.Sqrt(sigma2*variance)
		steps[k] = Step{Point: level, Lower: level - half, Upper: level + half}
	}

	return checkSteps(steps, horizon).WithParameters(map[string]float64{
		"p":      1,
		"d":      1,
		"q":      1,
		"ar_l1":  model.phi,
		"ma_l1":  model.theta,
		"sigma2": sigma2,
	})
}
