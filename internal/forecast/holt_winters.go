package forecast

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

// SeasonLength is the weekly season used by the Holt-Winters strategy.
const SeasonLength = 7

// holtWinters is an additive trend, additive seasonal exponential smoothing model.
type holtWinters struct {
	alpha, beta, gamma float64
	m                  int

	level, trend float64
	season       []float64 // last m seasonal indices, oldest first
	sse          float64
	n            int
}

// initialState derives starting level, trend and seasonal indices from the first two seasons.
func initialState(y []float64, m int) (level, trend float64, season []float64) {
	first := floats.Sum(y[:m]) / float64(m)
	second := floats.Sum(y[m:2*m]) / float64(m)
	level = first
	trend = (second - first) / float64(m)
	season = make([]float64, m)
	for i := 0; i < m; i++ {
		season[i] = y[i] - first
	}
	return level, trend, season
}

// fit runs the smoothing recursions over y with fixed parameters and records the
// one-step-ahead SSE.
func (hw *holtWinters) fit(y []float64) {
	level, trend, season := initialState(y, hw.m)
	sse := 0.0
	for t, obs := range y {
		s := season[t%hw.m]
		pred := level + trend + s
		e := obs - pred
		sse += e * e

		prevLevel := level
		level = hw.alpha*(obs-s) + (1-hw.alpha)*(level+trend)
		trend = hw.beta*(level-prevLevel) + (1-hw.beta)*trend
		season[t%hw.m] = hw.gamma*(obs-level) + (1-hw.gamma)*s
	}

	// rotate so season[0] is the index for the first step after the sample
	rotated := make([]float64, hw.m)
	for i := range rotated {
		rotated[i] = season[(len(y)+i)%hw.m]
	}
	hw.level, hw.trend, hw.season = level, trend, rotated
	hw.sse = sse
	hw.n = len(y)
}

// forecast returns h steps with 95% prediction intervals from the state-space form of
// the model, whose variance grows with the horizon.
func (hw *holtWinters) forecast(h int) []Step {
	sigma2 := hw.sse / float64(hw.n)
	steps := make([]Step, h)
	cum := 0.0
	for k := 1; k <= h; k++ {
		if k > 1 {
			j := k - 1
			c := hw.alpha * (1 + float64(j)*hw.beta)
			if j%hw.m == 0 {
				c += (1 - hw.alpha) * hw.gamma
			}
			cum += c * c
		}
		point := hw.level + float64(k)*hw.trend + hw.season[(k-1)%hw.m]
		half := z95 * math.Sqrt(sigma2*(1+cum))
		steps[k-1] = Step{Point: point, Lower: point - half, Upper: point + half}
	}
	return steps
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func logit(p float64) float64 { return math.Log(p / (1 - p)) }

// HoltWintersForecast fits additive Holt-Winters with a weekly season, choosing the smoothing
// parameters that minimize in-sample SSE.
func HoltWintersForecast(series models.Series, horizon int) Result {
	y := series.Values()
	if len(y) < 2*SeasonLength {
		return Unavailable("holt-winters needs %d points, got %d", 2*SeasonLength, len(y))
	}

	objective := func(x []float64) float64 {
		hw := holtWinters{alpha: sigmoid(x[0]), beta: sigmoid(x[1]), gamma: sigmoid(x[2]), m: SeasonLength}
		hw.fit(y)
		if math.IsNaN(hw.sse) {
			return math.Inf(1)
		}
		return hw.sse
	}

	start := []float64{logit(0.3), logit(0.05), logit(0.1)}
	best := start
	// A hit evaluation limit still returns the best simplex vertex found.
	result, _ := optimize.Minimize(
		optimize.Problem{Func: objective},
		start,
		&optimize.Settings{FuncEvaluations: 2000},
		&optimize.NelderMead{},
	)
	if result != nil && len(result.X) == len(start) && !floats.HasNaN(result.X) && result.F <= objective(start) {
		best = result.X
	}

	hw := holtWinters{alpha: sigmoid(best[0]), beta: sigmoid(best[1]), gamma: sigmoid(best[2]), m: SeasonLength}
	hw.fit(y)

	return checkSteps(hw.forecast(horizon), horizon).WithParameters(map[string]float64{
		"alpha":           hw.alpha,
		"beta":            hw.beta,
		"gamma":           hw.gamma,
		"seasonal_period": float64(SeasonLength),
	})
}
