package forecast

import (
	"fmt"
	"math"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

// z95 is the two-sided 95% normal quantile.
const z95 = 1.959963984540054

// Step is one forecast horizon step with its interval.
type Step struct {
	Point float64 `json:"point"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Result is either a full horizon of steps or the reason none could be produced.
// Parameters carries whatever the strategy fitted, for storage on the model config.
type Result struct {
	Steps      []Step
	Reason     string
	Parameters map[string]float64
}

// Ok wraps a successful forecast.
func Ok(steps []Step) Result { return Result{Steps: steps} }

// Unavailable records why a strategy could not fit.
func Unavailable(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// WithParameters attaches fitted parameters to an available result.
func (r Result) WithParameters(params map[string]float64) Result {
	if r.Available() {
		r.Parameters = params
	}
	return r
}

// Available reports whether the result carries steps.
func (r Result) Available() bool { return r.Reason == "" && len(r.Steps) > 0 }

// Points returns the point forecasts only.
func (r Result) Points() []float64 {
	out := make([]float64, len(r.Steps))
	for i, s := range r.Steps {
		out[i] = s.Point
	}
	return out
}

// Strategy forecasts horizon steps past the end of a regular series.
type Strategy interface {
	Forecast(series models.Series, horizon int) Result
}

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc func(series models.Series, horizon int) Result

func (f StrategyFunc) Forecast(series models.Series, horizon int) Result { return f(series, horizon) }

// checkSteps rejects a fit whose output is not usable downstream.
func checkSteps(steps []Step, horizon int) Result {
	if len(steps) != horizon {
		return Unavailable("produced %d steps, want %d", len(steps), horizon)
	}
	for i, s := range steps {
		if math.IsNaN(s.Point) || math.IsInf(s.Point, 0) ||
			math.IsNaN(s.Lower) || math.IsInf(s.Lower, 0) ||
			math.IsNaN(s.Upper) || math.IsInf(s.Upper, 0) {
			return Unavailable("non-finite value at step %d", i)
		}
	}
	return Ok(steps)
}
