package forecast

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

const (
	yearlyOrder  = 10
	weeklyOrder  = 3
	yearDays     = 365.25
	weekDays     = 7.0
	seasonRidge  = 1.0
	prophetWidth = z95
)

// additiveModel is a linear trend plus yearly and weekly Fourier seasonality, fitted on
// targets scaled by their largest magnitude. Trend changepoints are not modelled.
type additiveModel struct {
	start  time.Time
	span   float64 // days between first and last observation
	scale  float64 // max |y|
	coef   *mat.VecDense
	sigma  float64 // residual std on the scaled target
	nTrain int
}

func daysSinceEpoch(t time.Time) float64 {
	return float64(t.Unix()) / 86400
}

// row fills the design row for timestamp t: intercept, scaled time, then sin/cos pairs.
func (m *additiveModel) row(t time.Time, dst []float64) {
	dst[0] = 1
	dst[1] = t.Sub(m.start).Hours() / 24 / m.span
	col := 2
	abs := daysSinceEpoch(t)
	for k := 1; k <= yearlyOrder; k++ {
		x := 2 * math.Pi * float64(k) * abs / yearDays
		dst[col], dst[col+1] = math.Sin(x), math.Cos(x)
		col += 2
	}
	for k := 1; k <= weeklyOrder; k++ {
		x := 2 * math.Pi * float64(k) * abs / weekDays
		dst[col], dst[col+1] = math.Sin(x), math.Cos(x)
		col += 2
	}
}

func designWidth() int { return 2 + 2*yearlyOrder + 2*weeklyOrder }

// fitAdditive solves the ridge-regularized normal equations. Only seasonal columns are
// penalized, so a short history still yields a trend fit.
func fitAdditive(ts []time.Time, y []float64) (*additiveModel, error) {
	n, p := len(y), designWidth()
	m := &additiveModel{start: ts[0], nTrain: n}
	m.span = ts[n-1].Sub(ts[0]).Hours() / 24
	if m.span <= 0 {
		m.span = 1
	}
	m.scale = math.Max(math.Abs(floats.Max(y)), math.Abs(floats.Min(y)))
	if m.scale == 0 {
		m.scale = 1
	}

	x := mat.NewDense(n, p, nil)
	target := mat.NewVecDense(n, nil)
	rowBuf := make([]float64, p)
	for i := range y {
		m.row(ts[i], rowBuf)
		x.SetRow(i, rowBuf)
		target.SetVec(i, y[i]/m.scale)
	}

	var a mat.Dense
	a.Mul(x.T(), x)
	for j := 2; j < p; j++ {
		a.Set(j, j, a.At(j, j)+seasonRidge)
	}
	var b mat.VecDense
	b.MulVec(x.T(), target)

	m.coef = mat.NewVecDense(p, nil)
	if err := m.coef.SolveVec(&a, &b); err != nil {
		return nil, err
	}

	var fitted, resid mat.VecDense
	fitted.MulVec(x, m.coef)
	resid.SubVec(target, &fitted)
	m.sigma = math.Sqrt(mat.Dot(&resid, &resid) / float64(n))
	return m, nil
}

func (m *additiveModel) predict(t time.Time) float64 {
	rowBuf := make([]float64, m.coef.Len())
	m.row(t, rowBuf)
	return floats.Dot(rowBuf, m.coef.RawVector().Data) * m.scale
}

// SeasonalDecompositionForecast fits an additive trend with yearly and weekly seasonality on
// (timestamp, value) pairs and evaluates it over the days following the last observation.
// The interval is 95% wide and widens with distance from the training window.
func SeasonalDecompositionForecast(series models.Series, horizon int) Result {
	if series.Len() < MinimumPoints {
		return Unavailable("seasonal decomposition needs %d points", MinimumPoints)
	}
	model, err := fitAdditive(series.Timestamps(), series.Values())
	if err != nil {
		return Unavailable("seasonal decomposition fit failed: %v", err)
	}

	last := series.Last()
	steps := make([]Step, horizon)
	for k := 1; k <= horizon; k++ {
		point := model.predict(last.AddDate(0, 0, k))
		half := prophetWidth * model.sigma * model.scale * math.Sqrt(1+float64(k)/float64(model.nTrain))
		steps[k-1] = Step{Point: point, Lower: point - half, Upper: point + half}
	}

	return checkSteps(steps, horizon).WithParameters(map[string]float64{
		"yearly_order":  yearlyOrder,
		"weekly_order":  weeklyOrder,
		"interval":      0.95,
		"trend_per_day": model.coef.AtVec(1) * model.scale / model.span,
	})
}
