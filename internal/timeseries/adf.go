package timeseries

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ADFResult is the outcome of an augmented Dickey-Fuller test with a constant term.
type ADFResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	UsedLag   int     `json:"used_lag"`
	NObs      int     `json:"nobs"`
}

var errTooShort = errors.New("series too short")

// ADF regresses Δy_t on a constant, y_{t-1} and p lagged differences, choosing p in
// [0, maxlag] by AIC over a common sample, then refits on the full sample for that lag.
// The p-value uses MacKinnon's (1994) response surface for one variable with a constant.
func ADF(y []float64) (ADFResult, error) {
	n := len(y)
	if n < 8 {
		return ADFResult{}, errTooShort
	}

	maxlag := int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	if limit := n/2 - 2; maxlag > limit {
		maxlag = limit
	}
	if maxlag < 0 {
		return ADFResult{}, errTooShort
	}

	dy := Diff(y)

	bestLag, bestAIC := 0, math.Inf(1)
	for lag := 0; lag <= maxlag; lag++ {
		fit, err := adfRegression(y, dy, lag, maxlag)
		if err != nil {
			continue
		}
		if fit.aic < bestAIC {
			bestLag, bestAIC = lag, fit.aic
		}
	}
	if math.IsInf(bestAIC, 1) {
		return ADFResult{}, errors.New("no lag order could be fitted")
	}

	fit, err := adfRegression(y, dy, bestLag, bestLag)
	if err != nil {
		return ADFResult{}, fmt.Errorf("failed to refit at lag %d: %w", bestLag, err)
	}

	return ADFResult{
		Statistic: fit.tstat,
		PValue:    mackinnonPValue(fit.tstat),
		UsedLag:   bestLag,
		NObs:      fit.nobs,
	}, nil
}

type olsFit struct {
	tstat float64
	aic   float64
	nobs  int
}

// adfRegression fits the test regression with `lag` augmenting terms over the sample that
// starts after `start` lags, so every lag order in a search shares the same rows.
func adfRegression(y, dy []float64, lag, start int) (olsFit, error) {
	rows := len(dy) - start
	cols := 2 + lag
	if rows <= cols+1 {
		return olsFit{}, errTooShort
	}

	x := mat.NewDense(rows, cols, nil)
	target := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := start + r // index into dy
		target.SetVec(r, dy[t])
		x.Set(r, 0, 1)
		x.Set(r, 1, y[t])
		for j := 1; j <= lag; j++ {
			x.Set(r, 1+j, dy[t-j])
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, target); err != nil {
		return olsFit{}, fmt.Errorf("failed to solve regression: %w", err)
	}

	var fitted, resid mat.VecDense
	fitted.MulVec(x, &beta)
	resid.SubVec(target, &fitted)
	ssr := mat.Dot(&resid, &resid)
	dof := float64(rows - cols)
	if ssr <= 0 || dof <= 0 {
		return olsFit{}, errors.New("degenerate regression")
	}

	var xtx, inv mat.Dense
	xtx.Mul(x.T(), x)
	if err := inv.Inverse(&xtx); err != nil {
		return olsFit{}, fmt.Errorf("singular design matrix: %w", err)
	}
	se := math.Sqrt(ssr / dof * inv.At(1, 1))
	if se == 0 || math.IsNaN(se) {
		return olsFit{}, errors.New("zero standard error")
	}

	nobs := float64(rows)
	llf := -nobs / 2 * (math.Log(2*math.Pi) + math.Log(ssr/nobs) + 1)

	return olsFit{
		tstat: beta.AtVec(1) / se,
		aic:   -2*llf + 2*float64(cols),
		nobs:  rows,
	}, nil
}

// MacKinnon response-surface coefficients for a regression with a constant and one variable.
var (
	tauMax    = 2.74
	tauMin    = -18.83
	tauStar   = -1.61
	tauSmallP = []float64{2.1659, 1.4412, 0.038269}
	tauLargeP = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

func mackinnonPValue(stat float64) float64 {
	switch {
	case stat > tauMax:
		return 1
	case stat < tauMin:
		return 0
	}
	coef := tauLargeP
	if stat <= tauStar {
		coef = tauSmallP
	}
	z := 0.0
	for i := len(coef) - 1; i >= 0; i-- {
		z = z*stat + coef[i]
	}
	return distuv.UnitNormal.CDF(z)
}
