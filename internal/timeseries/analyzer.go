package timeseries

import (
	"errors"
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"gonum.org/v1/gonum/stat"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

const (
	// SeasonalityThreshold is the lag autocorrelation above which a period counts as seasonal.
	SeasonalityThreshold = 0.5
	// DecompositionPeriod is the periodicity assumed when extracting the trend component.
	DecompositionPeriod = 7
	// StationarityPValue is the ADF significance level.
	StationarityPValue = 0.05
)

// CandidatePeriods are the seasonal lags tested, in days.
var CandidatePeriods = []int{7, 30, 365}

// OutcomeStatus tells "property absent" apart from "check could not run".
type OutcomeStatus string

const (
	OutcomeDetected    OutcomeStatus = "detected"
	OutcomeNotDetected OutcomeStatus = "not_detected"
	OutcomeSkipped     OutcomeStatus = "skipped"
	OutcomeFailed      OutcomeStatus = "failed"
)

// Outcome is the explicit result of one characteristic check.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Value  float64       `json:"value,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// Characteristics are statistical descriptors of a cleaned series, recomputed per run.
type Characteristics struct {
	HasSeasonality  bool               `json:"has_seasonality"`
	SeasonalPeriods []int              `json:"seasonal_periods"`
	HasTrend        bool               `json:"has_trend"`
	IsStationary    bool               `json:"is_stationary"`
	DataSize        int                `json:"data_size"`
	HasGaps         bool               `json:"has_gaps"`
	Checks          map[string]Outcome `json:"checks"`
}

// Analyze derives the characteristics of a series. A failing sub-check leaves its property
// false and records why in Checks; it never aborts the analysis.
func Analyze(series models.Series) Characteristics {
	values := series.Values()
	c := Characteristics{
		DataSize:        len(values),
		SeasonalPeriods: []int{},
		Checks:          make(map[string]Outcome),
	}

	for _, period := range CandidatePeriods {
		key := fmt.Sprintf("seasonality_%d", period)
		out := guard(func() Outcome { return seasonalityAt(values, period) })
		c.Checks[key] = out
		if out.Status == OutcomeDetected {
			c.HasSeasonality = true
			c.SeasonalPeriods = append(c.SeasonalPeriods, period)
		}
	}

	c.Checks["trend"] = guard(func() Outcome { return trendPresence(values) })
	c.HasTrend = c.Checks["trend"].Status == OutcomeDetected

	c.Checks["stationarity"] = guard(func() Outcome { return stationarity(values) })
	c.IsStationary = c.Checks["stationarity"].Status == OutcomeDetected

	if ts := series.Timestamps(); len(ts) > 1 {
		c.HasGaps = MaxGap(ts) > ModalPeriod(ts)
	}

	return c
}

func guard(check func() Outcome) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Status: OutcomeFailed, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return check()
}

func seasonalityAt(values []float64, period int) Outcome {
	if len(values) < 2*period {
		return Outcome{Status: OutcomeSkipped, Reason: fmt.Sprintf("needs %d points", 2*period)}
	}
	acf := Autocorrelation(values, period)
	if math.IsNaN(acf) {
		return Outcome{Status: OutcomeFailed, Reason: "autocorrelation undefined for constant series"}
	}
	if acf > SeasonalityThreshold {
		return Outcome{Status: OutcomeDetected, Value: acf}
	}
	return Outcome{Status: OutcomeNotDetected, Value: acf}
}

func trendPresence(values []float64) Outcome {
	if len(values) < 2*DecompositionPeriod {
		return Outcome{Status: OutcomeSkipped, Reason: fmt.Sprintf("needs %d points", 2*DecompositionPeriod)}
	}
	component, err := TrendComponent(values, DecompositionPeriod)
	if err != nil {
		return Outcome{Status: OutcomeFailed, Reason: err.Error()}
	}
	change := math.Abs(component[len(component)-1] - component[0])
	spread := StdDev(component)
	if change > 2*spread {
		return Outcome{Status: OutcomeDetected, Value: change}
	}
	return Outcome{Status: OutcomeNotDetected, Value: change}
}

func stationarity(values []float64) Outcome {
	res, err := ADF(values)
	if err != nil {
		return Outcome{Status: OutcomeFailed, Reason: err.Error()}
	}
	if res.PValue < StationarityPValue {
		return Outcome{Status: OutcomeDetected, Value: res.PValue}
	}
	return Outcome{Status: OutcomeNotDetected, Value: res.PValue}
}

// TrendComponent extracts the trend of an additive decomposition: a centered moving average
// over one period, linearly extrapolated over the half-window it cannot cover at each edge.
// The period must be odd.
func TrendComponent(values []float64, period int) ([]float64, error) {
	if period%2 == 0 {
		return nil, errors.New("trend period must be odd")
	}
	n := len(values)
	if n < 2*period {
		return nil, errTooShort
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	trailing := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
	if len(trailing) != n-period+1 {
		return nil, fmt.Errorf("unexpected moving average length %d for %d points", len(trailing), n)
	}

	half := period / 2
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	for k, v := range trailing {
		out[k+half] = v
	}

	first, last := half, n-half-1
	extrapolate(out, first, first+period, -1)
	extrapolate(out, last-period+1, last+1, 1)
	return out, nil
}

// extrapolate fits a line to out[from:to] and fills the NaN run beyond it in direction dir.
func extrapolate(out []float64, from, to, dir int) {
	xs := make([]float64, 0, to-from)
	ys := make([]float64, 0, to-from)
	for i := from; i < to; i++ {
		xs = append(xs, float64(i))
		ys = append(ys, out[i])
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if dir < 0 {
		for i := from - 1; i >= 0; i-- {
			out[i] = alpha + beta*float64(i)
		}
		return
	}
	for i := to; i < len(out); i++ {
		out[i] = alpha + beta*float64(i)
	}
}
