// Package selection chooses the forecasting algorithm for a series by forward-chaining
// cross-validation over a candidate subset of the menu.
package selection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/fahad0samara/commerce-forecast-go/internal/forecast"
	"github.com/fahad0samara/commerce-forecast-go/internal/metrics"
	"github.com/fahad0samara/commerce-forecast-go/internal/models"
	"github.com/fahad0samara/commerce-forecast-go/internal/timeseries"
	"github.com/fahad0samara/commerce-forecast-go/internal/utils"
)

// State is a step of the selection state machine.
type State string

const (
	StateValidating          State = "validating"
	StateCleaning            State = "cleaning"
	StateCharacterizing      State = "characterizing"
	StateCandidateGeneration State = "candidate_generation"
	StateCrossValidating     State = "cross_validating"
	StateScoring             State = "scoring"
	StateSelected            State = "selected"
	StateFailed              State = "failed"
)

const (
	// MaxFolds caps the number of cross-validation folds.
	MaxFolds = 5
	// MinTestWindow is the shortest test window a fold may have.
	MinTestWindow = 30
	// ShortSeries is the length below which moving_average is always a candidate.
	ShortSeries = 90
)

// Composite score weights.
const (
	weightMAPE      = 0.4
	weightRMSE      = 0.4
	weightStability = 0.2
)

// EvaluationScore summarizes one candidate's cross-validation.
type EvaluationScore struct {
	Algorithm  forecast.Algorithm `json:"algorithm"`
	MAPE       float64            `json:"mape"`
	RMSE       float64            `json:"rmse"`
	MAPEStdDev float64            `json:"mape_std"`
	RMSEStdDev float64            `json:"rmse_std"`
	Folds      int                `json:"folds"`
	Composite  float64            `json:"composite"`
}

// Result is the final state of one selection run. When State is StateFailed only Err and
// whatever diagnostics were gathered before the failure are set; Algorithm and Score are
// always zero.
type Result struct {
	State           State                       `json:"state"`
	Algorithm       forecast.Algorithm          `json:"algorithm,omitempty"`
	Score           EvaluationScore             `json:"score"`
	Report          timeseries.ValidationReport `json:"validation"`
	CleaningLog     timeseries.CleaningLog      `json:"cleaning_log,omitempty"`
	Characteristics timeseries.Characteristics  `json:"characteristics"`
	Candidates      []forecast.Algorithm        `json:"candidates,omitempty"`
	Scores          []EvaluationScore           `json:"scores,omitempty"`
	Err             error                       `json:"-"`
}

// Selected reports whether the run reached StateSelected.
func (r Result) Selected() bool { return r.State == StateSelected }

// Selector runs the selection state machine. It holds no per-run state and is safe for
// concurrent use.
type Selector struct {
	registry    *forecast.Registry
	logger      *logrus.Logger
	concurrency int
}

// NewSelector creates a selector over the given strategy registry.
func NewSelector(registry *forecast.Registry, logger *logrus.Logger) *Selector {
	return &Selector{
		registry:    registry,
		logger:      logger,
		concurrency: runtime.NumCPU(),
	}
}

// WithConcurrency bounds the number of fold fits running at once.
func (s *Selector) WithConcurrency(n int) *Selector {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// Select validates, cleans and characterizes the series, then cross-validates the candidate
// algorithms and returns the one with the lowest composite score. Any error or panic
// moves the run to StateFailed.
func (s *Selector) Select(ctx context.Context, series models.Series) (result Result) {
	ctx, span := otel.Tracer("selection").Start(ctx, "selection.select")
	span.SetAttributes(attribute.String("scope", series.Scope.String()), attribute.Int("points", series.Len()))
	defer span.End()

	var run Result
	state := StateValidating

	fail := func(err error) Result {
		failed := Result{
			State:           StateFailed,
			Report:          run.Report,
			CleaningLog:     run.CleaningLog,
			Characteristics: run.Characteristics,
			Err:             err,
		}
		s.logger.WithFields(logrus.Fields{
			"scope": series.Scope.String(),
			"state": string(state),
		}).WithError(err).Warn("Model selection failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return failed
	}

	defer func() {
		if r := recover(); r != nil {
			result = fail(fmt.Errorf("panic in %s: %v", state, r))
		}
		metrics.SelectionOutcomesTotal.WithLabelValues(string(result.State), string(result.Algorithm)).Inc()
	}()

	run.Report = timeseries.Validate(series)
	if !run.Report.Passed {
		return fail(utils.NewForecastError(utils.ValidationFailed, series.Scope.String(), string(state),
			fmt.Errorf("failed checks %v", run.Report.FailedChecks())))
	}

	state = StateCleaning
	cleaned, cleaningLog := timeseries.Clean(series, run.Report)
	run.CleaningLog = cleaningLog

	state = StateCharacterizing
	run.Characteristics = timeseries.Analyze(cleaned)

	state = StateCandidateGeneration
	run.Candidates = Candidates(run.Characteristics)

	state = StateCrossValidating
	folds, err := Folds(cleaned.Len())
	if err != nil {
		return fail(utils.NewForecastError(utils.InsufficientData, series.Scope.String(), string(state), err))
	}
	evaluations, err := s.crossValidate(ctx, cleaned, run.Candidates, folds)
	if err != nil {
		return fail(err)
	}

	state = StateScoring
	run.Scores = Score(evaluations)
	if len(run.Scores) == 0 {
		return fail(utils.NewForecastError(utils.AlgorithmUnavailable, series.Scope.String(), string(state),
			errors.New("no candidate produced a forecast on any fold")))
	}

	best := run.Scores[0]
	for _, sc := range run.Scores[1:] {
		if sc.Composite < best.Composite {
			best = sc
		}
	}

	state = StateSelected
	run.State = StateSelected
	run.Algorithm = best.Algorithm
	run.Score = best

	span.SetAttributes(attribute.String("algorithm", string(best.Algorithm)))
	s.logger.WithFields(logrus.Fields{
		"scope":     series.Scope.String(),
		"algorithm": string(best.Algorithm),
		"composite": best.Composite,
		"mape":      best.MAPE,
	}).Debug("Model selected")

	return run
}

// Candidates maps characteristics to the algorithms worth evaluating. When no rule fires
// the whole menu is returned.
func Candidates(c timeseries.Characteristics) []forecast.Algorithm {
	picked := make(map[forecast.Algorithm]bool)
	if c.HasSeasonality {
		picked[forecast.SeasonalDecomposition] = true
	}
	if c.IsStationary {
		picked[forecast.ARIMA] = true
	}
	if c.HasTrend || c.HasSeasonality {
		picked[forecast.ExponentialSmoothing] = true
	}
	if c.DataSize < ShortSeries {
		picked[forecast.MovingAverage] = true
	}
	if len(picked) == 0 {
		return forecast.All()
	}

	out := make([]forecast.Algorithm, 0, len(picked))
	for _, a := range forecast.All() {
		if picked[a] {
			out = append(out, a)
		}
	}
	return out
}

// Fold is one forward-chaining split: train on [0, TrainEnd), test on [TrainEnd, TestEnd).
type Fold struct {
	TrainEnd int
	TestEnd  int
}

// Folds splits n points into up to MaxFolds expanding-window folds of equal test size, each
// test window at least MinTestWindow long and the last one ending at n.
func Folds(n int) ([]Fold, error) {
	k := n/MinTestWindow - 1
	if k > MaxFolds {
		k = MaxFolds
	}
	if k < 1 {
		return nil, fmt.Errorf("need at least %d points for one fold, got %d", 2*MinTestWindow, n)
	}
	test := n / (k + 1)
	folds := make([]Fold, k)
	for i := 0; i < k; i++ {
		trainEnd := n - (k-i)*test
		folds[i] = Fold{TrainEnd: trainEnd, TestEnd: trainEnd + test}
	}
	return folds, nil
}

// Evaluation holds the per-fold errors of one candidate; failed folds are omitted.
type Evaluation struct {
	Algorithm forecast.Algorithm
	MAPE      []float64
	RMSE      []float64
}

type foldOutcome struct {
	mape, rmse float64
	ok         bool
}

func (s *Selector) crossValidate(ctx context.Context, series models.Series, candidates []forecast.Algorithm, folds []Fold) ([]Evaluation, error) {
	outcomes := make([][]foldOutcome, len(candidates))
	for i := range outcomes {
		outcomes[i] = make([]foldOutcome, len(folds))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for ci, algorithm := range candidates {
		for fi, fold := range folds {
			ci, fi, algorithm, fold := ci, fi, algorithm, fold
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				train := series.Slice(0, fold.TrainEnd)
				actual := series.Slice(fold.TrainEnd, fold.TestEnd).Values()
				res := s.registry.Run(algorithm, train, len(actual))
				if !res.Available() {
					s.logger.WithFields(logrus.Fields{
						"scope":     series.Scope.String(),
						"algorithm": string(algorithm),
						"fold":      fi,
					}).Debugf("Fold skipped: %s", res.Reason)
					return nil
				}
				predicted := res.Points()
				outcomes[ci][fi] = foldOutcome{
					mape: forecast.MAPE(actual, predicted),
					rmse: forecast.RMSE(actual, predicted),
					ok:   true,
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cross-validation interrupted: %w", err)
	}

	evaluations := make([]Evaluation, 0, len(candidates))
	for ci, algorithm := range candidates {
		ev := Evaluation{Algorithm: algorithm}
		for _, o := range outcomes[ci] {
			if o.ok && finite(o.mape) && finite(o.rmse) {
				ev.MAPE = append(ev.MAPE, o.mape)
				ev.RMSE = append(ev.RMSE, o.rmse)
			}
		}
		evaluations = append(evaluations, ev)
	}
	return evaluations, nil
}

// Score aggregates each candidate's folds and computes its composite score. Candidates with
// no successful fold are dropped. Lower composite is better.
func Score(evaluations []Evaluation) []EvaluationScore {
	scores := make([]EvaluationScore, 0, len(evaluations))
	for _, ev := range evaluations {
		if len(ev.MAPE) == 0 {
			continue
		}
		scores = append(scores, EvaluationScore{
			Algorithm:  ev.Algorithm,
			MAPE:       timeseries.Mean(ev.MAPE),
			RMSE:       timeseries.Mean(ev.RMSE),
			MAPEStdDev: timeseries.PopStdDev(ev.MAPE),
			RMSEStdDev: timeseries.PopStdDev(ev.RMSE),
			Folds:      len(ev.MAPE),
		})
	}

	maxMAPE, maxRMSE := 0.0, 0.0
	for _, sc := range scores {
		maxMAPE = math.Max(maxMAPE, sc.MAPE)
		maxRMSE = math.Max(maxRMSE, sc.RMSE)
	}
	for i := range scores {
		sc := &scores[i]
		stability := (ratio(sc.MAPEStdDev, sc.MAPE) + ratio(sc.RMSEStdDev, sc.RMSE)) / 2
		sc.Composite = weightMAPE*ratio(sc.MAPE, maxMAPE) +
			weightRMSE*ratio(sc.RMSE, maxRMSE) +
			weightStability*stability
	}
	return scores
}

// ratio is num/den, or 0 when den is zero.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
