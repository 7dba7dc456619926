package timeseries

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

const (
	// OutlierThreshold is the absolute z-score above which a point is replaced.
	OutlierThreshold = 3.0
	// OutlierWindow is the centered rolling-median window used for replacement.
	OutlierWindow = 7
	// maxOutlierPasses bounds the rescoring loop in replaceOutliers.
	maxOutlierPasses = 10
)

// Cleaning step names, in execution order.
const (
	StepOrderDates    = "order_dates"
	StepMissingValues = "missing_values"
	StepDuplicates    = "duplicates"
	StepOutliers      = "outliers"
	StepFrequency     = "frequency"
	StepNonNegative   = "non_negative"
)

// CleaningAction describes one step that fired, or one that was skipped because it failed.
type CleaningAction struct {
	Step   string `json:"step"`
	Detail string `json:"detail"`
	Err    string `json:"error,omitempty"`
}

// CleaningLog lists the actions taken by Clean in order.
type CleaningLog []CleaningAction

// Fired reports whether the named step changed the series.
func (l CleaningLog) Fired(step string) bool {
	for _, a := range l {
		if a.Step == step && a.Err == "" {
			return true
		}
	}
	return false
}

var errAllMissing = errors.New("series has no known values")

// step returns the repaired series and a detail message; an empty detail means the step was a no-op.
type step func(models.Series) (models.Series, string, error)

// Clean repairs a series using the checks that failed in report. Steps run once in a fixed
// order. A step that fails is skipped and the series from the prior step is carried forward.
func Clean(series models.Series, report ValidationReport) (models.Series, CleaningLog) {
	current := series.Clone()
	var log CleaningLog

	pipeline := []struct {
		name    string
		enabled bool
		run     step
	}{
		{StepOrderDates, report.Failed(CheckValidDates), orderDates},
		{StepMissingValues, true, fillMissing},
		{StepDuplicates, report.Failed(CheckNoDuplicates), dropDuplicates},
		{StepOutliers, true, replaceOutliers},
		{StepFrequency, report.Failed(CheckConsistentFrequency), normalizeFrequency},
		{StepNonNegative, true, clampNegative},
	}

	for _, s := range pipeline {
		if !s.enabled {
			continue
		}
		next, detail, err := runStep(s.run, current)
		if err != nil {
			log = append(log, CleaningAction{Step: s.name, Detail: "skipped", Err: err.Error()})
			continue
		}
		current = next
		if detail != "" {
			log = append(log, CleaningAction{Step: s.name, Detail: detail})
		}
	}

	return current, log
}

func runStep(fn step, in models.Series) (out models.Series, detail string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, detail, err = in, "", fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(in.Clone())
}

// orderDates drops unset timestamps and sorts the remainder.
func orderDates(s models.Series) (models.Series, string, error) {
	kept := s.Points[:0]
	dropped := 0
	for _, p := range s.Points {
		if p.Timestamp.IsZero() {
			dropped++
			continue
		}
		kept = append(kept, p)
	}
	s.Points = kept
	s = s.Sorted()
	return s, fmt.Sprintf("sorted %d points, dropped %d without a date", len(kept), dropped), nil
}

// fillMissing interpolates interior gaps by elapsed time, then back-fills the head and
// forward-fills the tail.
func fillMissing(s models.Series) (models.Series, string, error) {
	pts := s.Points
	known := make([]int, 0, len(pts))
	for i, p := range pts {
		if finite(p.Value) {
			known = append(known, i)
		}
	}
	if len(known) == len(pts) {
		return s, "", nil
	}
	if len(known) == 0 {
		return s, "", errAllMissing
	}

	filled := 0
	for k := 0; k+1 < len(known); k++ {
		a, b := known[k], known[k+1]
		if b-a < 2 {
			continue
		}
		ta, tb := pts[a].Timestamp, pts[b].Timestamp
		va, vb := pts[a].Value, pts[b].Value
		span := tb.Sub(ta)
		for i := a + 1; i < b; i++ {
			if span <= 0 {
				pts[i].Value = va
			} else {
				frac := float64(pts[i].Timestamp.Sub(ta)) / float64(span)
				pts[i].Value = va + (vb-va)*frac
			}
			filled++
		}
	}
	for i := 0; i < known[0]; i++ {
		pts[i].Value = pts[known[0]].Value
		filled++
	}
	last := known[len(known)-1]
	for i := last + 1; i < len(pts); i++ {
		pts[i].Value = pts[last].Value
		filled++
	}

	return s, fmt.Sprintf("filled %d missing values", filled), nil
}

// dropDuplicates keeps the first point seen for every timestamp.
func dropDuplicates(s models.Series) (models.Series, string, error) {
	seen := make(map[int64]struct{}, len(s.Points))
	kept := make([]models.Point, 0, len(s.Points))
	for _, p := range s.Points {
		key := p.Timestamp.UnixNano()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, p)
	}
	removed := len(s.Points) - len(kept)
	s.Points = kept
	if removed == 0 {
		return s, "", nil
	}
	return s, fmt.Sprintf("removed %d duplicate dates", removed), nil
}

// replaceOutliers swaps points with |z| above OutlierThreshold for the centered rolling median.
// A large outlier inflates the standard deviation and can hide a smaller one, so the series is
// rescored after every pass until nothing changes.
func replaceOutliers(s models.Series) (models.Series, string, error) {
	if len(s.Points) < 2 {
		return s, "", nil
	}

	replaced := 0
	for pass := 0; pass < maxOutlierPasses; pass++ {
		n := replaceOutliersOnce(s)
		if n == 0 {
			break
		}
		replaced += n
	}
	if replaced == 0 {
		return s, "", nil
	}
	return s, fmt.Sprintf("replaced %d outliers", replaced), nil
}

// replaceOutliersOnce scores the series once and returns how many values it changed.
func replaceOutliersOnce(s models.Series) int {
	values := s.Values()
	mean, sd := Mean(values), StdDev(values)
	if !finite(mean) || !finite(sd) || sd == 0 {
		return 0
	}

	medians := RollingMedian(values, OutlierWindow)
	changed := 0
	for i, v := range values {
		if math.Abs((v-mean)/sd) <= OutlierThreshold {
			continue
		}
		if finite(medians[i]) && medians[i] != v {
			s.Points[i].Value = medians[i]
			changed++
		}
	}
	return changed
}

// normalizeFrequency reindexes onto a regular grid at the modal period between the first and
// last timestamp, then interpolates the points it introduced. Points off the grid are dropped.
func normalizeFrequency(s models.Series) (models.Series, string, error) {
	if len(s.Points) < 2 {
		return s, "", nil
	}
	period := ModalPeriod(s.Timestamps())
	if period <= 0 {
		return s, "", errors.New("cannot infer sampling period")
	}

	byTime := make(map[int64]float64, len(s.Points))
	for _, p := range s.Points {
		if _, ok := byTime[p.Timestamp.UnixNano()]; !ok {
			byTime[p.Timestamp.UnixNano()] = p.Value
		}
	}

	start, end := s.First(), s.Last()
	grid := make([]models.Point, 0, int(end.Sub(start)/period)+1)
	for t := start; !t.After(end); t = t.Add(period) {
		v, ok := byTime[t.UnixNano()]
		if !ok {
			v = math.NaN()
		}
		grid = append(grid, models.Point{Timestamp: t, Value: v})
	}

	before := len(s.Points)
	s.Points = grid
	s, _, err := fillMissing(s)
	if err != nil {
		return s, "", err
	}
	return s, fmt.Sprintf("reindexed %d points onto %d at %s", before, len(grid), period), nil
}

func clampNegative(s models.Series) (models.Series, string, error) {
	clamped := 0
	for i := range s.Points {
		if s.Points[i].Value < 0 {
			s.Points[i].Value = 0
			clamped++
		}
	}
	if clamped == 0 {
		return s, "", nil
	}
	return s, fmt.Sprintf("replaced %d negative values with 0", clamped), nil
}

// FillDaily reindexes a series onto a complete daily grid, treating absent days as zero sales.
// This differs from Clean's interpolation: an unmeasured day here means nothing was sold.
func FillDaily(s models.Series) models.Series {
	if len(s.Points) == 0 {
		return s.Clone()
	}
	sorted := s.Sorted()
	byDay := make(map[time.Time]float64, len(sorted.Points))
	for _, p := range sorted.Points {
		day := models.Day(p.Timestamp)
		if _, ok := byDay[day]; !ok {
			byDay[day] = p.Value
		}
	}
	start, end := models.Day(sorted.First()), models.Day(sorted.Last())
	out := models.Series{Scope: s.Scope}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out.Points = append(out.Points, models.Point{Timestamp: d, Value: byDay[d]})
	}
	return out
}
