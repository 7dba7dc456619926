// Package timeseries validates, repairs and characterizes daily sales series
// before they reach the forecasting strategies.
package timeseries

import (
	"time"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

// MinimumRecords is the shortest history forecasting will accept.
const MinimumRecords = 30

// Validation check names.
const (
	CheckMinimumRecords      = "has_minimum_records"
	CheckValidDates          = "has_valid_dates"
	CheckValidValues         = "has_valid_values"
	CheckConsistentFrequency = "has_consistent_frequency"
	CheckNoDuplicates        = "has_no_duplicates"
)

// ValidationReport records the outcome of every check for one raw series.
type ValidationReport struct {
	Checks map[string]bool `json:"checks"`
	Passed bool            `json:"passed"`
}

// Failed reports whether the named check ran and did not pass.
func (r ValidationReport) Failed(check string) bool {
	ok, ran := r.Checks[check]
	return ran && !ok
}

// FailedChecks returns the names of the checks that did not pass, in a stable order.
func (r ValidationReport) FailedChecks() []string {
	var failed []string
	for _, name := range checkOrder {
		if r.Failed(name) {
			failed = append(failed, name)
		}
	}
	return failed
}

var checkOrder = []string{
	CheckMinimumRecords,
	CheckValidDates,
	CheckValidValues,
	CheckConsistentFrequency,
	CheckNoDuplicates,
}

// Validate runs every structural check against the series. It never mutates the input.
func Validate(series models.Series) ValidationReport {
	checks := map[string]bool{
		CheckMinimumRecords:      len(series.Points) >= MinimumRecords,
		CheckValidDates:          validDates(series.Points),
		CheckValidValues:         validValues(series.Points),
		CheckConsistentFrequency: consistentFrequency(series.Points),
		CheckNoDuplicates:        noDuplicates(series.Points),
	}

	passed := true
	for _, ok := range checks {
		passed = passed && ok
	}

	return ValidationReport{Checks: checks, Passed: passed}
}

// validDates requires every timestamp to be set and the sequence to be in ascending order.
func validDates(points []models.Point) bool {
	for i, p := range points {
		if p.Timestamp.IsZero() {
			return false
		}
		if i > 0 && p.Timestamp.Before(points[i-1].Timestamp) {
			return false
		}
	}
	return true
}

func validValues(points []models.Point) bool {
	for _, p := range points {
		if !finite(p.Value) {
			return false
		}
	}
	return true
}

// consistentFrequency requires exactly one distinct gap between consecutive samples.
func consistentFrequency(points []models.Point) bool {
	gaps := make(map[time.Duration]struct{})
	for i := 1; i < len(points); i++ {
		gaps[points[i].Timestamp.Sub(points[i-1].Timestamp)] = struct{}{}
	}
	return len(gaps) == 1
}

func noDuplicates(points []models.Point) bool {
	seen := make(map[int64]struct{}, len(points))
	for _, p := range points {
		key := p.Timestamp.UnixNano()
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
	}
	return true
}
