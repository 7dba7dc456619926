// Package forecast holds the fixed menu of forecasting strategies and the registry that
// dispatches to them.
package forecast

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Algorithm identifies one strategy on the menu.
type Algorithm string

const (
	MovingAverage         Algorithm = "moving_average"
	ExponentialSmoothing  Algorithm = "exponential_smoothing"
	ARIMA                 Algorithm = "arima"
	SeasonalDecomposition Algorithm = "seasonal_decomposition"
)

// DefaultAlgorithm is used when selection cannot decide.
const DefaultAlgorithm = ExponentialSmoothing

// All returns the menu in a stable order.
func All() []Algorithm {
	return []Algorithm{MovingAverage, ExponentialSmoothing, ARIMA, SeasonalDecomposition}
}

var aliases = map[string]Algorithm{
	"moving_average":         MovingAverage,
	"moving_avg":             MovingAverage,
	"exponential_smoothing":  ExponentialSmoothing,
	"exp_smoothing":          ExponentialSmoothing,
	"holt_winters":           ExponentialSmoothing,
	"arima":                  ARIMA,
	"seasonal_decomposition": SeasonalDecomposition,
	"prophet":                SeasonalDecomposition,
}

// ParseAlgorithm accepts canonical names and the short names stored by older clients.
func ParseAlgorithm(name string) (Algorithm, error) {
	a, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown algorithm %q", name)
	}
	return a, nil
}

func (a Algorithm) String() string { return string(a) }

// DisplayName renders the algorithm for alert text, e.g. "Exponential Smoothing".
func (a Algorithm) DisplayName() string {
	if a == ARIMA {
		return "ARIMA"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(a), "_", " "))
}
