package timeseries

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean, or NaN for an empty slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// StdDev returns the sample (n-1) standard deviation, or NaN when n < 2.
func StdDev(x []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.StdDev(x, nil)
}

// PopStdDev returns the population standard deviation, or 0 for an empty slice.
func PopStdDev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.PopStdDev(x, nil)
}

// Median returns the median; an even count averages the two middle values.
func Median(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Autocorrelation returns the Pearson correlation between x and x shifted by lag.
// It is NaN when either side has no variance.
func Autocorrelation(x []float64, lag int) float64 {
	if lag <= 0 || lag >= len(x)-1 {
		return math.NaN()
	}
	return stat.Correlation(x[:len(x)-lag], x[lag:], nil)
}

// Diff returns the first differences of x.
func Diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	floats.SubTo(out, x[1:], x[:len(x)-1])
	return out
}

// RollingMedian returns the centered rolling median with the given window and a minimum of one sample.
func RollingMedian(x []float64, window int) []float64 {
	out := make([]float64, len(x))
	half := window / 2
	for i := range x {
		lo := i - half
		hi := i + (window - half)
		if lo < 0 {
			lo = 0
		}
		if hi > len(x) {
			hi = len(x)
		}
		buf := make([]float64, 0, hi-lo)
		for _, v := range x[lo:hi] {
			if !math.IsNaN(v) {
				buf = append(buf, v)
			}
		}
		if len(buf) == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = Median(buf)
	}
	return out
}

// ModalPeriod returns the most frequent positive gap between consecutive timestamps.
// Ties resolve to the shorter gap. It is zero when no positive gap exists.
func ModalPeriod(ts []time.Time) time.Duration {
	counts := make(map[time.Duration]int)
	for i := 1; i < len(ts); i++ {
		if gap := ts[i].Sub(ts[i-1]); gap > 0 {
			counts[gap]++
		}
	}
	var best time.Duration
	bestCount := 0
	for gap, c := range counts {
		if c > bestCount || (c == bestCount && gap < best) {
			best, bestCount = gap, c
		}
	}
	return best
}

// MaxGap returns the largest gap between consecutive timestamps.
func MaxGap(ts []time.Time) time.Duration {
	var maxGap time.Duration
	for i := 1; i < len(ts); i++ {
		if gap := ts[i].Sub(ts[i-1]); gap > maxGap {
			maxGap = gap
		}
	}
	return maxGap
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
