package models

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Scope identifies one independent sales series: a product stocked in a warehouse.
type Scope struct {
	ProductID   int64 `json:"product_id" db:"product_id"`
	WarehouseID int64 `json:"warehouse_id" db:"warehouse_id"`
}

// String renders the scope as "product/warehouse" for logs and cache keys.
func (s Scope) String() string {
	return fmt.Sprintf("%d/%d", s.ProductID, s.WarehouseID)
}

// Point is a single observation. A missing value is represented as NaN.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// IsMissing reports whether the point carries no usable value.
func (p Point) IsMissing() bool {
	return math.IsNaN(p.Value)
}

// Series is an ordered sequence of points for one scope.
type Series struct {
	Scope  Scope   `json:"scope"`
	Points []Point `json:"points"`
}

// NewSeries builds a series from parallel timestamp and value slices.
func NewSeries(scope Scope, timestamps []time.Time, values []float64) Series {
	n := len(timestamps)
	if len(values) < n {
		n = len(values)
	}
	points := make([]Point, n)
	for i := 0; i < n; i++ {
		points[i] = Point{Timestamp: timestamps[i], Value: values[i]}
	}
	return Series{Scope: scope, Points: points}
}

// Len returns the number of points.
func (s Series) Len() int {
	return len(s.Points)
}

// Values returns a copy of the point values in order.
func (s Series) Values() []float64 {
	values := make([]float64, len(s.Points))
	for i, p := range s.Points {
		values[i] = p.Value
	}
	return values
}

// Timestamps returns a copy of the point timestamps in order.
func (s Series) Timestamps() []time.Time {
	ts := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		ts[i] = p.Timestamp
	}
	return ts
}

// Clone returns a deep copy so callers can repair a series without touching the input.
func (s Series) Clone() Series {
	points := make([]Point, len(s.Points))
	copy(points, s.Points)
	return Series{Scope: s.Scope, Points: points}
}

// Slice returns the sub-series [from, to).
func (s Series) Slice(from, to int) Series {
	points := make([]Point, to-from)
	copy(points, s.Points[from:to])
	return Series{Scope: s.Scope, Points: points}
}

// Sorted returns a copy ordered by timestamp. Equal timestamps keep their input order.
func (s Series) Sorted() Series {
	out := s.Clone()
	sort.SliceStable(out.Points, func(i, j int) bool {
		return out.Points[i].Timestamp.Before(out.Points[j].Timestamp)
	})
	return out
}

// First returns the earliest timestamp, or the zero time for an empty series.
func (s Series) First() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[0].Timestamp
}

// Last returns the latest timestamp, or the zero time for an empty series.
func (s Series) Last() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Timestamp
}

// Equal reports whether two series hold the same points. NaN values compare equal to each other.
func (s Series) Equal(other Series) bool {
	if s.Scope != other.Scope || len(s.Points) != len(other.Points) {
		return false
	}
	for i := range s.Points {
		a, b := s.Points[i], other.Points[i]
		if !a.Timestamp.Equal(b.Timestamp) {
			return false
		}
		if a.IsMissing() && b.IsMissing() {
			continue
		}
		if a.Value != b.Value {
			return false
		}
	}
	return true
}

// Day truncates t to midnight UTC, the grid every sales series is sampled on.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
