// Package trend smooths recent sensor series and extracts their drift per day.
package trend

import (
	"time"

	"pumpguard/internal/model"
)

const (
	DefaultAlpha   = 0.25
	MinSlopePoints = 5

	degenerateVariance = 1e-12
	secondsPerDay      = 86400.0
)

// EWMA returns the exponentially weighted moving average of values, oldest first.
func EWMA(values []float64, alpha float64) []float64 {
	if len(values) == 0 {
		return []float64{}
	}
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// SlopePerDay is the least-squares slope of values against days elapsed since times[0].
// It returns 0 for fewer than MinSlopePoints points, mismatched inputs or a degenerate time axis.
func SlopePerDay(times []time.Time, values []float64) float64 {
	n := len(values)
	if n < MinSlopePoints || len(times) != n {
		return 0
	}
	t0 := times[0]
	xs := make([]float64, n)
	xMean, yMean := 0.0, 0.0
	for i := range values {
		xs[i] = times[i].Sub(t0).Seconds() / secondsPerDay
		xMean += xs[i]
		yMean += values[i]
	}
	xMean /= float64(n)
	yMean /= float64(n)

	num, den := 0.0, 0.0
	for i := range values {
		dx := xs[i] - xMean
		num += dx * (values[i] - yMean)
		den += dx * dx
	}
	if den <= degenerateVariance {
		return 0
	}
	return num / den
}

// Series is one sensor's values extracted from a reading window.
type Series struct {
	Times  []time.Time
	Values []float64
}

func (s Series) Len() int { return len(s.Values) }

// Extract collects the rows that carry exactly key and a timestamp, preserving order.
func Extract(rows []model.Reading, key model.SensorKey) Series {
	var s Series
	for _, r := range rows {
		if r.Timestamp.IsZero() {
			continue
		}
		v := r.Values.Lookup(key)
		if v == nil {
			continue
		}
		s.Times = append(s.Times, r.Timestamp)
		s.Values = append(s.Values, *v)
	}
	return s
}

// Fit is a smoothed series and its slope.
type Fit struct {
	Smoothed   []float64
	RatePerDay float64
}

func (f Fit) Last() *float64 {
	if len(f.Smoothed) == 0 {
		return nil
	}
	v := f.Smoothed[len(f.Smoothed)-1]
	return &v
}

// FitSeries smooths s and computes its slope. ok is false when s has fewer than minPoints values.
func FitSeries(s Series, alpha float64, minPoints int) (Fit, bool) {
	if s.Len() < minPoints || s.Len() == 0 {
		return Fit{}, false
	}
	sm := EWMA(s.Values, alpha)
	return Fit{Smoothed: sm, RatePerDay: SlopePerDay(s.Times, sm)}, true
}
