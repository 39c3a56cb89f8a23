package stress

import "math"

// Direction describes how the stress level moved over a window
type Direction string

const (
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
	Stable     Direction = "stable"
)

// stableBand is the half-window average difference still treated as flat
const stableBand = 5.0

// Summary aggregates a window of smoothed stress levels
type Summary struct {
	Samples   int       `json:"samples"`
	Mean      float64   `json:"mean"`
	Max       float64   `json:"max"`
	Min       float64   `json:"min"`
	Direction Direction `json:"direction"`
}

// Summarize computes mean, extremes and direction over levels (oldest first)
func Summarize(levels []float64) Summary {
	s := Summary{Samples: len(levels), Direction: Trend(levels)}
	if len(levels) == 0 {
		return s
	}

	s.Min = math.Inf(1)
	s.Max = math.Inf(-1)
	var total float64
	for _, v := range levels {
		total += v
		s.Max = math.Max(s.Max, v)
		s.Min = math.Min(s.Min, v)
	}
	s.Mean = total / float64(len(levels))
	return s
}

// Trend compares the average of the newer half of the window against the older half
func Trend(levels []float64) Direction {
	if len(levels) < 2 {
		return Stable
	}
	mid := len(levels) / 2
	diff := mean(levels[mid:]) - mean(levels[:mid])
	switch {
	case math.Abs(diff) < stableBand:
		return Stable
	case diff > 0:
		return Increasing
	default:
		return Decreasing
	}
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var total float64
	for _, v := range vs {
		total += v
	}
	return total / float64(len(vs))
}
