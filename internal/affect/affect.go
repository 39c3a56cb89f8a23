// Package affect maps emotion distributions onto the valence/arousal plane
// and computes the per-frame snapshot stress score.
package affect

import (
	"math"

	"stresscam/internal/emotion"
)

// Point is a position on the circumplex: valence in [-1,1], arousal in [0,1]
type Point struct {
	Valence float64 `json:"valence"`
	Arousal float64 `json:"arousal"`
}

// Neutral is returned for distributions with no signal
var Neutral = Point{Valence: 0, Arousal: 0.5}

var valenceWeights = map[emotion.Label]float64{
	emotion.Happy:    1.0,
	emotion.Neutral:  0.0,
	emotion.Surprise: 0.2,
	emotion.Sad:      -0.7,
	emotion.Angry:    -1.0,
	emotion.Fear:     -0.8,
	emotion.Disgust:  -0.9,
}

var arousalWeights = map[emotion.Label]float64{
	emotion.Angry:    0.95,
	emotion.Fear:     0.90,
	emotion.Surprise: 0.75,
	emotion.Happy:    0.70,
	emotion.Disgust:  0.45,
	emotion.Sad:      0.30,
	emotion.Neutral:  0.20,
}

// Map normalises the distribution by its total and returns the weighted
// valence and arousal
func Map(d emotion.Distribution) Point {
	d = d.Sanitize()
	total := d.Total()
	if total <= 0 {
		return Neutral
	}

	var valence, arousal float64
	for _, l := range emotion.Labels {
		p := d.Get(l) / total
		valence += p * valenceWeights[l]
		arousal += p * arousalWeights[l]
	}

	return Point{
		Valence: Clamp(valence, -1, 1),
		Arousal: Clamp(arousal, 0, 1),
	}
}

// SnapshotStress scores a single distribution on raw values, without history
func SnapshotStress(d emotion.Distribution) float64 {
	d = d.Sanitize()
	negative := d.Angry*1.5 + d.Fear*1.3 + d.Sad*0.8 + d.Disgust*1.0
	positive := d.Happy*2.0 + d.Neutral*0.5
	return Clamp(50+negative*0.5-positive*0.3, 0, 100)
}

// Clamp bounds v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
