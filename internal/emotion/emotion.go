package emotion

import (
	"math"
	"strings"
)

// Label identifies one of the seven basic emotion categories
type Label string

const (
	Angry    Label = "angry"
	Disgust  Label = "disgust"
	Fear     Label = "fear"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Surprise Label = "surprise"
	Neutral  Label = "neutral"
)

// Labels lists the vocabulary in its canonical order (also the export column order)
var Labels = []Label{Angry, Disgust, Fear, Happy, Sad, Surprise, Neutral}

// ParseLabel maps a classifier label to the vocabulary, case-insensitively
func ParseLabel(s string) (Label, bool) {
	l := Label(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Labels {
		if l == known {
			return l, true
		}
	}
	return "", false
}

// Distribution holds a non-negative score per label. Scores are raw classifier
// output: roughly percentages, but not guaranteed to sum to 100.
type Distribution struct {
	Angry    float64 `json:"angry"`
	Disgust  float64 `json:"disgust"`
	Fear     float64 `json:"fear"`
	Happy    float64 `json:"happy"`
	Sad      float64 `json:"sad"`
	Surprise float64 `json:"surprise"`
	Neutral  float64 `json:"neutral"`
}

// MaxScore caps a single label score so weighted sums stay finite
const MaxScore = 1e6

// SanitizeScore maps NaN, infinities and negatives to 0 and caps at MaxScore
func SanitizeScore(v float64) float64 {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0) || v < 0:
		return 0
	case v > MaxScore:
		return MaxScore
	}
	return v
}

// FromMap builds a distribution from a label->score map. Unknown keys are
// ignored and scores are sanitised with SanitizeScore.
func FromMap(m map[string]float64) Distribution {
	var d Distribution
	for k, v := range m {
		l, ok := ParseLabel(k)
		if !ok {
			continue
		}
		d.set(l, SanitizeScore(v))
	}
	return d
}

// Sanitize applies SanitizeScore to every label
func (d Distribution) Sanitize() Distribution {
	var out Distribution
	for _, l := range Labels {
		out.set(l, SanitizeScore(d.Get(l)))
	}
	return out
}

// Get returns the score for a label (0 for unknown labels)
func (d Distribution) Get(l Label) float64 {
	switch l {
	case Angry:
		return d.Angry
	case Disgust:
		return d.Disgust
	case Fear:
		return d.Fear
	case Happy:
		return d.Happy
	case Sad:
		return d.Sad
	case Surprise:
		return d.Surprise
	case Neutral:
		return d.Neutral
	}
	return 0
}

func (d *Distribution) set(l Label, v float64) {
	switch l {
	case Angry:
		d.Angry = v
	case Disgust:
		d.Disgust = v
	case Fear:
		d.Fear = v
	case Happy:
		d.Happy = v
	case Sad:
		d.Sad = v
	case Surprise:
		d.Surprise = v
	case Neutral:
		d.Neutral = v
	}
}

// Values returns the scores in Labels order
func (d Distribution) Values() []float64 {
	out := make([]float64, len(Labels))
	for i, l := range Labels {
		out[i] = d.Get(l)
	}
	return out
}

// Map returns the scores keyed by label name
func (d Distribution) Map() map[string]float64 {
	out := make(map[string]float64, len(Labels))
	for _, l := range Labels {
		out[string(l)] = d.Get(l)
	}
	return out
}

// Total is the sum of all scores
func (d Distribution) Total() float64 {
	return d.Angry + d.Disgust + d.Fear + d.Happy + d.Sad + d.Surprise + d.Neutral
}

// IsZero reports whether the distribution carries no emotion signal at all
func (d Distribution) IsZero() bool {
	return d.Total() <= 0
}

// Dominant returns the highest-scoring label and its score.
// Ties resolve in Labels order; an all-zero distribution is neutral.
func (d Distribution) Dominant() (Label, float64) {
	if d.IsZero() {
		return Neutral, 0
	}
	best, bestScore := Labels[0], d.Get(Labels[0])
	for _, l := range Labels[1:] {
		if v := d.Get(l); v > bestScore {
			best, bestScore = l, v
		}
	}
	return best, bestScore
}

// Region is a face bounding box in analysis-frame pixel coordinates
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Empty means no face is localised
func (r Region) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Detection is one classified face from a single analysed frame
type Detection struct {
	Region   Region       `json:"region"`
	Dominant Label        `json:"dominant_emotion"`
	Emotions Distribution `json:"emotion"`
	Age      *float64     `json:"age,omitempty"` // Estimated age, nil when the classifier gave none
}

// Confidence returns the dominant label's raw score
func (d Detection) Confidence() float64 {
	if d.Dominant == "" {
		_, score := d.Emotions.Dominant()
		return score
	}
	return d.Emotions.Get(d.Dominant)
}

// Normalize fills the dominant label from the distribution when the
// classifier omitted it or reported a label outside the vocabulary
func (d Detection) Normalize() Detection {
	if d.Age != nil && (*d.Age <= 0 || math.IsNaN(*d.Age) || math.IsInf(*d.Age, 0)) {
		d.Age = nil
	}
	d.Emotions = d.Emotions.Sanitize()
	if l, ok := ParseLabel(string(d.Dominant)); ok {
		d.Dominant = l
		return d
	}
	d.Dominant, _ = d.Emotions.Dominant()
	return d
}
