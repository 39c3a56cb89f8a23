package affect

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"stresscam/internal/emotion"
)

func TestMapZeroTotal(t *testing.T) {
	assert.Equal(t, Point{Valence: 0, Arousal: 0.5}, Map(emotion.Distribution{}))
}

func TestMapHappyNeutral(t *testing.T) {
	p := Map(emotion.Distribution{Happy: 80, Neutral: 20})
	assert.InDelta(t, 0.8, p.Valence, 1e-9)
	assert.InDelta(t, 0.6, p.Arousal, 1e-9)
}

func TestMapIsScaleInvariant(t *testing.T) {
	a := Map(emotion.Distribution{Angry: 30, Fear: 10, Sad: 5})
	b := Map(emotion.Distribution{Angry: 60, Fear: 20, Sad: 10})
	assert.InDelta(t, a.Valence, b.Valence, 1e-9)
	assert.InDelta(t, a.Arousal, b.Arousal, 1e-9)
}

func TestMapBounds(t *testing.T) {
	cases := []emotion.Distribution{
		{Angry: 100},
		{Happy: 100},
		{Neutral: 100},
		{Disgust: 1e9, Surprise: 1e-9},
		{Fear: 0.0001},
	}
	for _, d := range cases {
		p := Map(d)
		assert.GreaterOrEqual(t, p.Valence, -1.0)
		assert.LessOrEqual(t, p.Valence, 1.0)
		assert.GreaterOrEqual(t, p.Arousal, 0.0)
		assert.LessOrEqual(t, p.Arousal, 1.0)
	}

	angry := Map(emotion.Distribution{Angry: 100})
	assert.InDelta(t, -1.0, angry.Valence, 1e-9)
	assert.InDelta(t, 0.95, angry.Arousal, 1e-9)
}

func TestSnapshotStress(t *testing.T) {
	tests := []struct {
		name string
		d    emotion.Distribution
		want float64
	}{
		{"happy clamps to zero", emotion.Distribution{Happy: 100}, 0},
		{"angry clamps to hundred", emotion.Distribution{Angry: 100}, 100},
		{"empty sits at midpoint", emotion.Distribution{}, 50},
		{"mixed", emotion.Distribution{Sad: 20, Neutral: 40}, 50 + 8 - 6},
		// positive 80*2 + 20*0.5 = 170 -> 50 - 51 = -1 -> clamped
		{"mostly happy", emotion.Distribution{Happy: 80, Neutral: 20}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SnapshotStress(tt.d), 1e-9)
		})
	}
}

func TestDeterministic(t *testing.T) {
	d := emotion.Distribution{Angry: 12.5, Fear: 3.25, Happy: 40, Neutral: 44.25}
	assert.Equal(t, Map(d), Map(d))
	assert.Equal(t, SnapshotStress(d), SnapshotStress(d))
}

func TestClampNaN(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(math.NaN(), 0, 100))
	assert.Equal(t, -1.0, Clamp(math.NaN(), -1, 1))
	assert.Equal(t, 100.0, Clamp(math.Inf(1), 0, 100))
	assert.Equal(t, 0.0, Clamp(math.Inf(-1), 0, 100))
}

func TestScoresBoundedOnExtremeInput(t *testing.T) {
	inf, nan := math.Inf(1), math.NaN()
	cases := map[string]emotion.Distribution{
		"huge":     {Angry: 1e308, Fear: 1e308, Happy: 1e308},
		"infinite": {Angry: inf, Happy: inf, Neutral: inf},
		"nan":      {Sad: nan, Fear: 40},
		"all nan":  {Angry: nan, Disgust: nan, Fear: nan, Happy: nan, Sad: nan, Surprise: nan, Neutral: nan},
		"negative": {Angry: -inf, Happy: 30},
		"from map": emotion.FromMap(map[string]float64{"angry": 1e308, "fear": 1e308, "happy": 1e308}),
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			s := SnapshotStress(d)
			assert.False(t, math.IsNaN(s))
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 100.0)

			p := Map(d)
			assert.False(t, math.IsNaN(p.Valence) || math.IsNaN(p.Arousal))
			assert.GreaterOrEqual(t, p.Valence, -1.0)
			assert.LessOrEqual(t, p.Valence, 1.0)
			assert.GreaterOrEqual(t, p.Arousal, 0.0)
			assert.LessOrEqual(t, p.Arousal, 1.0)
		})
	}

	assert.Equal(t, Neutral, Map(cases["all nan"]))
}
