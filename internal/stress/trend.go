package stress

import (
	"math"

	"stresscam/internal/affect"
	"stresscam/internal/emotion"
)

const (
	variabilityWindow = 5
	trendWindow       = 3
)

// TrendScore is a stateless multi-factor stress estimate combining the
// current distribution with recent history (oldest first). It weighs
// negative emotions, a deficit of positive ones, how often the dominant
// emotion flips, and whether negative emotions are rising.
func TrendScore(current emotion.Distribution, history []emotion.Distribution) float64 {
	current = current.Sanitize()
	negative := current.Angry*1.5 + current.Fear*1.3 + current.Sad*0.8 + current.Disgust*1.0
	score := (negative / 4) * 0.4

	positive := current.Happy + current.Neutral*0.5
	score += math.Max(0, 50-positive) * 0.4

	if len(history) >= variabilityWindow {
		recent := history[len(history)-variabilityWindow:]
		changes := 0
		prev, _ := recent[0].Dominant()
		for _, d := range recent[1:] {
			cur, _ := d.Dominant()
			if cur != prev {
				changes++
			}
			prev = cur
		}
		variability := float64(changes) / float64(variabilityWindow-1) * 100
		score += variability * 0.2
	}

	if len(history) >= trendWindow {
		recent := history[len(history)-trendWindow:]
		trend := negativeSum(recent[len(recent)-1]) - negativeSum(recent[0])
		if trend > 0 {
			score += math.Min(trend, 50) * 0.2
		}
	}

	return affect.Clamp(score, MinLevel, MaxLevel)
}

func negativeSum(d emotion.Distribution) float64 {
	d = d.Sanitize()
	return d.Angry + d.Fear + d.Sad
}
