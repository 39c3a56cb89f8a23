package monitor

import (
	"stresscam/internal/stress"
)

// AlertKind is the severity of an advisory
type AlertKind string

const (
	AlertWarning AlertKind = "warning"
	AlertInfo    AlertKind = "info"
	AlertSuccess AlertKind = "success"
)

// Alert is an advisory derived from the recent stress and valence windows
type Alert struct {
	ID      string    `json:"id"`
	Kind    AlertKind `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
}

const (
	sustainedStressLevel  = 70.0
	risingStressLevel     = 50.0
	improvingStressLevel  = 40.0
	breathingStressLevel  = 60.0
	negativeValenceCutoff = -0.3
	negativeValenceRatio  = 0.7
	minValenceSamples     = 10
	minFocusSamples       = 20
	focusRatio            = 0.6
)

// EvaluateAlerts derives advisories from recent smoothed stress levels and
// valence/arousal samples, all oldest first
func EvaluateAlerts(levels, valences, arousals []float64) []Alert {
	summary := stress.Summarize(levels)
	alerts := []Alert{}

	if summary.Samples > 0 && summary.Mean > sustainedStressLevel {
		alerts = append(alerts, Alert{
			ID:      "high-stress",
			Kind:    AlertWarning,
			Title:   "High stress level",
			Message: "Average stress over the recent window is high. Consider a short break or a few deep breaths.",
		})
	}

	if summary.Direction == stress.Increasing && summary.Mean > risingStressLevel {
		alerts = append(alerts, Alert{
			ID:      "stress-increasing",
			Kind:    AlertWarning,
			Title:   "Stress rising",
			Message: "Stress is trending upward.",
		})
	}

	if len(valences) > minValenceSamples {
		negative := 0
		for _, v := range valences {
			if v < negativeValenceCutoff {
				negative++
			}
		}
		if float64(negative)/float64(len(valences)) > negativeValenceRatio {
			alerts = append(alerts, Alert{
				ID:      "prolonged-negative",
				Kind:    AlertWarning,
				Title:   "Prolonged negative emotions",
				Message: "Negative emotions have dominated the recent window.",
			})
		}
	}

	if summary.Direction == stress.Decreasing && summary.Samples > 0 && summary.Mean < improvingStressLevel {
		alerts = append(alerts, Alert{
			ID:      "doing-well",
			Kind:    AlertSuccess,
			Title:   "Stress easing",
			Message: "Stress is trending downward.",
		})
	}

	if summary.Mean > breathingStressLevel {
		alerts = append(alerts, Alert{
			ID:      "breathing-exercise",
			Kind:    AlertInfo,
			Title:   "Breathing exercise",
			Message: "Try 4-7-8 breathing: inhale for 4 seconds, hold for 7, exhale for 8. Repeat 4 times.",
		})
	}

	if len(valences) > minFocusSamples && len(valences) == len(arousals) {
		focused := 0
		for i := range valences {
			if arousals[i] > 0.5 && valences[i] > 0 {
				focused++
			}
		}
		if float64(focused)/float64(len(valences)) > focusRatio {
			alerts = append(alerts, Alert{
				ID:      "good-focus",
				Kind:    AlertSuccess,
				Title:   "Good focus",
				Message: "Recent affect is positive and engaged.",
			})
		}
	}

	return alerts
}
