package ws

import (
	"time"

	"stresscam/internal/monitor"
)

const (
	TypeAffect  = "affect"
	TypeSummary = "summary"
)

// AffectMessage carries one live affect update
type AffectMessage struct {
	Type   string          `json:"type"` // "affect"
	Update *monitor.Update `json:"update"`
}

// SummaryMessage carries the session summary, sent on connect and periodically
type SummaryMessage struct {
	Type      string          `json:"type"` // "summary"
	Timestamp time.Time       `json:"timestamp"`
	Summary   monitor.Summary `json:"summary"`
}

// NewAffectMessage wraps an update
func NewAffectMessage(update *monitor.Update) *AffectMessage {
	return &AffectMessage{Type: TypeAffect, Update: update}
}

// NewSummaryMessage wraps a summary
func NewSummaryMessage(summary monitor.Summary) *SummaryMessage {
	return &SummaryMessage{Type: TypeSummary, Timestamp: time.Now(), Summary: summary}
}
