// Package stress turns a stream of emotion distributions into a bounded,
// smoothly evolving stress level.
package stress

import (
	"fmt"

	"stresscam/internal/affect"
	"stresscam/internal/emotion"
)

const (
	MinLevel = 0.0
	MaxLevel = 100.0
)

// Config holds the accumulator rates
type Config struct {
	IncrementRate   float64 `toml:"increment_rate"`   // Weight of negative-emotion pressure
	DecrementRate   float64 `toml:"decrement_rate"`   // Weight of positive-emotion relief
	DecayRate       float64 `toml:"decay_rate"`       // Drift applied when neither signal is present
	MaxChange       float64 `toml:"max_change"`       // Largest step per update, either direction
	SmoothingFactor float64 `toml:"smoothing_factor"` // Weight of the previous smoothed level
	HighThreshold   float64 `toml:"high_threshold"`   // Smoothed level at which stress counts as high
	InitialLevel    float64 `toml:"initial_level"`
}

// DefaultConfig returns the tuned accumulator defaults
func DefaultConfig() Config {
	return Config{
		IncrementRate:   0.3,
		DecrementRate:   1.5,
		DecayRate:       0.7,
		MaxChange:       1.5,
		SmoothingFactor: 0.8,
		HighThreshold:   80,
		InitialLevel:    50,
	}
}

// Validate checks the rates are usable
func (c Config) Validate() error {
	if c.IncrementRate < 0 || c.DecrementRate < 0 || c.DecayRate < 0 {
		return fmt.Errorf("stress rates must be non-negative")
	}
	if c.MaxChange <= 0 {
		return fmt.Errorf("max_change must be positive, got %v", c.MaxChange)
	}
	if c.SmoothingFactor < 0 || c.SmoothingFactor >= 1 {
		return fmt.Errorf("smoothing_factor must be in [0,1), got %v", c.SmoothingFactor)
	}
	if c.HighThreshold < MinLevel || c.HighThreshold > MaxLevel {
		return fmt.Errorf("high_threshold must be in [0,100], got %v", c.HighThreshold)
	}
	if c.InitialLevel < MinLevel || c.InitialLevel > MaxLevel {
		return fmt.Errorf("initial_level must be in [0,100], got %v", c.InitialLevel)
	}
	return nil
}

// IsHigh reports whether a smoothed level crosses the high-stress threshold
func (c Config) IsHigh(level float64) bool {
	return level >= c.HighThreshold
}

// State is the accumulator's memory. It is owned by a single consumer loop
// and only lives as long as the process.
type State struct {
	Accumulated float64 `json:"accumulated"`
	Smoothed    float64 `json:"smoothed"`
	Updates     int     `json:"updates"`
}

// NewState starts both levels at the configured initial level
func NewState(cfg Config) State {
	return State{Accumulated: cfg.InitialLevel, Smoothed: cfg.InitialLevel}
}

// Pressure is the weighted negative-emotion signal, scaled to roughly [0,1.5]
func Pressure(d emotion.Distribution) float64 {
	d = d.Sanitize()
	return (d.Angry*1.5 + d.Fear*1.3 + d.Sad*0.8 + d.Disgust*1.0) / 100
}

// Relief is the weighted positive-emotion signal, scaled to roughly [0,2]
func Relief(d emotion.Distribution) float64 {
	d = d.Sanitize()
	return (d.Happy*2.0 + d.Neutral*0.5 + d.Surprise*0.3) / 100
}

// Delta returns the bounded change one distribution applies to the accumulated level
func Delta(cfg Config, d emotion.Distribution) float64 {
	pressure := Pressure(d)
	relief := Relief(d)

	delta := pressure*cfg.IncrementRate - relief*cfg.DecrementRate
	if pressure < 0.1 && relief < 0.1 {
		delta -= cfg.DecayRate * 0.5
	}
	return affect.Clamp(delta, -cfg.MaxChange, cfg.MaxChange)
}

// Apply folds one distribution into the state and returns the new smoothed level
func (s *State) Apply(cfg Config, d emotion.Distribution) float64 {
	s.Accumulated = affect.Clamp(s.Accumulated+Delta(cfg, d), MinLevel, MaxLevel)
	smoothed := cfg.SmoothingFactor*s.Smoothed + (1-cfg.SmoothingFactor)*s.Accumulated
	s.Smoothed = affect.Clamp(smoothed, MinLevel, MaxLevel)
	s.Updates++
	return s.Smoothed
}

// Level is a discrete stress band
type Level int

const (
	LevelCalm Level = iota
	LevelMildAlert
	LevelModerate
	LevelHigh
)

// Classify maps a stress level to its band
func Classify(level float64) Level {
	switch {
	case level < 30:
		return LevelCalm
	case level < 50:
		return LevelMildAlert
	case level < 75:
		return LevelModerate
	default:
		return LevelHigh
	}
}

func (l Level) String() string {
	switch l {
	case LevelCalm:
		return "Calm"
	case LevelMildAlert:
		return "Mild Alert"
	case LevelModerate:
		return "Moderate Stress"
	case LevelHigh:
		return "High Stress"
	default:
		return "Unknown"
	}
}

// Label returns the display label for a stress level
func Label(level float64) string {
	return Classify(level).String()
}
