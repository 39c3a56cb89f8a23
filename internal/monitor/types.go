package monitor

import (
	"time"

	"stresscam/internal/emotion"
	"stresscam/internal/pipeline"
	"stresscam/internal/stress"
)

// Update is the affect snapshot published after each processed classifier result
type Update struct {
	SessionID      string               `json:"session_id"`
	FrameSeq       uint64               `json:"frame_seq"`
	Timestamp      time.Time            `json:"timestamp"`
	FaceDetected   bool                 `json:"face_detected"`
	Faces          int                  `json:"faces"`
	Region         emotion.Region       `json:"region"`
	Dominant       emotion.Label        `json:"dominant_emotion"`
	Confidence     float64              `json:"confidence"`
	Age            *float64             `json:"age,omitempty"`
	Emotions       emotion.Distribution `json:"emotions"`
	Valence        float64              `json:"valence"`
	Arousal        float64              `json:"arousal"`
	StressLevel    float64              `json:"stress_level"`
	Accumulated    float64              `json:"stress_accumulated"`
	StressStatus   string               `json:"stress_status"`
	HighStress     bool                 `json:"high_stress"`
	TrendScore     float64              `json:"trend_score"`
	SnapshotStress float64              `json:"snapshot_stress"`
	InferenceMs    float32              `json:"inference_ms"`
}

// Summary describes the session so far
type Summary struct {
	SessionID         string         `json:"session_id"`
	StartedAt         time.Time      `json:"started_at"`
	Duration          float64        `json:"duration_seconds"`
	Stress            stress.Summary `json:"stress"`
	CurrentLevel      float64        `json:"current_level"`
	CurrentStatus     string         `json:"current_status"`
	RecordsLogged     int            `json:"records_logged"`
	FramesCaptured    uint64         `json:"frames_captured"`
	ResultsProcessed  uint64         `json:"results_processed"`
	FaceResults       uint64         `json:"face_results"`
	FaceDetectedRatio float64        `json:"face_detected_ratio"`
	Pipeline          pipeline.Stats `json:"pipeline"`
	Alerts            []Alert        `json:"alerts"`
}
