package pipeline

import (
	"image"
	"time"

	"stresscam/internal/emotion"
)

// DispatchMode defines which captured frames are sent for classification
type DispatchMode string

const (
	// DispatchModeStride - every Nth captured frame
	DispatchModeStride DispatchMode = "stride"
	// DispatchModeInterval - at most one frame per interval
	DispatchModeInterval DispatchMode = "interval"
)

const (
	// FrameQueueSize bounds frames waiting for the worker; extra frames are dropped
	FrameQueueSize = 2
	// ResultQueueSize is the latest-wins result slot capacity
	ResultQueueSize = 1

	DefaultStride         = 10
	DefaultAnalysisWidth  = 640
	DefaultAnalysisHeight = 480
	DefaultWaitTimeout    = time.Second
	DefaultJoinTimeout    = 2 * time.Second
)

// Drop reasons reported to metrics
const (
	DropQueueFull = "queue_full"
	DropStopped   = "stopped"
)

// FrameData represents a frame selected for analysis
type FrameData struct {
	Seq       uint64      // Capture sequence number
	Timestamp time.Time   // Capture timestamp
	Image     image.Image // Downscaled analysis frame
	Width     int
	Height    int
}

// Result is the classifier's output for one analysed frame.
// An empty Detections slice means no face was found.
type Result struct {
	FrameSeq    uint64              `json:"frame_seq"`
	CapturedAt  time.Time           `json:"captured_at"`
	CompletedAt time.Time           `json:"completed_at"`
	Detections  []emotion.Detection `json:"detections"`
	InferenceMs float32             `json:"inference_ms"`
}

// Primary returns the first detection, which is the one that drives affect state
func (r *Result) Primary() (emotion.Detection, bool) {
	if r == nil || len(r.Detections) == 0 {
		return emotion.Detection{}, false
	}
	return r.Detections[0], true
}

// Outcome reports what Offer did with a captured frame
type Outcome int

const (
	Skipped   Outcome = iota // Not selected by the dispatch strategy
	Submitted                // Queued for the worker
	Dropped                  // Selected but the frame queue was full or the pipeline stopped
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Submitted:
		return "submitted"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Config controls dispatch and worker timing
type Config struct {
	Mode            DispatchMode
	Stride          int           // For stride mode
	Interval        time.Duration // For interval mode
	AnalysisWidth   int
	AnalysisHeight  int
	WaitTimeout     time.Duration // Worker wait for a frame before re-checking for shutdown
	JoinTimeout     time.Duration // How long Stop waits for the worker
	ClassifyTimeout time.Duration // Per-call classifier deadline, 0 for none
}

// DefaultConfig returns the standard dispatch settings
func DefaultConfig() Config {
	return Config{
		Mode:           DispatchModeStride,
		Stride:         DefaultStride,
		AnalysisWidth:  DefaultAnalysisWidth,
		AnalysisHeight: DefaultAnalysisHeight,
		WaitTimeout:    DefaultWaitTimeout,
		JoinTimeout:    DefaultJoinTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.Stride <= 0 {
		c.Stride = d.Stride
	}
	if c.AnalysisWidth <= 0 || c.AnalysisHeight <= 0 {
		c.AnalysisWidth, c.AnalysisHeight = d.AnalysisWidth, d.AnalysisHeight
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = d.WaitTimeout
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = d.JoinTimeout
	}
	return c
}

// Stats contains pipeline counters
type Stats struct {
	FramesOffered    uint64  `json:"frames_offered"`
	FramesSubmitted  uint64  `json:"frames_submitted"`
	FramesDropped    uint64  `json:"frames_dropped"`
	ResultsPublished uint64  `json:"results_published"`
	ResultsOverwrote uint64  `json:"results_overwritten"`
	ClassifierErrors uint64  `json:"classifier_errors"`
	AvgInferenceMs   float32 `json:"avg_inference_ms"`
}
