package pipeline

import (
	"context"

	"stresscam/internal/emotion"
)

// Classifier is the external emotion model. Implementations wrap the HTTP
// and gRPC classifier services.
type Classifier interface {
	// Name returns the transport identifier (e.g., "http", "grpc")
	Name() string

	// Classify returns one detection per face found in the frame.
	// No face is an empty slice, not an error.
	Classify(ctx context.Context, frame *FrameData) ([]emotion.Detection, error)
}

// HealthChecker is implemented by classifiers that can report service health
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
	IsHealthy() bool
}

// DispatchStrategy decides which captured frames are submitted
type DispatchStrategy interface {
	// Name returns the strategy identifier
	Name() string

	// ShouldDispatch determines if this frame should be sent for classification
	ShouldDispatch(frame *FrameData) bool

	// Reset clears internal state
	Reset()
}
