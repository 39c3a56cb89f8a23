package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// StrideStrategy dispatches every Nth captured frame, counting from 1,
// so frames N, 2N, 3N... are selected
type StrideStrategy struct {
	stride int
	count  uint64
	mu     sync.Mutex
}

// NewStrideStrategy creates a stride strategy; stride <= 0 uses the default
func NewStrideStrategy(stride int) *StrideStrategy {
	if stride <= 0 {
		stride = DefaultStride
	}
	return &StrideStrategy{stride: stride}
}

func (s *StrideStrategy) Name() string {
	return string(DispatchModeStride)
}

func (s *StrideStrategy) ShouldDispatch(frame *FrameData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	return s.count%uint64(s.stride) == 0
}

func (s *StrideStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
}

// IntervalStrategy dispatches at most one frame per interval
type IntervalStrategy struct {
	interval     time.Duration
	lastDispatch time.Time
	now          func() time.Time
	mu           sync.Mutex
}

// NewIntervalStrategy creates an interval strategy
func NewIntervalStrategy(interval time.Duration) *IntervalStrategy {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &IntervalStrategy{
		interval: interval,
		now:      time.Now,
	}
}

func (s *IntervalStrategy) Name() string {
	return string(DispatchModeInterval)
}

func (s *IntervalStrategy) ShouldDispatch(frame *FrameData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if frame != nil && !frame.Timestamp.IsZero() {
		now = frame.Timestamp
	}
	if now.Sub(s.lastDispatch) < s.interval {
		return false
	}
	s.lastDispatch = now
	return true
}

func (s *IntervalStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDispatch = time.Time{}
}

// NewStrategy creates a dispatch strategy from the pipeline configuration
func NewStrategy(cfg Config) (DispatchStrategy, error) {
	switch cfg.Mode {
	case DispatchModeStride, "":
		return NewStrideStrategy(cfg.Stride), nil
	case DispatchModeInterval:
		return NewIntervalStrategy(cfg.Interval), nil
	default:
		return nil, fmt.Errorf("unknown dispatch mode: %s", cfg.Mode)
	}
}
