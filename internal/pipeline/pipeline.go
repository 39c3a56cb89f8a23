package pipeline

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"stresscam/internal/emotion"
	"stresscam/internal/metrics"
)

// Pipeline decouples the capture loop from the classifier. The capture side
// calls Offer and Poll, neither of which blocks; a single worker goroutine
// runs the classifier and publishes into a latest-wins result slot.
type Pipeline struct {
	cfg        Config
	classifier Classifier
	frames     chan *FrameData
	results    *ResultSlot
	logger     *logrus.Entry

	strategyMu sync.Mutex
	strategy   DispatchStrategy

	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
	stopped atomic.Bool
	stopMu  sync.Mutex

	seq              atomic.Uint64
	offered          atomic.Uint64
	submitted        atomic.Uint64
	dropped          atomic.Uint64
	published        atomic.Uint64
	overwritten      atomic.Uint64
	classifierErrors atomic.Uint64
	inferenceNanos   atomic.Int64
}

// New creates a pipeline around a classifier. The worker is not started until Start.
func New(classifier Classifier, cfg Config, logger *logrus.Logger) (*Pipeline, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	cfg = cfg.withDefaults()

	strategy, err := NewStrategy(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create strategy: %w", err)
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Pipeline{
		cfg:        cfg,
		classifier: classifier,
		strategy:   strategy,
		frames:     make(chan *FrameData, FrameQueueSize),
		results:    NewResultSlot(),
		done:       make(chan struct{}),
		logger:     logger.WithField("component", "pipeline"),
	}, nil
}

// SetStrategy replaces the dispatch strategy. It is safe to call while
// frames are being offered; nil is ignored.
func (p *Pipeline) SetStrategy(strategy DispatchStrategy) {
	if strategy == nil {
		return
	}
	p.strategyMu.Lock()
	p.strategy = strategy
	p.strategyMu.Unlock()
}

func (p *Pipeline) shouldDispatch(frame *FrameData) bool {
	p.strategyMu.Lock()
	defer p.strategyMu.Unlock()
	return p.strategy.ShouldDispatch(frame)
}

func (p *Pipeline) strategyName() string {
	p.strategyMu.Lock()
	defer p.strategyMu.Unlock()
	return p.strategy.Name()
}

// Config returns the effective configuration
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Start launches the classifier worker. Calling Start twice is a no-op.
func (p *Pipeline) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	workerCtx, cancel := context.WithCancel(ctx)
	p.stopMu.Lock()
	p.cancel = cancel
	p.stopMu.Unlock()

	go p.run(workerCtx)

	p.logger.WithFields(logrus.Fields{
		"classifier": p.classifier.Name(),
		"mode":       p.strategyName(),
		"stride":     p.cfg.Stride,
		"resolution": fmt.Sprintf("%dx%d", p.cfg.AnalysisWidth, p.cfg.AnalysisHeight),
	}).Info("Classifier worker started")
}

// Offer hands a captured frame to the dispatcher. Frames not selected by the
// strategy are skipped; selected frames are downscaled and queued without
// blocking, and dropped if the queue is full.
func (p *Pipeline) Offer(img image.Image, ts time.Time) Outcome {
	seq := p.seq.Add(1)
	p.offered.Add(1)

	if p.stopped.Load() {
		p.dropped.Add(1)
		metrics.RecordFrameDropped(DropStopped)
		return Dropped
	}

	frame := &FrameData{Seq: seq, Timestamp: ts}
	if !p.shouldDispatch(frame) {
		return Skipped
	}

	frame.Image = Downscale(img, p.cfg.AnalysisWidth, p.cfg.AnalysisHeight)
	if frame.Image != nil {
		b := frame.Image.Bounds()
		frame.Width, frame.Height = b.Dx(), b.Dy()
	}

	select {
	case p.frames <- frame:
		p.submitted.Add(1)
		metrics.RecordFrameSubmitted()
		return Submitted
	default:
		p.dropped.Add(1)
		metrics.RecordFrameDropped(DropQueueFull)
		p.logger.WithField("frame_seq", seq).Debug("Frame queue full, dropping frame")
		return Dropped
	}
}

// Poll returns the most recent unconsumed result without blocking
func (p *Pipeline) Poll() (*Result, bool) {
	return p.results.Take()
}

// Stop signals the worker to exit and waits up to the join timeout.
// It returns false if the worker had to be abandoned.
func (p *Pipeline) Stop() bool {
	p.stopMu.Lock()
	first := p.stopped.CompareAndSwap(false, true)
	cancel := p.cancel
	p.stopMu.Unlock()

	if !p.started.Load() {
		return true
	}

	if first {
		if cancel != nil {
			cancel()
		}
		// Sentinel wakes a worker blocked on the frame queue
		select {
		case p.frames <- nil:
		default:
		}
	}

	timer := time.NewTimer(p.cfg.JoinTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		p.logger.Info("Classifier worker stopped")
		return true
	case <-timer.C:
		metrics.RecordWorkerAbandoned()
		p.logger.WithField("timeout", p.cfg.JoinTimeout).Warn("Classifier worker did not stop in time, abandoning it")
		return false
	}
}

// Done is closed when the worker exits
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Stats returns a snapshot of the pipeline counters
func (p *Pipeline) Stats() Stats {
	s := Stats{
		FramesOffered:    p.offered.Load(),
		FramesSubmitted:  p.submitted.Load(),
		FramesDropped:    p.dropped.Load(),
		ResultsPublished: p.published.Load(),
		ResultsOverwrote: p.overwritten.Load(),
		ClassifierErrors: p.classifierErrors.Load(),
	}
	if s.ResultsPublished > 0 {
		avg := time.Duration(p.inferenceNanos.Load() / int64(s.ResultsPublished))
		s.AvgInferenceMs = float32(avg.Microseconds()) / 1000
	}
	return s
}

// run is the worker loop
func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)

	wait := time.NewTimer(p.cfg.WaitTimeout)
	defer wait.Stop()

	for {
		wait.Reset(p.cfg.WaitTimeout)

		select {
		case <-ctx.Done():
			return
		case frame := <-p.frames:
			if frame == nil {
				return
			}
			p.process(ctx, frame)
		case <-wait.C:
			// Idle; loop to re-check for shutdown
		}
	}
}

// process runs one classification. Errors and panics stop here.
func (p *Pipeline) process(ctx context.Context, frame *FrameData) {
	defer func() {
		if r := recover(); r != nil {
			p.classifierErrors.Add(1)
			p.logger.WithField("frame_seq", frame.Seq).Errorf("Classifier panicked: %v", r)
		}
	}()

	if ctx.Err() != nil {
		return
	}

	callCtx := ctx
	if p.cfg.ClassifyTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.cfg.ClassifyTimeout)
		defer cancel()
	}

	start := time.Now()
	detections, err := p.classifier.Classify(callCtx, frame)
	elapsed := time.Since(start)
	if err != nil {
		p.classifierErrors.Add(1)
		if ctx.Err() == nil {
			p.logger.WithError(err).WithField("frame_seq", frame.Seq).Warn("Classification failed")
		}
		return
	}

	normalized := make([]emotion.Detection, 0, len(detections))
	for _, d := range detections {
		normalized = append(normalized, d.Normalize())
	}

	result := &Result{
		FrameSeq:    frame.Seq,
		CapturedAt:  frame.Timestamp,
		CompletedAt: time.Now(),
		Detections:  normalized,
		InferenceMs: float32(elapsed.Microseconds()) / 1000,
	}

	overwrote := p.results.Publish(result)
	p.published.Add(1)
	p.inferenceNanos.Add(int64(elapsed))
	if overwrote {
		p.overwritten.Add(1)
	}
	metrics.RecordResultPublished(overwrote)
}
