// Package monitor runs the consumer side of the live pipeline: it reads
// frames, offers them to the classifier pipeline, and folds each classifier
// result into the session's stress state.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stresscam/internal/affect"
	"stresscam/internal/emotion"
	"stresscam/internal/history"
	"stresscam/internal/metrics"
	"stresscam/internal/pipeline"
	"stresscam/internal/sessionlog"
	"stresscam/internal/stress"
)

// Source yields captured frames at the camera's cadence
type Source interface {
	Next(ctx context.Context) (image.Image, time.Time, error)
}

// Dispatcher is the producer side of the classifier pipeline
type Dispatcher interface {
	Offer(img image.Image, ts time.Time) pipeline.Outcome
	Poll() (*pipeline.Result, bool)
	Stats() pipeline.Stats
}

// Config holds monitor settings
type Config struct {
	SessionID   string
	Stress      stress.Config
	HistorySize int
}

// Monitor owns the stress state and histories. All mutable state below is
// touched only by the goroutine running Run (or calling Poll/Process);
// other goroutines read the published snapshots.
type Monitor struct {
	cfg        Config
	dispatcher Dispatcher
	log        *sessionlog.Logger
	bus        *EventBus
	logger     *logrus.Entry
	startedAt  time.Time

	state    stress.State
	emotions *history.Ring[emotion.Distribution]
	levels   *history.Ring[float64]
	valences *history.Ring[float64]
	arousals *history.Ring[float64]
	last     *Update

	captured    atomic.Uint64
	processed   atomic.Uint64
	faceResults atomic.Uint64

	latest  atomic.Pointer[Update]
	summary atomic.Pointer[Summary]
}

// New creates a monitor. The session log and bus may be shared with sinks.
func New(cfg Config, dispatcher Dispatcher, log *sessionlog.Logger, bus *EventBus, logger *logrus.Logger) (*Monitor, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if err := cfg.Stress.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stress config: %w", err)
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.New().String()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = history.DefaultCapacity
	}
	if log == nil {
		log = sessionlog.New(".", time.Now())
	}
	if bus == nil {
		bus = NewEventBus()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	m := &Monitor{
		cfg:        cfg,
		dispatcher: dispatcher,
		log:        log,
		bus:        bus,
		logger:     logger.WithFields(logrus.Fields{"component": "monitor", "session_id": cfg.SessionID}),
		startedAt:  log.StartedAt(),
		state:      stress.NewState(cfg.Stress),
		emotions:   history.NewRing[emotion.Distribution](cfg.HistorySize),
		levels:     history.NewRing[float64](cfg.HistorySize),
		valences:   history.NewRing[float64](cfg.HistorySize),
		arousals:   history.NewRing[float64](cfg.HistorySize),
	}
	m.refreshSummary()
	return m, nil
}

// SessionID returns the session identifier
func (m *Monitor) SessionID() string {
	return m.cfg.SessionID
}

// Bus returns the event bus updates are published on
func (m *Monitor) Bus() *EventBus {
	return m.bus
}

// SessionLog returns the session log
func (m *Monitor) SessionLog() *sessionlog.Logger {
	return m.log
}

// Run reads frames until ctx is cancelled or the source is exhausted.
// Each iteration offers the frame to the pipeline and polls once for a result;
// neither step blocks.
func (m *Monitor) Run(ctx context.Context, src Source) error {
	m.logger.Info("Monitoring started")
	defer m.logger.Info("Monitoring stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		img, ts, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("capture failed: %w", err)
		}
		if ts.IsZero() {
			ts = time.Now()
		}

		m.captured.Add(1)
		metrics.RecordFrameCaptured()
		m.dispatcher.Offer(img, ts)
		m.Poll()
	}
}

// Poll takes the pending classifier result, if any, and processes it
func (m *Monitor) Poll() (*Update, bool) {
	result, ok := m.dispatcher.Poll()
	if !ok {
		return nil, false
	}
	return m.Process(result), true
}

// Process folds one classifier result into the session. Results without a
// localised face leave the stress state, histories and log untouched.
func (m *Monitor) Process(result *pipeline.Result) *Update {
	m.processed.Add(1)

	ts := result.CapturedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	primary, ok := result.Primary()
	if !ok || primary.Region.Empty() || primary.Emotions.IsZero() {
		metrics.RecordResultProcessed(false)
		update := m.retained(result, ts)
		m.publish(update)
		return update
	}

	m.faceResults.Add(1)
	metrics.RecordResultProcessed(true)

	d := primary.Emotions
	m.emotions.Push(d)
	level := m.state.Apply(m.cfg.Stress, d)
	m.levels.Push(level)

	point := affect.Map(d)
	m.valences.Push(point.Valence)
	m.arousals.Push(point.Arousal)

	status := stress.Label(level)
	update := &Update{
		SessionID:      m.cfg.SessionID,
		FrameSeq:       result.FrameSeq,
		Timestamp:      ts,
		FaceDetected:   true,
		Faces:          len(result.Detections),
		Region:         primary.Region,
		Dominant:       primary.Dominant,
		Confidence:     primary.Confidence(),
		Age:            primary.Age,
		Emotions:       d,
		Valence:        point.Valence,
		Arousal:        point.Arousal,
		StressLevel:    level,
		Accumulated:    m.state.Accumulated,
		StressStatus:   status,
		HighStress:     m.cfg.Stress.IsHigh(level),
		TrendScore:     stress.TrendScore(d, m.emotions.Values()),
		SnapshotStress: affect.SnapshotStress(d),
		InferenceMs:    result.InferenceMs,
	}

	m.log.Record(sessionlog.Record{
		Timestamp:    ts,
		Emotion:      primary.Dominant,
		Confidence:   update.Confidence,
		Age:          primary.Age,
		StressLevel:  level,
		StressStatus: status,
		Emotions:     d,
		Valence:      point.Valence,
		Arousal:      point.Arousal,
	})
	metrics.RecordSessionRecord()

	m.last = update
	m.publish(update)
	return update
}

// retained builds a no-face update carrying the last known derived quantities
func (m *Monitor) retained(result *pipeline.Result, ts time.Time) *Update {
	var update Update
	if m.last != nil {
		update = *m.last
	} else {
		update = Update{
			SessionID:    m.cfg.SessionID,
			Dominant:     emotion.Neutral,
			Valence:      affect.Neutral.Valence,
			Arousal:      affect.Neutral.Arousal,
			StressLevel:  m.state.Smoothed,
			Accumulated:  m.state.Accumulated,
			StressStatus: stress.Label(m.state.Smoothed),
			HighStress:   m.cfg.Stress.IsHigh(m.state.Smoothed),
		}
	}
	update.FrameSeq = result.FrameSeq
	update.Timestamp = ts
	update.FaceDetected = false
	update.Faces = len(result.Detections)
	update.InferenceMs = result.InferenceMs
	return &update
}

func (m *Monitor) publish(update *Update) {
	m.latest.Store(update)
	m.refreshSummary()
	metrics.RecordAffect(update.StressLevel, update.Accumulated, update.TrendScore,
		update.Valence, update.Arousal, update.HighStress)
	m.bus.Publish(update)
}

func (m *Monitor) refreshSummary() {
	processed := m.processed.Load()
	faces := m.faceResults.Load()

	s := &Summary{
		SessionID:        m.cfg.SessionID,
		StartedAt:        m.startedAt,
		Duration:         time.Since(m.startedAt).Seconds(),
		Stress:           stress.Summarize(m.levels.Values()),
		CurrentLevel:     m.state.Smoothed,
		CurrentStatus:    stress.Label(m.state.Smoothed),
		RecordsLogged:    m.log.Len(),
		FramesCaptured:   m.captured.Load(),
		ResultsProcessed: processed,
		FaceResults:      faces,
		Pipeline:         m.dispatcher.Stats(),
		Alerts:           EvaluateAlerts(m.levels.Values(), m.valences.Values(), m.arousals.Values()),
	}
	if processed > 0 {
		s.FaceDetectedRatio = float64(faces) / float64(processed)
	}
	m.summary.Store(s)
}

// Latest returns the most recent update, safe from any goroutine
func (m *Monitor) Latest() (*Update, bool) {
	u := m.latest.Load()
	return u, u != nil
}

// Summary returns the latest session summary, safe from any goroutine.
// Frame counters are read live.
func (m *Monitor) Summary() Summary {
	s := *m.summary.Load()
	s.Duration = time.Since(m.startedAt).Seconds()
	s.FramesCaptured = m.captured.Load()
	s.Pipeline = m.dispatcher.Stats()
	s.RecordsLogged = m.log.Len()
	return s
}

// Export writes the session log to path (or the default path when empty)
func (m *Monitor) Export(path string) (string, error) {
	if path == "" {
		path = m.log.DefaultPath()
	}
	if err := m.log.Export(path); err != nil {
		if errors.Is(err, sessionlog.ErrNoData) {
			metrics.RecordExport("empty")
		} else {
			metrics.RecordExport("error")
		}
		return "", err
	}
	metrics.RecordExport("ok")
	m.logger.WithFields(logrus.Fields{"path": path, "records": m.log.Len()}).Info("Session exported")
	return path, nil
}
