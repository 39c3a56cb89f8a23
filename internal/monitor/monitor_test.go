package monitor

import (
	"context"
	"errors"
	"image"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stresscam/internal/emotion"
	"stresscam/internal/pipeline"
	"stresscam/internal/sessionlog"
	"stresscam/internal/stress"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeDispatcher returns queued results from Poll, one at a time
type fakeDispatcher struct {
	mu      sync.Mutex
	pending []*pipeline.Result
	offered int
	onOffer func(n int) *pipeline.Result
}

func (f *fakeDispatcher) Offer(img image.Image, ts time.Time) pipeline.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offered++
	if f.onOffer != nil {
		if r := f.onOffer(f.offered); r != nil {
			f.pending = append(f.pending, r)
			return pipeline.Submitted
		}
	}
	return pipeline.Skipped
}

func (f *fakeDispatcher) Poll() (*pipeline.Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, false
	}
	r := f.pending[0]
	f.pending = f.pending[1:]
	return r, true
}

func (f *fakeDispatcher) Stats() pipeline.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pipeline.Stats{FramesOffered: uint64(f.offered)}
}

func (f *fakeDispatcher) push(r *pipeline.Result) {
	f.mu.Lock()
	f.pending = append(f.pending, r)
	f.mu.Unlock()
}

func faceResult(seq uint64, d emotion.Distribution) *pipeline.Result {
	dominant, _ := d.Dominant()
	return &pipeline.Result{
		FrameSeq:   seq,
		CapturedAt: time.Date(2024, 3, 5, 14, 0, int(seq%60), 0, time.Local),
		Detections: []emotion.Detection{{
			Region:   emotion.Region{X: 5, Y: 5, W: 120, H: 120},
			Dominant: dominant,
			Emotions: d,
		}},
	}
}

func newTestMonitor(t *testing.T, d Dispatcher) *Monitor {
	t.Helper()
	m, err := New(Config{SessionID: "test-session", Stress: stress.DefaultConfig()},
		d, sessionlog.New(t.TempDir(), time.Now()), NewEventBus(), newTestLogger())
	require.NoError(t, err)
	return m
}

func TestProcessFaceResult(t *testing.T) {
	m := newTestMonitor(t, &fakeDispatcher{})

	var published []*Update
	m.Bus().Subscribe(UpdateHandlerFunc(func(u *Update) { published = append(published, u) }))

	u := m.Process(faceResult(10, emotion.Distribution{Happy: 80, Neutral: 20}))

	assert.True(t, u.FaceDetected)
	assert.Equal(t, emotion.Happy, u.Dominant)
	assert.Equal(t, 80.0, u.Confidence)
	assert.InDelta(t, 0.8, u.Valence, 1e-9)
	assert.InDelta(t, 0.6, u.Arousal, 1e-9)
	assert.Less(t, u.StressLevel, 50.0)
	assert.Equal(t, "Mild Alert", u.StressStatus)
	assert.Equal(t, "test-session", u.SessionID)

	require.Len(t, published, 1)
	assert.Same(t, u, published[0])

	records := m.SessionLog().Records()
	require.Len(t, records, 1)
	assert.Equal(t, emotion.Happy, records[0].Emotion)
	assert.Equal(t, u.StressLevel, records[0].StressLevel)

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Same(t, u, latest)
}

func TestNoFaceRetainsState(t *testing.T) {
	m := newTestMonitor(t, &fakeDispatcher{})

	first := m.Process(faceResult(10, emotion.Distribution{Angry: 90, Neutral: 10}))

	noFace := []*pipeline.Result{
		{FrameSeq: 20},
		{FrameSeq: 30, Detections: []emotion.Detection{{
			Region:   emotion.Region{X: 0, Y: 0, W: 0, H: 40},
			Emotions: emotion.Distribution{Happy: 100},
		}}},
		{FrameSeq: 40, Detections: []emotion.Detection{{
			Region: emotion.Region{W: 50, H: 50},
		}}},
	}
	for _, r := range noFace {
		u := m.Process(r)
		assert.False(t, u.FaceDetected)
		assert.Equal(t, r.FrameSeq, u.FrameSeq)
		assert.Equal(t, first.StressLevel, u.StressLevel)
		assert.Equal(t, first.Valence, u.Valence)
		assert.Equal(t, first.Dominant, u.Dominant)
	}

	assert.Equal(t, 1, m.SessionLog().Len())
	s := m.Summary()
	assert.Equal(t, 1, s.Stress.Samples)
	assert.Equal(t, uint64(4), s.ResultsProcessed)
	assert.InDelta(t, 0.25, s.FaceDetectedRatio, 1e-9)
}

func TestNoFaceBeforeAnyDetection(t *testing.T) {
	m := newTestMonitor(t, &fakeDispatcher{})

	u := m.Process(&pipeline.Result{FrameSeq: 10})
	assert.False(t, u.FaceDetected)
	assert.Equal(t, 50.0, u.StressLevel)
	assert.Equal(t, 0.0, u.Valence)
	assert.Equal(t, 0.5, u.Arousal)
	assert.Equal(t, 0, m.SessionLog().Len())
}

func TestPollWithoutResult(t *testing.T) {
	m := newTestMonitor(t, &fakeDispatcher{})
	_, ok := m.Poll()
	assert.False(t, ok)

	_, ok = m.Latest()
	assert.False(t, ok)
}

func TestSustainedAngerRaisesHighStress(t *testing.T) {
	d := &fakeDispatcher{}
	m := newTestMonitor(t, d)

	var last *Update
	for i := 1; i <= 300; i++ {
		d.push(faceResult(uint64(i), emotion.Distribution{Angry: 100}))
		u, ok := m.Poll()
		require.True(t, ok)
		assert.GreaterOrEqual(t, u.StressLevel, 0.0)
		assert.LessOrEqual(t, u.StressLevel, 100.0)
		last = u
	}

	assert.True(t, last.HighStress)
	assert.Equal(t, "High Stress", last.StressStatus)
	assert.Equal(t, 100.0, last.Accumulated)

	s := m.Summary()
	assert.Equal(t, 60, s.Stress.Samples)
	assert.Equal(t, 300, s.RecordsLogged)
	assert.NotEmpty(t, s.Alerts)
}

func TestRunDrivesPipeline(t *testing.T) {
	d := &fakeDispatcher{onOffer: func(n int) *pipeline.Result {
		if n%10 != 0 {
			return nil
		}
		return faceResult(uint64(n), emotion.Distribution{Sad: 60, Neutral: 40})
	}}
	m := newTestMonitor(t, d)

	src := &countingSource{limit: 55}
	require.NoError(t, m.Run(context.Background(), src))

	s := m.Summary()
	assert.Equal(t, uint64(55), s.FramesCaptured)
	assert.Equal(t, 5, s.RecordsLogged)
	assert.Equal(t, uint64(55), s.Pipeline.FramesOffered)
}

func TestRunStopsOnCancel(t *testing.T) {
	m := newTestMonitor(t, &fakeDispatcher{})
	ctx, cancel := context.WithCancel(context.Background())
	src := &countingSource{limit: -1, onFrame: func(n int) {
		if n == 20 {
			cancel()
		}
	}}

	require.NoError(t, m.Run(ctx, src))
	assert.Equal(t, uint64(20), m.Summary().FramesCaptured)
}

func TestRunReturnsCaptureError(t *testing.T) {
	m := newTestMonitor(t, &fakeDispatcher{})
	err := m.Run(context.Background(), &countingSource{limit: 3, err: errors.New("device unplugged")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestExport(t *testing.T) {
	m := newTestMonitor(t, &fakeDispatcher{})

	_, err := m.Export("")
	assert.ErrorIs(t, err, sessionlog.ErrNoData)

	m.Process(faceResult(10, emotion.Distribution{Happy: 50, Neutral: 50}))
	path, err := m.Export(filepath.Join(t.TempDir(), "out.csv"))
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestNewValidatesStressConfig(t *testing.T) {
	cfg := stress.DefaultConfig()
	cfg.SmoothingFactor = 2
	_, err := New(Config{Stress: cfg}, &fakeDispatcher{}, nil, nil, newTestLogger())
	assert.Error(t, err)

	m, err := New(Config{Stress: stress.DefaultConfig()}, &fakeDispatcher{}, nil, nil, newTestLogger())
	require.NoError(t, err)
	assert.NotEmpty(t, m.SessionID())
}

// countingSource yields blank frames until limit (negative for unlimited)
type countingSource struct {
	limit   int
	n       int
	err     error
	onFrame func(n int)
}

func (s *countingSource) Next(ctx context.Context) (image.Image, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, time.Time{}, err
	}
	if s.limit >= 0 && s.n >= s.limit {
		if s.err != nil {
			return nil, time.Time{}, s.err
		}
		return nil, time.Time{}, io.EOF
	}
	s.n++
	if s.onFrame != nil {
		s.onFrame(s.n)
	}
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), time.Now(), nil
}
