package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestInitIdempotent(t *testing.T) {
	Init(newTestLogger())
	first := GetRegistry()
	Init(newTestLogger())
	assert.Same(t, first, GetRegistry())
}

func TestRecordHelpers(t *testing.T) {
	Init(newTestLogger())

	before := testutil.ToFloat64(FramesDropped.WithLabelValues("queue_full"))
	RecordFrameDropped("queue_full")
	RecordFrameDropped("queue_full")
	assert.Equal(t, before+2, testutil.ToFloat64(FramesDropped.WithLabelValues("queue_full")))

	published := testutil.ToFloat64(ResultsPublished)
	overwritten := testutil.ToFloat64(ResultsOverwritten)
	RecordResultPublished(false)
	RecordResultPublished(true)
	assert.Equal(t, published+2, testutil.ToFloat64(ResultsPublished))
	assert.Equal(t, overwritten+1, testutil.ToFloat64(ResultsOverwritten))

	RecordAffect(82, 90, 40, -0.4, 0.8, true)
	assert.Equal(t, 82.0, testutil.ToFloat64(StressLevel))
	assert.Equal(t, 1.0, testutil.ToFloat64(HighStress))

	errorsBefore := testutil.ToFloat64(ClassifierRequests.WithLabelValues("http", "error"))
	ObserveClassifier("http")(errors.New("boom"))
	assert.Equal(t, errorsBefore+1, testutil.ToFloat64(ClassifierRequests.WithLabelValues("http", "error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	Init(newTestLogger())
	RecordFrameCaptured()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "stresscam_frames_captured_total")
}
