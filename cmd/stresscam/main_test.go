package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stresscam/internal/capture"
	"stresscam/internal/classifier"
	"stresscam/internal/config"
	"stresscam/internal/database"
	"stresscam/internal/emotion"
	"stresscam/internal/pipeline"
	"stresscam/internal/sessionlog"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "stresscam.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigShowPrintsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := runCLI(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[capture]")
	assert.Contains(t, out, "[stress]")
	assert.Contains(t, out, "affect.update")
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	target := filepath.Join(dir, "generated.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	require.NoError(t, err)
	assert.Contains(t, out, target)

	_, err = runCLI(t, "config", "init", "--path", target)
	assert.ErrorContains(t, err, "already exists")

	out, err = runCLI(t, "--config", target, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
}

func TestInvalidConfigFails(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeConfig(t, dir, "[pipeline]\nmode = \"sometimes\"\n")

	_, err := runCLI(t, "--config", path, "config", "validate")
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := runCLI(t, "hash-password", "s3cret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "$2"))
}

func TestSessionsAndExport(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	dbPath := filepath.Join(dir, "sessions.db")
	exportDir := filepath.Join(dir, "exports")
	cfgPath := writeConfig(t, dir, fmt.Sprintf("[database]\nenabled = true\npath = %q\n\n[session]\nexport_dir = %q\n", dbPath, exportDir))

	store, err := database.Open(dbPath)
	require.NoError(t, err)
	start := time.Date(2024, 3, 5, 14, 0, 0, 0, time.Local)
	require.NoError(t, store.BeginSession("abc", start))
	for i := range 3 {
		require.NoError(t, store.SaveRecord("abc", sessionlog.Record{
			Timestamp:    start.Add(time.Duration(i) * time.Second),
			Emotion:      emotion.Happy,
			Confidence:   80,
			StressLevel:  30,
			StressStatus: "Relaxed",
			Emotions:     emotion.Distribution{Happy: 80, Neutral: 20},
		}))
	}
	require.NoError(t, store.EndSession("abc", start.Add(time.Minute), ""))
	require.NoError(t, store.Close())

	out, err := runCLI(t, "--config", cfgPath, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "1m0s")

	out, err = runCLI(t, "--config", cfgPath, "export", "abc")
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 3 records")

	data, err := os.ReadFile(filepath.Join(exportDir, sessionlog.FileName(start)))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, strings.Join(sessionlog.Header, ","), lines[0])

	_, err = runCLI(t, "--config", cfgPath, "export", "missing")
	assert.ErrorIs(t, err, database.ErrSessionNotFound)
}

func TestSessionsWithoutDatabase(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfgPath := writeConfig(t, dir, fmt.Sprintf("[database]\npath = %q\n", filepath.Join(dir, "none.db")))

	_, err := runCLI(t, "--config", cfgPath, "sessions")
	assert.ErrorContains(t, err, "not found")
}

func newClassifierServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","model_loaded":true}`)
	})
	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"results":[{"region":{"x":2,"y":2,"w":10,"h":10},"dominant_emotion":"happy","emotion":{"happy":80,"neutral":20}}]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeTestJPEG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := range 32 {
		for x := range 32 {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, nil))
}

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	srv := newClassifierServer(t)
	cfgPath := writeConfig(t, dir, fmt.Sprintf("[classifier]\nendpoint = %q\n", srv.URL))
	imagePath := filepath.Join(dir, "face.jpg")
	writeTestJPEG(t, imagePath)

	out, err := runCLI(t, "--config", cfgPath, "analyze", "--json", imagePath)
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "happy", resp["dominant_emotion"])
	assert.Equal(t, true, resp["face_detected"])
	assert.InDelta(t, 0.8, resp["valence"], 1e-9)

	out, err = runCLI(t, "--config", cfgPath, "analyze", imagePath)
	require.NoError(t, err)
	assert.Contains(t, out, "Dominant emotion: happy")
}

func TestAnalyzeRejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	srv := newClassifierServer(t)
	cfgPath := writeConfig(t, dir, fmt.Sprintf("[classifier]\nendpoint = %q\n", srv.URL))
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o600))

	_, err := runCLI(t, "--config", cfgPath, "analyze", path)
	assert.Error(t, err)
}

// pacedSource yields frames with a small delay so the worker can keep up
type pacedSource struct {
	remaining int
	closed    atomic.Bool
}

func (s *pacedSource) Next(ctx context.Context) (image.Image, time.Time, error) {
	if s.remaining <= 0 {
		return nil, time.Time{}, io.EOF
	}
	select {
	case <-ctx.Done():
		return nil, time.Time{}, ctx.Err()
	case <-time.After(2 * time.Millisecond):
	}
	s.remaining--
	return image.NewRGBA(image.Rect(0, 0, 64, 48)), time.Now(), nil
}

func (s *pacedSource) Close() error {
	s.closed.Store(true)
	return nil
}

type angryClassifier struct{}

func (angryClassifier) Name() string                          { return "fake" }
func (angryClassifier) CheckHealth(ctx context.Context) error { return nil }
func (angryClassifier) IsHealthy() bool                       { return true }

func (angryClassifier) Classify(ctx context.Context, frame *pipeline.FrameData) ([]emotion.Detection, error) {
	return []emotion.Detection{{
		Region:   emotion.Region{X: 1, Y: 1, W: 20, H: 20},
		Dominant: emotion.Angry,
		Emotions: emotion.Distribution{Angry: 90, Neutral: 10},
	}}, nil
}

func TestRunLiveRecordsAndExports(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Session.ExportDir = dir
	cfg.Database.Enabled = true
	cfg.Database.Path = filepath.Join(dir, "live.db")

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	src := &pacedSource{remaining: 200}
	opts := liveOptions{
		openSource: func(context.Context, capture.Config, *logrus.Logger) (capture.Source, error) {
			return src, nil
		},
		newClassifier: func(classifier.Config, *logrus.Logger) (classifier.Client, error) {
			return angryClassifier{}, nil
		},
	}

	summary, exportPath, err := runLive(context.Background(), &cfg, logger, opts)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.True(t, src.closed.Load())
	assert.Equal(t, uint64(200), summary.FramesCaptured)
	require.Greater(t, summary.RecordsLogged, 0)
	assert.FileExists(t, exportPath)

	store, err := database.Open(cfg.Database.Path)
	require.NoError(t, err)
	defer store.Close()
	session, err := store.GetSession(summary.SessionID)
	require.NoError(t, err)
	require.NotNil(t, session.EndedAt)
	assert.Equal(t, exportPath, session.ExportPath)
	assert.Equal(t, summary.RecordsLogged, session.Samples)
}

func TestRunLiveWithoutCamera(t *testing.T) {
	cfg := config.Default()
	cfg.Session.ExportDir = t.TempDir()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	opts := liveOptions{
		openSource: func(context.Context, capture.Config, *logrus.Logger) (capture.Source, error) {
			return nil, capture.ErrNoDevice
		},
		newClassifier: func(classifier.Config, *logrus.Logger) (classifier.Client, error) {
			return nil, errors.New("should not be called")
		},
	}

	summary, _, err := runLive(context.Background(), &cfg, logger, opts)
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, capture.ErrNoDevice)
	assert.Contains(t, err.Error(), "no camera available")
}
