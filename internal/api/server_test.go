package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stresscam/internal/analysis"
	"stresscam/internal/auth"
	"stresscam/internal/emotion"
	"stresscam/internal/monitor"
	"stresscam/internal/sessionlog"
)

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(ctx context.Context, req analysis.Request) (*analysis.Response, error) {
	switch req.ImageBase64 {
	case "bad":
		return nil, fmt.Errorf("%w: not base64", analysis.ErrInvalidImage)
	case "fail":
		return nil, fmt.Errorf("%w: connection refused", analysis.ErrClassification)
	case "nan":
		return &analysis.Response{StressLevel: math.NaN(), DominantEmotion: emotion.Angry}, nil
	case "extreme":
		return analysis.Assess([]emotion.Detection{{
			Region:   emotion.Region{W: 10, H: 10},
			Emotions: emotion.Distribution{Angry: 1e308, Fear: 1e308, Happy: 1e308},
		}}), nil
	}
	return &analysis.Response{
		Valence:         0.8,
		Arousal:         0.6,
		StressLevel:     12,
		DominantEmotion: emotion.Happy,
		FaceDetected:    true,
	}, nil
}

type fakeSession struct {
	latest   *monitor.Update
	records  int
	exported string
}

func (f *fakeSession) Latest() (*monitor.Update, bool) { return f.latest, f.latest != nil }

func (f *fakeSession) Summary() monitor.Summary {
	return monitor.Summary{SessionID: "live", RecordsLogged: f.records}
}

func (f *fakeSession) Export(path string) (string, error) {
	if f.records == 0 {
		return "", sessionlog.ErrNoData
	}
	f.exported = "/exports/emotion_data.csv"
	return f.exported, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) CheckHealth(ctx context.Context) error { return f.err }
func (f fakeHealth) IsHealthy() bool                       { return f.err == nil }

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	opts.Logger = logger
	if opts.Analyzer == nil {
		opts.Analyzer = fakeAnalyzer{}
	}
	srv := httptest.NewServer(NewServer(opts).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp, decoded
}

func TestRootAndHealth(t *testing.T) {
	srv := newTestServer(t, Options{Version: "1.2.3", Health: fakeHealth{}})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, false, body["live_session"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["classifier_healthy"])
}

func TestHealthReportsClassifierDown(t *testing.T) {
	srv := newTestServer(t, Options{Health: fakeHealth{err: fmt.Errorf("down")}})
	_, body := doJSON(t, http.MethodGet, srv.URL+"/health", "", "")
	assert.Equal(t, false, body["classifier_healthy"])
}

func TestAnalyzeEmotion(t *testing.T) {
	srv := newTestServer(t, Options{})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"ok", `{"imageBase64":"data:image/jpeg;base64,AAAA"}`, http.StatusOK},
		{"invalid image", `{"imageBase64":"bad"}`, http.StatusBadRequest},
		{"classifier down", `{"imageBase64":"fail"}`, http.StatusBadGateway},
		{"malformed json", `{"imageBase64":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/analyze-emotion", "", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status == http.StatusOK {
				assert.Equal(t, "happy", body["dominant_emotion"])
				assert.Equal(t, 0.8, body["valence"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestAnalyzeEmotionUnencodableResponse(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/analyze-emotion", "", `{"imageBase64":"nan"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, body["error"])
}

func TestAnalyzeEmotionExtremeScores(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/analyze-emotion", "", `{"imageBase64":"extreme"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	level, ok := body["stress_level"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, level, 0.0)
	assert.LessOrEqual(t, level, 100.0)
	assert.Equal(t, emotion.MaxScore, body["emotions"].(map[string]any)["angry"])
}

func TestSessionEndpoints(t *testing.T) {
	t.Run("no live session", func(t *testing.T) {
		srv := newTestServer(t, Options{})
		resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/session", "", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/session/export", "", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("empty session", func(t *testing.T) {
		srv := newTestServer(t, Options{Session: &fakeSession{}})
		resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/session", "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Nil(t, body["latest"])

		resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/session/export", "", "")
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, sessionlog.ErrNoData.Error(), body["error"])
	})

	t.Run("live session", func(t *testing.T) {
		session := &fakeSession{records: 3, latest: &monitor.Update{StressLevel: 42, FaceDetected: true}}
		srv := newTestServer(t, Options{Session: session})

		resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/session", "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		latest := body["latest"].(map[string]any)
		assert.Equal(t, 42.0, latest["stress_level"])

		resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/session/export", "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, session.exported, body["path"])
		assert.Equal(t, 3.0, body["records"])
	})
}

func TestAuthProtectsAPI(t *testing.T) {
	authenticator, err := auth.NewAuthenticator(auth.Config{
		Enabled:   true,
		Username:  "operator",
		Password:  "s3cret",
		JWTSecret: "test-secret",
	})
	require.NoError(t, err)
	srv := newTestServer(t, Options{Auth: authenticator, Session: &fakeSession{}})

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/session", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", `{"username":"operator","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", `{"username":"operator","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := body["token"].(string)
	assert.NotEmpty(t, token)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/session", token, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health and metrics stay open
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginDisabled(t *testing.T) {
	authenticator, err := auth.NewAuthenticator(auth.Config{})
	require.NoError(t, err)
	srv := newTestServer(t, Options{Auth: authenticator})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", `{"username":"admin","password":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{})
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
