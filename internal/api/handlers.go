package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	goahttp "goa.design/goa/v3/http"

	"stresscam/internal/analysis"
	"stresscam/internal/auth"
	"stresscam/internal/metrics"
	"stresscam/internal/monitor"
	"stresscam/internal/sessionlog"
)

type errorResponse struct {
	Error string `json:"error"`
}

type infoResponse struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Model   string `json:"model"`
	Version string `json:"version"`
	Live    bool   `json:"live_session"`
}

type healthResponse struct {
	Status            string `json:"status"`
	ClassifierHealthy bool   `json:"classifier_healthy"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type sessionResponse struct {
	Latest  *monitor.Update `json:"latest,omitempty"`
	Summary monitor.Summary `json:"summary"`
}

type exportResponse struct {
	Path    string `json:"path"`
	Records int    `json:"records"`
}

// bufferedWriter collects the encoded body so encoding failures can still
// change the status
type bufferedWriter struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	return b.body.Write(p)
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	buf := &bufferedWriter{ResponseWriter: w}
	if err := goahttp.ResponseEncoder(ctx, buf).Encode(v); err != nil {
		s.logger.WithError(err).WithField("status", status).Error("Failed to encode response")
		body, _ := json.Marshal(errorResponse{Error: "failed to encode response"})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(body)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(buf.body.Bytes())
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	s.writeJSON(ctx, w, status, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	return goahttp.RequestDecoder(r).Decode(v)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(r.Context(), w, http.StatusOK, infoResponse{
		Name:    "stresscam",
		Status:  "running",
		Model:   "facial-emotion",
		Version: s.opts.Version,
		Live:    s.opts.Session != nil,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		resp.ClassifierHealthy = s.opts.Health.CheckHealth(ctx) == nil
	}
	s.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.opts.Auth == nil || !s.opts.Auth.IsEnabled() {
		s.writeError(ctx, w, http.StatusNotFound, auth.ErrAuthDisabled.Error())
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresAt, err := s.opts.Auth.Authenticate(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.writeError(ctx, w, http.StatusUnauthorized, err.Error())
			return
		}
		s.logger.WithError(err).Error("Login failed")
		s.writeError(ctx, w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	s.writeJSON(ctx, w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.opts.Analyzer == nil {
		s.writeError(ctx, w, http.StatusServiceUnavailable, "analysis is not available")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req analysis.Request
	if err := decodeJSON(r, &req); err != nil {
		metrics.RecordAnalyzeRequest("invalid")
		s.writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	resp, err := s.opts.Analyzer.Analyze(ctx, req)
	switch {
	case errors.Is(err, analysis.ErrInvalidImage):
		metrics.RecordAnalyzeRequest("invalid")
		s.writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		metrics.RecordAnalyzeRequest("error")
		s.writeError(ctx, w, http.StatusBadGateway, "Analysis failed: "+err.Error())
		return
	}

	metrics.RecordAnalyzeRequest("ok")
	s.logger.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("Analysis served")
	s.writeJSON(ctx, w, http.StatusOK, resp)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.opts.Session == nil {
		s.writeError(ctx, w, http.StatusNotFound, "no live session")
		return
	}

	resp := sessionResponse{Summary: s.opts.Session.Summary()}
	if latest, ok := s.opts.Session.Latest(); ok {
		resp.Latest = latest
	}
	s.writeJSON(ctx, w, http.StatusOK, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.opts.Session == nil {
		s.writeError(ctx, w, http.StatusNotFound, "no live session")
		return
	}

	// Exports always land in the configured directory
	path, err := s.opts.Session.Export("")
	if err != nil {
		if errors.Is(err, sessionlog.ErrNoData) {
			s.writeError(ctx, w, http.StatusConflict, err.Error())
			return
		}
		s.logger.WithError(err).Error("Session export failed")
		s.writeError(ctx, w, http.StatusInternalServerError, "export failed")
		return
	}
	s.writeJSON(ctx, w, http.StatusOK, exportResponse{Path: path, Records: s.opts.Session.Summary().RecordsLogged})
}
