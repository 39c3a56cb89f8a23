// Package api serves the HTTP interface: single-shot analysis, the live
// session, its WebSocket stream, login and metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	goahttp "goa.design/goa/v3/http"
	httpmdlwr "goa.design/goa/v3/http/middleware"

	"stresscam/internal/analysis"
	"stresscam/internal/metrics"
	"stresscam/internal/middleware"
	"stresscam/internal/monitor"
	"stresscam/internal/pipeline"
	"stresscam/internal/ws"
)

const (
	shutdownTimeout    = 10 * time.Second
	healthCheckTimeout = 2 * time.Second
	maxBodyBytes       = analysis.MaxImageBytes*4/3 + 1024
)

// Analyzer runs single-shot analysis
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Response, error)
}

// Session is the live monitoring session, satisfied by *monitor.Monitor
type Session interface {
	Latest() (*monitor.Update, bool)
	Summary() monitor.Summary
	Export(path string) (string, error)
}

// Authenticator issues and validates API tokens
type Authenticator interface {
	middleware.TokenValidator
	Authenticate(username, password string) (string, int64, error)
}

// Options wires the server's collaborators. Session, Hub, Auth and Health
// are optional.
type Options struct {
	Version  string
	Analyzer Analyzer
	Session  Session
	Hub      *ws.AffectHub
	Auth     Authenticator
	Health   pipeline.HealthChecker
	Logger   *logrus.Logger
}

// Server is the HTTP API
type Server struct {
	opts    Options
	logger  *logrus.Entry
	handler http.Handler
}

// NewServer mounts all routes
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		opts:   opts,
		logger: opts.Logger.WithField("component", "api"),
	}

	mux := goahttp.NewMuxer()
	protect := func(h http.HandlerFunc) http.HandlerFunc { return h }
	if opts.Auth != nil {
		authMW := middleware.AuthMiddleware(opts.Auth)
		protect = func(h http.HandlerFunc) http.HandlerFunc {
			return authMW(h).ServeHTTP
		}
	}

	mux.Handle(http.MethodGet, "/", s.handleRoot)
	mux.Handle(http.MethodGet, "/health", s.handleHealth)
	mux.Handle(http.MethodGet, "/metrics", metrics.Handler().ServeHTTP)
	mux.Handle(http.MethodPost, "/api/auth/login", s.handleLogin)
	mux.Handle(http.MethodPost, "/api/analyze-emotion", protect(s.handleAnalyze))
	mux.Handle(http.MethodGet, "/api/session", protect(s.handleSession))
	mux.Handle(http.MethodPost, "/api/session/export", protect(s.handleExport))
	if opts.Hub != nil && opts.Session != nil {
		mux.Handle(http.MethodGet, "/ws/affect", protect(ws.NewHandler(opts.Hub, opts.Session).ServeHTTP))
	}

	var handler http.Handler = mux
	{
		handler = middleware.RequestLogger(opts.Logger)(handler)
		handler = httpmdlwr.RequestID()(handler)
	}
	s.handler = handler
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.WithField("addr", addr).Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Warn("Failed to shut down HTTP server")
		return err
	}
	return nil
}
