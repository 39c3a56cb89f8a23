package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	goamiddleware "goa.design/goa/v3/middleware"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Hijack supports WebSocket upgrades through the recorder
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RequestLogger logs one line per request with status and duration. The
// request ID set by goa's RequestID middleware is included when present.
func RequestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	entry := logger.WithField("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			fields := logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"bytes":       rec.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote":      r.RemoteAddr,
			}
			if id, ok := r.Context().Value(goamiddleware.RequestIDKey).(string); ok {
				fields["request_id"] = id
			}

			level := logrus.InfoLevel
			if rec.status >= http.StatusInternalServerError {
				level = logrus.WarnLevel
			}
			entry.WithFields(fields).Log(level, "Request handled")
		})
	}
}
