// Package logging provides HTTP request logging middleware.
package logging

import (
	"net/http"
	"time"

	"github.com/stratoci/healer/pkg/middleware/requestid"
	"github.com/stratoci/healer/pkg/observability/logger"
)

// Config controls which requests get logged.
type Config struct {
	// SkipPaths lists exact request paths that are never logged. Health
	// probes and metrics scrapes are noisy and excluded by default.
	SkipPaths []string
}

// DefaultConfig returns the logging configuration used by the management
// server.
func DefaultConfig() Config {
	return Config{
		SkipPaths: []string{"/health", "/ready", "/metrics"},
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging returns middleware that logs one structured line per request.
func Logging(log logger.Logger) func(http.Handler) http.Handler {
	return LoggingWithConfig(log, DefaultConfig())
}

// LoggingWithConfig is Logging with explicit configuration.
func LoggingWithConfig(log logger.Logger, cfg Config) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skip[path] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skipped := skip[r.URL.Path]; skipped {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			log.Info("http request",
				"request_id", requestid.GetRequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}
