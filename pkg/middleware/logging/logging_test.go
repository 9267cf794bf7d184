package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stratoci/healer/pkg/observability/logger"
)

type captureLogger struct {
	mu    sync.Mutex
	infos [][]any
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(_ string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, args)
}
func (l *captureLogger) Warn(string, ...any)  {}
func (l *captureLogger) Error(string, ...any) {}
func (l *captureLogger) With(...any) logger.Logger {
	return l
}
func (l *captureLogger) WithContext(context.Context) logger.Logger {
	return l
}

func (l *captureLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.infos)
}

func TestLogging_RecordsRequest(t *testing.T) {
	log := &captureLogger{}
	handler := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queues/CI_HEALING/failed", nil))

	if log.count() != 1 {
		t.Fatalf("expected 1 logged request, got %d", log.count())
	}

	args := log.infos[0]
	found := false
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == "status" && args[i+1] == http.StatusAccepted {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected status field in log args: %v", args)
	}
}

func TestLogging_SkipsProbePaths(t *testing.T) {
	log := &captureLogger{}
	handler := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if log.count() != 0 {
		t.Fatalf("expected probe paths to be skipped, got %d records", log.count())
	}
}
