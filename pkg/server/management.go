package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stratoci/healer/pkg/config"
	"github.com/stratoci/healer/pkg/health"
	"github.com/stratoci/healer/pkg/middleware/logging"
	"github.com/stratoci/healer/pkg/middleware/recovery"
	"github.com/stratoci/healer/pkg/middleware/requestid"
	"github.com/stratoci/healer/pkg/observability/logger"
	"github.com/stratoci/healer/pkg/queue"
)

const defaultFailedListLimit = 50

// ManagementServer serves health checks, metrics and the read-only queue
// inspection surface on a dedicated port.
//
// Endpoints:
//   - /health: liveness check, always 200
//   - /ready:  readiness check over registered dependency checks
//   - /metrics: Prometheus metrics
//   - /queues/{queue}/failed: retained failed jobs (inspection only)
//
// The inspection routes are registered only when inspection is enabled;
// production deployments run without them.
type ManagementServer struct {
	*Server
	healthRegistry *health.Registry
	backend        queue.Backend
	log            logger.Logger
}

// NewManagementServer creates a management server. backend may be nil when
// inspection is disabled.
func NewManagementServer(
	cfg config.ManagementConfig,
	log logger.Logger,
	healthRegistry *health.Registry,
	backend queue.Backend,
	inspectionEnabled bool,
) *ManagementServer {
	router := mux.NewRouter()
	router.Use(
		requestid.RequestID(),
		logging.Logging(log),
		recovery.Recovery(log),
	)

	mgmtServer := &ManagementServer{
		Server: NewServer(Config{
			Port:         cfg.Port,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}, router, log),
		healthRegistry: healthRegistry,
		backend:        backend,
		log:            log,
	}

	router.HandleFunc("/health", mgmtServer.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ready", mgmtServer.handleReady).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if inspectionEnabled && backend != nil {
		router.HandleFunc("/queues/{queue}/failed", mgmtServer.handleListFailed).Methods(http.MethodGet)
		router.HandleFunc("/queues/{queue}/failed/{id}", mgmtServer.handleRemoveFailed).Methods(http.MethodDelete)
	}

	return mgmtServer
}

// handleHealth is the liveness check. It reports the process is alive and
// never consults dependencies.
func (s *ManagementServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

// handleReady runs all registered dependency checks and reports 503 when any
// of them is unhealthy.
func (s *ManagementServer) handleReady(w http.ResponseWriter, r *http.Request) {
	result := s.healthRegistry.Check(r.Context())
	status := http.StatusOK
	if !result.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result)
}

func (s *ManagementServer) handleListFailed(w http.ResponseWriter, r *http.Request) {
	queueName := strings.TrimSpace(mux.Vars(r)["queue"])
	if queueName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "queue is required"})
		return
	}

	limit := defaultFailedListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	failed, err := s.backend.ListFailed(r.Context(), queueName, limit)
	if err != nil {
		s.log.Error("list failed jobs", "queue", queueName, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to list jobs"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queue":  queueName,
		"count":  len(failed),
		"failed": failed,
	})
}

func (s *ManagementServer) handleRemoveFailed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	queueName := strings.TrimSpace(vars["queue"])
	id := strings.TrimSpace(vars["id"])
	if queueName == "" || id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "queue and id are required"})
		return
	}

	removed, err := s.backend.RemoveFailed(r.Context(), queueName, []string{id})
	if err != nil {
		s.log.Error("remove failed job", "queue", queueName, "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to remove job"})
		return
	}
	if removed == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "failed job not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
