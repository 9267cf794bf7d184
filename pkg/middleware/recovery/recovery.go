// Package recovery provides panic recovery middleware for HTTP handlers.
package recovery

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/stratoci/healer/pkg/middleware/requestid"
	"github.com/stratoci/healer/pkg/observability/logger"
)

// Recovery catches panics in downstream handlers, logs them with the stack
// trace and returns HTTP 500.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					requestID := requestid.GetRequestID(r.Context())
					log.Error("panic recovered",
						"request_id", requestID,
						"panic", rec,
						"stack", string(debug.Stack()),
					)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]any{
						"error":      "internal_server_error",
						"message":    "an unexpected error occurred",
						"request_id": requestID,
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
