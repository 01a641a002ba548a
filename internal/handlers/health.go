package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/kanojo/studio/internal/logging"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler responds with service health information.
type HealthHandler struct {
	Database Pinger
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	payload := map[string]string{"status": "ok"}
	status := http.StatusOK

	if h.Database != nil {
		pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()

		if err := h.Database.Ping(pingCtx); err != nil {
			logging.FromContext(ctx).Error("database health check failed", "error", err)
			payload = map[string]string{"status": "degraded", "database": "unreachable"}
			status = http.StatusServiceUnavailable
		} else {
			payload["database"] = "ok"
		}
	}

	respondJSON(ctx, w, status, payload)
}
