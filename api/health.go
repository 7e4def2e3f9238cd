package api

import (
	"context"
	"net/http"
	"time"

	"github.com/orbitpay/orbit/internal/log"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	pinger Pinger
	logger log.Logger
}

// NewHealthHandler creates a HealthHandler. pinger may be nil, in
// which case /ready only checks process liveness.
func NewHealthHandler(pinger Pinger, logger log.Logger) *HealthHandler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &HealthHandler{pinger: pinger, logger: logger}
}

// RegisterRoutes registers health endpoints on the mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
}

// Health is the liveness probe: the process is up.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready is the readiness probe: dependencies are reachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			writeError(h.logger, w, http.StatusServiceUnavailable, "not ready", "database unreachable")
			return
		}
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}
