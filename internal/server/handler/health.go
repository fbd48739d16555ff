package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/memebot/internal/domain"
)

// HealthSource reports chain liveness.
type HealthSource interface {
	Health(ctx context.Context) domain.Health
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	src    HealthSource
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(src HealthSource, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{src: src, logger: logger}
}

// HealthCheck writes {synced_block, ok}. The status is 503 when the RPC did
// not answer with a block number.
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	hv := h.src.Health(r.Context())
	status := http.StatusOK
	if !hv.OK {
		status = http.StatusServiceUnavailable
		h.logger.WarnContext(r.Context(), "health check failing", slog.Uint64("synced_block", hv.SyncedBlock))
	}
	writeJSON(w, status, hv)
}
