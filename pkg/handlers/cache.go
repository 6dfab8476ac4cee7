package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/audit"
)

// CacheFlusher clears every cache group.
type CacheFlusher interface {
	FlushCache(ctx context.Context) error
}

// CacheHandler exposes a manual cache flush for operators.
type CacheHandler struct {
	flusher CacheFlusher
	auditor *audit.SecurityAuditor
	logger  *zap.Logger
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(flusher CacheFlusher, auditor *audit.SecurityAuditor, logger *zap.Logger) *CacheHandler {
	return &CacheHandler{flusher: flusher, auditor: auditor, logger: logger}
}

// RegisterRoutes registers the cache routes on the given mux.
func (h *CacheHandler) RegisterRoutes(mux *http.ServeMux, admin Middleware) {
	mux.Handle("POST /api/admin/cache/flush", admin(http.HandlerFunc(h.Flush)))
}

// Flush handles POST /api/admin/cache/flush
func (h *CacheHandler) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.flusher.FlushCache(r.Context()); err != nil {
		writeServiceError(w, r, err, h.logger, "flush_cache")
		return
	}

	h.auditor.LogAdminChange(r.Context(), audit.AdminChangeDetails{Action: "flush", Resource: "cache"})
	writeData(w, http.StatusOK, map[string]string{"status": "flushed"}, h.logger)
}
