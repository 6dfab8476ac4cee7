package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/audit"
	"github.com/facilitymap/facility-engine/pkg/models"
	"github.com/facilitymap/facility-engine/pkg/services"
)

// SettingsHandler handles the widget settings and the widget bootstrap payload.
type SettingsHandler struct {
	directory *services.Directory
	auditor   *audit.SecurityAuditor
	logger    *zap.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(directory *services.Directory, auditor *audit.SecurityAuditor, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{directory: directory, auditor: auditor, logger: logger}
}

// RegisterRoutes registers the settings and widget routes on the given mux.
func (h *SettingsHandler) RegisterRoutes(mux *http.ServeMux, admin Middleware) {
	mux.HandleFunc("GET /api/widget", h.Widget)

	mux.Handle("GET /api/admin/settings", admin(http.HandlerFunc(h.Get)))
	mux.Handle("PUT /api/admin/settings", admin(http.HandlerFunc(h.Update)))
}

// Widget handles GET /api/widget
// Accepts the same query parameters as GET /api/facilities.
func (h *SettingsHandler) Widget(w http.ResponseWriter, r *http.Request) {
	data, err := h.directory.GetWidgetData(r.Context(), ParseFilterCriteria(r))
	if err != nil {
		writeServiceError(w, r, err, h.logger, "load_widget")
		return
	}
	writeData(w, http.StatusOK, data, h.logger)
}

// Get handles GET /api/admin/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.directory.Settings.Get(r.Context())
	if err != nil {
		writeServiceError(w, r, err, h.logger, "get_settings")
		return
	}
	writeData(w, http.StatusOK, settings, h.logger)
}

// Update handles PUT /api/admin/settings
// Fields missing from the body keep their default values.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	settings := models.DefaultMapSettings()
	if !decodeJSON(w, r, &settings, h.logger) {
		return
	}

	if err := h.directory.Settings.Update(r.Context(), &settings); err != nil {
		writeServiceError(w, r, err, h.logger, "update_settings")
		return
	}

	h.auditor.LogAdminChange(r.Context(), audit.AdminChangeDetails{Action: "update", Resource: "settings"})
	writeData(w, http.StatusOK, settings, h.logger)
}
