package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/audit"
	"github.com/facilitymap/facility-engine/pkg/models"
	"github.com/facilitymap/facility-engine/pkg/services"
)

// Middleware wraps a handler, e.g. to require the admin API key.
type Middleware func(http.Handler) http.Handler

// ============================================================================
// Request/Response Types
// ============================================================================

// FacilityListResponse for GET /api/facilities
type FacilityListResponse struct {
	Facilities []*models.FormattedFacility `json:"facilities"`
	Total      int                         `json:"total"`
}

// FacilityIDResponse for POST /api/admin/facilities
type FacilityIDResponse struct {
	ID int64 `json:"id"`
}

// ============================================================================
// Handler
// ============================================================================

// FacilitiesHandler handles facility HTTP requests.
type FacilitiesHandler struct {
	facilities services.FacilityService
	auditor    *audit.SecurityAuditor
	logger     *zap.Logger
}

// NewFacilitiesHandler creates a new facilities handler.
func NewFacilitiesHandler(
	facilities services.FacilityService,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) *FacilitiesHandler {
	return &FacilitiesHandler{
		facilities: facilities,
		auditor:    auditor,
		logger:     logger,
	}
}

// RegisterRoutes registers the public and admin facility routes on the given mux.
func (h *FacilitiesHandler) RegisterRoutes(mux *http.ServeMux, admin Middleware) {
	mux.HandleFunc("GET /api/facilities", h.List)
	mux.HandleFunc("GET /api/facilities/{id}", h.Get)

	mux.Handle("POST /api/admin/facilities", admin(http.HandlerFunc(h.Create)))
	mux.Handle("PUT /api/admin/facilities/{id}", admin(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/admin/facilities/{id}", admin(http.HandlerFunc(h.Delete)))
}

// List handles GET /api/facilities
func (h *FacilitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	criteria := ParseFilterCriteria(r)

	facilities, err := h.facilities.GetFacilities(r.Context(), criteria)
	if err != nil {
		writeServiceError(w, r, err, h.logger, "list_facilities")
		return
	}
	total, err := h.facilities.CountFacilities(r.Context(), criteria)
	if err != nil {
		writeServiceError(w, r, err, h.logger, "list_facilities")
		return
	}

	writeData(w, http.StatusOK, FacilityListResponse{Facilities: facilities, Total: total}, h.logger)
}

// Get handles GET /api/facilities/{id}
func (h *FacilitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseFacilityID(w, r, h.logger)
	if !ok {
		return
	}

	facility, err := h.facilities.GetFacility(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, h.logger, "get_facility")
		return
	}
	if facility == nil {
		if err := ErrorResponse(w, http.StatusNotFound, "facility_not_found", "Facility not found"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	writeData(w, http.StatusOK, facility, h.logger)
}

// Create handles POST /api/admin/facilities
func (h *FacilitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input models.FacilityInput
	if !decodeJSON(w, r, &input, h.logger) {
		return
	}

	id, err := h.facilities.AddFacility(r.Context(), &input)
	if err != nil {
		writeServiceError(w, r, err, h.logger, "create_facility")
		return
	}

	h.auditor.LogAdminChange(r.Context(), audit.AdminChangeDetails{Action: "create", Resource: "facility", ID: id})
	writeData(w, http.StatusCreated, FacilityIDResponse{ID: id}, h.logger)
}

// Update handles PUT /api/admin/facilities/{id}
func (h *FacilitiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseFacilityID(w, r, h.logger)
	if !ok {
		return
	}

	var input models.FacilityInput
	if !decodeJSON(w, r, &input, h.logger) {
		return
	}

	if _, err := h.facilities.UpdateFacility(r.Context(), id, &input); err != nil {
		writeServiceError(w, r, err, h.logger, "update_facility")
		return
	}

	h.auditor.LogAdminChange(r.Context(), audit.AdminChangeDetails{Action: "update", Resource: "facility", ID: id})
	writeData(w, http.StatusOK, FacilityIDResponse{ID: id}, h.logger)
}

// Delete handles DELETE /api/admin/facilities/{id}
func (h *FacilitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseFacilityID(w, r, h.logger)
	if !ok {
		return
	}

	deleted, err := h.facilities.DeleteFacility(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, h.logger, "delete_facility")
		return
	}
	if !deleted {
		if err := ErrorResponse(w, http.StatusNotFound, "facility_not_found", "Facility not found"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	h.auditor.LogAdminChange(r.Context(), audit.AdminChangeDetails{Action: "delete", Resource: "facility", ID: id})
	w.WriteHeader(http.StatusNoContent)
}
