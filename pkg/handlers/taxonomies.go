package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/audit"
	"github.com/facilitymap/facility-engine/pkg/models"
	"github.com/facilitymap/facility-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// TaxonomyItemRequest for POST and PUT /api/admin/taxonomies/{type}
type TaxonomyItemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TaxonomyItemListResponse for GET /api/admin/taxonomies/{type}
type TaxonomyItemListResponse struct {
	Type  string                 `json:"type"`
	Items []*models.TaxonomyItem `json:"items"`
}

// TaxonomyUsageResponse for GET /api/admin/taxonomies/{type}/{id}/usage
type TaxonomyUsageResponse struct {
	ID    int64 `json:"id"`
	Count int   `json:"count"`
}

// ============================================================================
// Handler
// ============================================================================

// TaxonomiesHandler handles taxonomy item HTTP requests.
type TaxonomiesHandler struct {
	taxonomies services.TaxonomyManager
	auditor    *audit.SecurityAuditor
	logger     *zap.Logger
}

// NewTaxonomiesHandler creates a new taxonomies handler.
func NewTaxonomiesHandler(
	taxonomies services.TaxonomyManager,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) *TaxonomiesHandler {
	return &TaxonomiesHandler{
		taxonomies: taxonomies,
		auditor:    auditor,
		logger:     logger,
	}
}

// RegisterRoutes registers the taxonomy routes on the given mux.
func (h *TaxonomiesHandler) RegisterRoutes(mux *http.ServeMux, admin Middleware) {
	mux.HandleFunc("GET /api/filters", h.Filters)

	base := "/api/admin/taxonomies/{type}"
	mux.Handle("GET "+base, admin(http.HandlerFunc(h.List)))
	mux.Handle("POST "+base, admin(http.HandlerFunc(h.Create)))
	mux.Handle("PUT "+base+"/{id}", admin(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE "+base+"/{id}", admin(http.HandlerFunc(h.Delete)))
	mux.Handle("GET "+base+"/{id}/usage", admin(http.HandlerFunc(h.Usage)))
}

// Filters handles GET /api/filters
func (h *TaxonomiesHandler) Filters(w http.ResponseWriter, r *http.Request) {
	filters, err := h.taxonomies.GetAllForFilters(r.Context())
	if err != nil {
		writeServiceError(w, r, err, h.logger, "list_filters")
		return
	}
	writeData(w, http.StatusOK, filters, h.logger)
}

// List handles GET /api/admin/taxonomies/{type}
func (h *TaxonomiesHandler) List(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	items, err := store.GetAll(r.Context())
	if err != nil {
		writeServiceError(w, r, err, h.logger, "list_taxonomy_items")
		return
	}
	writeData(w, http.StatusOK, TaxonomyItemListResponse{Type: store.Type(), Items: items}, h.logger)
}

// Create handles POST /api/admin/taxonomies/{type}
func (h *TaxonomiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	var req TaxonomyItemRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	id, err := store.Add(r.Context(), req.Name, req.Description)
	if err != nil {
		writeServiceError(w, r, err, h.logger, "create_taxonomy_item")
		return
	}

	item, err := store.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, h.logger, "create_taxonomy_item")
		return
	}

	h.auditor.LogAdminChange(r.Context(), audit.AdminChangeDetails{Action: "create", Resource: store.Type(), ID: id})
	writeData(w, http.StatusCreated, item, h.logger)
}

// Update handles PUT /api/admin/taxonomies/{type}/{id}
func (h *TaxonomiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := ParseTaxonomyItemID(w, r, h.logger)
	if !ok {
		return
	}

	var req TaxonomyItemRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	if err := store.Update(r.Context(), id, req.Name, req.Description); err != nil {
		writeServiceError(w, r, err, h.logger, "update_taxonomy_item")
		return
	}

	item, err := store.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, h.logger, "update_taxonomy_item")
		return
	}

	h.auditor.LogAdminChange(r.Context(), audit.AdminChangeDetails{Action: "update", Resource: store.Type(), ID: id})
	writeData(w, http.StatusOK, item, h.logger)
}

// Delete handles DELETE /api/admin/taxonomies/{type}/{id}
// Deleting a missing item succeeds: the end state is the same.
func (h *TaxonomiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := ParseTaxonomyItemID(w, r, h.logger)
	if !ok {
		return
	}

	deleted, err := store.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, h.logger, "delete_taxonomy_item")
		return
	}

	if deleted {
		h.auditor.LogAdminChange(r.Context(), audit.AdminChangeDetails{Action: "delete", Resource: store.Type(), ID: id})
	}
	w.WriteHeader(http.StatusNoContent)
}

// Usage handles GET /api/admin/taxonomies/{type}/{id}/usage
func (h *TaxonomiesHandler) Usage(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := ParseTaxonomyItemID(w, r, h.logger)
	if !ok {
		return
	}

	count, err := store.GetUsageCount(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, h.logger, "taxonomy_usage")
		return
	}
	writeData(w, http.StatusOK, TaxonomyUsageResponse{ID: id, Count: count}, h.logger)
}

func (h *TaxonomiesHandler) store(w http.ResponseWriter, r *http.Request) (services.TaxonomyStore, bool) {
	taxonomyType, ok := ParseTaxonomyType(w, r, h.logger)
	if !ok {
		return nil, false
	}
	return h.taxonomies.GetTaxonomy(taxonomyType), true
}
