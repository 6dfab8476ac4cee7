package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/models"
)

// ParseFacilityID extracts and validates the facility ID from the request path.
// Returns the ID and true on success, or 0 and false on error
// (after writing an error response).
// Expects path parameter: id
func ParseFacilityID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	return parseID(w, r, "id", "invalid_facility_id", "Invalid facility ID", logger)
}

// ParseTaxonomyItemID extracts and validates the taxonomy item ID from the request path.
// Expects path parameter: id
func ParseTaxonomyItemID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	return parseID(w, r, "id", "invalid_taxonomy_item_id", "Invalid taxonomy item ID", logger)
}

// ParseTaxonomyType extracts the taxonomy type from the request path and
// writes a 404 for unknown types.
// Expects path parameter: type
func ParseTaxonomyType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	taxonomyType := r.PathValue("type")
	if !models.IsTaxonomyType(taxonomyType) {
		if err := ErrorResponse(w, http.StatusNotFound, "unknown_taxonomy_type", "Unknown taxonomy type"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return taxonomyType, true
}

// parseID is the internal helper that does the actual parsing work.
func parseID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(pathParam), 10, 64)
	if err != nil || id <= 0 {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return 0, false
	}
	return id, true
}

// ParseFilterCriteria reads raw filter criteria from query parameters:
// search, one parameter per taxonomy type (comma-separated or repeated IDs),
// north/south/east/west, orderby, order, limit and offset. Nothing is
// validated here; malformed values are dropped during normalization.
func ParseFilterCriteria(r *http.Request) models.FilterCriteria {
	query := r.URL.Query()

	criteria := models.FilterCriteria{
		Search:  query.Get("search"),
		OrderBy: query.Get("orderby"),
		Order:   query.Get("order"),
	}
	criteria.Limit, _ = strconv.Atoi(query.Get("limit"))
	criteria.Offset, _ = strconv.Atoi(query.Get("offset"))

	for _, taxonomyType := range models.TaxonomyTypes {
		if values, ok := query[taxonomyType]; ok {
			if criteria.Taxonomies == nil {
				criteria.Taxonomies = make(map[string][]string)
			}
			criteria.Taxonomies[taxonomyType] = values
		}
	}

	for _, side := range []string{"north", "south", "east", "west"} {
		if query.Has(side) {
			if criteria.Bounds == nil {
				criteria.Bounds = make(map[string]string, 4)
			}
			criteria.Bounds[side] = query.Get(side)
		}
	}
	return criteria
}
