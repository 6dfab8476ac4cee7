package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/apperrors"
	"github.com/facilitymap/facility-engine/pkg/audit"
	"github.com/facilitymap/facility-engine/pkg/models"
)

func newTaxonomiesMux(t *testing.T, manager *mockTaxonomyManager, auditor *audit.SecurityAuditor) *http.ServeMux {
	t.Helper()
	if auditor == nil {
		auditor = audit.NewSecurityAuditor(zap.NewNop())
	}
	handler := NewTaxonomiesHandler(manager, auditor, zap.NewNop())
	return newTestMux(t, func(mux *http.ServeMux) { handler.RegisterRoutes(mux, passThrough) })
}

func TestTaxonomiesHandler_Filters(t *testing.T) {
	manager := newMockTaxonomyManager()
	manager.filters = []models.TaxonomyFilter{{
		Type:          models.TaxonomyFeatures,
		Label:         "Features",
		SingularLabel: "Feature",
		Items:         []models.TaxonomyItemSummary{{ID: 1, Name: "Pool", Slug: "pool"}},
	}}
	mux := newTaxonomiesMux(t, manager, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/filters", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var filters []models.TaxonomyFilter
	decodeEnvelope(t, rec, &filters)
	assert.Equal(t, manager.filters, filters)
}

func TestTaxonomiesHandler_CreateAndList(t *testing.T) {
	manager := newMockTaxonomyManager()
	auditor, logs := newObservedAuditor()
	mux := newTaxonomiesMux(t, manager, auditor)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/taxonomies/therapies",
		strings.NewReader(`{"name":"Art Therapy","description":"Creative work"}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var item models.TaxonomyItem
	decodeEnvelope(t, rec, &item)
	assert.Equal(t, int64(1), item.ID)
	assert.Equal(t, "Art Therapy", item.Name)

	entries := logs.FilterMessage("Admin change").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "therapies", entries[0].ContextMap()["resource"])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/taxonomies/therapies", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var list TaxonomyItemListResponse
	decodeEnvelope(t, rec, &list)
	assert.Equal(t, "therapies", list.Type)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Creative work", list.Items[0].Description)
}

func TestTaxonomiesHandler_CreateRequiresName(t *testing.T) {
	mux := newTaxonomiesMux(t, newMockTaxonomyManager(), nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/taxonomies/features", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name", decodeError(t, rec)["field"])
}

func TestTaxonomiesHandler_UnknownType(t *testing.T) {
	mux := newTaxonomiesMux(t, newMockTaxonomyManager(), nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/taxonomies/amenities", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_taxonomy_type", decodeError(t, rec)["error"])
}

func TestTaxonomiesHandler_Update(t *testing.T) {
	manager := newMockTaxonomyManager()
	store := manager.stores[models.TaxonomyLocation]
	_, err := store.Add(t.Context(), "Coastal", "")
	require.NoError(t, err)
	mux := newTaxonomiesMux(t, manager, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/admin/taxonomies/location/1",
		strings.NewReader(`{"name":"Oceanfront"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var item models.TaxonomyItem
	decodeEnvelope(t, rec, &item)
	assert.Equal(t, "Oceanfront", item.Name)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/admin/taxonomies/location/42",
		strings.NewReader(`{"name":"Inland"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaxonomiesHandler_DeleteIsIdempotent(t *testing.T) {
	manager := newMockTaxonomyManager()
	store := manager.stores[models.TaxonomyFeatures]
	_, err := store.Add(t.Context(), "Pool", "")
	require.NoError(t, err)
	auditor, logs := newObservedAuditor()
	mux := newTaxonomiesMux(t, manager, auditor)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/admin/taxonomies/features/1", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	assert.Empty(t, store.items)
	assert.True(t, store.deleteMissed)
	assert.Equal(t, 1, logs.FilterMessage("Admin change").Len())
}

func TestTaxonomiesHandler_Usage(t *testing.T) {
	manager := newMockTaxonomyManager()
	manager.stores[models.TaxonomyInsuranceProviders].usage = 4
	mux := newTaxonomiesMux(t, manager, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/taxonomies/insurance_providers/9/usage", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var usage TaxonomyUsageResponse
	decodeEnvelope(t, rec, &usage)
	assert.Equal(t, TaxonomyUsageResponse{ID: 9, Count: 4}, usage)
}

func TestTaxonomiesHandler_StorageFailure(t *testing.T) {
	manager := newMockTaxonomyManager()
	manager.stores[models.TaxonomyFeatures].err = apperrors.NewStorageError("list taxonomy items", errors.New("timeout"))
	mux := newTaxonomiesMux(t, manager, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/taxonomies/features", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "list_taxonomy_items_failed", decodeError(t, rec)["error"])
}
