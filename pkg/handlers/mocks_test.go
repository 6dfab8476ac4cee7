package handlers

import (
	"context"
	"net/http"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/facilitymap/facility-engine/pkg/apperrors"
	"github.com/facilitymap/facility-engine/pkg/audit"
	"github.com/facilitymap/facility-engine/pkg/models"
	"github.com/facilitymap/facility-engine/pkg/services"
)

// ============================================================================
// Facility service mock
// ============================================================================

type mockFacilityService struct {
	facilities []*models.FormattedFacility
	facility   *models.FormattedFacility
	total      int
	addedID    int64
	updated    bool
	deleted    bool
	err        error

	lastCriteria models.FilterCriteria
	lastInput    *models.FacilityInput
	lastID       int64
}

var _ services.FacilityService = (*mockFacilityService)(nil)

func (m *mockFacilityService) GetFacilities(ctx context.Context, criteria models.FilterCriteria) ([]*models.FormattedFacility, error) {
	m.lastCriteria = criteria
	return m.facilities, m.err
}

func (m *mockFacilityService) CountFacilities(ctx context.Context, criteria models.FilterCriteria) (int, error) {
	return m.total, m.err
}

func (m *mockFacilityService) GetFacility(ctx context.Context, id int64) (*models.FormattedFacility, error) {
	m.lastID = id
	return m.facility, m.err
}

func (m *mockFacilityService) AddFacility(ctx context.Context, input *models.FacilityInput) (int64, error) {
	m.lastInput = input
	if m.err != nil {
		return 0, m.err
	}
	return m.addedID, nil
}

func (m *mockFacilityService) UpdateFacility(ctx context.Context, id int64, input *models.FacilityInput) (bool, error) {
	m.lastID, m.lastInput = id, input
	return m.updated, m.err
}

func (m *mockFacilityService) DeleteFacility(ctx context.Context, id int64) (bool, error) {
	m.lastID = id
	return m.deleted, m.err
}

// ============================================================================
// Taxonomy mocks
// ============================================================================

type mockTaxonomyStore struct {
	taxonomyType string
	items        map[int64]*models.TaxonomyItem
	nextID       int64
	usage        int
	err          error
	deleteMissed bool
}

var _ services.TaxonomyStore = (*mockTaxonomyStore)(nil)

func newMockTaxonomyStore(taxonomyType string) *mockTaxonomyStore {
	return &mockTaxonomyStore{taxonomyType: taxonomyType, items: make(map[int64]*models.TaxonomyItem)}
}

func (m *mockTaxonomyStore) Type() string { return m.taxonomyType }

func (m *mockTaxonomyStore) Add(ctx context.Context, name, description string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	if name == "" {
		return 0, apperrors.NewValidationError("name", "is required")
	}
	m.nextID++
	m.items[m.nextID] = &models.TaxonomyItem{ID: m.nextID, Type: m.taxonomyType, Name: name, Description: description}
	return m.nextID, nil
}

func (m *mockTaxonomyStore) Update(ctx context.Context, id int64, name, description string) error {
	if m.err != nil {
		return m.err
	}
	item, ok := m.items[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	item.Name, item.Description = name, description
	return nil
}

func (m *mockTaxonomyStore) Delete(ctx context.Context, id int64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.items[id]; !ok {
		m.deleteMissed = true
		return false, nil
	}
	delete(m.items, id)
	return true, nil
}

func (m *mockTaxonomyStore) GetAll(ctx context.Context) ([]*models.TaxonomyItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	items := make([]*models.TaxonomyItem, 0, len(m.items))
	for id := int64(1); id <= m.nextID; id++ {
		if item, ok := m.items[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (m *mockTaxonomyStore) GetByID(ctx context.Context, id int64) (*models.TaxonomyItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.items[id], nil
}

func (m *mockTaxonomyStore) GetUsageCount(ctx context.Context, id int64) (int, error) {
	return m.usage, m.err
}

type mockTaxonomyManager struct {
	stores  map[string]*mockTaxonomyStore
	filters []models.TaxonomyFilter
	err     error
}

var _ services.TaxonomyManager = (*mockTaxonomyManager)(nil)

func newMockTaxonomyManager() *mockTaxonomyManager {
	m := &mockTaxonomyManager{stores: make(map[string]*mockTaxonomyStore)}
	for _, t := range models.TaxonomyTypes {
		m.stores[t] = newMockTaxonomyStore(t)
	}
	return m
}

func (m *mockTaxonomyManager) GetTaxonomy(taxonomyType string) services.TaxonomyStore {
	store, ok := m.stores[taxonomyType]
	if !ok {
		return nil
	}
	return store
}

func (m *mockTaxonomyManager) GetAllTaxonomies() []services.TaxonomyStore {
	out := make([]services.TaxonomyStore, 0, len(models.TaxonomyTypes))
	for _, t := range models.TaxonomyTypes {
		out = append(out, m.stores[t])
	}
	return out
}

func (m *mockTaxonomyManager) VerifyTaxonomyIDs(ctx context.Context, taxonomyType string, ids []int64) ([]int64, error) {
	return ids, m.err
}

func (m *mockTaxonomyManager) GetAllForFilters(ctx context.Context) ([]models.TaxonomyFilter, error) {
	return m.filters, m.err
}

func (m *mockTaxonomyManager) Index(ctx context.Context) (services.TaxonomyIndex, error) {
	return services.TaxonomyIndex{}, m.err
}

func (m *mockTaxonomyManager) Seed(ctx context.Context, path string) (int, error) {
	return 0, m.err
}

// ============================================================================
// Settings and cache mocks
// ============================================================================

type mockSettingsService struct {
	settings *models.MapSettings
	saved    *models.MapSettings
	err      error
}

var _ services.SettingsService = (*mockSettingsService)(nil)

func (m *mockSettingsService) Get(ctx context.Context) (*models.MapSettings, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.settings != nil {
		return m.settings, nil
	}
	defaults := models.DefaultMapSettings()
	return &defaults, nil
}

func (m *mockSettingsService) Update(ctx context.Context, settings *models.MapSettings) error {
	if m.err != nil {
		return m.err
	}
	if settings.DefaultZoom < 1 || settings.DefaultZoom > 21 {
		return apperrors.NewValidationError("default_zoom", "must be between 1 and 21")
	}
	m.saved = settings
	return nil
}

type mockCacheFlusher struct {
	calls int
	err   error
}

func (m *mockCacheFlusher) FlushCache(ctx context.Context) error {
	m.calls++
	return m.err
}

// ============================================================================
// Helpers
// ============================================================================

// passThrough stands in for the admin key middleware.
func passThrough(next http.Handler) http.Handler { return next }

// newObservedAuditor returns an auditor whose log entries can be inspected.
func newObservedAuditor() (*audit.SecurityAuditor, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return audit.NewSecurityAuditor(zap.New(core)), logs
}

func newTestMux(t *testing.T, register func(mux *http.ServeMux)) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	register(mux)
	return mux
}
