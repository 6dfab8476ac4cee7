package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/apperrors"
	"github.com/facilitymap/facility-engine/pkg/audit"
	"github.com/facilitymap/facility-engine/pkg/cache"
	"github.com/facilitymap/facility-engine/pkg/events"
	"github.com/facilitymap/facility-engine/pkg/models"
	"github.com/facilitymap/facility-engine/pkg/repositories"
)

// ============================================================================
// Facility repository mock
// ============================================================================

// mockFacilityRepository keeps facilities in memory and applies the same
// filter semantics as the SQL query.
type mockFacilityRepository struct {
	mu         sync.Mutex
	facilities map[int64]*models.Facility
	nextID     int64

	listCalls int
	// afterList runs once List has read its snapshot, outside the lock.
	afterList func()
	createErr error
	updateErr error
	listErr   error
}

func newMockFacilityRepository() *mockFacilityRepository {
	return &mockFacilityRepository{facilities: make(map[int64]*models.Facility)}
}

func cloneFacility(f *models.Facility) *models.Facility {
	c := *f
	c.Taxonomies = f.Taxonomies.Clone()
	c.Images = append([]string{}, f.Images...)
	return &c
}

func (m *mockFacilityRepository) Create(ctx context.Context, f *models.Facility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	now := time.Now().UTC().Truncate(time.Microsecond)
	f.ID, f.CreatedAt, f.UpdatedAt = m.nextID, now, now
	m.facilities[f.ID] = cloneFacility(f)
	return nil
}

func (m *mockFacilityRepository) Update(ctx context.Context, f *models.Facility, expectedUpdatedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.facilities[f.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if expectedUpdatedAt != nil && !stored.UpdatedAt.Equal(*expectedUpdatedAt) {
		return apperrors.ErrConflict
	}
	f.CreatedAt = stored.CreatedAt
	f.UpdatedAt = stored.UpdatedAt.Add(time.Millisecond)
	m.facilities[f.ID] = cloneFacility(f)
	return nil
}

func (m *mockFacilityRepository) Delete(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.facilities[id]
	delete(m.facilities, id)
	return ok, nil
}

func (m *mockFacilityRepository) GetByID(ctx context.Context, id int64) (*models.Facility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.facilities[id]
	if !ok {
		return nil, nil
	}
	return cloneFacility(f), nil
}

func (m *mockFacilityRepository) matching(q models.FacilityQuery) []*models.Facility {
	var out []*models.Facility
	search := strings.ToLower(q.Search)
	for _, f := range m.facilities {
		if search != "" &&
			!strings.Contains(strings.ToLower(f.Name), search) &&
			!strings.Contains(strings.ToLower(f.Address), search) &&
			!strings.Contains(strings.ToLower(f.Description), search) {
			continue
		}
		if q.Bounds != nil && !q.Bounds.Contains(f.Lat, f.Lng) {
			continue
		}
		match := true
		for taxonomyType, ids := range q.Taxonomies {
			if !slices.ContainsFunc(ids, func(id int64) bool { return f.Taxonomies.Contains(taxonomyType, id) }) {
				match = false
				break
			}
		}
		if match {
			out = append(out, cloneFacility(f))
		}
	}
	slices.SortFunc(out, func(a, b *models.Facility) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return out
}

func (m *mockFacilityRepository) List(ctx context.Context, q models.FacilityQuery) ([]*models.Facility, error) {
	out, err := m.list(q)
	if m.afterList != nil {
		m.afterList()
	}
	return out, err
}

func (m *mockFacilityRepository) list(q models.FacilityQuery) ([]*models.Facility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := m.matching(q)
	if q.Offset >= len(out) {
		return []*models.Facility{}, nil
	}
	out = out[q.Offset:]
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *mockFacilityRepository) Count(ctx context.Context, q models.FacilityQuery) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(q)), nil
}

func (m *mockFacilityRepository) CountByTaxonomyItem(ctx context.Context, taxonomyType string, itemID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, f := range m.facilities {
		if f.Taxonomies.Contains(taxonomyType, itemID) {
			count++
		}
	}
	return count, nil
}

var _ repositories.FacilityRepository = (*mockFacilityRepository)(nil)

// ============================================================================
// Taxonomy repository mock
// ============================================================================

type mockTaxonomyRepository struct {
	mu     sync.Mutex
	items  map[int64]*models.TaxonomyItem
	nextID int64

	// conflictsOnCreate makes the next N Create calls report a slug race.
	conflictsOnCreate int
	listErr           error
}

func newMockTaxonomyRepository() *mockTaxonomyRepository {
	return &mockTaxonomyRepository{items: make(map[int64]*models.TaxonomyItem)}
}

func (m *mockTaxonomyRepository) slugTaken(taxonomyType, slug string, excludeID int64) bool {
	for _, item := range m.items {
		if item.Type == taxonomyType && item.Slug == slug && item.ID != excludeID {
			return true
		}
	}
	return false
}

func (m *mockTaxonomyRepository) Create(ctx context.Context, item *models.TaxonomyItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictsOnCreate > 0 {
		m.conflictsOnCreate--
		return apperrors.ErrConflict
	}
	if m.slugTaken(item.Type, item.Slug, 0) {
		return apperrors.ErrConflict
	}
	m.nextID++
	item.ID = m.nextID
	c := *item
	m.items[item.ID] = &c
	return nil
}

func (m *mockTaxonomyRepository) Update(ctx context.Context, item *models.TaxonomyItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[item.ID]
	if !ok || stored.Type != item.Type {
		return apperrors.ErrNotFound
	}
	if m.slugTaken(item.Type, item.Slug, item.ID) {
		return apperrors.ErrConflict
	}
	c := *item
	m.items[item.ID] = &c
	return nil
}

func (m *mockTaxonomyRepository) Delete(ctx context.Context, taxonomyType string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.Type != taxonomyType {
		return false, nil
	}
	delete(m.items, id)
	return true, nil
}

func (m *mockTaxonomyRepository) GetByID(ctx context.Context, taxonomyType string, id int64) (*models.TaxonomyItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.Type != taxonomyType {
		return nil, nil
	}
	c := *item
	return &c, nil
}

func (m *mockTaxonomyRepository) ListByType(ctx context.Context, taxonomyType string) ([]*models.TaxonomyItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	items := make([]*models.TaxonomyItem, 0)
	for _, item := range m.items {
		if item.Type == taxonomyType {
			c := *item
			items = append(items, &c)
		}
	}
	slices.SortFunc(items, func(a, b *models.TaxonomyItem) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return items, nil
}

func (m *mockTaxonomyRepository) SlugsWithPrefix(ctx context.Context, taxonomyType, prefix string, excludeID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var slugs []string
	for _, item := range m.items {
		if item.Type != taxonomyType || item.ID == excludeID {
			continue
		}
		if item.Slug == prefix || strings.HasPrefix(item.Slug, prefix+"-") {
			slugs = append(slugs, item.Slug)
		}
	}
	return slugs, nil
}

func (m *mockTaxonomyRepository) ExistingIDs(ctx context.Context, taxonomyType string, ids []int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := []int64{}
	for _, id := range ids {
		if item, ok := m.items[id]; ok && item.Type == taxonomyType {
			existing = append(existing, id)
		}
	}
	return existing, nil
}

var _ repositories.TaxonomyRepository = (*mockTaxonomyRepository)(nil)

// ============================================================================
// Settings repository mock
// ============================================================================

type mockSettingsRepository struct {
	settings *models.MapSettings
	getCalls int
	saveErr  error
}

func (m *mockSettingsRepository) GetMapSettings(ctx context.Context) (*models.MapSettings, error) {
	m.getCalls++
	if m.settings == nil {
		return nil, nil
	}
	c := *m.settings
	return &c, nil
}

func (m *mockSettingsRepository) SaveMapSettings(ctx context.Context, settings *models.MapSettings) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	c := *settings
	m.settings = &c
	return nil
}

var _ repositories.SettingsRepository = (*mockSettingsRepository)(nil)

// ============================================================================
// Blob store mock
// ============================================================================

type mockBlobStore struct {
	deleted []string
	failKey string
}

func (m *mockBlobStore) Driver() string { return "mock" }

func (m *mockBlobStore) Delete(ctx context.Context, key string) error {
	if key == m.failKey {
		return errors.New("permission denied")
	}
	m.deleted = append(m.deleted, key)
	return nil
}

// ============================================================================
// Test fixture
// ============================================================================

type testDirectory struct {
	*Directory
	facilityRepo *mockFacilityRepository
	taxonomyRepo *mockTaxonomyRepository
	settingsRepo *mockSettingsRepository
	fastTier     *cache.MemoryStore
	bus          *events.Bus
}

func newTestDirectory(t *testing.T) *testDirectory {
	t.Helper()

	fast, err := cache.NewMemoryStore(256)
	require.NoError(t, err)

	logger := zap.NewNop()
	tiered := cache.NewTieredCache(fast, nil, cache.Options{
		Prefix:  "fm",
		Version: "v1",
		TTLs: map[cache.Group]time.Duration{
			cache.GroupFacilities: time.Hour,
			cache.GroupTaxonomies: time.Hour,
			cache.GroupFrontend:   time.Hour,
		},
	}, logger)

	td := &testDirectory{
		facilityRepo: newMockFacilityRepository(),
		taxonomyRepo: newMockTaxonomyRepository(),
		settingsRepo: &mockSettingsRepository{},
		fastTier:     fast,
		bus:          events.NewBus(logger),
	}
	td.Directory = NewDirectory(DirectoryDeps{
		FacilityRepo: td.facilityRepo,
		TaxonomyRepo: td.taxonomyRepo,
		SettingsRepo: td.settingsRepo,
		Cache:        tiered,
		Bus:          td.bus,
		Auditor:      audit.NewSecurityAuditor(logger),
		Logger:       logger,
	})
	return td
}

func ptr[T any](v T) *T { return &v }

// validInput returns a minimal facility input that passes validation.
func validInput(name string) *models.FacilityInput {
	return &models.FacilityInput{
		Name:    name,
		Address: "1 Main St",
		Lat:     ptr(40.0),
		Lng:     ptr(-75.0),
	}
}

func (td *testDirectory) addItem(t *testing.T, taxonomyType, name string) int64 {
	t.Helper()
	id, err := td.Taxonomies.GetTaxonomy(taxonomyType).Add(context.Background(), name, "")
	require.NoError(t, err)
	return id
}
