package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/apperrors"
	"github.com/facilitymap/facility-engine/pkg/cache"
	"github.com/facilitymap/facility-engine/pkg/events"
	"github.com/facilitymap/facility-engine/pkg/models"
	"github.com/facilitymap/facility-engine/pkg/repositories"
)

const filtersCacheKey = "filters"

// TaxonomyManager is the registry of taxonomy stores, one per supported type.
type TaxonomyManager interface {
	// GetTaxonomy returns the store for taxonomyType, or nil for unknown types.
	GetTaxonomy(taxonomyType string) TaxonomyStore

	// GetAllTaxonomies returns every store in canonical type order.
	GetAllTaxonomies() []TaxonomyStore

	// VerifyTaxonomyIDs returns the IDs that exist for taxonomyType, keeping
	// input order and dropping duplicates.
	VerifyTaxonomyIDs(ctx context.Context, taxonomyType string, ids []int64) ([]int64, error)

	// GetAllForFilters returns every type with its items, for filter UIs.
	GetAllForFilters(ctx context.Context) ([]models.TaxonomyFilter, error)

	// Index returns the lookup used to resolve IDs on formatted facilities.
	Index(ctx context.Context) (TaxonomyIndex, error)

	// Seed creates the items listed in a YAML seed file that do not exist yet.
	Seed(ctx context.Context, path string) (int, error)
}

type taxonomyManager struct {
	repo   repositories.TaxonomyRepository
	usage  TaxonomyUsageCounter
	cache  *cache.TieredCache
	events events.Publisher
	logger *zap.Logger

	mu     sync.Mutex
	stores map[string]TaxonomyStore
}

// NewTaxonomyManager creates a manager. Stores are built on first access.
func NewTaxonomyManager(
	repo repositories.TaxonomyRepository,
	usage TaxonomyUsageCounter,
	tieredCache *cache.TieredCache,
	publisher events.Publisher,
	logger *zap.Logger,
) TaxonomyManager {
	return &taxonomyManager{
		repo:   repo,
		usage:  usage,
		cache:  tieredCache,
		events: publisher,
		logger: logger,
		stores: make(map[string]TaxonomyStore, len(models.TaxonomyTypes)),
	}
}

var _ TaxonomyManager = (*taxonomyManager)(nil)

func (m *taxonomyManager) GetTaxonomy(taxonomyType string) TaxonomyStore {
	if !models.IsTaxonomyType(taxonomyType) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	store, ok := m.stores[taxonomyType]
	if !ok {
		store = NewTaxonomyStore(taxonomyType, m.repo, m.usage, m.cache, m.events, m.logger)
		m.stores[taxonomyType] = store
	}
	return store
}

func (m *taxonomyManager) GetAllTaxonomies() []TaxonomyStore {
	stores := make([]TaxonomyStore, 0, len(models.TaxonomyTypes))
	for _, taxonomyType := range models.TaxonomyTypes {
		stores = append(stores, m.GetTaxonomy(taxonomyType))
	}
	return stores
}

func (m *taxonomyManager) VerifyTaxonomyIDs(ctx context.Context, taxonomyType string, ids []int64) ([]int64, error) {
	ids = dedupeIDs(ids)
	if !models.IsTaxonomyType(taxonomyType) || len(ids) == 0 {
		return []int64{}, nil
	}

	existing, err := m.repo.ExistingIDs(ctx, taxonomyType, ids)
	if err != nil {
		return nil, apperrors.NewStorageError("verify taxonomy ids", err)
	}

	found := make(map[int64]bool, len(existing))
	for _, id := range existing {
		found[id] = true
	}
	verified := make([]int64, 0, len(existing))
	for _, id := range ids {
		if found[id] {
			verified = append(verified, id)
		}
	}
	return verified, nil
}

func (m *taxonomyManager) GetAllForFilters(ctx context.Context) ([]models.TaxonomyFilter, error) {
	return cache.Remember(ctx, m.cache, cache.GroupTaxonomies, filtersCacheKey, func(ctx context.Context) ([]models.TaxonomyFilter, error) {
		filters := make([]models.TaxonomyFilter, 0, len(models.TaxonomyTypes))
		for _, store := range m.GetAllTaxonomies() {
			items, err := store.GetAll(ctx)
			if err != nil {
				return nil, err
			}

			summaries := make([]models.TaxonomyItemSummary, 0, len(items))
			for _, item := range items {
				summaries = append(summaries, item.Summary())
			}
			filters = append(filters, models.TaxonomyFilter{
				Type:          store.Type(),
				Label:         models.TaxonomyLabel(store.Type()),
				SingularLabel: models.TaxonomySingularLabel(store.Type()),
				Items:         summaries,
			})
		}
		return filters, nil
	})
}

func (m *taxonomyManager) Index(ctx context.Context) (TaxonomyIndex, error) {
	filters, err := m.GetAllForFilters(ctx)
	if err != nil {
		return nil, err
	}
	return newTaxonomyIndex(filters), nil
}
