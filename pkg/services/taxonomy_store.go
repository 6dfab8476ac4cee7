package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/apperrors"
	"github.com/facilitymap/facility-engine/pkg/cache"
	"github.com/facilitymap/facility-engine/pkg/events"
	"github.com/facilitymap/facility-engine/pkg/models"
	"github.com/facilitymap/facility-engine/pkg/repositories"
)

// maxSlugAttempts bounds retries when a concurrent write takes the slug
// between the collision check and the insert.
const maxSlugAttempts = 3

// TaxonomyStore manages the items of one taxonomy type.
type TaxonomyStore interface {
	// Type returns the taxonomy type this store manages.
	Type() string

	// Add creates an item with a unique slug derived from name.
	Add(ctx context.Context, name, description string) (int64, error)

	// Update renames an item. The slug only changes when the name does.
	Update(ctx context.Context, id int64, name, description string) error

	// Delete removes an item. Facilities keep referencing the ID.
	// Returns false when the item did not exist.
	Delete(ctx context.Context, id int64) (bool, error)

	GetAll(ctx context.Context) ([]*models.TaxonomyItem, error)

	// GetByID returns nil, nil when the item does not exist.
	GetByID(ctx context.Context, id int64) (*models.TaxonomyItem, error)

	// GetUsageCount returns how many facilities reference the item.
	GetUsageCount(ctx context.Context, id int64) (int, error)
}

// TaxonomyUsageCounter counts facilities tagged with a taxonomy item.
type TaxonomyUsageCounter interface {
	CountByTaxonomyItem(ctx context.Context, taxonomyType string, itemID int64) (int, error)
}

type taxonomyStore struct {
	taxonomyType string
	repo         repositories.TaxonomyRepository
	usage        TaxonomyUsageCounter
	cache        *cache.TieredCache
	events       events.Publisher
	logger       *zap.Logger
}

// NewTaxonomyStore creates the store for one taxonomy type.
func NewTaxonomyStore(
	taxonomyType string,
	repo repositories.TaxonomyRepository,
	usage TaxonomyUsageCounter,
	tieredCache *cache.TieredCache,
	publisher events.Publisher,
	logger *zap.Logger,
) TaxonomyStore {
	return &taxonomyStore{
		taxonomyType: taxonomyType,
		repo:         repo,
		usage:        usage,
		cache:        tieredCache,
		events:       publisher,
		logger:       logger.Named("taxonomy-store").With(zap.String("taxonomy_type", taxonomyType)),
	}
}

var _ TaxonomyStore = (*taxonomyStore)(nil)

func (s *taxonomyStore) Type() string {
	return s.taxonomyType
}

func (s *taxonomyStore) Add(ctx context.Context, name, description string) (int64, error) {
	name = strings.TrimSpace(name)
	if err := requireText("name", name); err != nil {
		return 0, err
	}

	item := &models.TaxonomyItem{
		Type:        s.taxonomyType,
		Name:        name,
		Description: strings.TrimSpace(description),
	}

	err := s.withUniqueSlug(ctx, name, 0, func(slug string) error {
		item.Slug = slug
		return s.repo.Create(ctx, item)
	})
	if err != nil {
		return 0, apperrors.NewStorageError("add taxonomy item", err)
	}

	s.logger.Info("Created taxonomy item",
		zap.Int64("id", item.ID),
		zap.String("slug", item.Slug))

	s.events.Publish(ctx, events.Event{
		Kind:         events.TaxonomyItemCreated,
		TaxonomyType: s.taxonomyType,
		TaxonomyID:   item.ID,
	})
	return item.ID, nil
}

func (s *taxonomyStore) Update(ctx context.Context, id int64, name, description string) error {
	existing, err := s.repo.GetByID(ctx, s.taxonomyType, id)
	if err != nil {
		return apperrors.NewStorageError("get taxonomy item", err)
	}
	if existing == nil {
		return apperrors.ErrNotFound
	}

	name = strings.TrimSpace(name)
	if err := requireText("name", name); err != nil {
		return err
	}

	existing.Description = strings.TrimSpace(description)
	if name == existing.Name {
		err = s.repo.Update(ctx, existing)
	} else {
		existing.Name = name
		err = s.withUniqueSlug(ctx, name, id, func(slug string) error {
			existing.Slug = slug
			return s.repo.Update(ctx, existing)
		})
	}
	if err != nil {
		return apperrors.NewStorageError("update taxonomy item", err)
	}

	s.events.Publish(ctx, events.Event{
		Kind:         events.TaxonomyItemUpdated,
		TaxonomyType: s.taxonomyType,
		TaxonomyID:   id,
	})
	return nil
}

// withUniqueSlug picks a free slug for name and calls write with it,
// choosing again if write reports the slug was taken meanwhile.
func (s *taxonomyStore) withUniqueSlug(ctx context.Context, name string, excludeID int64, write func(slug string) error) error {
	base := Slugify(name)

	var err error
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		var taken []string
		taken, err = s.repo.SlugsWithPrefix(ctx, s.taxonomyType, base, excludeID)
		if err != nil {
			return err
		}

		err = write(uniqueSlug(base, taken))
		if !errors.Is(err, apperrors.ErrConflict) {
			return err
		}
		s.logger.Debug("Slug taken concurrently, retrying",
			zap.String("base", base),
			zap.Int("attempt", attempt))
	}
	return err
}

func (s *taxonomyStore) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.repo.Delete(ctx, s.taxonomyType, id)
	if err != nil {
		return false, apperrors.NewStorageError("delete taxonomy item", err)
	}
	if !deleted {
		return false, nil
	}

	s.events.Publish(ctx, events.Event{
		Kind:         events.TaxonomyItemDeleted,
		TaxonomyType: s.taxonomyType,
		TaxonomyID:   id,
	})
	return true, nil
}

func (s *taxonomyStore) GetAll(ctx context.Context) ([]*models.TaxonomyItem, error) {
	items, err := s.repo.ListByType(ctx, s.taxonomyType)
	if err != nil {
		return nil, apperrors.NewStorageError("list taxonomy items", err)
	}
	return items, nil
}

func (s *taxonomyStore) GetByID(ctx context.Context, id int64) (*models.TaxonomyItem, error) {
	item, err := s.repo.GetByID(ctx, s.taxonomyType, id)
	if err != nil {
		return nil, apperrors.NewStorageError("get taxonomy item", err)
	}
	return item, nil
}

// GetUsageCount is cached in the facilities group: any facility write can
// change it and flushes that group.
func (s *taxonomyStore) GetUsageCount(ctx context.Context, id int64) (int, error) {
	key := fmt.Sprintf("usage:%s:%d", s.taxonomyType, id)
	return cache.Remember(ctx, s.cache, cache.GroupFacilities, key, func(ctx context.Context) (int, error) {
		count, err := s.usage.CountByTaxonomyItem(ctx, s.taxonomyType, id)
		if err != nil {
			return 0, apperrors.NewStorageError("count taxonomy usage", err)
		}
		return count, nil
	})
}
