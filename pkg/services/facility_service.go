package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/apperrors"
	"github.com/facilitymap/facility-engine/pkg/audit"
	"github.com/facilitymap/facility-engine/pkg/cache"
	"github.com/facilitymap/facility-engine/pkg/events"
	"github.com/facilitymap/facility-engine/pkg/models"
	"github.com/facilitymap/facility-engine/pkg/repositories"
	sqlcheck "github.com/facilitymap/facility-engine/pkg/sql"
)

// FacilityService is the read and write API over facilities. Reads are
// served from the cache when possible; every write invalidates the cache
// before it returns, so a read after a write observes it.
type FacilityService interface {
	// GetFacilities returns formatted facilities matching criteria.
	GetFacilities(ctx context.Context, criteria models.FilterCriteria) ([]*models.FormattedFacility, error)

	// CountFacilities counts facilities matching criteria, ignoring paging.
	CountFacilities(ctx context.Context, criteria models.FilterCriteria) (int, error)

	// GetFacility returns nil, nil when the facility does not exist.
	GetFacility(ctx context.Context, id int64) (*models.FormattedFacility, error)

	// AddFacility validates and stores a new facility and returns its ID.
	AddFacility(ctx context.Context, input *models.FacilityInput) (int64, error)

	// UpdateFacility overwrites every field of an existing facility.
	UpdateFacility(ctx context.Context, id int64, input *models.FacilityInput) (bool, error)

	// DeleteFacility returns false when the facility was already gone.
	DeleteFacility(ctx context.Context, id int64) (bool, error)
}

type facilityService struct {
	repo       repositories.FacilityRepository
	taxonomies TaxonomyManager
	cache      *cache.TieredCache
	events     events.Publisher
	auditor    *audit.SecurityAuditor
	policy     *bluemonday.Policy
	logger     *zap.Logger
}

// NewFacilityService creates a new facility service.
func NewFacilityService(
	repo repositories.FacilityRepository,
	taxonomies TaxonomyManager,
	tieredCache *cache.TieredCache,
	publisher events.Publisher,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) FacilityService {
	return &facilityService{
		repo:       repo,
		taxonomies: taxonomies,
		cache:      tieredCache,
		events:     publisher,
		auditor:    auditor,
		policy:     newDescriptionPolicy(),
		logger:     logger.Named("facility-service"),
	}
}

var _ FacilityService = (*facilityService)(nil)

// ============================================================================
// Read Operations
// ============================================================================

func (s *facilityService) GetFacilities(ctx context.Context, criteria models.FilterCriteria) ([]*models.FormattedFacility, error) {
	s.auditCriteria(ctx, criteria)

	q := NormalizeCriteria(criteria)
	key, err := listCacheKey(q)
	if err != nil {
		return nil, err
	}

	return cache.Remember(ctx, s.cache, cache.GroupFacilities, key, func(ctx context.Context) ([]*models.FormattedFacility, error) {
		facilities, err := s.repo.List(ctx, q)
		if err != nil {
			return nil, apperrors.NewStorageError("list facilities", err)
		}

		index, err := s.taxonomies.Index(ctx)
		if err != nil {
			return nil, err
		}

		formatted := make([]*models.FormattedFacility, 0, len(facilities))
		for _, f := range facilities {
			formatted = append(formatted, formatFacility(f, index, s.policy))
		}
		return formatted, nil
	})
}

func (s *facilityService) CountFacilities(ctx context.Context, criteria models.FilterCriteria) (int, error) {
	q := NormalizeCriteria(criteria)
	key, err := countCacheKey(q)
	if err != nil {
		return 0, err
	}

	return cache.Remember(ctx, s.cache, cache.GroupFacilities, key, func(ctx context.Context) (int, error) {
		count, err := s.repo.Count(ctx, q)
		if err != nil {
			return 0, apperrors.NewStorageError("count facilities", err)
		}
		return count, nil
	})
}

func (s *facilityService) GetFacility(ctx context.Context, id int64) (*models.FormattedFacility, error) {
	key := fmt.Sprintf("facility:%d", id)
	return cache.Remember(ctx, s.cache, cache.GroupFacilities, key, func(ctx context.Context) (*models.FormattedFacility, error) {
		f, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, apperrors.NewStorageError("get facility", err)
		}
		if f == nil {
			return nil, nil
		}

		index, err := s.taxonomies.Index(ctx)
		if err != nil {
			return nil, err
		}
		return formatFacility(f, index, s.policy), nil
	})
}

// auditCriteria reports filter values that look like SQL injection. The
// query is parameterized either way, so nothing is rejected here.
func (s *facilityService) auditCriteria(ctx context.Context, criteria models.FilterCriteria) {
	if s.auditor == nil {
		return
	}
	for _, result := range sqlcheck.CheckFilterCriteria(criteria) {
		s.auditor.LogInjectionAttempt(ctx, audit.SQLInjectionDetails{
			Field:       result.Field,
			Value:       result.Value,
			Fingerprint: result.Fingerprint,
		})
	}
}

// ============================================================================
// Write Operations
// ============================================================================

func (s *facilityService) AddFacility(ctx context.Context, input *models.FacilityInput) (int64, error) {
	f, err := s.prepare(ctx, input)
	if err != nil {
		return 0, err
	}

	if err := s.repo.Create(ctx, f); err != nil {
		return 0, apperrors.NewStorageError("add facility", err)
	}

	s.logger.Info("Created facility", zap.Int64("facility_id", f.ID))
	s.events.Publish(ctx, events.Event{Kind: events.FacilityCreated, FacilityID: f.ID})
	return f.ID, nil
}

func (s *facilityService) UpdateFacility(ctx context.Context, id int64, input *models.FacilityInput) (bool, error) {
	f, err := s.prepare(ctx, input)
	if err != nil {
		return false, err
	}
	f.ID = id

	if err := s.repo.Update(ctx, f, input.ExpectedUpdatedAt); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrConflict) {
			return false, err
		}
		return false, apperrors.NewStorageError("update facility", err)
	}

	s.logger.Info("Updated facility", zap.Int64("facility_id", id))
	s.events.Publish(ctx, events.Event{Kind: events.FacilityUpdated, FacilityID: id})
	return true, nil
}

// DeleteFacility snapshots the facility first so subscribers of the
// deleted event (image cleanup) still see what was removed.
func (s *facilityService) DeleteFacility(ctx context.Context, id int64) (bool, error) {
	snapshot, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, apperrors.NewStorageError("get facility", err)
	}
	if snapshot == nil {
		return false, nil
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, apperrors.NewStorageError("delete facility", err)
	}
	if !deleted {
		return false, nil
	}

	s.logger.Info("Deleted facility", zap.Int64("facility_id", id))
	s.events.Publish(ctx, events.Event{Kind: events.FacilityDeleted, FacilityID: id, Facility: snapshot})
	return true, nil
}

// prepare validates input and replaces its taxonomy IDs with the verified
// subset. Unverifiable IDs are dropped, not reported.
func (s *facilityService) prepare(ctx context.Context, input *models.FacilityInput) (*models.Facility, error) {
	f, err := validateFacilityInput(input, s.policy)
	if err != nil {
		return nil, err
	}

	verified := make(models.TaxonomySet, len(f.Taxonomies))
	for _, taxonomyType := range models.TaxonomyTypes {
		ids := f.Taxonomies[taxonomyType]
		if len(ids) == 0 {
			continue
		}
		kept, err := s.taxonomies.VerifyTaxonomyIDs(ctx, taxonomyType, ids)
		if err != nil {
			return nil, err
		}
		if len(kept) < len(ids) {
			s.logger.Debug("Dropped unverifiable taxonomy ids",
				zap.String("taxonomy_type", taxonomyType),
				zap.Int("submitted", len(ids)),
				zap.Int("kept", len(kept)))
		}
		if len(kept) > 0 {
			verified[taxonomyType] = kept
		}
	}
	f.Taxonomies = verified
	return f, nil
}
