package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/audit"
	"github.com/facilitymap/facility-engine/pkg/blob"
	"github.com/facilitymap/facility-engine/pkg/cache"
	"github.com/facilitymap/facility-engine/pkg/events"
	"github.com/facilitymap/facility-engine/pkg/models"
	"github.com/facilitymap/facility-engine/pkg/repositories"
)

// DirectoryDeps are the collaborators a Directory is built from.
type DirectoryDeps struct {
	FacilityRepo repositories.FacilityRepository
	TaxonomyRepo repositories.TaxonomyRepository
	SettingsRepo repositories.SettingsRepository
	Cache        *cache.TieredCache
	Bus          *events.Bus
	Auditor      *audit.SecurityAuditor

	// Images and ImageBaseURL enable image cleanup on delete. Images may be nil.
	Images       blob.Store
	ImageBaseURL string

	Logger *zap.Logger
}

// Directory wires the facility, taxonomy and settings services to one
// cache and event bus. The cache subscribes to the bus before anything
// else, so every write has invalidated its groups before other
// subscribers run and before the write returns.
type Directory struct {
	Facilities FacilityService
	Taxonomies TaxonomyManager
	Settings   SettingsService
	Cache      *cache.TieredCache

	logger *zap.Logger
}

// NewDirectory composes the services and registers event subscribers.
func NewDirectory(deps DirectoryDeps) *Directory {
	deps.Cache.Subscribe(deps.Bus)

	taxonomies := NewTaxonomyManager(deps.TaxonomyRepo, deps.FacilityRepo, deps.Cache, deps.Bus, deps.Logger)

	if deps.Images != nil {
		NewImageCleaner(deps.Images, deps.ImageBaseURL, deps.Logger).Subscribe(deps.Bus)
	}

	return &Directory{
		Facilities: NewFacilityService(deps.FacilityRepo, taxonomies, deps.Cache, deps.Bus, deps.Auditor, deps.Logger),
		Taxonomies: taxonomies,
		Settings:   NewSettingsService(deps.SettingsRepo, deps.Cache, deps.Bus, deps.Logger),
		Cache:      deps.Cache,
		logger:     deps.Logger.Named("directory"),
	}
}

// GetWidgetData assembles the initial payload of the public widget: the
// settings, filter options, the first page of matching facilities and the
// total match count. When criteria has no limit the configured list page
// size is used.
func (d *Directory) GetWidgetData(ctx context.Context, criteria models.FilterCriteria) (*models.WidgetData, error) {
	settings, err := d.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if criteria.Limit <= 0 {
		criteria.Limit = settings.ListPageSize
	}

	key, err := cache.HashKey("widget", NormalizeCriteria(criteria))
	if err != nil {
		return nil, err
	}

	return cache.Remember(ctx, d.Cache, cache.GroupFrontend, key, func(ctx context.Context) (*models.WidgetData, error) {
		filters, err := d.Taxonomies.GetAllForFilters(ctx)
		if err != nil {
			return nil, err
		}
		facilities, err := d.Facilities.GetFacilities(ctx, criteria)
		if err != nil {
			return nil, err
		}
		total, err := d.Facilities.CountFacilities(ctx, criteria)
		if err != nil {
			return nil, err
		}
		return &models.WidgetData{
			Settings:   *settings,
			Filters:    filters,
			Facilities: facilities,
			Total:      total,
		}, nil
	})
}

// FlushCache clears every cache group.
func (d *Directory) FlushCache(ctx context.Context) error {
	if err := d.Cache.ClearAll(ctx); err != nil {
		d.logger.Warn("Cache flush incomplete", zap.Error(err))
		return err
	}
	d.logger.Info("Flushed cache")
	return nil
}
