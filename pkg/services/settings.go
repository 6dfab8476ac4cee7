package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/apperrors"
	"github.com/facilitymap/facility-engine/pkg/cache"
	"github.com/facilitymap/facility-engine/pkg/events"
	"github.com/facilitymap/facility-engine/pkg/models"
	"github.com/facilitymap/facility-engine/pkg/repositories"
)

const (
	settingsCacheKey = "settings"
	maxListPageSize  = 100
)

// SettingsService reads and writes the global widget settings.
type SettingsService interface {
	// Get returns the saved settings, or the defaults when none were saved.
	Get(ctx context.Context) (*models.MapSettings, error)
	Update(ctx context.Context, settings *models.MapSettings) error
}

type settingsService struct {
	repo   repositories.SettingsRepository
	cache  *cache.TieredCache
	events events.Publisher
	logger *zap.Logger
}

// NewSettingsService creates a new settings service.
func NewSettingsService(
	repo repositories.SettingsRepository,
	tieredCache *cache.TieredCache,
	publisher events.Publisher,
	logger *zap.Logger,
) SettingsService {
	return &settingsService{
		repo:   repo,
		cache:  tieredCache,
		events: publisher,
		logger: logger.Named("settings-service"),
	}
}

var _ SettingsService = (*settingsService)(nil)

func (s *settingsService) Get(ctx context.Context) (*models.MapSettings, error) {
	return cache.Remember(ctx, s.cache, cache.GroupFrontend, settingsCacheKey, func(ctx context.Context) (*models.MapSettings, error) {
		settings, err := s.repo.GetMapSettings(ctx)
		if err != nil {
			return nil, apperrors.NewStorageError("get settings", err)
		}
		if settings == nil {
			defaults := models.DefaultMapSettings()
			return &defaults, nil
		}
		return settings, nil
	})
}

func (s *settingsService) Update(ctx context.Context, settings *models.MapSettings) error {
	if err := validateMapSettings(settings); err != nil {
		return err
	}

	if err := s.repo.SaveMapSettings(ctx, settings); err != nil {
		return apperrors.NewStorageError("save settings", err)
	}

	s.logger.Info("Updated map settings")
	s.events.Publish(ctx, events.Event{Kind: events.SettingsChanged})
	return nil
}

func validateMapSettings(s *models.MapSettings) error {
	if s == nil {
		return apperrors.NewValidationError("settings", "are required")
	}
	if !validLat(s.DefaultLat) {
		return apperrors.NewValidationError("default_lat", "must be between -90 and 90")
	}
	if !validLng(s.DefaultLng) {
		return apperrors.NewValidationError("default_lng", "must be between -180 and 180")
	}
	if s.DefaultZoom < 1 || s.DefaultZoom > 21 {
		return apperrors.NewValidationError("default_zoom", "must be between 1 and 21")
	}
	if s.ListPageSize < 1 || s.ListPageSize > maxListPageSize {
		return apperrors.NewValidationError("list_page_size", "must be between 1 and 100")
	}
	s.DefaultPinImage = strings.TrimSpace(s.DefaultPinImage)
	if s.DefaultPinImage != "" && !isImageURL(s.DefaultPinImage) {
		return apperrors.NewValidationError("default_pin_image", "must be an http or https URL to an image")
	}
	return nil
}
