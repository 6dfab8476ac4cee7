package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/blob"
	"github.com/facilitymap/facility-engine/pkg/events"
)

// ImageCleaner removes the stored images of deleted facilities. It is
// best-effort: failures are reported to the bus, which logs them, and
// never fail the delete.
type ImageCleaner struct {
	store         blob.Store
	publicBaseURL string
	logger        *zap.Logger
}

// NewImageCleaner creates a cleaner for images served under publicBaseURL.
func NewImageCleaner(store blob.Store, publicBaseURL string, logger *zap.Logger) *ImageCleaner {
	return &ImageCleaner{
		store:         store,
		publicBaseURL: publicBaseURL,
		logger:        logger.Named("image-cleanup"),
	}
}

// Subscribe registers the cleaner for facility deletions.
func (c *ImageCleaner) Subscribe(bus *events.Bus) {
	bus.Subscribe("image-cleanup", c.handleDeleted, events.FacilityDeleted)
}

func (c *ImageCleaner) handleDeleted(ctx context.Context, e events.Event) error {
	if e.Facility == nil {
		return nil
	}

	urls := append([]string{}, e.Facility.Images...)
	if e.Facility.CustomPinImage != "" {
		urls = append(urls, e.Facility.CustomPinImage)
	}

	var errs []error
	removed := 0
	for _, u := range urls {
		key, ok := blob.KeyForURL(c.publicBaseURL, u)
		if !ok {
			c.logger.Debug("Skipping image not in managed storage", zap.String("url", u))
			continue
		}
		if err := c.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
			continue
		}
		removed++
	}

	if removed > 0 {
		c.logger.Info("Removed facility images",
			zap.Int64("facility_id", e.FacilityID),
			zap.String("driver", c.store.Driver()),
			zap.Int("removed", removed))
	}
	return errors.Join(errs...)
}
