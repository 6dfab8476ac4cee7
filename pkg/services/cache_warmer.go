package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/models"
)

// CacheWarmer periodically repopulates the cache through the public read
// operations, so the first visitor after an invalidation does not pay for
// the rebuild. It has no access to cache internals.
type CacheWarmer struct {
	directory *Directory
	logger    *zap.Logger
}

// NewCacheWarmer creates a warmer for directory.
func NewCacheWarmer(directory *Directory, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{directory: directory, logger: logger.Named("cache-warmer")}
}

// Warm runs each public read once.
func (w *CacheWarmer) Warm(ctx context.Context) error {
	var errs []error
	if _, err := w.directory.Taxonomies.GetAllForFilters(ctx); err != nil {
		errs = append(errs, err)
	}
	if _, err := w.directory.GetWidgetData(ctx, models.FilterCriteria{}); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RunScheduler starts a background loop that warms the cache now and then
// every interval until ctx is cancelled. A non-positive interval disables it.
func (w *CacheWarmer) RunScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		w.logger.Info("Cache warmer started", zap.Duration("interval", interval))

		w.warmAndLog(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.logger.Info("Cache warmer stopped")
				return
			case <-ticker.C:
				w.warmAndLog(ctx)
			}
		}
	}()
}

func (w *CacheWarmer) warmAndLog(ctx context.Context) {
	start := time.Now()
	if err := w.Warm(ctx); err != nil {
		w.logger.Warn("Cache warm failed", zap.Error(err))
		return
	}
	w.logger.Debug("Cache warmed", zap.Duration("elapsed", time.Since(start)))
}
