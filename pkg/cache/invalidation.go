package cache

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/events"
)

// InvalidationRules maps each write event to the groups it makes stale.
// Formatted facilities embed resolved taxonomy names, so taxonomy writes
// also flush the facilities group.
var InvalidationRules = map[events.Kind][]Group{
	events.FacilityCreated:     {GroupFacilities, GroupFrontend},
	events.FacilityUpdated:     {GroupFacilities, GroupFrontend},
	events.FacilityDeleted:     {GroupFacilities, GroupFrontend},
	events.TaxonomyItemCreated: {GroupTaxonomies, GroupFrontend, GroupFacilities},
	events.TaxonomyItemUpdated: {GroupTaxonomies, GroupFrontend, GroupFacilities},
	events.TaxonomyItemDeleted: {GroupTaxonomies, GroupFrontend, GroupFacilities},
	events.SettingsChanged:     {GroupFrontend},
}

// Subscribe registers the invalidation rules on bus. It should be the first
// subscriber so later handlers observe a coherent cache.
func (c *TieredCache) Subscribe(bus *events.Bus) {
	kinds := make([]events.Kind, 0, len(InvalidationRules))
	for kind := range InvalidationRules {
		kinds = append(kinds, kind)
	}
	bus.Subscribe("cache-invalidation", c.invalidate, kinds...)
}

func (c *TieredCache) invalidate(ctx context.Context, e events.Event) error {
	var errs []error
	for _, group := range InvalidationRules[e.Kind] {
		if err := c.ClearGroup(ctx, group); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", group, err))
		}
	}
	if len(errs) == 0 {
		c.logger.Debug("Invalidated cache", zap.String("event", string(e.Kind)))
	}
	return errors.Join(errs...)
}
