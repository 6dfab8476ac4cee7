package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/events"
)

func TestInvalidation_Rules(t *testing.T) {
	tests := []struct {
		kind     events.Kind
		facility bool
		taxonomy bool
		frontend bool
	}{
		{events.FacilityCreated, true, false, true},
		{events.FacilityUpdated, true, false, true},
		{events.FacilityDeleted, true, false, true},
		{events.TaxonomyItemCreated, true, true, true},
		{events.TaxonomyItemUpdated, true, true, true},
		{events.TaxonomyItemDeleted, true, true, true},
		{events.SettingsChanged, false, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			c, _, _ := newTestTieredCache(t)
			bus := events.NewBus(zap.NewNop())
			c.Subscribe(bus)
			ctx := context.Background()

			for _, g := range Groups {
				c.Set(ctx, g, "k", "v", 0)
			}

			bus.Publish(ctx, events.Event{Kind: tt.kind})

			var v string
			assert.Equal(t, !tt.facility, c.Get(ctx, GroupFacilities, "k", &v), "facilities")
			assert.Equal(t, !tt.taxonomy, c.Get(ctx, GroupTaxonomies, "k", &v), "taxonomies")
			assert.Equal(t, !tt.frontend, c.Get(ctx, GroupFrontend, "k", &v), "frontend")
		})
	}
}
