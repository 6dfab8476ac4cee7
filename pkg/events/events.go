// Package events is the in-process notification bus that connects data
// writes to cache invalidation and other side effects.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/models"
)

// Kind identifies what changed.
type Kind string

const (
	FacilityCreated     Kind = "facility.created"
	FacilityUpdated     Kind = "facility.updated"
	FacilityDeleted     Kind = "facility.deleted"
	TaxonomyItemCreated Kind = "taxonomy_item.created"
	TaxonomyItemUpdated Kind = "taxonomy_item.updated"
	TaxonomyItemDeleted Kind = "taxonomy_item.deleted"
	SettingsChanged     Kind = "settings.changed"
)

// Event describes one completed write.
type Event struct {
	Kind         Kind
	FacilityID   int64
	TaxonomyType string
	TaxonomyID   int64

	// Facility is the pre-delete snapshot on FacilityDeleted, nil otherwise.
	Facility *models.Facility
}

// Handler reacts to an event. Returned errors are logged by the bus.
type Handler func(ctx context.Context, e Event) error

// Publisher emits events. Services depend on this rather than on Bus.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type subscription struct {
	name    string
	kinds   map[Kind]bool
	handler Handler
}

// Bus delivers events synchronously to subscribers in registration order.
// Publish returns only after every matching handler has run, which is what
// lets a write return with the cache already invalidated.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *zap.Logger
}

var _ Publisher = (*Bus)(nil)

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{logger: logger.Named("events")}
}

// Subscribe registers handler for the given kinds; no kinds means every kind.
func (b *Bus) Subscribe(name string, handler Handler, kinds ...Kind) {
	set := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, kinds: set, handler: handler})
}

// Publish runs every matching handler. A failing or panicking handler is
// logged and does not stop the remaining handlers.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if len(s.kinds) > 0 && !s.kinds[e.Kind] {
			continue
		}
		b.dispatch(ctx, s, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("subscriber", s.name),
				zap.String("kind", string(e.Kind)),
				zap.Any("panic", r))
		}
	}()

	if err := s.handler(ctx, e); err != nil {
		b.logger.Warn("Event handler failed",
			zap.String("subscriber", s.name),
			zap.String("kind", string(e.Kind)),
			zap.Error(err))
	}
}
