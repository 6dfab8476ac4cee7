package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Group is a named family of cache keys that is invalidated as a unit.
type Group string

const (
	GroupFacilities Group = "facilities"
	GroupTaxonomies Group = "taxonomies"
	GroupFrontend   Group = "frontend"
)

// Groups lists every cache group.
var Groups = []Group{GroupFacilities, GroupTaxonomies, GroupFrontend}

// Options configures key layout and default lifetimes.
type Options struct {
	Prefix  string
	Version string
	TTLs    map[Group]time.Duration
}

// groupState tracks how many times a group has been cleared. Clearing holds
// mu exclusively; conditional writes hold it shared, so a write that checked
// the generation can never land after a clear that bumped it.
type groupState struct {
	mu         sync.RWMutex
	generation atomic.Uint64
}

// TieredCache fronts an optional durable tier with a fast tier. Values are
// stored JSON-encoded in both tiers. Tier failures are logged and treated
// as misses; they never fail the caller.
type TieredCache struct {
	fast    KeyValueStore
	durable KeyValueStore
	opts    Options
	logger  *zap.Logger

	statesMu sync.Mutex
	states   map[Group]*groupState
}

// NewTieredCache composes the tiers. durable may be nil.
func NewTieredCache(fast, durable KeyValueStore, opts Options, logger *zap.Logger) *TieredCache {
	states := make(map[Group]*groupState, len(Groups))
	for _, g := range Groups {
		states[g] = &groupState{}
	}
	return &TieredCache{
		fast:    fast,
		durable: durable,
		opts:    opts,
		logger:  logger.Named("cache"),
		states:  states,
	}
}

func (c *TieredCache) state(group Group) *groupState {
	c.statesMu.Lock()
	defer c.statesMu.Unlock()
	st, ok := c.states[group]
	if !ok {
		st = &groupState{}
		c.states[group] = st
	}
	return st
}

// Generation returns the number of times group has been cleared in this
// process. A value loaded while the generation was g is only current if
// the generation is still g when it is stored.
func (c *TieredCache) Generation(group Group) uint64 {
	return c.state(group).generation.Load()
}

// Key returns the full key "<prefix>:<version>:<group>:<key>".
func (c *TieredCache) Key(group Group, key string) string {
	return c.groupPrefix(group) + key
}

func (c *TieredCache) groupPrefix(group Group) string {
	return fmt.Sprintf("%s:%s:%s:", c.opts.Prefix, c.opts.Version, group)
}

// TTL returns the configured lifetime for group.
func (c *TieredCache) TTL(group Group) time.Duration {
	return c.opts.TTLs[group]
}

func (c *TieredCache) tiers() []KeyValueStore {
	if c.durable == nil {
		return []KeyValueStore{c.fast}
	}
	return []KeyValueStore{c.fast, c.durable}
}

// Get looks the key up in the fast tier, then the durable tier, decoding the
// value into dst. A durable hit is copied back into the fast tier.
// Returns false on a miss, including any tier or decode failure.
func (c *TieredCache) Get(ctx context.Context, group Group, key string, dst any) bool {
	fullKey := c.Key(group, key)
	generation := c.Generation(group)

	for i, tier := range c.tiers() {
		raw, err := tier.Get(ctx, fullKey)
		if err != nil {
			if !errors.Is(err, ErrMiss) {
				cacheErrors.WithLabelValues(tier.Name(), "get").Inc()
				c.logger.Warn("Cache tier get failed",
					zap.String("tier", tier.Name()),
					zap.String("key", fullKey),
					zap.Error(err))
			}
			cacheLookups.WithLabelValues(tier.Name(), string(group), "miss").Inc()
			continue
		}

		if err := json.Unmarshal(raw, dst); err != nil {
			c.logger.Warn("Discarding undecodable cache entry",
				zap.String("tier", tier.Name()),
				zap.String("key", fullKey),
				zap.Error(err))
			_ = tier.Delete(ctx, fullKey)
			cacheLookups.WithLabelValues(tier.Name(), string(group), "miss").Inc()
			continue
		}

		cacheLookups.WithLabelValues(tier.Name(), string(group), "hit").Inc()
		if i > 0 {
			c.storeIfCurrent(ctx, group, generation, []KeyValueStore{c.fast}, fullKey, raw, c.TTL(group))
		}
		return true
	}
	return false
}

// Set stores value in every tier. A ttl of zero uses the group's configured
// TTL. The write is not atomic across tiers: a failing tier is logged and
// the other tiers keep the value.
func (c *TieredCache) Set(ctx context.Context, group Group, key string, value any, ttl time.Duration) {
	c.SetIfCurrent(ctx, group, key, value, ttl, c.Generation(group))
}

// SetIfCurrent stores value like Set, but only if group has not been cleared
// since generation was read. Reports whether the value was stored.
func (c *TieredCache) SetIfCurrent(ctx context.Context, group Group, key string, value any, ttl time.Duration, generation uint64) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("Failed to encode cache value", zap.String("group", string(group)), zap.Error(err))
		return false
	}
	if ttl <= 0 {
		ttl = c.TTL(group)
	}
	return c.storeIfCurrent(ctx, group, generation, c.tiers(), c.Key(group, key), raw, ttl)
}

func (c *TieredCache) storeIfCurrent(
	ctx context.Context,
	group Group,
	generation uint64,
	tiers []KeyValueStore,
	fullKey string,
	raw []byte,
	ttl time.Duration,
) bool {
	st := c.state(group)
	st.mu.RLock()
	defer st.mu.RUnlock()

	if st.generation.Load() != generation {
		cacheStaleWrites.WithLabelValues(string(group)).Inc()
		c.logger.Debug("Dropping cache write older than the last group clear",
			zap.String("key", fullKey))
		return false
	}
	for _, tier := range tiers {
		c.setTier(ctx, tier, fullKey, raw, ttl)
	}
	return true
}

func (c *TieredCache) setTier(ctx context.Context, tier KeyValueStore, fullKey string, raw []byte, ttl time.Duration) {
	if err := tier.Set(ctx, fullKey, raw, ttl); err != nil {
		cacheErrors.WithLabelValues(tier.Name(), "set").Inc()
		c.logger.Warn("Cache tier set failed",
			zap.String("tier", tier.Name()),
			zap.String("key", fullKey),
			zap.Error(err))
	}
}

// Delete removes one key from every tier.
func (c *TieredCache) Delete(ctx context.Context, group Group, key string) error {
	fullKey := c.Key(group, key)
	var errs []error
	for _, tier := range c.tiers() {
		if err := tier.Delete(ctx, fullKey); err != nil {
			cacheErrors.WithLabelValues(tier.Name(), "delete").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ClearGroup removes every key of group from every tier. Clearing an empty
// group succeeds. Every tier is attempted even if one fails.
func (c *TieredCache) ClearGroup(ctx context.Context, group Group) error {
	st := c.state(group)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.generation.Add(1)

	prefix := c.groupPrefix(group)
	var errs []error
	for _, tier := range c.tiers() {
		if err := tier.DeletePrefix(ctx, prefix); err != nil {
			cacheErrors.WithLabelValues(tier.Name(), "clear").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
		}
	}
	cacheGroupFlushes.WithLabelValues(string(group)).Inc()

	c.logger.Debug("Cleared cache group", zap.String("group", string(group)))
	return errors.Join(errs...)
}

// ClearAll clears every group.
func (c *TieredCache) ClearAll(ctx context.Context) error {
	var errs []error
	for _, group := range Groups {
		if err := c.ClearGroup(ctx, group); err != nil {
			errs = append(errs, fmt.Errorf("group %s: %w", group, err))
		}
	}
	return errors.Join(errs...)
}

// Remember returns the cached value for key, or calls load and caches its
// result under the group's TTL. Load errors are returned and never cached.
// A result is not cached if the group was cleared while load ran, since it
// may predate the write that cleared it.
func Remember[T any](ctx context.Context, c *TieredCache, group Group, key string, load func(ctx context.Context) (T, error)) (T, error) {
	generation := c.Generation(group)

	var cached T
	if c.Get(ctx, group, key, &cached) {
		return cached, nil
	}

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.SetIfCurrent(ctx, group, key, value, 0, generation)
	return value, nil
}
