// Package cache implements the two-tier facility cache: a bounded in-process
// fast tier in front of an optional shared durable tier, with keys grouped
// so a whole family of entries can be flushed at once.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by KeyValueStore.Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// KeyValueStore is the capability every cache tier provides.
// A ttl of zero means the entry does not expire.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix. Deleting nothing is not an error.
	DeletePrefix(ctx context.Context, prefix string) error
	// Name identifies the tier in logs and metrics.
	Name() string
}
