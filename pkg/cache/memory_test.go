package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	store, err := NewMemoryStore(8)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store, err := NewMemoryStore(8)
	require.NoError(t, err)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

	now = now.Add(59 * time.Second)
	_, err = store.Get(ctx, "k")
	assert.NoError(t, err)

	now = now.Add(time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_DeletePrefix(t *testing.T) {
	store, err := NewMemoryStore(8)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "p:v1:facilities:a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "p:v1:facilities:b", []byte("2"), 0))
	require.NoError(t, store.Set(ctx, "p:v1:frontend:a", []byte("3"), 0))

	require.NoError(t, store.DeletePrefix(ctx, "p:v1:facilities:"))
	require.NoError(t, store.DeletePrefix(ctx, "p:v1:facilities:"), "second flush is a no-op")

	assert.Equal(t, 1, store.Len())
	_, err = store.Get(ctx, "p:v1:frontend:a")
	assert.NoError(t, err)
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	store, err := NewMemoryStore(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))
	_, _ = store.Get(ctx, "a")
	require.NoError(t, store.Set(ctx, "c", []byte("3"), 0))

	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = store.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	store, err := NewMemoryStore(2)
	require.NoError(t, err)
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value, 0))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
