package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	fresh, err := store.MarkProcessed(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	dup, err := store.MarkProcessed(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, dup)

	processed, err := store.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestInMemoryIdempotencyStore_Expiry(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	_, err := store.MarkProcessed(ctx, "evt-1", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	processed, err := store.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, processed)

	fresh, err := store.MarkProcessed(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestInMemoryIdempotencyStore_CloseIsIdempotent(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}
