package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/partpulse/gateway/internal/domain/shared"
)

// fakeIdempotencyStore is an in-memory IdempotencyStore for tests
type fakeIdempotencyStore struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{seen: make(map[string]bool)}
}

func (s *fakeIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *fakeIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[key], s.err
}

func (s *fakeIdempotencyStore) Close() error { return nil }

func TestIdempotentHandler_ProcessesOnce(t *testing.T) {
	inner := &recordingHandler{types: []string{"order.paid"}}
	handler := NewIdempotentHandler(inner, newFakeIdempotencyStore(), shared.DefaultIdempotencyConfig(), zap.NewNop())
	event := newTestEvent("order.paid", "ORD-1001")

	require.NoError(t, handler.Handle(context.Background(), event))
	require.NoError(t, handler.Handle(context.Background(), event))

	assert.Len(t, inner.received(), 1)
}

func TestIdempotentHandler_DistinctEventsPass(t *testing.T) {
	inner := &recordingHandler{types: []string{"order.paid"}}
	handler := NewIdempotentHandler(inner, newFakeIdempotencyStore(), shared.DefaultIdempotencyConfig(), zap.NewNop())

	require.NoError(t, handler.Handle(context.Background(), newTestEvent("order.paid", "ORD-1")))
	require.NoError(t, handler.Handle(context.Background(), newTestEvent("order.paid", "ORD-2")))

	assert.Len(t, inner.received(), 2)
}

func TestIdempotentHandler_FailedHandlingIsRedelivered(t *testing.T) {
	inner := &recordingHandler{types: []string{"order.paid"}, err: errors.New("sync already in flight")}
	store := newFakeIdempotencyStore()
	handler := NewIdempotentHandler(inner, store, shared.DefaultIdempotencyConfig(), zap.NewNop())
	event := newTestEvent("order.paid", "ORD-1001")

	// The failed attempt must not consume the idempotency key
	require.Error(t, handler.Handle(context.Background(), event))
	processed, err := store.IsProcessed(context.Background(), event.EventID().String())
	require.NoError(t, err)
	assert.False(t, processed)

	inner.err = nil
	require.NoError(t, handler.Handle(context.Background(), event))
	assert.Len(t, inner.received(), 2)

	processed, err = store.IsProcessed(context.Background(), event.EventID().String())
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestIdempotentHandler_StoreFailureProcessesAnyway(t *testing.T) {
	inner := &recordingHandler{types: []string{"order.paid"}}
	store := newFakeIdempotencyStore()
	store.err = errors.New("redis down")
	handler := NewIdempotentHandler(inner, store, shared.DefaultIdempotencyConfig(), zap.NewNop())

	require.NoError(t, handler.Handle(context.Background(), newTestEvent("order.paid", "ORD-1")))
	assert.Len(t, inner.received(), 1)
}

func TestIdempotentHandler_Disabled(t *testing.T) {
	inner := &recordingHandler{types: []string{"order.paid"}}
	cfg := shared.IdempotencyConfig{Enabled: false}
	handler := NewIdempotentHandler(inner, newFakeIdempotencyStore(), cfg, zap.NewNop())
	event := newTestEvent("order.paid", "ORD-1001")

	require.NoError(t, handler.Handle(context.Background(), event))
	require.NoError(t, handler.Handle(context.Background(), event))

	assert.Len(t, inner.received(), 2)
}
