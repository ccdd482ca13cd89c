package cache

import (
	"context"
	"sync"
	"time"

	"github.com/partpulse/gateway/internal/domain/shared"
)

// pruneEvery bounds how often a write triggers a full sweep of expired keys.
const pruneEvery = time.Minute

// InMemoryIdempotencyStore is the single-instance fallback for the Redis
// store: the gateway runs with it when Redis is unreachable at startup.
// Expired keys are dropped lazily on reads and swept opportunistically on
// writes, so no background goroutine is needed.
type InMemoryIdempotencyStore struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
	lastPrune time.Time
}

// NewInMemoryIdempotencyStore creates an empty store.
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{
		deadlines: make(map[string]time.Time),
		lastPrune: time.Now(),
	}
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)

// MarkProcessed records key for ttl. It reports false when the key is still
// live, matching the SETNX semantics of the Redis store.
func (s *InMemoryIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if deadline, ok := s.deadlines[key]; ok && now.Before(deadline) {
		return false, nil
	}
	s.deadlines[key] = now.Add(ttl)

	if now.Sub(s.lastPrune) >= pruneEvery {
		for k, d := range s.deadlines {
			if now.After(d) {
				delete(s.deadlines, k)
			}
		}
		s.lastPrune = now
	}
	return true, nil
}

// IsProcessed reports whether key is recorded and still live.
func (s *InMemoryIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := s.deadlines[key]
	if !ok {
		return false, nil
	}
	if now.After(deadline) {
		delete(s.deadlines, key)
		return false, nil
	}
	return true, nil
}

// Close is a no-op; the store holds no external resources.
func (s *InMemoryIdempotencyStore) Close() error {
	return nil
}
