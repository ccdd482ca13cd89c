package shared

import (
	"context"
	"time"
)

// IdempotencyStore stores processed keys to prevent duplicate processing.
// It backs both event dedup at the router and duplicate finality-notification
// suppression in the consensus tracker.
type IdempotencyStore interface {
	// MarkProcessed atomically records key for ttl. It reports true when the
	// key was newly recorded and false when it had been seen already.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	IsProcessed(ctx context.Context, key string) (bool, error)

	Close() error
}

// IdempotencyConfig controls dedup behavior at the event router.
type IdempotencyConfig struct {
	// TTL bounds how long a processed key suppresses redelivery.
	TTL time.Duration

	Enabled bool
}

// DefaultIdempotencyConfig returns a 24h TTL with dedup enabled.
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
