package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/partpulse/gateway/internal/domain/canonical"
)

// Operation is the kind of external sync attempt
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
	OperationSync   Operation = "SYNC"
)

// IsValid returns true if the operation is valid
func (o Operation) IsValid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete, OperationSync:
		return true
	default:
		return false
	}
}

// Outcome is the result of a sync attempt
type Outcome string

const (
	OutcomePending Outcome = "PENDING"
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeSkipped Outcome = "SKIPPED"
)

// IsTerminal returns true if the outcome ends the attempt
func (o Outcome) IsTerminal() bool {
	return o == OutcomeSuccess || o == OutcomeFailed || o == OutcomeSkipped
}

// SyncKey is the composite key identifying what is being synced where
type SyncKey struct {
	System     SystemCode
	EntityType canonical.RecordKind
	InternalID string
}

// SyncLogEntry is the durable record of one external sync attempt
type SyncLogEntry struct {
	ID          uuid.UUID
	Key         SyncKey
	Operation   Operation
	Outcome     Outcome
	ExternalID  string
	ErrorDetail string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// SyncLog is the durable, queryable history of external sync attempts and the
// idempotency backbone of the gateway. All writes to it go through these
// operations; no other component writes sync log rows directly.
//
// Invariant: for a given key, at most one entry is PENDING at any instant.
type SyncLog interface {
	// BeginAttempt opens a pending entry for the key. Fails with
	// ErrConcurrentSync if a pending entry already exists for the same key.
	BeginAttempt(ctx context.Context, key SyncKey, op Operation) (*SyncLogEntry, error)

	// CompleteAttempt terminally resolves a pending entry
	CompleteAttempt(ctx context.Context, id uuid.UUID, outcome Outcome, externalID, errorDetail string) error

	// GetExternalID returns the external id from the last successful attempt
	// for the key, or ok=false when the entity has never synced
	GetExternalID(ctx context.Context, key SyncKey) (externalID string, ok bool, err error)

	// History returns all attempts for the key, most recent first
	History(ctx context.Context, key SyncKey) ([]*SyncLogEntry, error)

	// SweepStale force-fails pending entries older than the given age so a
	// crashed worker cannot permanently lock an entity out of syncing
	SweepStale(ctx context.Context, olderThan time.Duration) (int64, error)
}
