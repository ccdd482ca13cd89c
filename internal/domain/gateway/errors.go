package gateway

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every adapter. The event router and the entity
// syncer branch on these, never on adapter-specific error strings.
var (
	// ErrAuthentication indicates invalid credentials. Fatal for the adapter
	// until an operator intervenes; the adapter marks itself unavailable
	// rather than spinning.
	ErrAuthentication = errors.New("gateway: authentication failed")

	// ErrUnavailable indicates a network failure or remote outage. Transient,
	// eligible for bounded retry with backoff.
	ErrUnavailable = errors.New("gateway: external system unavailable")

	// ErrValidation indicates the external system rejected the mapped payload.
	// Not retried automatically; surfaced for manual correction.
	ErrValidation = errors.New("gateway: payload rejected by external system")

	// ErrConflict indicates a duplicate unique key was detected remotely.
	// Resolved by re-linking to the existing external record.
	ErrConflict = errors.New("gateway: duplicate remote record")

	// ErrNotFound indicates the external record no longer exists remotely.
	// Triggers recreate-and-relink, not silent failure.
	ErrNotFound = errors.New("gateway: external record not found")

	// ErrRateLimited indicates the external system throttled the call.
	ErrRateLimited = errors.New("gateway: rate limited by external system")

	// ErrConcurrentSync indicates a sync attempt for the same
	// (system, entity-type, internal-id) key is already pending. Internal
	// guard, not a user-facing error; the triggering event is redelivered.
	ErrConcurrentSync = errors.New("gateway: sync already pending for entity")

	// ErrUnsupportedRecord indicates an adapter was handed a record kind it
	// does not map.
	ErrUnsupportedRecord = errors.New("gateway: unsupported record kind for adapter")
)

// ConflictError carries the external id of the already-existing remote record
// so conflict resolution can relink instead of creating a duplicate.
type ConflictError struct {
	ExistingExternalID string
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v (existing external id %s)", ErrConflict, e.ExistingExternalID)
}

// Unwrap lets errors.Is match ErrConflict
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
