package gateway

import (
	"context"
	"time"

	"github.com/partpulse/gateway/internal/domain/canonical"
)

// Change describes one remotely-changed record produced by an inbound pull
type Change struct {
	// ExternalID is the record's id on the external system
	ExternalID string
	// Record is the change normalized into the canonical model
	Record canonical.Record
	// ChangedAt is the remote modification timestamp, used to advance the
	// pull watermark
	ChangedAt time.Time
}

// ChangeIterator lazily walks a finite sequence of remote changes. Adapters
// page through the remote API internally; callers only see one change at a
// time. A fresh iterator restarted from the last watermark resumes the
// sequence, possibly with a small overlap that downstream handles
// idempotently.
type ChangeIterator interface {
	// Next returns the next change. ok is false when the sequence is
	// exhausted; err is non-nil when a page fetch failed.
	Next(ctx context.Context) (change Change, ok bool, err error)
}

// Adapter is the uniform capability contract every external system
// implements, regardless of domain. Concrete adapters live in the
// infrastructure layer and own their session lifecycle internally.
type Adapter interface {
	// SystemCode returns the external system this adapter speaks to
	SystemCode() SystemCode

	// Handles reports whether the adapter maps the given record kind
	Handles(kind canonical.RecordKind) bool

	// Connect establishes or renews an authenticated session. Idempotent:
	// calling it while connected is a no-op. Fails with ErrAuthentication on
	// bad credentials and ErrUnavailable on network failure.
	Connect(ctx context.Context) error

	// CreateRecord creates the mapped record remotely and returns its
	// external id. Fails with ErrValidation if the payload is rejected and
	// with a *ConflictError if a duplicate unique key is detected remotely.
	CreateRecord(ctx context.Context, record canonical.Record) (string, error)

	// UpdateRecord updates an existing remote record. Fails with ErrNotFound
	// if the external id no longer exists remotely.
	UpdateRecord(ctx context.Context, externalID string, record canonical.Record) error

	// PullRecent returns a lazy iterator over records changed remotely since
	// the given watermark.
	PullRecent(ctx context.Context, since time.Time) (ChangeIterator, error)
}

// AdapterRegistry resolves adapters by system code
type AdapterRegistry interface {
	// Get returns the adapter for the given system code
	Get(code SystemCode) (Adapter, bool)
	// All returns every registered adapter
	All() []Adapter
	// For returns every adapter that maps the given record kind
	For(kind canonical.RecordKind) []Adapter
}
