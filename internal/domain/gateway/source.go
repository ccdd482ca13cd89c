package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/partpulse/gateway/internal/domain/canonical"
)

// ErrEntityNotFound indicates the internal authoritative record does not exist
var ErrEntityNotFound = errors.New("gateway: internal entity not found")

// EntitySource derives canonical shapes on demand from the authoritative
// internal records. Canonical entities are never persisted independently; the
// source re-reads state by id so sync never trusts event payloads for
// sync-critical fields.
type EntitySource interface {
	Customer(ctx context.Context, internalID string) (*canonical.CanonicalCustomer, error)
	Invoice(ctx context.Context, internalID string) (*canonical.CanonicalInvoice, error)
	Payment(ctx context.Context, internalID string) (*canonical.CanonicalPayment, error)

	// Load dispatches on record kind
	Load(ctx context.Context, kind canonical.RecordKind, internalID string) (canonical.Record, error)
}

// WatermarkStore persists per-system pull cursors. Watermarks only advance;
// a crash-and-restart resumes from the last stored position, reprocessing at
// most a small overlap window that downstream handles idempotently.
type WatermarkStore interface {
	// Get returns the current watermark for (system, kind); the zero time
	// means no pull has happened yet
	Get(ctx context.Context, system SystemCode, kind WatermarkKind) (time.Time, error)
	// Advance moves the watermark forward. Moving backwards is a no-op.
	Advance(ctx context.Context, system SystemCode, kind WatermarkKind, to time.Time) error
}

// WatermarkKind distinguishes the cursors a system may keep
type WatermarkKind string

const (
	// WatermarkKindInbound tracks inbound change pulls
	WatermarkKindInbound WatermarkKind = "INBOUND"
	// WatermarkKindReconciliation tracks the reconciliation window per
	// finance adapter
	WatermarkKindReconciliation WatermarkKind = "RECONCILIATION"
)
