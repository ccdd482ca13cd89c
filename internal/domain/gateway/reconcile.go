package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrAlreadyMatched indicates the external transaction was matched in a prior
// run or by a concurrent runner
var ErrAlreadyMatched = errors.New("gateway: transaction already matched")

// SettledTransaction is an externally-settled financial transaction pulled
// from a finance adapter for reconciliation
type SettledTransaction struct {
	// ExternalID is the transaction id on the external system
	ExternalID string
	// Amount is the settled amount
	Amount decimal.Decimal
	// Currency is the ISO currency code
	Currency string
	// Reference is the structured reference field, where the internal
	// reference convention (prefix + internal id) is expected
	Reference string
	// Description is the free-text memo, scanned as a fallback since remote
	// systems sometimes rewrite the reference field
	Description string
	// SettledAt is when the transaction settled
	SettledAt time.Time
}

// SettlementSource is the extra capability a finance adapter exposes to the
// reconciliation job
type SettlementSource interface {
	SystemCode() SystemCode
	// ListSettledTransactions returns transactions settled within the window
	ListSettledTransactions(ctx context.Context, from, to time.Time) ([]SettledTransaction, error)
}

// ReconciliationMatch records that an external transaction was matched to an
// internal invoice/order, making repeated runs idempotent
type ReconciliationMatch struct {
	System        SystemCode
	TransactionID string
	InternalID    string
	Amount        decimal.Decimal
	Currency      string
	MatchedAt     time.Time
}

// MatchStore persists reconciliation matches
type MatchStore interface {
	// Record stores a match; recording the same (system, transaction) twice
	// is an error
	Record(ctx context.Context, match *ReconciliationMatch) error
	// IsMatched reports whether the transaction was matched in a prior run
	IsMatched(ctx context.Context, system SystemCode, transactionID string) (bool, error)
}
