package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrInvalidProvenanceTransition indicates a provenance state transition that is not allowed
	ErrInvalidProvenanceTransition = errors.New("canonical: invalid provenance status transition")
	// ErrHashMismatch indicates an observed finality message whose content hash
	// does not match the submitted payload
	ErrHashMismatch = errors.New("canonical: provenance content hash mismatch")
)

// ---------------------------------------------------------------------------
// EntityKind
// ---------------------------------------------------------------------------

// EntityKind identifies which internal entity a provenance record attests
type EntityKind string

const (
	EntityKindPart  EntityKind = "PART"
	EntityKindOrder EntityKind = "ORDER"
	EntityKindUser  EntityKind = "USER"
)

// IsValid returns true if the entity kind is valid
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityKindPart, EntityKindOrder, EntityKindUser:
		return true
	default:
		return false
	}
}

// String returns the string representation of EntityKind
func (k EntityKind) String() string {
	return string(k)
}

// ---------------------------------------------------------------------------
// ProvenanceStatus
// ---------------------------------------------------------------------------

// ProvenanceStatus represents the ledger attestation state of a record.
// pending → submitted → finalized | failed; finalized and failed are terminal.
type ProvenanceStatus string

const (
	ProvenanceStatusPending   ProvenanceStatus = "PENDING"
	ProvenanceStatusSubmitted ProvenanceStatus = "SUBMITTED"
	ProvenanceStatusFinalized ProvenanceStatus = "FINALIZED"
	ProvenanceStatusFailed    ProvenanceStatus = "FAILED"
)

// IsValid returns true if the status is valid
func (s ProvenanceStatus) IsValid() bool {
	switch s {
	case ProvenanceStatusPending, ProvenanceStatusSubmitted,
		ProvenanceStatusFinalized, ProvenanceStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of ProvenanceStatus
func (s ProvenanceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transition is possible
func (s ProvenanceStatus) IsTerminal() bool {
	return s == ProvenanceStatusFinalized || s == ProvenanceStatusFailed
}

// ---------------------------------------------------------------------------
// ProvenanceRecord
// ---------------------------------------------------------------------------

// ProvenanceRecord tracks a single ledger attestation of an internal entity
type ProvenanceRecord struct {
	// EntityID is the internal id of the attested entity
	EntityID string `json:"entity_id" validate:"required"`
	// EntityKind identifies the entity type
	EntityKind EntityKind `json:"entity_kind"`
	// Payload is the opaque JSON payload submitted to the ledger
	Payload json.RawMessage `json:"payload"`
	// ContentHash is the SHA-256 hex digest of the payload, computed before
	// submission so finality can be matched by content rather than by
	// trusting only the returned transaction reference
	ContentHash string `json:"content_hash"`
	// Status is the attestation state
	Status ProvenanceStatus `json:"status"`
	// TransactionRef is the external ledger transaction reference
	TransactionRef string `json:"transaction_ref,omitempty"`
	// SubmittedAt is when the ledger accepted the submission
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	// FinalizedAt is the ledger consensus timestamp
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	// FailureReason records why the attestation failed
	FailureReason string `json:"failure_reason,omitempty"`
}

// HashPayload computes the SHA-256 hex digest of a ledger payload
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// NewProvenanceRecord creates a pending record with its content hash precomputed
func NewProvenanceRecord(entityID string, kind EntityKind, payload json.RawMessage) *ProvenanceRecord {
	return &ProvenanceRecord{
		EntityID:    entityID,
		EntityKind:  kind,
		Payload:     payload,
		ContentHash: HashPayload(payload),
		Status:      ProvenanceStatusPending,
	}
}

// MarkSubmitted records ledger acceptance of the transaction
func (r *ProvenanceRecord) MarkSubmitted(transactionRef string, at time.Time) error {
	if r.Status != ProvenanceStatusPending {
		return ErrInvalidProvenanceTransition
	}
	r.Status = ProvenanceStatusSubmitted
	r.TransactionRef = transactionRef
	r.SubmittedAt = &at
	return nil
}

// MarkFinalized records observed finality. The observed content hash must match
// the hash computed at submission; a record never finalizes on a mismatch.
func (r *ProvenanceRecord) MarkFinalized(observedHash string, consensusAt time.Time) error {
	if r.Status != ProvenanceStatusSubmitted {
		return ErrInvalidProvenanceTransition
	}
	if observedHash != r.ContentHash {
		return ErrHashMismatch
	}
	r.Status = ProvenanceStatusFinalized
	r.FinalizedAt = &consensusAt
	return nil
}

// MarkFailed records a failed submission or a finality timeout
func (r *ProvenanceRecord) MarkFailed(reason string) error {
	if r.Status.IsTerminal() {
		return ErrInvalidProvenanceTransition
	}
	r.Status = ProvenanceStatusFailed
	r.FailureReason = reason
	return nil
}
