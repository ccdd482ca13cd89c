package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/partpulse/gateway/internal/domain/canonical"
	"github.com/partpulse/gateway/internal/domain/gateway"
)

// SyncLogEntryModel is the persistence model for one external sync attempt.
type SyncLogEntryModel struct {
	ID          uuid.UUID            `gorm:"type:uuid;primary_key"`
	System      gateway.SystemCode   `gorm:"type:varchar(20);not null;index:idx_sync_log_key,priority:1"`
	EntityType  canonical.RecordKind `gorm:"type:varchar(20);not null;index:idx_sync_log_key,priority:2"`
	InternalID  string               `gorm:"type:varchar(64);not null;index:idx_sync_log_key,priority:3"`
	Operation   gateway.Operation    `gorm:"type:varchar(10);not null"`
	Outcome     gateway.Outcome      `gorm:"type:varchar(10);not null;index:idx_sync_log_outcome"`
	ExternalID  string               `gorm:"type:varchar(100)"`
	ErrorDetail string               `gorm:"type:text"`
	StartedAt   time.Time            `gorm:"not null;index"`
	CompletedAt *time.Time
}

// TableName returns the table name for GORM
func (SyncLogEntryModel) TableName() string {
	return "sync_log_entries"
}

// ToDomain converts the persistence model to a domain SyncLogEntry
func (m *SyncLogEntryModel) ToDomain() *gateway.SyncLogEntry {
	return &gateway.SyncLogEntry{
		ID: m.ID,
		Key: gateway.SyncKey{
			System:     m.System,
			EntityType: m.EntityType,
			InternalID: m.InternalID,
		},
		Operation:   m.Operation,
		Outcome:     m.Outcome,
		ExternalID:  m.ExternalID,
		ErrorDetail: m.ErrorDetail,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
}

// FromSyncLogEntry populates the model from a domain SyncLogEntry
func (m *SyncLogEntryModel) FromSyncLogEntry(e *gateway.SyncLogEntry) {
	m.ID = e.ID
	m.System = e.Key.System
	m.EntityType = e.Key.EntityType
	m.InternalID = e.Key.InternalID
	m.Operation = e.Operation
	m.Outcome = e.Outcome
	m.ExternalID = e.ExternalID
	m.ErrorDetail = e.ErrorDetail
	m.StartedAt = e.StartedAt
	m.CompletedAt = e.CompletedAt
}

// ProvenanceRecordModel is the persistence model for a ledger attestation.
type ProvenanceRecordModel struct {
	EntityID       string                     `gorm:"type:varchar(64);primary_key"`
	EntityKind     canonical.EntityKind       `gorm:"type:varchar(10);not null"`
	Payload        string                     `gorm:"type:text;not null"`
	ContentHash    string                     `gorm:"type:varchar(64);not null;index"`
	Status         canonical.ProvenanceStatus `gorm:"type:varchar(12);not null;index"`
	TransactionRef string                     `gorm:"type:varchar(100);index"`
	SubmittedAt    *time.Time                 `gorm:"index"`
	FinalizedAt    *time.Time
	FailureReason  string                     `gorm:"type:text"`
	CreatedAt      time.Time                  `gorm:"not null"`
	UpdatedAt      time.Time                  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProvenanceRecordModel) TableName() string {
	return "provenance_records"
}

// ToDomain converts the persistence model to a domain ProvenanceRecord
func (m *ProvenanceRecordModel) ToDomain() *canonical.ProvenanceRecord {
	return &canonical.ProvenanceRecord{
		EntityID:       m.EntityID,
		EntityKind:     m.EntityKind,
		Payload:        json.RawMessage(m.Payload),
		ContentHash:    m.ContentHash,
		Status:         m.Status,
		TransactionRef: m.TransactionRef,
		SubmittedAt:    m.SubmittedAt,
		FinalizedAt:    m.FinalizedAt,
		FailureReason:  m.FailureReason,
	}
}

// FromProvenanceRecord populates the model from a domain ProvenanceRecord
func (m *ProvenanceRecordModel) FromProvenanceRecord(r *canonical.ProvenanceRecord) {
	m.EntityID = r.EntityID
	m.EntityKind = r.EntityKind
	m.Payload = string(r.Payload)
	m.ContentHash = r.ContentHash
	m.Status = r.Status
	m.TransactionRef = r.TransactionRef
	m.SubmittedAt = r.SubmittedAt
	m.FinalizedAt = r.FinalizedAt
	m.FailureReason = r.FailureReason
}

// SyncWatermarkModel is the persistence model for a per-system pull cursor.
type SyncWatermarkModel struct {
	System    gateway.SystemCode    `gorm:"type:varchar(20);primary_key"`
	Kind      gateway.WatermarkKind `gorm:"type:varchar(16);primary_key"`
	Position  time.Time             `gorm:"not null"`
	UpdatedAt time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncWatermarkModel) TableName() string {
	return "sync_watermarks"
}

// ReconciliationMatchModel records an external settled transaction matched to
// an internal reference.
type ReconciliationMatchModel struct {
	System        gateway.SystemCode `gorm:"type:varchar(20);primary_key"`
	TransactionID string             `gorm:"type:varchar(100);primary_key"`
	InternalID    string             `gorm:"type:varchar(64);not null;index"`
	Amount        decimal.Decimal    `gorm:"type:decimal(20,2);not null"`
	Currency      string             `gorm:"type:varchar(3);not null"`
	MatchedAt     time.Time          `gorm:"not null"`
	CreatedAt     time.Time          `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReconciliationMatchModel) TableName() string {
	return "reconciliation_matches"
}

// ToDomain converts the persistence model to a domain ReconciliationMatch
func (m *ReconciliationMatchModel) ToDomain() *gateway.ReconciliationMatch {
	return &gateway.ReconciliationMatch{
		System:        m.System,
		TransactionID: m.TransactionID,
		InternalID:    m.InternalID,
		Amount:        m.Amount,
		Currency:      m.Currency,
		MatchedAt:     m.MatchedAt,
	}
}

// LedgerVerificationModel stamps an internal entity as ledger-verified.
type LedgerVerificationModel struct {
	EntityKind     canonical.EntityKind `gorm:"type:varchar(10);primary_key"`
	EntityID       string               `gorm:"type:varchar(64);primary_key"`
	TransactionRef string               `gorm:"type:varchar(100);not null"`
	VerifiedAt     time.Time            `gorm:"not null"`
	CreatedAt      time.Time            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LedgerVerificationModel) TableName() string {
	return "ledger_verifications"
}
