package gateway

import (
	"encoding/json"
	"time"

	"github.com/partpulse/gateway/internal/domain/canonical"
	"github.com/partpulse/gateway/internal/domain/shared"
)

// Inbound topics consumed by the gateway. Events carry the internal id and a
// minimal payload; the gateway re-reads authoritative state by id.
const (
	TopicEntityCreated         = "entity.created"
	TopicEntityUpdated         = "entity.updated"
	TopicPaymentReceived       = "payment.received"
	TopicLedgerVerifyRequested = "ledger.verify.requested"
)

// Outbound topics published by the gateway
const (
	TopicEntityVerified      = "entity.verified"
	TopicEntitySyncCompleted = "entity.sync.completed"
	TopicEntitySyncFailed    = "entity.sync.failed"
)

// EntityCreatedEvent signals a new internal entity that external systems
// should know about
type EntityCreatedEvent struct {
	shared.BaseDomainEvent
	EntityType canonical.RecordKind `json:"entity_type"`
}

// NewEntityCreatedEvent creates an entity-created event
func NewEntityCreatedEvent(kind canonical.RecordKind, internalID string) *EntityCreatedEvent {
	return &EntityCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(TopicEntityCreated, kind.String(), internalID),
		EntityType:      kind,
	}
}

// EntityUpdatedEvent signals an internal entity change. Origin names the
// external system the change was pulled from, empty for internal edits; the
// router does not push a change back to the system it came from.
type EntityUpdatedEvent struct {
	shared.BaseDomainEvent
	EntityType canonical.RecordKind `json:"entity_type"`
	Origin     SystemCode           `json:"origin_system,omitempty"`
}

// NewEntityUpdatedEvent creates an entity-updated event for an internal edit
func NewEntityUpdatedEvent(kind canonical.RecordKind, internalID string) *EntityUpdatedEvent {
	return &EntityUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(TopicEntityUpdated, kind.String(), internalID),
		EntityType:      kind,
	}
}

// NewRemoteEntityUpdatedEvent creates an entity-updated event for a change
// pulled from an external system
func NewRemoteEntityUpdatedEvent(kind canonical.RecordKind, internalID string, origin SystemCode) *EntityUpdatedEvent {
	ev := NewEntityUpdatedEvent(kind, internalID)
	ev.Origin = origin
	return ev
}

// PaymentReceivedEvent signals that an internal order/invoice was paid
type PaymentReceivedEvent struct {
	shared.BaseDomainEvent
	PaymentID string `json:"payment_id"`
	InvoiceID string `json:"invoice_id"`
}

// NewPaymentReceivedEvent creates a payment-received event. The aggregate id
// is the payment's internal id.
func NewPaymentReceivedEvent(paymentID, invoiceID string) *PaymentReceivedEvent {
	return &PaymentReceivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(TopicPaymentReceived, canonical.RecordKindPayment.String(), paymentID),
		PaymentID:       paymentID,
		InvoiceID:       invoiceID,
	}
}

// LedgerVerifyRequestedEvent asks for a provenance attestation of an entity
type LedgerVerifyRequestedEvent struct {
	shared.BaseDomainEvent
	EntityKind canonical.EntityKind `json:"entity_kind"`
	Payload    json.RawMessage      `json:"payload"`
}

// NewLedgerVerifyRequestedEvent creates a ledger-verify-requested event
func NewLedgerVerifyRequestedEvent(kind canonical.EntityKind, entityID string, payload json.RawMessage) *LedgerVerifyRequestedEvent {
	return &LedgerVerifyRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(TopicLedgerVerifyRequested, kind.String(), entityID),
		EntityKind:      kind,
		Payload:         payload,
	}
}

// EntityVerifiedEvent is published once a provenance record reaches finality
type EntityVerifiedEvent struct {
	shared.BaseDomainEvent
	System         SystemCode `json:"system"`
	TransactionRef string     `json:"transaction_ref"`
	ConsensusAt    time.Time  `json:"consensus_at"`
}

// NewEntityVerifiedEvent creates an entity-verified event
func NewEntityVerifiedEvent(entityKind, entityID, transactionRef string, consensusAt time.Time) *EntityVerifiedEvent {
	return &EntityVerifiedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(TopicEntityVerified, entityKind, entityID),
		System:          SystemCodeHedera,
		TransactionRef:  transactionRef,
		ConsensusAt:     consensusAt,
	}
}

// EntitySyncCompletedEvent reports a successful external sync
type EntitySyncCompletedEvent struct {
	shared.BaseDomainEvent
	System     SystemCode           `json:"system"`
	EntityType canonical.RecordKind `json:"entity_type"`
	ExternalID string               `json:"external_id"`
	Operation  Operation            `json:"operation"`
}

// NewEntitySyncCompletedEvent creates an entity-sync-completed event
func NewEntitySyncCompletedEvent(key SyncKey, externalID string, op Operation) *EntitySyncCompletedEvent {
	return &EntitySyncCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(TopicEntitySyncCompleted, key.EntityType.String(), key.InternalID),
		System:          key.System,
		EntityType:      key.EntityType,
		ExternalID:      externalID,
		Operation:       op,
	}
}

// EntitySyncFailedEvent reports a failed external sync
type EntitySyncFailedEvent struct {
	shared.BaseDomainEvent
	System     SystemCode           `json:"system"`
	EntityType canonical.RecordKind `json:"entity_type"`
	ExternalID string               `json:"external_id,omitempty"`
	Reason     string               `json:"reason"`
}

// NewEntitySyncFailedEvent creates an entity-sync-failed event
func NewEntitySyncFailedEvent(key SyncKey, externalID, reason string) *EntitySyncFailedEvent {
	return &EntitySyncFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(TopicEntitySyncFailed, key.EntityType.String(), key.InternalID),
		System:          key.System,
		EntityType:      key.EntityType,
		ExternalID:      externalID,
		Reason:          reason,
	}
}
