package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact published on the gateway's event bus.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	// AggregateID is the internal entity id the event is about (e.g. "ORD-1001").
	// Internal ids are the only stable cross-system join key.
	AggregateID() string
	AggregateType() string
}

// BaseDomainEvent carries the fields every gateway event shares. Concrete
// events embed it by value so JSON round trips stay flat.
type BaseDomainEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	AggID     string    `json:"aggregate_id"`
	AggType   string    `json:"aggregate_type"`
}

// NewBaseDomainEvent stamps a fresh event id and occurrence time.
func NewBaseDomainEvent(eventType, aggType, aggID string) BaseDomainEvent {
	return BaseDomainEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
		AggID:     aggID,
		AggType:   aggType,
	}
}

func (e *BaseDomainEvent) EventID() uuid.UUID    { return e.ID }
func (e *BaseDomainEvent) EventType() string     { return e.Type }
func (e *BaseDomainEvent) OccurredAt() time.Time { return e.Timestamp }

// AggregateID reports the internal id of the entity that produced the event.
func (e *BaseDomainEvent) AggregateID() string   { return e.AggID }
func (e *BaseDomainEvent) AggregateType() string { return e.AggType }
