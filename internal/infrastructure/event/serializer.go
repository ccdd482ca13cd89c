package event

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/partpulse/gateway/internal/domain/gateway"
	"github.com/partpulse/gateway/internal/domain/shared"
)

// EventSerializer converts domain events to and from the JSON payloads stored
// in the outbox. Deserialization goes through a per-topic factory so the
// concrete event type comes back, not a generic envelope.
type EventSerializer struct {
	mu        sync.RWMutex
	factories map[string]func() shared.DomainEvent
}

// NewEventSerializer creates a serializer with no topics registered.
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{factories: make(map[string]func() shared.DomainEvent)}
}

// NewGatewaySerializer creates a serializer covering every gateway topic.
func NewGatewaySerializer() *EventSerializer {
	s := NewEventSerializer()
	s.Register(gateway.TopicEntityCreated, func() shared.DomainEvent { return &gateway.EntityCreatedEvent{} })
	s.Register(gateway.TopicEntityUpdated, func() shared.DomainEvent { return &gateway.EntityUpdatedEvent{} })
	s.Register(gateway.TopicPaymentReceived, func() shared.DomainEvent { return &gateway.PaymentReceivedEvent{} })
	s.Register(gateway.TopicLedgerVerifyRequested, func() shared.DomainEvent { return &gateway.LedgerVerifyRequestedEvent{} })
	s.Register(gateway.TopicEntityVerified, func() shared.DomainEvent { return &gateway.EntityVerifiedEvent{} })
	s.Register(gateway.TopicEntitySyncCompleted, func() shared.DomainEvent { return &gateway.EntitySyncCompletedEvent{} })
	s.Register(gateway.TopicEntitySyncFailed, func() shared.DomainEvent { return &gateway.EntitySyncFailedEvent{} })
	return s
}

// Register binds a topic to a factory producing its empty event value.
func (s *EventSerializer) Register(eventType string, factory func() shared.DomainEvent) {
	s.mu.Lock()
	s.factories[eventType] = factory
	s.mu.Unlock()
}

// Serialize renders event as JSON.
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	return json.Marshal(event)
}

// Deserialize decodes data into the concrete event registered for eventType.
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	factory, ok := s.factories[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no event registered for topic %q", eventType)
	}

	event := factory()
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", eventType, err)
	}
	return event, nil
}

// IsRegistered reports whether a topic has a registered event type.
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.factories[eventType]
	return ok
}
