package event

import (
	"context"
	"fmt"

	"github.com/partpulse/gateway/internal/domain/shared"
)

// OutboxPublisher implements shared.EventPublisher by writing events to the
// durable outbox instead of dispatching them directly. The background
// processor delivers them to the bus, surviving crashes between the
// state change and the delivery.
type OutboxPublisher struct {
	repo       shared.OutboxRepository
	serializer *EventSerializer
}

// NewOutboxPublisher creates a new outbox publisher
func NewOutboxPublisher(repo shared.OutboxRepository, serializer *EventSerializer) *OutboxPublisher {
	return &OutboxPublisher{repo: repo, serializer: serializer}
}

var _ shared.EventPublisher = (*OutboxPublisher)(nil)

// Publish stores the events as pending outbox entries
func (p *OutboxPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		payload, err := p.serializer.Serialize(event)
		if err != nil {
			return fmt.Errorf("serialize event %s: %w", event.EventType(), err)
		}
		entries = append(entries, shared.NewOutboxEntry(event, payload))
	}
	return p.repo.Save(ctx, entries...)
}
