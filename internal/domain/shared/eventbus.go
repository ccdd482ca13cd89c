package shared

import "context"

// EventHandler consumes domain events delivered by the bus.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the topics this handler wants by default.
	EventTypes() []string
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus routes published events to subscribed handlers.
type EventBus interface {
	EventPublisher

	// Subscribe routes the given topics to handler. With no topics the
	// handler's own EventTypes are used.
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
