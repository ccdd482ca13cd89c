package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/partpulse/gateway/internal/domain/shared"
)

// InMemoryEventBus is a synchronous in-process event bus. Delivery to one
// handler never prevents delivery to the others; every handler gets its
// attempt, and the joined failures come back to the publisher so a durable
// caller (the outbox drain) can schedule a redelivery.
type InMemoryEventBus struct {
	mu            sync.RWMutex
	subscriptions map[string][]shared.EventHandler
	logger        *zap.Logger
}

// NewInMemoryEventBus creates an empty bus.
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		subscriptions: make(map[string][]shared.EventHandler),
		logger:        logger,
	}
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

// Subscribe routes the given topics to handler. With no explicit topics the
// handler's own EventTypes are used.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	if len(eventTypes) == 0 {
		b.logger.Warn("handler subscribed without topics, ignoring")
		return
	}

	b.mu.Lock()
	for _, topic := range eventTypes {
		b.subscriptions[topic] = append(b.subscriptions[topic], handler)
	}
	b.mu.Unlock()

	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes handler from every topic it was routed to.
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, handlers := range b.subscriptions {
		kept := handlers[:0]
		for _, h := range handlers {
			if h != handler {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(b.subscriptions, topic)
			continue
		}
		b.subscriptions[topic] = kept
	}
}

// Publish delivers each event to every handler subscribed to its topic. All
// handlers are attempted regardless of earlier failures; the failures are
// joined into the returned error so the delivery as a whole can be retried.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var failed []error
	for _, event := range events {
		b.mu.RLock()
		handlers := append([]shared.EventHandler(nil), b.subscriptions[event.EventType()]...)
		b.mu.RUnlock()

		for _, handler := range handlers {
			if err := b.deliver(ctx, handler, event); err != nil {
				b.logger.Error("event handler failed",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.Error(err),
				)
				failed = append(failed, fmt.Errorf("%s: %w", event.EventType(), err))
			}
		}
	}
	return errors.Join(failed...)
}

func (b *InMemoryEventBus) deliver(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}

// Start is a no-op; the bus has no background machinery.
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.logger.Info("event bus started")
	return nil
}

// Stop is a no-op counterpart to Start.
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.logger.Info("event bus stopped")
	return nil
}
