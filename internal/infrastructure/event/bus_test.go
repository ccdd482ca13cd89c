package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/partpulse/gateway/internal/domain/shared"
)

// recordingHandler captures events it receives
type recordingHandler struct {
	mu     sync.Mutex
	types  []string
	events []shared.DomainEvent
	err    error
}

func (h *recordingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.types
}

func (h *recordingHandler) received() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.events...)
}

// panickingHandler always panics
type panickingHandler struct{}

func (h *panickingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	panic("boom")
}

func (h *panickingHandler) EventTypes() []string { return nil }

func newTestEvent(eventType, aggID string) shared.DomainEvent {
	e := shared.NewBaseDomainEvent(eventType, "Order", aggID)
	return &e
}

func TestInMemoryEventBus_PublishToSubscriber(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{types: []string{"order.paid"}}
	bus.Subscribe(handler)

	event := newTestEvent("order.paid", "ORD-1001")
	require.NoError(t, bus.Publish(context.Background(), event))

	received := handler.received()
	require.Len(t, received, 1)
	assert.Equal(t, event.EventID(), received[0].EventID())
}

func TestInMemoryEventBus_NoHandlerForType(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{types: []string{"order.paid"}}
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("other.topic", "X-1")))
	assert.Empty(t, handler.received())
}

func TestInMemoryEventBus_HandlerErrorDoesNotBlockOthers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	failing := &recordingHandler{types: []string{"order.paid"}, err: errors.New("boom")}
	healthy := &recordingHandler{types: []string{"order.paid"}}
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("order.paid", "ORD-1"))

	// The failure surfaces to the publisher but never stops the sibling
	require.Error(t, err)
	assert.ErrorIs(t, err, failing.err)
	assert.Len(t, failing.received(), 1)
	assert.Len(t, healthy.received(), 1)
}

func TestInMemoryEventBus_HandlerPanicIsContained(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(&panickingHandler{}, "order.paid")
	healthy := &recordingHandler{types: []string{"order.paid"}}
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("order.paid", "ORD-1"))
	require.Error(t, err)
	assert.Len(t, healthy.received(), 1)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{types: []string{"order.paid"}}
	bus.Subscribe(handler)
	bus.Unsubscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("order.paid", "ORD-1")))
	assert.Empty(t, handler.received())
}
