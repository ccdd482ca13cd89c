package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/partpulse/gateway/internal/domain/shared"
)

// IdempotentHandler wraps an EventHandler with idempotency checking.
// The bus may redeliver an event (outbox retry, inbound overlap window); the
// wrapped handler still processes it at most once per TTL. Only a successful
// handling marks the key, so a redelivery after a failed attempt is handled
// again instead of being dropped as a duplicate.
type IdempotentHandler struct {
	handler shared.EventHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
}

// NewIdempotentHandler creates a new idempotent handler wrapper
func NewIdempotentHandler(
	handler shared.EventHandler,
	store shared.IdempotencyStore,
	config shared.IdempotencyConfig,
	logger *zap.Logger,
) *IdempotentHandler {
	return &IdempotentHandler{
		handler: handler,
		store:   store,
		config:  config,
		logger:  logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Handle processes the event with idempotency checking
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}

	eventID := event.EventID().String()

	processed, err := h.store.IsProcessed(ctx, eventID)
	if err != nil {
		// Dedup store failure must not drop events; process and rely on
		// downstream idempotency (external id check, pending guard)
		h.logger.Warn("idempotency store unavailable, processing anyway",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return h.handler.Handle(ctx, event)
	}
	if processed {
		h.logger.Debug("duplicate event skipped",
			zap.String("event_id", eventID),
			zap.String("event_type", event.EventType()),
		)
		return nil
	}

	// Two deliveries racing the check both reach the handler; the sync log's
	// pending guard resolves that race downstream.
	if err := h.handler.Handle(ctx, event); err != nil {
		return err
	}

	if _, err := h.store.MarkProcessed(ctx, eventID, h.config.TTL); err != nil {
		h.logger.Warn("failed to record processed event",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
	}
	return nil
}

// Ensure IdempotentHandler implements EventHandler
var _ shared.EventHandler = (*IdempotentHandler)(nil)
