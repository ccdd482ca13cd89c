package sync

import (
	"context"
	"encoding/json"
	"errors"
	stdsync "sync"

	"go.uber.org/zap"

	"github.com/partpulse/gateway/internal/domain/canonical"
	"github.com/partpulse/gateway/internal/domain/gateway"
	"github.com/partpulse/gateway/internal/domain/shared"
)

// VerificationRequester starts provenance tracking for an entity snapshot.
// Implemented by the provenance tracker.
type VerificationRequester interface {
	RequestVerification(ctx context.Context, kind canonical.EntityKind, entityID string, payload json.RawMessage) error
}

// EventRouter dispatches internal domain events to the external systems that
// need to hear about them. Dispatch fans out per adapter: one adapter failing
// never prevents delivery to its siblings.
type EventRouter struct {
	registry gateway.AdapterRegistry
	syncer   *EntitySyncer
	verifier VerificationRequester
	logger   *zap.Logger

	// slots bounds in-flight syncs per external system
	mu    stdsync.Mutex
	slots map[gateway.SystemCode]chan struct{}
}

// NewEventRouter creates a new EventRouter. maxInFlight caps concurrent syncs
// per system; systems absent from the map default to 1 (serialized).
func NewEventRouter(
	registry gateway.AdapterRegistry,
	syncer *EntitySyncer,
	verifier VerificationRequester,
	maxInFlight map[gateway.SystemCode]int,
	logger *zap.Logger,
) *EventRouter {
	slots := make(map[gateway.SystemCode]chan struct{})
	for code, n := range maxInFlight {
		if n < 1 {
			n = 1
		}
		slots[code] = make(chan struct{}, n)
	}
	return &EventRouter{
		registry: registry,
		syncer:   syncer,
		verifier: verifier,
		logger:   logger,
		slots:    slots,
	}
}

// EventTypes returns the topics the router consumes
func (r *EventRouter) EventTypes() []string {
	return []string{
		gateway.TopicEntityCreated,
		gateway.TopicEntityUpdated,
		gateway.TopicPaymentReceived,
		gateway.TopicLedgerVerifyRequested,
	}
}

// Handle routes one domain event. Returns ErrConcurrentSync when any target
// adapter had a sync in flight for the same entity, so the event is
// redelivered; all other adapter failures are resolved in the sync log and
// reported via entity-sync-failed events, not by failing the delivery.
func (r *EventRouter) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *gateway.EntityCreatedEvent:
		return r.fanOut(ctx, e.EntityType, e.AggregateID(), "")
	case *gateway.EntityUpdatedEvent:
		return r.fanOut(ctx, e.EntityType, e.AggregateID(), e.Origin)
	case *gateway.PaymentReceivedEvent:
		return r.fanOut(ctx, canonical.RecordKindPayment, e.PaymentID, "")
	case *gateway.LedgerVerifyRequestedEvent:
		return r.verifier.RequestVerification(ctx, e.EntityKind, e.AggregateID(), e.Payload)
	default:
		r.logger.Warn("unknown event topic dropped",
			zap.String("event_type", event.EventType()),
			zap.String("aggregate_id", event.AggregateID()))
		return nil
	}
}

// fanOut syncs the entity to every adapter that maps its kind, concurrently
// and independently. A change pulled from an external system is not pushed
// back to it: the origin adapter is skipped to break the echo cycle.
func (r *EventRouter) fanOut(ctx context.Context, kind canonical.RecordKind, internalID string, origin gateway.SystemCode) error {
	adapters := r.registry.For(kind)
	if origin != "" {
		kept := adapters[:0]
		for _, adapter := range adapters {
			if adapter.SystemCode() != origin {
				kept = append(kept, adapter)
			}
		}
		adapters = kept
	}
	if len(adapters) == 0 {
		r.logger.Debug("no adapter handles kind",
			zap.String("entity_type", kind.String()),
			zap.String("internal_id", internalID))
		return nil
	}

	var wg stdsync.WaitGroup
	errs := make([]error, len(adapters))
	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, adapter gateway.Adapter) {
			defer wg.Done()
			slot := r.slot(adapter.SystemCode())
			select {
			case slot <- struct{}{}:
				defer func() { <-slot }()
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			errs[i] = r.syncer.Sync(ctx, adapter, kind, internalID)
		}(i, adapter)
	}
	wg.Wait()

	// Only a concurrent-sync collision warrants redelivery; everything else
	// was already resolved terminally by the syncer.
	for _, err := range errs {
		if errors.Is(err, gateway.ErrConcurrentSync) {
			return err
		}
	}
	return nil
}

func (r *EventRouter) slot(code gateway.SystemCode) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[code]
	if !ok {
		slot = make(chan struct{}, 1)
		r.slots[code] = slot
	}
	return slot
}
