package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/partpulse/gateway/internal/domain/canonical"
	"github.com/partpulse/gateway/internal/domain/gateway"
	"github.com/partpulse/gateway/internal/domain/shared"
)

// InboundPuller drives pullRecent per external system from the persisted
// watermark and re-emits remote changes as internal domain events. Adapters
// never mutate internal state directly; the events keep a single writer.
type InboundPuller struct {
	registry   gateway.AdapterRegistry
	watermarks gateway.WatermarkStore
	publisher  shared.EventPublisher
	source     gateway.EntitySource
	// overlap is re-pulled behind the watermark to cover clock skew between
	// the gateway and the remote system; downstream deduplicates.
	overlap time.Duration
	logger  *zap.Logger
}

// NewInboundPuller creates a new InboundPuller
func NewInboundPuller(
	registry gateway.AdapterRegistry,
	watermarks gateway.WatermarkStore,
	publisher shared.EventPublisher,
	source gateway.EntitySource,
	overlap time.Duration,
	logger *zap.Logger,
) *InboundPuller {
	return &InboundPuller{
		registry:   registry,
		watermarks: watermarks,
		publisher:  publisher,
		source:     source,
		overlap:    overlap,
		logger:     logger,
	}
}

// PullAll pulls recent changes from every registered adapter. Systems fail
// independently; the error aggregates per-system failures after all systems
// had their turn.
func (p *InboundPuller) PullAll(ctx context.Context) error {
	var firstErr error
	for _, adapter := range p.registry.All() {
		if err := p.PullSystem(ctx, adapter); err != nil {
			p.logger.Error("inbound pull failed",
				zap.String("system", adapter.SystemCode().String()),
				zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("pull %s: %w", adapter.SystemCode(), err)
			}
		}
	}
	return firstErr
}

// PullSystem pulls one system's remote changes since its watermark and
// advances the watermark past the changes it re-emitted. The watermark only
// moves on success, so a mid-pull failure resumes from the last safe point.
func (p *InboundPuller) PullSystem(ctx context.Context, adapter gateway.Adapter) error {
	code := adapter.SystemCode()

	since, err := p.watermarks.Get(ctx, code, gateway.WatermarkKindInbound)
	if err != nil {
		return fmt.Errorf("load watermark: %w", err)
	}
	if !since.IsZero() && p.overlap > 0 {
		since = since.Add(-p.overlap)
	}

	iter, err := adapter.PullRecent(ctx, since)
	if err != nil {
		return fmt.Errorf("pull recent: %w", err)
	}

	var pulled, emitted int
	var highWater time.Time
	for {
		change, ok, err := iter.Next(ctx)
		if err != nil {
			return fmt.Errorf("iterate changes: %w", err)
		}
		if !ok {
			break
		}
		pulled++

		if change.ChangedAt.After(highWater) {
			highWater = change.ChangedAt
		}

		internalID := change.Record.RecordID()
		if internalID == "" {
			// The record originated remotely and was never linked to an
			// internal entity; there is nothing to re-read by id.
			p.logger.Warn("remote change has no internal reference, skipping",
				zap.String("system", code.String()),
				zap.String("external_id", change.ExternalID))
			continue
		}

		kind := change.Record.RecordKind()
		echoed, err := p.matchesCanonical(ctx, kind, internalID, change.Record)
		if err != nil {
			return fmt.Errorf("compare canonical state for %s: %w", internalID, err)
		}
		if echoed {
			// The remote copy already matches internal state; this is our own
			// push coming back through the overlap window.
			p.logger.Debug("remote change matches canonical state, suppressing",
				zap.String("system", code.String()),
				zap.String("internal_id", internalID))
			continue
		}

		event := gateway.NewRemoteEntityUpdatedEvent(kind, internalID, code)
		if err := p.publisher.Publish(ctx, event); err != nil {
			return fmt.Errorf("publish change for %s: %w", internalID, err)
		}
		emitted++
	}

	if !highWater.IsZero() {
		if err := p.watermarks.Advance(ctx, code, gateway.WatermarkKindInbound, highWater); err != nil {
			return fmt.Errorf("advance watermark: %w", err)
		}
	}

	if pulled > 0 {
		p.logger.Info("inbound pull completed",
			zap.String("system", code.String()),
			zap.Int("pulled", pulled),
			zap.Int("emitted", emitted),
			zap.Time("watermark", highWater))
	}
	return nil
}

// matchesCanonical reports whether the pulled record equals the current
// canonical shape of the internal entity. Comparison runs over the canonical
// JSON form so decimal and time fields compare by value.
func (p *InboundPuller) matchesCanonical(ctx context.Context, kind canonical.RecordKind, internalID string, pulled canonical.Record) (bool, error) {
	current, err := p.source.Load(ctx, kind, internalID)
	if err != nil {
		if errors.Is(err, gateway.ErrEntityNotFound) {
			// Nothing to compare against yet; the change is genuinely new.
			return false, nil
		}
		return false, err
	}

	pulledJSON, err := json.Marshal(pulled)
	if err != nil {
		return false, err
	}
	currentJSON, err := json.Marshal(current)
	if err != nil {
		return false, err
	}
	return bytes.Equal(pulledJSON, currentJSON), nil
}
