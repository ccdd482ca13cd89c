package provenance

import (
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

// attestationEnvelope is the message shape submitted to the consensus topic.
// It carries the entity identity alongside the snapshot so the finality
// watcher can route observed messages back to their provenance record.
type attestationEnvelope struct {
	EntityID   string               `json:"entity_id"`
	EntityKind canonical.EntityKind `json:"entity_kind"`
	Data       json.RawMessage      `json:"data"`
}

// TrackerConfig holds consensus tracking settings
type TrackerConfig struct {
	// TopicID is the consensus topic attestations are submitted to
	TopicID string
	// FinalityTimeout bounds the wait between submission and observed
	// consensus; submitted records older than this are failed by the sweep
	FinalityTimeout time.Duration
	// ReconnectDelay is the pause before the watcher reopens a broken stream
	ReconnectDelay time.Duration
}

// DefaultTrackerConfig returns production defaults
func DefaultTrackerConfig(topicID string) TrackerConfig {
	return TrackerConfig{
		TopicID:         topicID,
		FinalityTimeout: 5 * time.Minute,
		ReconnectDelay:  5 * time.Second,
	}
}

// Tracker drives provenance records through pending → submitted →
// finalized | failed. Submission and finality observation are decoupled: the
// ledger accepting a message says nothing about consensus, so finality is
// only ever recorded from the public message stream, matched by content hash.
type Tracker struct {
	client    gateway.LedgerClient
	store     gateway.ProvenanceStore
	stamper   gateway.VerificationStamper
	publisher shared.EventPublisher
	config    TrackerConfig
	logger    *zap.Logger
}

// NewTracker creates a new Tracker
func NewTracker(
	client gateway.LedgerClient,
	store gateway.ProvenanceStore,
	stamper gateway.VerificationStamper,
	publisher shared.EventPublisher,
	config TrackerConfig,
	logger *zap.Logger,
) *Tracker {
	if config.FinalityTimeout <= 0 {
		config.FinalityTimeout = 5 * time.Minute
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = 5 * time.Second
	}
	return &Tracker{
		client:    client,
		store:     store,
		stamper:   stamper,
		publisher: publisher,
		config:    config,
		logger:    logger,
	}
}

// RequestVerification opens a provenance record for the entity snapshot and
// submits it to the consensus topic. A record already being tracked is left
// alone; a previously failed record is resubmitted with the new snapshot.
func (t *Tracker) RequestVerification(ctx context.Context, kind canonical.EntityKind, entityID string, payload json.RawMessage) error {
	envelope, err := json.Marshal(attestationEnvelope{
		EntityID:   entityID,
		EntityKind: kind,
		Data:       payload,
	})
	if err != nil {
		return fmt.Errorf("marshal attestation: %w", err)
	}

	record := canonical.NewProvenanceRecord(entityID, kind, envelope)

	existing, err := t.store.Get(ctx, entityID)
	switch {
	case errors.Is(err, gateway.ErrEntityNotFound):
		if err := t.store.Save(ctx, record); err != nil {
			return fmt.Errorf("save provenance record: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load provenance record: %w", err)
	case existing.Status == canonical.ProvenanceStatusFailed:
		if err := t.store.Update(ctx, record); err != nil {
			return fmt.Errorf("reset provenance record: %w", err)
		}
	default:
		t.logger.Debug("entity already under attestation",
			zap.String("entity_id", entityID),
			zap.String("status", existing.Status.String()))
		return nil
	}

	return t.submit(ctx, record)
}

func (t *Tracker) submit(ctx context.Context, record *canonical.ProvenanceRecord) error {
	if t.client == nil {
		if markErr := record.MarkFailed("ledger client not configured"); markErr == nil {
			if updErr := t.store.Update(ctx, record); updErr != nil {
				t.logger.Error("failed to record submission failure", zap.Error(updErr))
			}
		}
		return fmt.Errorf("submit attestation for %s: %w", record.EntityID, gateway.ErrUnavailable)
	}
	ref, err := t.client.SubmitMessage(ctx, t.config.TopicID, record.Payload)
	if err != nil {
		if markErr := record.MarkFailed(err.Error()); markErr == nil {
			if updErr := t.store.Update(ctx, record); updErr != nil {
				t.logger.Error("failed to record submission failure", zap.Error(updErr))
			}
		}
		return fmt.Errorf("submit attestation for %s: %w", record.EntityID, err)
	}

	if err := record.MarkSubmitted(ref, time.Now()); err != nil {
		return err
	}
	if err := t.store.Update(ctx, record); err != nil {
		return fmt.Errorf("persist submission: %w", err)
	}

	t.logger.Info("attestation submitted",
		zap.String("entity_id", record.EntityID),
		zap.String("entity_kind", record.EntityKind.String()),
		zap.String("transaction_ref", ref))
	return nil
}

// Watch consumes the topic's finalized message stream until the context ends,
// reopening the stream on failure. Blocking; run it in its own goroutine.
func (t *Tracker) Watch(ctx context.Context) error {
	since := time.Now().Add(-t.config.FinalityTimeout)
	for {
		err := t.watchOnce(ctx, since)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.logger.Warn("finality stream interrupted, reconnecting", zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.config.ReconnectDelay):
		}
		// Re-cover the timeout window on reconnect; duplicates are no-ops.
		since = time.Now().Add(-t.config.FinalityTimeout)
	}
}

func (t *Tracker) watchOnce(ctx context.Context, since time.Time) error {
	stream, err := t.client.Subscribe(ctx, t.config.TopicID, since)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		msg, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		if err := t.Observe(ctx, msg); err != nil {
			t.logger.Error("failed to process finalized message",
				zap.String("transaction_ref", msg.TransactionRef),
				zap.Error(err))
		}
	}
}

// Observe applies one finalized ledger message to its provenance record. A
// record finalizes only when the observed content hash matches the hash
// recorded at submission; anything else is logged and skipped. Duplicate
// observations of an already finalized record are no-ops.
func (t *Tracker) Observe(ctx context.Context, msg gateway.LedgerMessage) error {
	var envelope attestationEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil || envelope.EntityID == "" {
		// Foreign message on a shared topic; not ours.
		return nil
	}

	record, err := t.store.Get(ctx, envelope.EntityID)
	if errors.Is(err, gateway.ErrEntityNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load provenance record: %w", err)
	}

	if record.Status.IsTerminal() {
		t.logger.Debug("duplicate finality notification ignored",
			zap.String("entity_id", record.EntityID),
			zap.String("status", record.Status.String()))
		return nil
	}

	if err := record.MarkFinalized(msg.ContentHash(), msg.ConsensusAt); err != nil {
		if errors.Is(err, canonical.ErrHashMismatch) {
			t.logger.Warn("observed payload hash does not match submission",
				zap.String("entity_id", record.EntityID),
				zap.String("transaction_ref", msg.TransactionRef))
			return nil
		}
		return err
	}
	if err := t.store.Update(ctx, record); err != nil {
		return fmt.Errorf("persist finality: %w", err)
	}

	if err := t.stamper.StampVerified(ctx, record.EntityKind, record.EntityID, record.TransactionRef, msg.ConsensusAt); err != nil {
		return fmt.Errorf("stamp entity verified: %w", err)
	}

	t.logger.Info("attestation finalized",
		zap.String("entity_id", record.EntityID),
		zap.String("entity_kind", record.EntityKind.String()),
		zap.String("transaction_ref", record.TransactionRef),
		zap.Time("consensus_at", msg.ConsensusAt))

	return t.publisher.Publish(ctx, gateway.NewEntityVerifiedEvent(
		record.EntityKind.String(), record.EntityID, record.TransactionRef, msg.ConsensusAt))
}

// SweepTimedOut fails submitted records whose finality window has elapsed.
// Run periodically by the scheduler.
func (t *Tracker) SweepTimedOut(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-t.config.FinalityTimeout)
	records, err := t.store.FindSubmittedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, record := range records {
		if err := record.MarkFailed(fmt.Sprintf("no consensus within %s of submission", t.config.FinalityTimeout)); err != nil {
			continue
		}
		if err := t.store.Update(ctx, record); err != nil {
			t.logger.Error("failed to persist finality timeout",
				zap.String("entity_id", record.EntityID),
				zap.Error(err))
			continue
		}
		failed++
		t.logger.Warn("attestation timed out",
			zap.String("entity_id", record.EntityID),
			zap.String("transaction_ref", record.TransactionRef))
	}
	return failed, nil
}
