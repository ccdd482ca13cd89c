package sync

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/partpulse/gateway/internal/domain/canonical"
	"github.com/partpulse/gateway/internal/domain/gateway"
	"github.com/partpulse/gateway/internal/domain/shared"
)

// SyncerConfig bounds the external calls made by one sync attempt
type SyncerConfig struct {
	// CallTimeout caps each individual external call
	CallTimeout time.Duration
	// MaxRetries is the number of retries after the first failed call
	MaxRetries int
	// InitialBackoff is the delay before the first retry; it doubles per retry
	InitialBackoff time.Duration
}

// DefaultSyncerConfig returns production defaults
func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{
		CallTimeout:    15 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// EntitySyncer pushes the current state of internal entities to external
// systems. The orchestration is identical for every system; the adapter
// carries all system-specific behavior.
type EntitySyncer struct {
	syncLog   gateway.SyncLog
	source    gateway.EntitySource
	publisher shared.EventPublisher
	validate  *validator.Validate
	config    SyncerConfig
	logger    *zap.Logger
}

// NewEntitySyncer creates a new EntitySyncer
func NewEntitySyncer(
	syncLog gateway.SyncLog,
	source gateway.EntitySource,
	publisher shared.EventPublisher,
	config SyncerConfig,
	logger *zap.Logger,
) *EntitySyncer {
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultSyncerConfig().CallTimeout
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = DefaultSyncerConfig().InitialBackoff
	}
	return &EntitySyncer{
		syncLog:   syncLog,
		source:    source,
		publisher: publisher,
		validate:  validator.New(),
		config:    config,
		logger:    logger,
	}
}

// Sync pushes one internal entity to one external system. The attempt is
// recorded in the sync log and always resolved terminally; a pending entry is
// never left behind. Returns ErrConcurrentSync unmodified when another
// attempt for the same key is in flight, so the caller can redeliver.
func (s *EntitySyncer) Sync(ctx context.Context, adapter gateway.Adapter, kind canonical.RecordKind, internalID string) error {
	if !adapter.Handles(kind) {
		return nil
	}

	key := gateway.SyncKey{
		System:     adapter.SystemCode(),
		EntityType: kind,
		InternalID: internalID,
	}

	entry, err := s.syncLog.BeginAttempt(ctx, key, gateway.OperationSync)
	if err != nil {
		if errors.Is(err, gateway.ErrConcurrentSync) {
			s.logger.Debug("sync already pending, deferring",
				zap.String("system", key.System.String()),
				zap.String("entity_type", kind.String()),
				zap.String("internal_id", internalID))
		}
		return err
	}

	// Re-read authoritative state by id; event payloads are never trusted
	// for sync-critical fields.
	record, err := s.source.Load(ctx, kind, internalID)
	if errors.Is(err, gateway.ErrEntityNotFound) {
		return s.syncLog.CompleteAttempt(ctx, entry.ID, gateway.OutcomeSkipped, "", "internal entity no longer exists")
	}
	if err != nil {
		return s.fail(ctx, entry, key, "", err)
	}

	if err := s.validate.Struct(record); err != nil {
		// Local garbage never reaches a remote API. Not retryable.
		return s.fail(ctx, entry, key, "", errors.Join(gateway.ErrValidation, err))
	}

	externalID, linked, err := s.syncLog.GetExternalID(ctx, key)
	if err != nil {
		return s.fail(ctx, entry, key, "", err)
	}

	op := gateway.OperationUpdate
	if !linked {
		op = gateway.OperationCreate
	}

	externalID, err = s.push(ctx, adapter, record, externalID, linked)
	if err != nil {
		return s.fail(ctx, entry, key, externalID, err)
	}

	if err := s.syncLog.CompleteAttempt(ctx, entry.ID, gateway.OutcomeSuccess, externalID, ""); err != nil {
		return err
	}

	s.logger.Info("entity synced",
		zap.String("system", key.System.String()),
		zap.String("entity_type", kind.String()),
		zap.String("internal_id", internalID),
		zap.String("external_id", externalID))

	return s.publisher.Publish(ctx, gateway.NewEntitySyncCompletedEvent(key, externalID, op))
}

// push performs the create-or-update against the remote system, resolving
// conflicts by relinking and stale external ids by recreating.
func (s *EntitySyncer) push(ctx context.Context, adapter gateway.Adapter, record canonical.Record, externalID string, linked bool) (string, error) {
	if !linked {
		id, err := s.createWithRetry(ctx, adapter, record)
		var conflict *gateway.ConflictError
		if errors.As(err, &conflict) {
			// The record already exists remotely; adopt the existing id
			// and converge its state with an update.
			s.logger.Warn("remote duplicate detected, relinking",
				zap.String("system", adapter.SystemCode().String()),
				zap.String("internal_id", record.RecordID()),
				zap.String("existing_external_id", conflict.ExistingExternalID))
			if err := s.updateWithRetry(ctx, adapter, conflict.ExistingExternalID, record); err != nil {
				return conflict.ExistingExternalID, err
			}
			return conflict.ExistingExternalID, nil
		}
		return id, err
	}

	err := s.updateWithRetry(ctx, adapter, externalID, record)
	if errors.Is(err, gateway.ErrNotFound) {
		// The remote record was deleted out of band; recreate and relink.
		s.logger.Warn("external record vanished, recreating",
			zap.String("system", adapter.SystemCode().String()),
			zap.String("internal_id", record.RecordID()),
			zap.String("stale_external_id", externalID))
		return s.createWithRetry(ctx, adapter, record)
	}
	return externalID, err
}

func (s *EntitySyncer) createWithRetry(ctx context.Context, adapter gateway.Adapter, record canonical.Record) (string, error) {
	var externalID string
	err := s.withRetry(ctx, func(callCtx context.Context) error {
		var callErr error
		externalID, callErr = adapter.CreateRecord(callCtx, record)
		return callErr
	})
	return externalID, err
}

func (s *EntitySyncer) updateWithRetry(ctx context.Context, adapter gateway.Adapter, externalID string, record canonical.Record) error {
	return s.withRetry(ctx, func(callCtx context.Context) error {
		return adapter.UpdateRecord(callCtx, externalID, record)
	})
}

// withRetry runs fn under a per-call timeout, retrying transient failures
// with exponential backoff. Permanent failures return immediately.
func (s *EntitySyncer) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := s.config.InitialBackoff
	var err error
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
		err = fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !isTransient(err) || attempt >= s.config.MaxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func isTransient(err error) bool {
	return errors.Is(err, gateway.ErrUnavailable) || errors.Is(err, gateway.ErrRateLimited)
}

// fail resolves the attempt as failed and publishes the failure event. The
// original error is returned so callers can inspect it.
func (s *EntitySyncer) fail(ctx context.Context, entry *gateway.SyncLogEntry, key gateway.SyncKey, externalID string, cause error) error {
	s.logger.Error("entity sync failed",
		zap.String("system", key.System.String()),
		zap.String("entity_type", key.EntityType.String()),
		zap.String("internal_id", key.InternalID),
		zap.Error(cause))

	if err := s.syncLog.CompleteAttempt(ctx, entry.ID, gateway.OutcomeFailed, externalID, cause.Error()); err != nil {
		s.logger.Error("failed to resolve sync attempt", zap.Error(err))
	}
	if err := s.publisher.Publish(ctx, gateway.NewEntitySyncFailedEvent(key, externalID, cause.Error())); err != nil {
		s.logger.Error("failed to publish sync failure event", zap.Error(err))
	}
	return cause
}
