package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partpulse/gateway/internal/domain/gateway"
	"github.com/partpulse/gateway/internal/infrastructure/persistence/models"
)

// GormSyncLog implements gateway.SyncLog using GORM
type GormSyncLog struct {
	db *gorm.DB
}

// NewGormSyncLog creates a new GormSyncLog
func NewGormSyncLog(db *gorm.DB) *GormSyncLog {
	return &GormSyncLog{db: db}
}

var _ gateway.SyncLog = (*GormSyncLog)(nil)

// BeginAttempt opens a pending entry for the key. The partial unique index
// over pending rows (idx_sync_log_one_pending) is the guard: two workers
// racing on the same key cannot both insert, whatever the isolation level,
// and the loser's constraint violation surfaces as ErrConcurrentSync.
func (r *GormSyncLog) BeginAttempt(ctx context.Context, key gateway.SyncKey, op gateway.Operation) (*gateway.SyncLogEntry, error) {
	if !op.IsValid() {
		return nil, fmt.Errorf("sync log: invalid operation %q", op)
	}

	model := models.SyncLogEntryModel{
		ID:         uuid.New(),
		System:     key.System,
		EntityType: key.EntityType,
		InternalID: key.InternalID,
		Operation:  op,
		Outcome:    gateway.OutcomePending,
		StartedAt:  time.Now().UTC(),
	}

	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isDuplicatePending(err) {
			return nil, gateway.ErrConcurrentSync
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// isDuplicatePending recognizes a unique violation on the one-pending index
// across the drivers in use: gorm's translated sentinel, the raw postgres
// SQLSTATE, and sqlite's constraint message in repo tests.
func isDuplicatePending(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "UNIQUE constraint failed")
}

// CompleteAttempt terminally resolves a pending entry
func (r *GormSyncLog) CompleteAttempt(ctx context.Context, id uuid.UUID, outcome gateway.Outcome, externalID, errorDetail string) error {
	if !outcome.IsTerminal() {
		return fmt.Errorf("sync log: outcome %q is not terminal", outcome)
	}

	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.SyncLogEntryModel{}).
		Where("id = ? AND outcome = ?", id, gateway.OutcomePending).
		Updates(map[string]interface{}{
			"outcome":      outcome,
			"external_id":  externalID,
			"error_detail": errorDetail,
			"completed_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("sync log: no pending entry with id %s", id)
	}
	return nil
}

// GetExternalID returns the external id from the last successful attempt
func (r *GormSyncLog) GetExternalID(ctx context.Context, key gateway.SyncKey) (string, bool, error) {
	var model models.SyncLogEntryModel
	err := r.db.WithContext(ctx).
		Where("system = ? AND entity_type = ? AND internal_id = ? AND outcome = ? AND external_id <> ''",
			key.System, key.EntityType, key.InternalID, gateway.OutcomeSuccess).
		Order("started_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return model.ExternalID, true, nil
}

// History returns all attempts for the key, most recent first
func (r *GormSyncLog) History(ctx context.Context, key gateway.SyncKey) ([]*gateway.SyncLogEntry, error) {
	var rows []models.SyncLogEntryModel
	if err := r.db.WithContext(ctx).
		Where("system = ? AND entity_type = ? AND internal_id = ?",
			key.System, key.EntityType, key.InternalID).
		Order("started_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]*gateway.SyncLogEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].ToDomain())
	}
	return entries, nil
}

// SweepStale force-fails pending entries older than the given age
func (r *GormSyncLog) SweepStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)
	result := r.db.WithContext(ctx).
		Model(&models.SyncLogEntryModel{}).
		Where("outcome = ? AND started_at < ?", gateway.OutcomePending, cutoff).
		Updates(map[string]interface{}{
			"outcome":      gateway.OutcomeFailed,
			"error_detail": "attempt abandoned: exceeded pending deadline",
			"completed_at": now,
		})
	return result.RowsAffected, result.Error
}
