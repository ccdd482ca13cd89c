package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partpulse/gateway/internal/domain/shared"
)

// OutboxEventModel is the persistence model for outbox entries
type OutboxEventModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	EventID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	EventType     string    `gorm:"type:varchar(100);not null;index"`
	AggregateID   string    `gorm:"type:varchar(100);not null;index"`
	AggregateType string    `gorm:"type:varchar(50);not null"`
	Payload       []byte    `gorm:"type:bytea;not null"`
	Status        string    `gorm:"type:varchar(20);not null;index"`
	RetryCount    int       `gorm:"not null;default:0"`
	MaxRetries    int       `gorm:"not null;default:5"`
	LastError     string    `gorm:"type:text"`
	NextRetryAt   *time.Time `gorm:"index"`
	ProcessedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null;index"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OutboxEventModel) TableName() string {
	return "outbox_events"
}

// ToDomain converts the model to a domain outbox entry
func (m *OutboxEventModel) ToDomain() *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:            m.ID,
		EventID:       m.EventID,
		EventType:     m.EventType,
		AggregateID:   m.AggregateID,
		AggregateType: m.AggregateType,
		Payload:       m.Payload,
		Status:        shared.OutboxStatus(m.Status),
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		LastError:     m.LastError,
		NextRetryAt:   m.NextRetryAt,
		ProcessedAt:   m.ProcessedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// modelFromEntry converts a domain outbox entry to the persistence model
func modelFromEntry(e *shared.OutboxEntry) *OutboxEventModel {
	return &OutboxEventModel{
		ID:            e.ID,
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Payload:       e.Payload,
		Status:        string(e.Status),
		RetryCount:    e.RetryCount,
		MaxRetries:    e.MaxRetries,
		LastError:     e.LastError,
		NextRetryAt:   e.NextRetryAt,
		ProcessedAt:   e.ProcessedAt,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// GormOutboxRepository implements OutboxRepository with GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GORM-backed outbox repository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// Save persists one or more outbox entries
func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	models := make([]*OutboxEventModel, len(entries))
	for i, e := range entries {
		models[i] = modelFromEntry(e)
	}
	return r.db.WithContext(ctx).Create(models).Error
}

// SaveInTx persists entries within an existing transaction, for the
// transactional outbox pattern
func (r *GormOutboxRepository) SaveInTx(ctx context.Context, tx *gorm.DB, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	models := make([]*OutboxEventModel, len(entries))
	for i, e := range entries {
		models[i] = modelFromEntry(e)
	}
	return tx.WithContext(ctx).Create(models).Error
}

// FindPending retrieves pending entries up to the specified limit
func (r *GormOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	var models []*OutboxEventModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(shared.OutboxStatusPending)).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainEntries(models), nil
}

// FindRetryable retrieves failed entries that are due for retry
func (r *GormOutboxRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	var models []*OutboxEventModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", string(shared.OutboxStatusFailed), before).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainEntries(models), nil
}

// MarkProcessing atomically marks entries as processing and returns the ones
// actually claimed, so two processors never publish the same entry
func (r *GormOutboxRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var claimed []*OutboxEventModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&OutboxEventModel{}).
			Where("id IN ? AND status IN ?", ids,
				[]string{string(shared.OutboxStatusPending), string(shared.OutboxStatusFailed)}).
			Updates(map[string]interface{}{
				"status":     string(shared.OutboxStatusProcessing),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		return tx.Where("id IN ? AND status = ?", ids, string(shared.OutboxStatusProcessing)).
			Find(&claimed).Error
	})
	if err != nil {
		return nil, err
	}
	return toDomainEntries(claimed), nil
}

// Update updates an existing outbox entry
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	return r.db.WithContext(ctx).Save(modelFromEntry(entry)).Error
}

// DeleteOlderThan deletes sent entries older than the specified time
func (r *GormOutboxRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", string(shared.OutboxStatusSent), before).
		Delete(&OutboxEventModel{})
	return result.RowsAffected, result.Error
}

func toDomainEntries(models []*OutboxEventModel) []*shared.OutboxEntry {
	entries := make([]*shared.OutboxEntry, len(models))
	for i, m := range models {
		entries[i] = m.ToDomain()
	}
	return entries
}

// Ensure GormOutboxRepository implements OutboxRepository
var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
