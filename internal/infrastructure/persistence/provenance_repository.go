package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/partpulse/gateway/internal/domain/canonical"
	"github.com/partpulse/gateway/internal/domain/gateway"
	"github.com/partpulse/gateway/internal/infrastructure/persistence/models"
)

// GormProvenanceStore implements gateway.ProvenanceStore using GORM
type GormProvenanceStore struct {
	db *gorm.DB
}

// NewGormProvenanceStore creates a new GormProvenanceStore
func NewGormProvenanceStore(db *gorm.DB) *GormProvenanceStore {
	return &GormProvenanceStore{db: db}
}

var _ gateway.ProvenanceStore = (*GormProvenanceStore)(nil)

// Save persists a new provenance record
func (r *GormProvenanceStore) Save(ctx context.Context, record *canonical.ProvenanceRecord) error {
	var model models.ProvenanceRecordModel
	model.FromProvenanceRecord(record)
	return r.db.WithContext(ctx).Create(&model).Error
}

// Update persists state changes to an existing record
func (r *GormProvenanceStore) Update(ctx context.Context, record *canonical.ProvenanceRecord) error {
	var model models.ProvenanceRecordModel
	model.FromProvenanceRecord(record)
	result := r.db.WithContext(ctx).
		Model(&models.ProvenanceRecordModel{}).
		Where("entity_id = ?", record.EntityID).
		Updates(map[string]interface{}{
			"payload":         model.Payload,
			"content_hash":    model.ContentHash,
			"status":          model.Status,
			"transaction_ref": model.TransactionRef,
			"submitted_at":    model.SubmittedAt,
			"finalized_at":    model.FinalizedAt,
			"failure_reason":  model.FailureReason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Get returns the provenance record for an entity
func (r *GormProvenanceStore) Get(ctx context.Context, entityID string) (*canonical.ProvenanceRecord, error) {
	var model models.ProvenanceRecordModel
	if err := r.db.WithContext(ctx).First(&model, "entity_id = ?", entityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gateway.ErrEntityNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindSubmittedBefore returns submitted records whose submission is older than
// the cutoff
func (r *GormProvenanceStore) FindSubmittedBefore(ctx context.Context, cutoff time.Time) ([]*canonical.ProvenanceRecord, error) {
	var rows []models.ProvenanceRecordModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND submitted_at < ?", canonical.ProvenanceStatusSubmitted, cutoff).
		Order("submitted_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]*canonical.ProvenanceRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].ToDomain())
	}
	return records, nil
}
