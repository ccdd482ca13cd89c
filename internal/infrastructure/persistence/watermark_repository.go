package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/partpulse/gateway/internal/domain/gateway"
	"github.com/partpulse/gateway/internal/infrastructure/persistence/models"
)

// GormWatermarkStore implements gateway.WatermarkStore using GORM
type GormWatermarkStore struct {
	db *gorm.DB
}

// NewGormWatermarkStore creates a new GormWatermarkStore
func NewGormWatermarkStore(db *gorm.DB) *GormWatermarkStore {
	return &GormWatermarkStore{db: db}
}

var _ gateway.WatermarkStore = (*GormWatermarkStore)(nil)

// Get returns the current watermark; the zero time means no pull yet
func (r *GormWatermarkStore) Get(ctx context.Context, system gateway.SystemCode, kind gateway.WatermarkKind) (time.Time, error) {
	var model models.SyncWatermarkModel
	err := r.db.WithContext(ctx).
		Where("system = ? AND kind = ?", system, kind).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return model.Position, nil
}

// Advance moves the watermark forward. Moving backwards is a no-op, so a
// replayed pull can never rewind the cursor.
func (r *GormWatermarkStore) Advance(ctx context.Context, system gateway.SystemCode, kind gateway.WatermarkKind, to time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model models.SyncWatermarkModel
		err := tx.Where("system = ? AND kind = ?", system, kind).First(&model).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.SyncWatermarkModel{
				System:   system,
				Kind:     kind,
				Position: to.UTC(),
			}).Error
		}
		if err != nil {
			return err
		}
		if !to.After(model.Position) {
			return nil
		}
		return tx.Model(&models.SyncWatermarkModel{}).
			Where("system = ? AND kind = ?", system, kind).
			Update("position", to.UTC()).Error
	})
}
