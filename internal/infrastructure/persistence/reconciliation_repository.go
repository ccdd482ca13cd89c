package persistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/partpulse/gateway/internal/domain/gateway"
	"github.com/partpulse/gateway/internal/infrastructure/persistence/models"
)

// GormMatchStore implements gateway.MatchStore using GORM
type GormMatchStore struct {
	db *gorm.DB
}

// NewGormMatchStore creates a new GormMatchStore
func NewGormMatchStore(db *gorm.DB) *GormMatchStore {
	return &GormMatchStore{db: db}
}

var _ gateway.MatchStore = (*GormMatchStore)(nil)

// Record stores a match. Recording the same (system, transaction) twice fails
// with ErrAlreadyMatched.
func (r *GormMatchStore) Record(ctx context.Context, match *gateway.ReconciliationMatch) error {
	model := models.ReconciliationMatchModel{
		System:        match.System,
		TransactionID: match.TransactionID,
		InternalID:    match.InternalID,
		Amount:        match.Amount,
		Currency:      match.Currency,
		MatchedAt:     match.MatchedAt,
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ReconciliationMatchModel{}).
			Where("system = ? AND transaction_id = ?", match.System, match.TransactionID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s/%s", gateway.ErrAlreadyMatched, match.System, match.TransactionID)
		}
		return tx.Create(&model).Error
	})
}

// IsMatched reports whether the transaction was matched in a prior run
func (r *GormMatchStore) IsMatched(ctx context.Context, system gateway.SystemCode, transactionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ReconciliationMatchModel{}).
		Where("system = ? AND transaction_id = ?", system, transactionID).
		Count(&count).Error
	return count > 0, err
}

// MatchesSince returns matches recorded since the given time, newest first
func (r *GormMatchStore) MatchesSince(ctx context.Context, since time.Time) ([]*gateway.ReconciliationMatch, error) {
	var rows []models.ReconciliationMatchModel
	if err := r.db.WithContext(ctx).
		Where("matched_at >= ?", since).
		Order("matched_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	matches := make([]*gateway.ReconciliationMatch, 0, len(rows))
	for i := range rows {
		matches = append(matches, rows[i].ToDomain())
	}
	return matches, nil
}
