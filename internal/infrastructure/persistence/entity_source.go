package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/partpulse/gateway/internal/domain/canonical"
	"github.com/partpulse/gateway/internal/domain/gateway"
	"github.com/partpulse/gateway/internal/infrastructure/persistence/models"
)

// GormEntitySource implements gateway.EntitySource over the internal
// authoritative tables.
type GormEntitySource struct {
	db *gorm.DB
}

// NewGormEntitySource creates a new GormEntitySource
func NewGormEntitySource(db *gorm.DB) *GormEntitySource {
	return &GormEntitySource{db: db}
}

var _ gateway.EntitySource = (*GormEntitySource)(nil)

// Customer derives the canonical customer shape by internal id
func (s *GormEntitySource) Customer(ctx context.Context, internalID string) (*canonical.CanonicalCustomer, error) {
	var model models.CustomerModel
	if err := s.db.WithContext(ctx).First(&model, "internal_id = ?", internalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gateway.ErrEntityNotFound
		}
		return nil, err
	}
	return model.ToCanonical(), nil
}

// Invoice derives the canonical invoice shape by internal id
func (s *GormEntitySource) Invoice(ctx context.Context, internalID string) (*canonical.CanonicalInvoice, error) {
	var model models.InvoiceModel
	if err := s.db.WithContext(ctx).First(&model, "internal_id = ?", internalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gateway.ErrEntityNotFound
		}
		return nil, err
	}
	return model.ToCanonical(), nil
}

// Payment derives the canonical payment shape by internal id
func (s *GormEntitySource) Payment(ctx context.Context, internalID string) (*canonical.CanonicalPayment, error) {
	var model models.PaymentModel
	if err := s.db.WithContext(ctx).First(&model, "internal_id = ?", internalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gateway.ErrEntityNotFound
		}
		return nil, err
	}
	return model.ToCanonical(), nil
}

// Load dispatches on record kind
func (s *GormEntitySource) Load(ctx context.Context, kind canonical.RecordKind, internalID string) (canonical.Record, error) {
	switch kind {
	case canonical.RecordKindCustomer:
		return s.Customer(ctx, internalID)
	case canonical.RecordKindInvoice:
		return s.Invoice(ctx, internalID)
	case canonical.RecordKindPayment:
		return s.Payment(ctx, internalID)
	default:
		return nil, fmt.Errorf("%w: %s", gateway.ErrUnsupportedRecord, kind)
	}
}

// GormVerificationStamper implements gateway.VerificationStamper
type GormVerificationStamper struct {
	db *gorm.DB
}

// NewGormVerificationStamper creates a new GormVerificationStamper
func NewGormVerificationStamper(db *gorm.DB) *GormVerificationStamper {
	return &GormVerificationStamper{db: db}
}

var _ gateway.VerificationStamper = (*GormVerificationStamper)(nil)

// StampVerified records ledger verification of an internal entity. Re-stamping
// the same entity updates in place, so duplicate finality notifications are
// harmless.
func (s *GormVerificationStamper) StampVerified(ctx context.Context, kind canonical.EntityKind, entityID, transactionRef string, at time.Time) error {
	model := models.LedgerVerificationModel{
		EntityKind:     kind,
		EntityID:       entityID,
		TransactionRef: transactionRef,
		VerifiedAt:     at.UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_kind"}, {Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"transaction_ref", "verified_at"}),
		}).
		Create(&model).Error
}
