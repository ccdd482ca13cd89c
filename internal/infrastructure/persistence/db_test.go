package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/partpulse/gateway/internal/infrastructure/persistence/models"
)

// setupTestDB creates an in-memory SQLite database with all tables migrated
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Every pooled connection to :memory: gets its own database; pin the
	// pool to one so concurrent tests share state.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.SyncLogEntryModel{},
		&models.ProvenanceRecordModel{},
		&models.SyncWatermarkModel{},
		&models.ReconciliationMatchModel{},
		&models.LedgerVerificationModel{},
		&models.CustomerModel{},
		&models.InvoiceModel{},
		&models.PaymentModel{},
	)
	require.NoError(t, err)

	// Mirror the partial unique index from migrations/000001 so the pending
	// guard behaves like production.
	err = db.Exec(`CREATE UNIQUE INDEX idx_sync_log_one_pending
		ON sync_log_entries (system, entity_type, internal_id)
		WHERE outcome = 'PENDING'`).Error
	require.NoError(t, err)

	return db
}
