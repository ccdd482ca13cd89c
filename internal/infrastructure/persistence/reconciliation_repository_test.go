package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partpulse/gateway/internal/domain/gateway"
)

func testMatch() *gateway.ReconciliationMatch {
	return &gateway.ReconciliationMatch{
		System:        gateway.SystemCodeZohoBooks,
		TransactionID: "bt-9001",
		InternalID:    "INV-1001",
		Amount:        decimal.NewFromFloat(149.50),
		Currency:      "EUR",
		MatchedAt:     time.Now().UTC(),
	}
}

func TestMatchRecordAndLookup(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormMatchStore(db)
	ctx := context.Background()

	matched, err := store.IsMatched(ctx, gateway.SystemCodeZohoBooks, "bt-9001")
	require.NoError(t, err)
	assert.False(t, matched)

	require.NoError(t, store.Record(ctx, testMatch()))

	matched, err = store.IsMatched(ctx, gateway.SystemCodeZohoBooks, "bt-9001")
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestMatchRecordDuplicate(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormMatchStore(db)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, testMatch()))

	err := store.Record(ctx, testMatch())
	assert.ErrorIs(t, err, gateway.ErrAlreadyMatched)
}

func TestMatchesSince(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormMatchStore(db)
	ctx := context.Background()

	old := testMatch()
	old.TransactionID = "bt-old"
	old.MatchedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.Record(ctx, old))

	recent := testMatch()
	require.NoError(t, store.Record(ctx, recent))

	matches, err := store.MatchesSince(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "bt-9001", matches[0].TransactionID)
	assert.True(t, matches[0].Amount.Equal(decimal.NewFromFloat(149.50)))
}
