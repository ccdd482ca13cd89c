package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partpulse/gateway/internal/domain/canonical"
	"github.com/partpulse/gateway/internal/domain/gateway"
)

func testSyncKey() gateway.SyncKey {
	return gateway.SyncKey{
		System:     gateway.SystemCodeZohoCRM,
		EntityType: canonical.RecordKindCustomer,
		InternalID: "CUST-1001",
	}
}

func TestBeginAttempt(t *testing.T) {
	db := setupTestDB(t)
	log := NewGormSyncLog(db)
	ctx := context.Background()

	entry, err := log.BeginAttempt(ctx, testSyncKey(), gateway.OperationCreate)
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomePending, entry.Outcome)
	assert.Equal(t, gateway.OperationCreate, entry.Operation)
	assert.Equal(t, testSyncKey(), entry.Key)
	assert.Nil(t, entry.CompletedAt)
}

func TestBeginAttemptRejectsConcurrent(t *testing.T) {
	db := setupTestDB(t)
	log := NewGormSyncLog(db)
	ctx := context.Background()

	_, err := log.BeginAttempt(ctx, testSyncKey(), gateway.OperationCreate)
	require.NoError(t, err)

	_, err = log.BeginAttempt(ctx, testSyncKey(), gateway.OperationUpdate)
	assert.ErrorIs(t, err, gateway.ErrConcurrentSync)

	// A different key is unaffected
	other := testSyncKey()
	other.System = gateway.SystemCodeZohoBooks
	_, err = log.BeginAttempt(ctx, other, gateway.OperationCreate)
	assert.NoError(t, err)
}

func TestBeginAttemptRacingWritersOneWins(t *testing.T) {
	db := setupTestDB(t)
	log := NewGormSyncLog(db)
	ctx := context.Background()

	const writers = 8
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := log.BeginAttempt(ctx, testSyncKey(), gateway.OperationCreate)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var won, rejected int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, gateway.ErrConcurrentSync):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, writers-1, rejected)
}

func TestBeginAttemptAfterCompletion(t *testing.T) {
	db := setupTestDB(t)
	log := NewGormSyncLog(db)
	ctx := context.Background()

	entry, err := log.BeginAttempt(ctx, testSyncKey(), gateway.OperationCreate)
	require.NoError(t, err)
	require.NoError(t, log.CompleteAttempt(ctx, entry.ID, gateway.OutcomeSuccess, "zcrm-42", ""))

	// Terminal outcome releases the key
	_, err = log.BeginAttempt(ctx, testSyncKey(), gateway.OperationUpdate)
	assert.NoError(t, err)
}

func TestCompleteAttempt(t *testing.T) {
	db := setupTestDB(t)
	log := NewGormSyncLog(db)
	ctx := context.Background()

	entry, err := log.BeginAttempt(ctx, testSyncKey(), gateway.OperationCreate)
	require.NoError(t, err)

	err = log.CompleteAttempt(ctx, entry.ID, gateway.OutcomeSuccess, "zcrm-42", "")
	require.NoError(t, err)

	history, err := log.History(ctx, testSyncKey())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, gateway.OutcomeSuccess, history[0].Outcome)
	assert.Equal(t, "zcrm-42", history[0].ExternalID)
	assert.NotNil(t, history[0].CompletedAt)
}

func TestCompleteAttemptRejectsNonTerminal(t *testing.T) {
	db := setupTestDB(t)
	log := NewGormSyncLog(db)
	ctx := context.Background()

	entry, err := log.BeginAttempt(ctx, testSyncKey(), gateway.OperationCreate)
	require.NoError(t, err)

	assert.Error(t, log.CompleteAttempt(ctx, entry.ID, gateway.OutcomePending, "", ""))
}

func TestCompleteAttemptTwice(t *testing.T) {
	db := setupTestDB(t)
	log := NewGormSyncLog(db)
	ctx := context.Background()

	entry, err := log.BeginAttempt(ctx, testSyncKey(), gateway.OperationCreate)
	require.NoError(t, err)
	require.NoError(t, log.CompleteAttempt(ctx, entry.ID, gateway.OutcomeSuccess, "zcrm-42", ""))

	err = log.CompleteAttempt(ctx, entry.ID, gateway.OutcomeFailed, "", "late failure")
	assert.Error(t, err)
}

func TestGetExternalID(t *testing.T) {
	db := setupTestDB(t)
	log := NewGormSyncLog(db)
	ctx := context.Background()

	_, ok, err := log.GetExternalID(ctx, testSyncKey())
	require.NoError(t, err)
	assert.False(t, ok)

	entry, err := log.BeginAttempt(ctx, testSyncKey(), gateway.OperationCreate)
	require.NoError(t, err)
	require.NoError(t, log.CompleteAttempt(ctx, entry.ID, gateway.OutcomeSuccess, "zcrm-42", ""))

	id, ok, err := log.GetExternalID(ctx, testSyncKey())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "zcrm-42", id)
}

func TestGetExternalIDIgnoresFailures(t *testing.T) {
	db := setupTestDB(t)
	log := NewGormSyncLog(db)
	ctx := context.Background()

	entry, err := log.BeginAttempt(ctx, testSyncKey(), gateway.OperationCreate)
	require.NoError(t, err)
	require.NoError(t, log.CompleteAttempt(ctx, entry.ID, gateway.OutcomeFailed, "", "remote rejected"))

	_, ok, err := log.GetExternalID(ctx, testSyncKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHistoryOrdering(t *testing.T) {
	db := setupTestDB(t)
	log := NewGormSyncLog(db)
	ctx := context.Background()

	first, err := log.BeginAttempt(ctx, testSyncKey(), gateway.OperationCreate)
	require.NoError(t, err)
	require.NoError(t, log.CompleteAttempt(ctx, first.ID, gateway.OutcomeFailed, "", "timeout"))

	time.Sleep(5 * time.Millisecond)

	second, err := log.BeginAttempt(ctx, testSyncKey(), gateway.OperationCreate)
	require.NoError(t, err)
	require.NoError(t, log.CompleteAttempt(ctx, second.ID, gateway.OutcomeSuccess, "zcrm-42", ""))

	history, err := log.History(ctx, testSyncKey())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)
}

func TestSweepStale(t *testing.T) {
	db := setupTestDB(t)
	log := NewGormSyncLog(db)
	ctx := context.Background()

	entry, err := log.BeginAttempt(ctx, testSyncKey(), gateway.OperationCreate)
	require.NoError(t, err)

	// Backdate the pending entry past the deadline
	err = db.Model(&struct{}{}).Table("sync_log_entries").
		Where("id = ?", entry.ID).
		Update("started_at", time.Now().UTC().Add(-time.Hour)).Error
	require.NoError(t, err)

	swept, err := log.SweepStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	// The key is released after the sweep
	_, err = log.BeginAttempt(ctx, testSyncKey(), gateway.OperationCreate)
	assert.NoError(t, err)

	history, err := log.History(ctx, testSyncKey())
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeFailed, history[1].Outcome)
}

func TestSweepStaleLeavesFreshEntries(t *testing.T) {
	db := setupTestDB(t)
	log := NewGormSyncLog(db)
	ctx := context.Background()

	_, err := log.BeginAttempt(ctx, testSyncKey(), gateway.OperationCreate)
	require.NoError(t, err)

	swept, err := log.SweepStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(0), swept)
}
