package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOutboxTestEvent() DomainEvent {
	e := NewBaseDomainEvent("test.event", "Order", "ORD-1001")
	return &e
}

func TestNewOutboxEntry(t *testing.T) {
	event := newOutboxTestEvent()
	payload := []byte(`{"k":"v"}`)

	entry := NewOutboxEntry(event, payload)

	assert.Equal(t, event.EventID(), entry.EventID)
	assert.Equal(t, "test.event", entry.EventType)
	assert.Equal(t, "ORD-1001", entry.AggregateID)
	assert.Equal(t, "Order", entry.AggregateType)
	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Equal(t, DefaultMaxRetries, entry.MaxRetries)
	assert.Equal(t, payload, entry.Payload)
}

func TestOutboxEntry_MarkProcessing(t *testing.T) {
	entry := NewOutboxEntry(newOutboxTestEvent(), nil)

	require.NoError(t, entry.MarkProcessing())
	assert.Equal(t, OutboxStatusProcessing, entry.Status)

	// Processing entries cannot be claimed twice
	assert.Error(t, entry.MarkProcessing())
}

func TestOutboxEntry_MarkSent(t *testing.T) {
	entry := NewOutboxEntry(newOutboxTestEvent(), nil)
	require.NoError(t, entry.MarkProcessing())

	entry.MarkSent()

	assert.Equal(t, OutboxStatusSent, entry.Status)
	require.NotNil(t, entry.ProcessedAt)
	assert.WithinDuration(t, time.Now(), *entry.ProcessedAt, time.Second)
}

func TestOutboxEntry_MarkFailed_Backoff(t *testing.T) {
	entry := NewOutboxEntry(newOutboxTestEvent(), nil)

	entry.MarkFailed("boom")

	assert.Equal(t, OutboxStatusFailed, entry.Status)
	assert.Equal(t, 1, entry.RetryCount)
	assert.Equal(t, "boom", entry.LastError)
	require.NotNil(t, entry.NextRetryAt)
	assert.True(t, entry.CanRetry())
}

func TestOutboxEntry_MarkFailed_DeadAfterMaxRetries(t *testing.T) {
	entry := NewOutboxEntry(newOutboxTestEvent(), nil)

	for i := 0; i < DefaultMaxRetries; i++ {
		entry.MarkFailed("boom")
	}

	assert.Equal(t, OutboxStatusDead, entry.Status)
	assert.True(t, entry.IsDead())
	assert.False(t, entry.CanRetry())
}
