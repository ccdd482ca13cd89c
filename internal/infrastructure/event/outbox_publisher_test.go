package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partpulse/gateway/internal/domain/canonical"
	"github.com/partpulse/gateway/internal/domain/gateway"
	"github.com/partpulse/gateway/internal/domain/shared"
)

func TestOutboxPublisherStoresPendingEntries(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewGormOutboxRepository(db)
	publisher := NewOutboxPublisher(repo, NewGatewaySerializer())

	event := gateway.NewEntityCreatedEvent(canonical.RecordKindCustomer, "CUST-1")
	require.NoError(t, publisher.Publish(context.Background(), event))

	pending, err := repo.FindPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, gateway.TopicEntityCreated, pending[0].EventType)
	assert.Equal(t, "CUST-1", pending[0].AggregateID)
	assert.Equal(t, shared.OutboxStatusPending, pending[0].Status)

	// Round-trips through the serializer into the concrete event type
	decoded, err := NewGatewaySerializer().Deserialize(pending[0].EventType, pending[0].Payload)
	require.NoError(t, err)
	created, ok := decoded.(*gateway.EntityCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, canonical.RecordKindCustomer, created.EntityType)
}

func TestOutboxPublisherNoEvents(t *testing.T) {
	db := setupOutboxTestDB(t)
	publisher := NewOutboxPublisher(NewGormOutboxRepository(db), NewGatewaySerializer())
	assert.NoError(t, publisher.Publish(context.Background()))
}
