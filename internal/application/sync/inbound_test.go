package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/partpulse/gateway/internal/domain/canonical"
	"github.com/partpulse/gateway/internal/domain/gateway"
)

type memWatermarks struct {
	mu    stdsync.Mutex
	marks map[string]time.Time
}

func newMemWatermarks() *memWatermarks {
	return &memWatermarks{marks: make(map[string]time.Time)}
}

func (m *memWatermarks) key(system gateway.SystemCode, kind gateway.WatermarkKind) string {
	return string(system) + "/" + string(kind)
}

func (m *memWatermarks) Get(ctx context.Context, system gateway.SystemCode, kind gateway.WatermarkKind) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marks[m.key(system, kind)], nil
}

func (m *memWatermarks) Advance(ctx context.Context, system gateway.SystemCode, kind gateway.WatermarkKind, to time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(system, kind)
	if to.After(m.marks[k]) {
		m.marks[k] = to
	}
	return nil
}

// pullingAdapter returns scripted changes and records the since cursor
type pullingAdapter struct {
	*fakeAdapter
	changes   []gateway.Change
	pullErr   error
	lastSince time.Time
}

func (a *pullingAdapter) PullRecent(ctx context.Context, since time.Time) (gateway.ChangeIterator, error) {
	a.lastSince = since
	if a.pullErr != nil {
		return nil, a.pullErr
	}
	return &sliceIterator{changes: a.changes}, nil
}

func change(internalID string, at time.Time) gateway.Change {
	record := testCustomer("")
	record.InternalID = internalID
	return gateway.Change{ExternalID: "ext-" + internalID, Record: record, ChangedAt: at}
}

func TestPullSystemEmitsAndAdvances(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	adapter := &pullingAdapter{
		fakeAdapter: newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer),
		changes: []gateway.Change{
			change("CUST-1", base),
			change("CUST-2", base.Add(time.Minute)),
		},
	}
	marks := newMemWatermarks()
	pub := &capturePublisher{}
	puller := NewInboundPuller(NewRegistry(adapter), marks, pub, &fakeSource{}, time.Minute, zap.NewNop())

	require.NoError(t, puller.PullSystem(context.Background(), adapter))

	events := pub.byType(gateway.TopicEntityUpdated)
	require.Len(t, events, 2)
	assert.Equal(t, "CUST-1", events[0].AggregateID())

	mark, err := marks.Get(context.Background(), gateway.SystemCodeZohoCRM, gateway.WatermarkKindInbound)
	require.NoError(t, err)
	assert.True(t, mark.Equal(base.Add(time.Minute)))
}

func TestPullSystemResumesBehindWatermark(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	marks := newMemWatermarks()
	require.NoError(t, marks.Advance(context.Background(), gateway.SystemCodeZohoCRM, gateway.WatermarkKindInbound, base))

	adapter := &pullingAdapter{fakeAdapter: newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer)}
	puller := NewInboundPuller(NewRegistry(adapter), marks, &capturePublisher{}, &fakeSource{}, time.Minute, zap.NewNop())

	require.NoError(t, puller.PullSystem(context.Background(), adapter))

	// The pull overlaps one minute behind the stored watermark
	assert.True(t, adapter.lastSince.Equal(base.Add(-time.Minute)))
}

func TestPullSystemFirstRunStartsFromZero(t *testing.T) {
	adapter := &pullingAdapter{fakeAdapter: newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer)}
	puller := NewInboundPuller(NewRegistry(adapter), newMemWatermarks(), &capturePublisher{}, &fakeSource{}, time.Minute, zap.NewNop())

	require.NoError(t, puller.PullSystem(context.Background(), adapter))
	assert.True(t, adapter.lastSince.IsZero())
}

func TestPullSystemSkipsUnlinkedRemoteRecords(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	adapter := &pullingAdapter{
		fakeAdapter: newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer),
		changes: []gateway.Change{
			change("", base),
			change("CUST-2", base.Add(time.Minute)),
		},
	}
	marks := newMemWatermarks()
	pub := &capturePublisher{}
	puller := NewInboundPuller(NewRegistry(adapter), marks, pub, &fakeSource{}, 0, zap.NewNop())

	require.NoError(t, puller.PullSystem(context.Background(), adapter))

	events := pub.byType(gateway.TopicEntityUpdated)
	require.Len(t, events, 1)
	assert.Equal(t, "CUST-2", events[0].AggregateID())

	// Skipped changes still advance the watermark
	mark, _ := marks.Get(context.Background(), gateway.SystemCodeZohoCRM, gateway.WatermarkKindInbound)
	assert.True(t, mark.Equal(base.Add(time.Minute)))
}

func TestPullSystemSuppressesEchoedChanges(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	adapter := &pullingAdapter{
		fakeAdapter: newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer),
		changes: []gateway.Change{
			change("CUST-1", base),
			change("CUST-2", base.Add(time.Minute)),
		},
	}
	// CUST-1's remote copy matches canonical state: it is our own push coming
	// back through the overlap window. CUST-2 differs remotely.
	divergent := testCustomer("CUST-2")
	divergent.Name = "Apex Auto Supply GmbH"
	source := &fakeSource{records: map[string]canonical.Record{
		"CUST-1": change("CUST-1", base).Record,
		"CUST-2": divergent,
	}}
	marks := newMemWatermarks()
	pub := &capturePublisher{}
	puller := NewInboundPuller(NewRegistry(adapter), marks, pub, source, 0, zap.NewNop())

	require.NoError(t, puller.PullSystem(context.Background(), adapter))

	events := pub.byType(gateway.TopicEntityUpdated)
	require.Len(t, events, 1)
	assert.Equal(t, "CUST-2", events[0].AggregateID())

	// Suppressed changes still advance the watermark
	mark, _ := marks.Get(context.Background(), gateway.SystemCodeZohoCRM, gateway.WatermarkKindInbound)
	assert.True(t, mark.Equal(base.Add(time.Minute)))
}

func TestPullSystemStampsOriginSystem(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	adapter := &pullingAdapter{
		fakeAdapter: newFakeAdapter(gateway.SystemCodeZohoBooks, canonical.RecordKindCustomer),
		changes:     []gateway.Change{change("CUST-1", base)},
	}
	pub := &capturePublisher{}
	puller := NewInboundPuller(NewRegistry(adapter), newMemWatermarks(), pub, &fakeSource{}, 0, zap.NewNop())

	require.NoError(t, puller.PullSystem(context.Background(), adapter))

	events := pub.byType(gateway.TopicEntityUpdated)
	require.Len(t, events, 1)
	updated, ok := events[0].(*gateway.EntityUpdatedEvent)
	require.True(t, ok)
	assert.Equal(t, gateway.SystemCodeZohoBooks, updated.Origin)
}

func TestPullAllSystemsFailIndependently(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	broken := &pullingAdapter{
		fakeAdapter: newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer),
		pullErr:     gateway.ErrUnavailable,
	}
	healthy := &pullingAdapter{
		fakeAdapter: newFakeAdapter(gateway.SystemCodeZohoBooks, canonical.RecordKindInvoice),
		changes:     []gateway.Change{change("CUST-1", base)},
	}
	marks := newMemWatermarks()
	pub := &capturePublisher{}
	puller := NewInboundPuller(NewRegistry(broken, healthy), marks, pub, &fakeSource{}, 0, zap.NewNop())

	err := puller.PullAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrUnavailable))

	// The healthy system still pulled
	assert.Len(t, pub.byType(gateway.TopicEntityUpdated), 1)
}

func TestPullSystemIteratorErrorKeepsWatermark(t *testing.T) {
	adapter := &pullingAdapter{fakeAdapter: newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer)}
	marks := newMemWatermarks()
	puller := NewInboundPuller(NewRegistry(adapter), marks, &capturePublisher{}, &fakeSource{}, 0, zap.NewNop())

	adapter.pullErr = gateway.ErrRateLimited
	require.Error(t, puller.PullSystem(context.Background(), adapter))

	mark, _ := marks.Get(context.Background(), gateway.SystemCodeZohoCRM, gateway.WatermarkKindInbound)
	assert.True(t, mark.IsZero())
}
