package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/partpulse/gateway/internal/domain/canonical"
	"github.com/partpulse/gateway/internal/domain/gateway"
	"github.com/partpulse/gateway/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type fakeSyncLog struct {
	mu      stdsync.Mutex
	entries map[uuid.UUID]*gateway.SyncLogEntry
	pending map[gateway.SyncKey]bool
	linked  map[gateway.SyncKey]string
}

func newFakeSyncLog() *fakeSyncLog {
	return &fakeSyncLog{
		entries: make(map[uuid.UUID]*gateway.SyncLogEntry),
		pending: make(map[gateway.SyncKey]bool),
		linked:  make(map[gateway.SyncKey]string),
	}
}

func (f *fakeSyncLog) BeginAttempt(ctx context.Context, key gateway.SyncKey, op gateway.Operation) (*gateway.SyncLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending[key] {
		return nil, gateway.ErrConcurrentSync
	}
	entry := &gateway.SyncLogEntry{
		ID:        uuid.New(),
		Key:       key,
		Operation: op,
		Outcome:   gateway.OutcomePending,
		StartedAt: time.Now(),
	}
	f.entries[entry.ID] = entry
	f.pending[key] = true
	return entry, nil
}

func (f *fakeSyncLog) CompleteAttempt(ctx context.Context, id uuid.UUID, outcome gateway.Outcome, externalID, errorDetail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[id]
	if !ok || entry.Outcome != gateway.OutcomePending {
		return errors.New("no pending entry")
	}
	entry.Outcome = outcome
	entry.ExternalID = externalID
	entry.ErrorDetail = errorDetail
	now := time.Now()
	entry.CompletedAt = &now
	f.pending[entry.Key] = false
	if outcome == gateway.OutcomeSuccess && externalID != "" {
		f.linked[entry.Key] = externalID
	}
	return nil
}

func (f *fakeSyncLog) GetExternalID(ctx context.Context, key gateway.SyncKey) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.linked[key]
	return id, ok, nil
}

func (f *fakeSyncLog) History(ctx context.Context, key gateway.SyncKey) ([]*gateway.SyncLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*gateway.SyncLogEntry
	for _, e := range f.entries {
		if e.Key == key {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSyncLog) SweepStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeSyncLog) outcomes(key gateway.SyncKey) []gateway.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gateway.Outcome
	for _, e := range f.entries {
		if e.Key == key {
			out = append(out, e.Outcome)
		}
	}
	return out
}

type fakeSource struct {
	records map[string]canonical.Record
}

func (f *fakeSource) Customer(ctx context.Context, id string) (*canonical.CanonicalCustomer, error) {
	r, err := f.Load(ctx, canonical.RecordKindCustomer, id)
	if err != nil {
		return nil, err
	}
	return r.(*canonical.CanonicalCustomer), nil
}

func (f *fakeSource) Invoice(ctx context.Context, id string) (*canonical.CanonicalInvoice, error) {
	r, err := f.Load(ctx, canonical.RecordKindInvoice, id)
	if err != nil {
		return nil, err
	}
	return r.(*canonical.CanonicalInvoice), nil
}

func (f *fakeSource) Payment(ctx context.Context, id string) (*canonical.CanonicalPayment, error) {
	r, err := f.Load(ctx, canonical.RecordKindPayment, id)
	if err != nil {
		return nil, err
	}
	return r.(*canonical.CanonicalPayment), nil
}

func (f *fakeSource) Load(ctx context.Context, kind canonical.RecordKind, id string) (canonical.Record, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, gateway.ErrEntityNotFound
	}
	return r, nil
}

type capturePublisher struct {
	mu     stdsync.Mutex
	events []shared.DomainEvent
}

func (p *capturePublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturePublisher) byType(eventType string) []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeAdapter scripts create/update behavior per call
type fakeAdapter struct {
	mu         stdsync.Mutex
	system     gateway.SystemCode
	kinds      map[canonical.RecordKind]bool
	createErrs []error
	updateErrs []error
	nextID     string
	creates    int
	updates    int
	updatedIDs []string
}

func newFakeAdapter(system gateway.SystemCode, kinds ...canonical.RecordKind) *fakeAdapter {
	m := make(map[canonical.RecordKind]bool)
	for _, k := range kinds {
		m[k] = true
	}
	return &fakeAdapter{system: system, kinds: m, nextID: "ext-1"}
}

func (a *fakeAdapter) SystemCode() gateway.SystemCode { return a.system }

func (a *fakeAdapter) Handles(kind canonical.RecordKind) bool { return a.kinds[kind] }

func (a *fakeAdapter) Connect(ctx context.Context) error { return nil }

func (a *fakeAdapter) CreateRecord(ctx context.Context, record canonical.Record) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creates++
	if len(a.createErrs) > 0 {
		err := a.createErrs[0]
		a.createErrs = a.createErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return a.nextID, nil
}

func (a *fakeAdapter) UpdateRecord(ctx context.Context, externalID string, record canonical.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates++
	a.updatedIDs = append(a.updatedIDs, externalID)
	if len(a.updateErrs) > 0 {
		err := a.updateErrs[0]
		a.updateErrs = a.updateErrs[1:]
		return err
	}
	return nil
}

func (a *fakeAdapter) PullRecent(ctx context.Context, since time.Time) (gateway.ChangeIterator, error) {
	return &sliceIterator{}, nil
}

type sliceIterator struct {
	changes []gateway.Change
	pos     int
	err     error
}

func (it *sliceIterator) Next(ctx context.Context) (gateway.Change, bool, error) {
	if it.err != nil {
		return gateway.Change{}, false, it.err
	}
	if it.pos >= len(it.changes) {
		return gateway.Change{}, false, nil
	}
	c := it.changes[it.pos]
	it.pos++
	return c, true, nil
}

// ---------------------------------------------------------------------------
// EntitySyncer
// ---------------------------------------------------------------------------

func testCustomer(id string) *canonical.CanonicalCustomer {
	return &canonical.CanonicalCustomer{
		InternalID: id,
		Name:       "Apex Auto Supply",
		Email:      "parts@apexauto.test",
	}
}

func newTestSyncer(log gateway.SyncLog, source gateway.EntitySource, pub shared.EventPublisher) *EntitySyncer {
	cfg := SyncerConfig{
		CallTimeout:    time.Second,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
	}
	return NewEntitySyncer(log, source, pub, cfg, zap.NewNop())
}

func TestSyncCreatesUnlinkedEntity(t *testing.T) {
	log := newFakeSyncLog()
	source := &fakeSource{records: map[string]canonical.Record{"CUST-1": testCustomer("CUST-1")}}
	pub := &capturePublisher{}
	adapter := newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer)
	adapter.nextID = "zcrm-100"
	syncer := newTestSyncer(log, source, pub)

	err := syncer.Sync(context.Background(), adapter, canonical.RecordKindCustomer, "CUST-1")
	require.NoError(t, err)

	assert.Equal(t, 1, adapter.creates)
	assert.Equal(t, 0, adapter.updates)

	key := gateway.SyncKey{System: gateway.SystemCodeZohoCRM, EntityType: canonical.RecordKindCustomer, InternalID: "CUST-1"}
	id, ok, err := log.GetExternalID(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "zcrm-100", id)

	completed := pub.byType(gateway.TopicEntitySyncCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "zcrm-100", completed[0].(*gateway.EntitySyncCompletedEvent).ExternalID)
}

func TestSyncTwiceCreatesOnceThenUpdates(t *testing.T) {
	log := newFakeSyncLog()
	source := &fakeSource{records: map[string]canonical.Record{"CUST-1": testCustomer("CUST-1")}}
	pub := &capturePublisher{}
	adapter := newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer)
	adapter.nextID = "zcrm-100"
	syncer := newTestSyncer(log, source, pub)

	require.NoError(t, syncer.Sync(context.Background(), adapter, canonical.RecordKindCustomer, "CUST-1"))
	require.NoError(t, syncer.Sync(context.Background(), adapter, canonical.RecordKindCustomer, "CUST-1"))

	assert.Equal(t, 1, adapter.creates)
	assert.Equal(t, 1, adapter.updates)
	assert.Equal(t, []string{"zcrm-100"}, adapter.updatedIDs)
}

func TestSyncSkipsUnhandledKind(t *testing.T) {
	log := newFakeSyncLog()
	adapter := newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer)
	syncer := newTestSyncer(log, &fakeSource{}, &capturePublisher{})

	err := syncer.Sync(context.Background(), adapter, canonical.RecordKindInvoice, "INV-1")
	require.NoError(t, err)
	assert.Empty(t, log.entries)
}

func TestSyncMissingEntitySkipped(t *testing.T) {
	log := newFakeSyncLog()
	source := &fakeSource{records: map[string]canonical.Record{}}
	pub := &capturePublisher{}
	adapter := newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer)
	syncer := newTestSyncer(log, source, pub)

	err := syncer.Sync(context.Background(), adapter, canonical.RecordKindCustomer, "CUST-404")
	require.NoError(t, err)

	key := gateway.SyncKey{System: gateway.SystemCodeZohoCRM, EntityType: canonical.RecordKindCustomer, InternalID: "CUST-404"}
	assert.Equal(t, []gateway.Outcome{gateway.OutcomeSkipped}, log.outcomes(key))
	assert.Equal(t, 0, adapter.creates)
	assert.Empty(t, pub.byType(gateway.TopicEntitySyncFailed))
}

func TestSyncRejectsInvalidEntity(t *testing.T) {
	log := newFakeSyncLog()
	// Missing required name
	source := &fakeSource{records: map[string]canonical.Record{
		"CUST-1": &canonical.CanonicalCustomer{InternalID: "CUST-1"},
	}}
	pub := &capturePublisher{}
	adapter := newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer)
	syncer := newTestSyncer(log, source, pub)

	err := syncer.Sync(context.Background(), adapter, canonical.RecordKindCustomer, "CUST-1")
	require.ErrorIs(t, err, gateway.ErrValidation)

	assert.Equal(t, 0, adapter.creates)
	key := gateway.SyncKey{System: gateway.SystemCodeZohoCRM, EntityType: canonical.RecordKindCustomer, InternalID: "CUST-1"}
	assert.Equal(t, []gateway.Outcome{gateway.OutcomeFailed}, log.outcomes(key))
	assert.Len(t, pub.byType(gateway.TopicEntitySyncFailed), 1)
}

func TestSyncConflictRelinks(t *testing.T) {
	log := newFakeSyncLog()
	source := &fakeSource{records: map[string]canonical.Record{"CUST-1": testCustomer("CUST-1")}}
	pub := &capturePublisher{}
	adapter := newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer)
	adapter.createErrs = []error{&gateway.ConflictError{ExistingExternalID: "zcrm-77"}}
	syncer := newTestSyncer(log, source, pub)

	err := syncer.Sync(context.Background(), adapter, canonical.RecordKindCustomer, "CUST-1")
	require.NoError(t, err)

	// Relinked: state converged onto the existing remote record, no duplicate
	assert.Equal(t, 1, adapter.creates)
	assert.Equal(t, []string{"zcrm-77"}, adapter.updatedIDs)

	key := gateway.SyncKey{System: gateway.SystemCodeZohoCRM, EntityType: canonical.RecordKindCustomer, InternalID: "CUST-1"}
	id, ok, _ := log.GetExternalID(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, "zcrm-77", id)
}

func TestSyncRecreatesVanishedRecord(t *testing.T) {
	log := newFakeSyncLog()
	source := &fakeSource{records: map[string]canonical.Record{"CUST-1": testCustomer("CUST-1")}}
	pub := &capturePublisher{}
	adapter := newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer)
	adapter.nextID = "zcrm-old"
	syncer := newTestSyncer(log, source, pub)
	require.NoError(t, syncer.Sync(context.Background(), adapter, canonical.RecordKindCustomer, "CUST-1"))

	adapter.updateErrs = []error{gateway.ErrNotFound}
	adapter.nextID = "zcrm-new"
	require.NoError(t, syncer.Sync(context.Background(), adapter, canonical.RecordKindCustomer, "CUST-1"))

	assert.Equal(t, 2, adapter.creates)
	key := gateway.SyncKey{System: gateway.SystemCodeZohoCRM, EntityType: canonical.RecordKindCustomer, InternalID: "CUST-1"}
	id, ok, _ := log.GetExternalID(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, "zcrm-new", id)
}

func TestSyncRetriesTransientFailure(t *testing.T) {
	log := newFakeSyncLog()
	source := &fakeSource{records: map[string]canonical.Record{"CUST-1": testCustomer("CUST-1")}}
	pub := &capturePublisher{}
	adapter := newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer)
	adapter.createErrs = []error{gateway.ErrUnavailable, gateway.ErrRateLimited, nil}
	adapter.nextID = "zcrm-100"
	syncer := newTestSyncer(log, source, pub)

	err := syncer.Sync(context.Background(), adapter, canonical.RecordKindCustomer, "CUST-1")
	require.NoError(t, err)
	assert.Equal(t, 3, adapter.creates)
}

func TestSyncGivesUpAfterBoundedRetries(t *testing.T) {
	log := newFakeSyncLog()
	source := &fakeSource{records: map[string]canonical.Record{"CUST-1": testCustomer("CUST-1")}}
	pub := &capturePublisher{}
	adapter := newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer)
	adapter.createErrs = []error{gateway.ErrUnavailable, gateway.ErrUnavailable, gateway.ErrUnavailable, gateway.ErrUnavailable}
	syncer := newTestSyncer(log, source, pub)

	err := syncer.Sync(context.Background(), adapter, canonical.RecordKindCustomer, "CUST-1")
	require.ErrorIs(t, err, gateway.ErrUnavailable)

	// MaxRetries=2 means three calls total
	assert.Equal(t, 3, adapter.creates)
	key := gateway.SyncKey{System: gateway.SystemCodeZohoCRM, EntityType: canonical.RecordKindCustomer, InternalID: "CUST-1"}
	assert.Equal(t, []gateway.Outcome{gateway.OutcomeFailed}, log.outcomes(key))
	assert.Len(t, pub.byType(gateway.TopicEntitySyncFailed), 1)
}

func TestSyncAuthFailureNotRetried(t *testing.T) {
	log := newFakeSyncLog()
	source := &fakeSource{records: map[string]canonical.Record{"CUST-1": testCustomer("CUST-1")}}
	pub := &capturePublisher{}
	adapter := newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer)
	adapter.createErrs = []error{gateway.ErrAuthentication}
	syncer := newTestSyncer(log, source, pub)

	err := syncer.Sync(context.Background(), adapter, canonical.RecordKindCustomer, "CUST-1")
	require.ErrorIs(t, err, gateway.ErrAuthentication)
	assert.Equal(t, 1, adapter.creates)
}

func TestSyncConcurrentAttemptRejected(t *testing.T) {
	log := newFakeSyncLog()
	key := gateway.SyncKey{System: gateway.SystemCodeZohoCRM, EntityType: canonical.RecordKindCustomer, InternalID: "CUST-1"}
	_, err := log.BeginAttempt(context.Background(), key, gateway.OperationSync)
	require.NoError(t, err)

	source := &fakeSource{records: map[string]canonical.Record{"CUST-1": testCustomer("CUST-1")}}
	adapter := newFakeAdapter(gateway.SystemCodeZohoCRM, canonical.RecordKindCustomer)
	syncer := newTestSyncer(log, source, &capturePublisher{})

	err = syncer.Sync(context.Background(), adapter, canonical.RecordKindCustomer, "CUST-1")
	require.ErrorIs(t, err, gateway.ErrConcurrentSync)
	assert.Equal(t, 0, adapter.creates)
}
