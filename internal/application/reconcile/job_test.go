package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/partpulse/gateway/internal/domain/gateway"
)

type memMatchStore struct {
	mu      sync.Mutex
	matches map[string]*gateway.ReconciliationMatch
}

func newMemMatchStore() *memMatchStore {
	return &memMatchStore{matches: make(map[string]*gateway.ReconciliationMatch)}
}

func matchKey(system gateway.SystemCode, transactionID string) string {
	return string(system) + "/" + transactionID
}

func (s *memMatchStore) Record(ctx context.Context, match *gateway.ReconciliationMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := matchKey(match.System, match.TransactionID)
	if _, ok := s.matches[key]; ok {
		return gateway.ErrAlreadyMatched
	}
	s.matches[key] = match
	return nil
}

func (s *memMatchStore) IsMatched(ctx context.Context, system gateway.SystemCode, transactionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.matches[matchKey(system, transactionID)]
	return ok, nil
}

type memWatermarks struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

func newMemWatermarks() *memWatermarks {
	return &memWatermarks{marks: make(map[string]time.Time)}
}

func (m *memWatermarks) Get(ctx context.Context, system gateway.SystemCode, kind gateway.WatermarkKind) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marks[string(system)+"/"+string(kind)], nil
}

func (m *memWatermarks) Advance(ctx context.Context, system gateway.SystemCode, kind gateway.WatermarkKind, to time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(system) + "/" + string(kind)
	if to.After(m.marks[key]) {
		m.marks[key] = to
	}
	return nil
}

type fakeSettlements struct {
	system  gateway.SystemCode
	txns    []gateway.SettledTransaction
	listErr error
}

func (f *fakeSettlements) SystemCode() gateway.SystemCode { return f.system }

func (f *fakeSettlements) ListSettledTransactions(ctx context.Context, from, to time.Time) ([]gateway.SettledTransaction, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.txns, nil
}

func txn(id, reference, description string, amount float64) gateway.SettledTransaction {
	return gateway.SettledTransaction{
		ExternalID:  id,
		Amount:      decimal.NewFromFloat(amount),
		Currency:    "USD",
		Reference:   reference,
		Description: description,
		SettledAt:   time.Now().Add(-time.Hour),
	}
}

func newTestJob(matches gateway.MatchStore, sources ...gateway.SettlementSource) *Job {
	cfg := JobConfig{
		Window:            48 * time.Hour,
		LockTTL:           time.Minute,
		ReferencePrefixes: []string{"INV-", "ORD-"},
	}
	return NewJob(sources, matches, newMemWatermarks(), nil, cfg, zap.NewNop())
}

func TestRunMatchesByReference(t *testing.T) {
	matches := newMemMatchStore()
	source := &fakeSettlements{
		system: gateway.SystemCodeZohoBooks,
		txns: []gateway.SettledTransaction{
			txn("bt-1", "INV-1001", "", 149.50),
			txn("bt-2", "", "payment for ORD-2002 via wire", 80),
			txn("bt-3", "misc deposit", "no reference here", 10),
		},
	}
	job := newTestJob(matches, source)

	report, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 0, report.AlreadyMatched)
	require.Len(t, report.Unmatched, 1)
	assert.Equal(t, "bt-3", report.Unmatched[0].ExternalID)
	assert.True(t, report.MatchedTotals["USD"].Equal(decimal.NewFromFloat(229.50)))

	assert.Equal(t, "INV-1001", matches.matches["ZOHO_BOOKS/bt-1"].InternalID)
	assert.Equal(t, "ORD-2002", matches.matches["ZOHO_BOOKS/bt-2"].InternalID)
}

func TestRunIsIdempotentAcrossRuns(t *testing.T) {
	matches := newMemMatchStore()
	source := &fakeSettlements{
		system: gateway.SystemCodeZohoBooks,
		txns:   []gateway.SettledTransaction{txn("bt-1", "INV-1001", "", 149.50)},
	}
	job := newTestJob(matches, source)

	first, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Matched)

	second, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Matched)
	assert.Equal(t, 1, second.AlreadyMatched)
}

func TestRunSystemFailureYieldsPartialResults(t *testing.T) {
	matches := newMemMatchStore()
	broken := &fakeSettlements{system: gateway.SystemCodeZohoBooks, listErr: gateway.ErrUnavailable}
	healthy := &fakeSettlements{
		system: gateway.SystemCodeZohoCRM,
		txns:   []gateway.SettledTransaction{txn("bt-9", "INV-7", "", 50)},
	}
	job := newTestJob(matches, broken, healthy)

	report, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Matched)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, gateway.SystemCodeZohoBooks, report.Errors[0].System)
}

func TestRunAdvancesReconciliationWatermark(t *testing.T) {
	matches := newMemMatchStore()
	source := &fakeSettlements{system: gateway.SystemCodeZohoBooks}
	marks := newMemWatermarks()
	job := NewJob([]gateway.SettlementSource{source}, matches, marks, nil, DefaultJobConfig(), zap.NewNop())

	report, err := job.Run(context.Background())
	require.NoError(t, err)

	mark, err := marks.Get(context.Background(), gateway.SystemCodeZohoBooks, gateway.WatermarkKindReconciliation)
	require.NoError(t, err)
	assert.True(t, mark.Equal(report.WindowTo))
}

func TestExtractReference(t *testing.T) {
	job := newTestJob(newMemMatchStore())

	tests := []struct {
		name        string
		reference   string
		description string
		want        string
		ok          bool
	}{
		{"plain reference", "INV-1001", "", "INV-1001", true},
		{"embedded in text", "wire transfer INV-1001/03", "", "INV-1001", true},
		{"description fallback", "", "settles ORD-88 partially", "ORD-88", true},
		{"reference wins over description", "INV-1", "ORD-2", "INV-1", true},
		{"bare prefix", "INV-", "", "", false},
		{"no convention", "ACH 99812", "monthly deposit", "", false},
		{"alphanumeric id", "ORD-2024X7", "", "ORD-2024X7", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := job.extractReference(txn("bt-1", tt.reference, tt.description, 1))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
