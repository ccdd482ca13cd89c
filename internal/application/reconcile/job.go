package reconcile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/partpulse/gateway/internal/domain/gateway"
)

// lockKey is the distributed single-runner lock for the reconciliation job
const lockKey = "partpulse:gateway:reconciliation"

// JobConfig holds reconciliation settings
type JobConfig struct {
	// Window is the trailing settlement window examined per run; it must be
	// wider than the run interval so no settlement falls between windows
	Window time.Duration
	// LockTTL bounds the single-runner lock
	LockTTL time.Duration
	// ReferencePrefixes are the internal reference conventions scanned for
	// in transaction references and descriptions
	ReferencePrefixes []string
}

// DefaultJobConfig returns production defaults
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Window:            48 * time.Hour,
		LockTTL:           10 * time.Minute,
		ReferencePrefixes: []string{"INV-", "ORD-"},
	}
}

// SystemError is a per-system failure carried in a run report. A failing
// system yields partial results, never a failed run.
type SystemError struct {
	System gateway.SystemCode
	Err    string
}

// Report summarizes one reconciliation run
type Report struct {
	StartedAt   time.Time
	CompletedAt time.Time
	WindowFrom  time.Time
	WindowTo    time.Time
	// Matched is the number of transactions matched this run
	Matched int
	// MatchedTotals sums matched amounts per currency
	MatchedTotals map[string]decimal.Decimal
	// AlreadyMatched counts transactions matched by a prior run
	AlreadyMatched int
	// Unmatched lists transactions carrying no recognizable internal reference
	Unmatched []gateway.SettledTransaction
	// Skipped reports that another instance held the run lock
	Skipped bool
	// Errors carries per-system failures
	Errors []SystemError
}

// Job matches externally settled transactions against internal references.
// Matching is by reference convention: a stable prefix plus the internal
// invoice/order number embedded in the transaction reference or description.
type Job struct {
	sources    []gateway.SettlementSource
	matches    gateway.MatchStore
	watermarks gateway.WatermarkStore
	// locker may be nil when running single-instance
	locker *redislock.Client
	config JobConfig
	logger *zap.Logger
}

// NewJob creates a new reconciliation Job
func NewJob(
	sources []gateway.SettlementSource,
	matches gateway.MatchStore,
	watermarks gateway.WatermarkStore,
	locker *redislock.Client,
	config JobConfig,
	logger *zap.Logger,
) *Job {
	if config.Window <= 0 {
		config.Window = DefaultJobConfig().Window
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultJobConfig().LockTTL
	}
	if len(config.ReferencePrefixes) == 0 {
		config.ReferencePrefixes = DefaultJobConfig().ReferencePrefixes
	}
	return &Job{
		sources:    sources,
		matches:    matches,
		watermarks: watermarks,
		locker:     locker,
		config:     config,
		logger:     logger,
	}
}

// Run executes one reconciliation pass over the trailing window. Only one
// instance runs at a time; losing the lock race skips the pass.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		StartedAt:     time.Now(),
		MatchedTotals: make(map[string]decimal.Decimal),
	}
	report.WindowTo = report.StartedAt
	report.WindowFrom = report.StartedAt.Add(-j.config.Window)

	if j.locker != nil {
		lock, err := j.locker.Obtain(ctx, lockKey, j.config.LockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			j.logger.Info("reconciliation lock held elsewhere, skipping run")
			report.Skipped = true
			report.CompletedAt = time.Now()
			return report, nil
		}
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				j.logger.Warn("failed to release reconciliation lock", zap.Error(err))
			}
		}()
	}

	for _, source := range j.sources {
		if err := j.reconcileSystem(ctx, source, report); err != nil {
			j.logger.Error("reconciliation failed for system",
				zap.String("system", source.SystemCode().String()),
				zap.Error(err))
			report.Errors = append(report.Errors, SystemError{
				System: source.SystemCode(),
				Err:    err.Error(),
			})
		}
	}

	report.CompletedAt = time.Now()
	j.logger.Info("reconciliation run completed",
		zap.Int("matched", report.Matched),
		zap.Int("already_matched", report.AlreadyMatched),
		zap.Int("unmatched", len(report.Unmatched)),
		zap.Int("system_errors", len(report.Errors)))
	return report, nil
}

func (j *Job) reconcileSystem(ctx context.Context, source gateway.SettlementSource, report *Report) error {
	system := source.SystemCode()

	txns, err := source.ListSettledTransactions(ctx, report.WindowFrom, report.WindowTo)
	if err != nil {
		return err
	}

	for _, txn := range txns {
		matched, err := j.matches.IsMatched(ctx, system, txn.ExternalID)
		if err != nil {
			return err
		}
		if matched {
			report.AlreadyMatched++
			continue
		}

		internalID, ok := j.extractReference(txn)
		if !ok {
			report.Unmatched = append(report.Unmatched, txn)
			continue
		}

		match := &gateway.ReconciliationMatch{
			System:        system,
			TransactionID: txn.ExternalID,
			InternalID:    internalID,
			Amount:        txn.Amount,
			Currency:      txn.Currency,
			MatchedAt:     time.Now(),
		}
		if err := j.matches.Record(ctx, match); err != nil {
			if errors.Is(err, gateway.ErrAlreadyMatched) {
				// A concurrent runner got there first.
				report.AlreadyMatched++
				continue
			}
			return err
		}

		report.Matched++
		total, ok := report.MatchedTotals[txn.Currency]
		if !ok {
			total = decimal.Zero
		}
		report.MatchedTotals[txn.Currency] = total.Add(txn.Amount)

		j.logger.Info("settled transaction matched",
			zap.String("system", system.String()),
			zap.String("transaction_id", txn.ExternalID),
			zap.String("internal_id", internalID),
			zap.String("amount", txn.Amount.String()),
			zap.String("currency", txn.Currency))
	}

	return j.watermarks.Advance(ctx, system, gateway.WatermarkKindReconciliation, report.WindowTo)
}

// extractReference scans the structured reference first and the free-text
// description as a fallback, returning the first token that follows a known
// internal prefix convention.
func (j *Job) extractReference(txn gateway.SettledTransaction) (string, bool) {
	for _, field := range []string{txn.Reference, txn.Description} {
		if field == "" {
			continue
		}
		for _, prefix := range j.config.ReferencePrefixes {
			if ref, ok := scanToken(field, prefix); ok {
				return ref, true
			}
		}
	}
	return "", false
}

// scanToken finds prefix in text and extends it over the id characters that
// follow. A bare prefix with no id is not a match.
func scanToken(text, prefix string) (string, bool) {
	idx := strings.Index(text, prefix)
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(prefix):]
	end := 0
	for end < len(rest) && isReferenceChar(rest[end]) {
		end++
	}
	if end == 0 {
		return "", false
	}
	return text[idx : idx+len(prefix)+end], true
}

func isReferenceChar(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= 'a' && c <= 'z':
		return true
	default:
		return false
	}
}
