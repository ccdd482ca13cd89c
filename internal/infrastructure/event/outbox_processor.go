package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/partpulse/gateway/internal/domain/shared"
)

// OutboxProcessorConfig tunes the background outbox drain.
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  1 * time.Hour,
	}
}

// OutboxProcessor drains durable outbox entries onto the event bus. Entries
// are claimed before dispatch so concurrent drains never double-publish, a
// failed dispatch is retried with the entry's own backoff schedule, and
// exhausted entries are dead-lettered instead of dropped.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	eventBus   shared.EventPublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxProcessor creates a stopped processor; call Start to begin draining.
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	eventBus shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	return &OutboxProcessor{
		repo:       repo,
		eventBus:   eventBus,
		serializer: serializer,
		config:     config,
		logger:     logger,
	}
}

// Start launches the drain loop, and the cleanup loop when enabled.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.loop(ctx, p.config.PollInterval, p.drainOnce)

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.loop(ctx, p.config.CleanupInterval, p.cleanupOnce)
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop cancels the loops and waits for in-flight batches, bounded by ctx.
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// drainOnce publishes one batch of fresh entries and one batch of entries
// whose retry backoff has elapsed.
func (p *OutboxProcessor) drainOnce(ctx context.Context) {
	due := make([]*shared.OutboxEntry, 0, 2*p.config.BatchSize)

	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.Error("outbox pending query failed", zap.Error(err))
		return
	}
	due = append(due, pending...)

	retryable, err := p.repo.FindRetryable(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("outbox retryable query failed", zap.Error(err))
		return
	}
	due = append(due, retryable...)

	if len(due) == 0 {
		return
	}

	ids := make([]uuid.UUID, len(due))
	for i, e := range due {
		ids[i] = e.ID
	}
	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("outbox claim failed", zap.Error(err))
		return
	}

	// Entries dispatch concurrently: one fan-out stalled on a down external
	// system must not delay deliveries bound for healthy systems. The
	// per-system sync slots bound the real parallelism.
	var wg sync.WaitGroup
	for _, entry := range claimed {
		wg.Add(1)
		go func(entry *shared.OutboxEntry) {
			defer wg.Done()
			p.dispatch(ctx, entry)
		}(entry)
	}
	wg.Wait()
}

func (p *OutboxProcessor) dispatch(ctx context.Context, entry *shared.OutboxEntry) {
	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err == nil {
		err = p.eventBus.Publish(ctx, event)
	}

	if err != nil {
		p.logger.Error("outbox dispatch failed",
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
			zap.Error(err),
		)
		entry.MarkFailed(err.Error())
		if entry.IsDead() {
			p.logger.Warn("outbox entry dead-lettered",
				zap.String("event_id", entry.EventID.String()),
				zap.String("event_type", entry.EventType),
				zap.String("aggregate_id", entry.AggregateID),
				zap.Int("retry_count", entry.RetryCount),
			)
		}
	} else {
		entry.MarkSent()
	}

	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("outbox entry update failed",
			zap.String("event_id", entry.EventID.String()),
			zap.Error(err),
		)
	}
}

// cleanupOnce drops sent entries older than the retention window.
func (p *OutboxProcessor) cleanupOnce(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("outbox cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("outbox entries pruned",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
