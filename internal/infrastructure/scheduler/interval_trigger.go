package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidConfig is returned when trigger configuration is invalid
var ErrInvalidConfig = errors.New("invalid trigger configuration")

// Task is one unit of periodic work. Errors are logged, never fatal; the
// trigger keeps firing.
type Task func(ctx context.Context) error

// IntervalTriggerConfig holds configuration for an interval trigger
type IntervalTriggerConfig struct {
	// Interval is the base firing period
	Interval time.Duration
	// Jitter is a random extra delay in [0, Jitter) added per tick so
	// multiple instances do not fire in lockstep
	Jitter time.Duration
	// RunOnStart fires the task once immediately after Start
	RunOnStart bool
}

// IntervalTrigger periodically runs a task until stopped
type IntervalTrigger struct {
	name   string
	config IntervalTriggerConfig
	task   Task
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewIntervalTrigger creates a new interval trigger
func NewIntervalTrigger(name string, config IntervalTriggerConfig, task Task, logger *zap.Logger) (*IntervalTrigger, error) {
	if config.Interval <= 0 {
		return nil, ErrInvalidConfig
	}
	if config.Jitter < 0 {
		return nil, ErrInvalidConfig
	}
	return &IntervalTrigger{
		name:   name,
		config: config,
		task:   task,
		logger: logger,
	}, nil
}

// Start starts the trigger loop. Idempotent.
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Interval trigger started",
		zap.String("trigger", t.name),
		zap.Duration("interval", t.config.Interval),
		zap.Duration("jitter", t.config.Jitter),
	)
	return nil
}

// Stop stops the trigger and waits for an in-flight run to finish
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval trigger stopped", zap.String("trigger", t.name))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *IntervalTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		t.fire(ctx)
	}

	for {
		delay := t.config.Interval
		if t.config.Jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(t.config.Jitter)))
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			t.fire(ctx)
		}
	}
}

func (t *IntervalTrigger) fire(ctx context.Context) {
	start := time.Now()
	if err := t.task(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		t.logger.Error("Scheduled task failed",
			zap.String("trigger", t.name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	t.logger.Debug("Scheduled task completed",
		zap.String("trigger", t.name),
		zap.Duration("elapsed", time.Since(start)))
}
