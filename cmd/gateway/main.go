package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	provenanceapp "github.com/partpulse/gateway/internal/application/provenance"
	reconcileapp "github.com/partpulse/gateway/internal/application/reconcile"
	syncapp "github.com/partpulse/gateway/internal/application/sync"
	"github.com/partpulse/gateway/internal/domain/gateway"
	"github.com/partpulse/gateway/internal/domain/shared"
	"github.com/partpulse/gateway/internal/infrastructure/cache"
	"github.com/partpulse/gateway/internal/infrastructure/config"
	"github.com/partpulse/gateway/internal/infrastructure/crm"
	"github.com/partpulse/gateway/internal/infrastructure/event"
	"github.com/partpulse/gateway/internal/infrastructure/finance"
	"github.com/partpulse/gateway/internal/infrastructure/ledger"
	"github.com/partpulse/gateway/internal/infrastructure/logger"
	"github.com/partpulse/gateway/internal/infrastructure/migration"
	"github.com/partpulse/gateway/internal/infrastructure/persistence"
	"github.com/partpulse/gateway/internal/infrastructure/scheduler"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting sync gateway",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	// Apply pending schema migrations before opening the pool
	if cfg.Database.MigrationsPath != "" {
		if err := runMigrations(cfg, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	// Database connection with zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Redis backs event idempotency and the reconciliation run lock; when it
	// is unreachable the gateway degrades to in-memory dedup and lock-free
	// single-instance reconciliation
	var idempotencyStore shared.IdempotencyStore
	var locker *redislock.Client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Warn("Redis unreachable, falling back to in-memory idempotency", zap.Error(err))
		idempotencyStore = cache.NewInMemoryIdempotencyStore()
	} else {
		idempotencyStore = cache.NewRedisIdempotencyStore(redisClient, "gateway:events")
		locker = redislock.New(redisClient)
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}
	defer func() {
		_ = idempotencyStore.Close()
	}()

	// Repositories
	syncLog := persistence.NewGormSyncLog(db.DB)
	entitySource := persistence.NewGormEntitySource(db.DB)
	watermarks := persistence.NewGormWatermarkStore(db.DB)
	provenanceStore := persistence.NewGormProvenanceStore(db.DB)
	matchStore := persistence.NewGormMatchStore(db.DB)
	stamper := persistence.NewGormVerificationStamper(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	// Event infrastructure: domain events flow through the durable outbox
	// into the in-memory bus
	serializer := event.NewGatewaySerializer()
	eventBus := event.NewInMemoryEventBus(log)
	outboxPublisher := event.NewOutboxPublisher(outboxRepo, serializer)
	outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, serializer, event.OutboxProcessorConfig{
		BatchSize:        cfg.Event.BatchSize,
		PollInterval:     cfg.Event.PollInterval,
		CleanupEnabled:   cfg.Event.CleanupEnabled,
		CleanupRetention: cfg.Event.CleanupRetention,
		CleanupInterval:  cfg.Event.CleanupInterval,
	}, log)

	// External system adapters
	registry := syncapp.NewRegistry()
	maxInFlight := make(map[gateway.SystemCode]int)
	var settlementSources []gateway.SettlementSource

	if cfg.CRM.Enabled {
		crmAdapter, err := crm.NewZohoCRMAdapter(&crm.ZohoCRMConfig{
			APIBaseURL:   cfg.CRM.APIBaseURL,
			AccountsURL:  cfg.CRM.AccountsURL,
			ClientID:     cfg.CRM.ClientID,
			ClientSecret: cfg.CRM.ClientSecret,
			RefreshToken: cfg.CRM.RefreshToken,
			Timeout:      cfg.CRM.Timeout,
			PageSize:     cfg.CRM.PageSize,
		}, log)
		if err != nil {
			log.Fatal("Failed to build CRM adapter", zap.Error(err))
		}
		registry.Register(crmAdapter)
		maxInFlight[gateway.SystemCodeZohoCRM] = cfg.CRM.MaxInFlight
	}

	if cfg.Finance.Enabled {
		booksAdapter, err := finance.NewZohoBooksAdapter(&finance.ZohoBooksConfig{
			APIBaseURL:     cfg.Finance.APIBaseURL,
			AccountsURL:    cfg.Finance.AccountsURL,
			ClientID:       cfg.Finance.ClientID,
			ClientSecret:   cfg.Finance.ClientSecret,
			RefreshToken:   cfg.Finance.RefreshToken,
			OrganizationID: cfg.Finance.OrganizationID,
			Timeout:        cfg.Finance.Timeout,
			PageSize:       cfg.Finance.PageSize,
		}, log)
		if err != nil {
			log.Fatal("Failed to build finance adapter", zap.Error(err))
		}
		registry.Register(booksAdapter)
		maxInFlight[gateway.SystemCodeZohoBooks] = cfg.Finance.MaxInFlight
		settlementSources = append(settlementSources, booksAdapter)
	}

	var ledgerClient gateway.LedgerClient
	if cfg.Ledger.Enabled {
		ledgerClient, err = ledger.NewHederaClient(&ledger.HederaConfig{
			SubmitURL:    cfg.Ledger.SubmitURL,
			MirrorURL:    cfg.Ledger.MirrorURL,
			APIKey:       cfg.Ledger.APIKey,
			Timeout:      cfg.Ledger.Timeout,
			PollInterval: cfg.Ledger.PollInterval,
		}, log)
		if err != nil {
			log.Fatal("Failed to build ledger client", zap.Error(err))
		}
	}

	// Application services
	syncer := syncapp.NewEntitySyncer(syncLog, entitySource, outboxPublisher, syncapp.DefaultSyncerConfig(), log)

	tracker := provenanceapp.NewTracker(ledgerClient, provenanceStore, stamper, outboxPublisher, provenanceapp.TrackerConfig{
		TopicID:         cfg.Ledger.TopicID,
		FinalityTimeout: cfg.Ledger.FinalityTimeout,
		ReconnectDelay:  cfg.Ledger.PollInterval,
	}, log)

	router := syncapp.NewEventRouter(registry, syncer, tracker, maxInFlight, log)
	puller := syncapp.NewInboundPuller(registry, watermarks, outboxPublisher, entitySource, cfg.Inbound.Overlap, log)
	reconciler := reconcileapp.NewJob(settlementSources, matchStore, watermarks, locker, reconcileapp.JobConfig{
		Window:            cfg.Reconciliation.Window,
		LockTTL:           cfg.Reconciliation.LockTTL,
		ReferencePrefixes: cfg.Reconciliation.ReferencePrefixes,
	}, log)

	// The router consumes bus deliveries behind the idempotency guard so
	// outbox redeliveries and inbound overlap stay at-most-once
	idempotentRouter := event.NewIdempotentHandler(router, idempotencyStore, shared.DefaultIdempotencyConfig(), log)
	eventBus.Subscribe(idempotentRouter, router.EventTypes()...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	if cfg.Event.ProcessorEnabled {
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
	}

	// Finality watcher
	if cfg.Ledger.Enabled {
		go func() {
			if err := tracker.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Error("Finality watcher stopped", zap.Error(err))
			}
		}()
	}

	// Periodic work
	triggers := buildTriggers(cfg, syncLog, tracker, puller, reconciler, log)
	for _, trigger := range triggers {
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start trigger", zap.Error(err))
		}
	}

	log.Info("Sync gateway running",
		zap.Int("adapters", len(registry.All())),
		zap.Bool("ledger", cfg.Ledger.Enabled))

	// Signal-driven shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	for _, trigger := range triggers {
		if err := trigger.Stop(shutdownCtx); err != nil {
			log.Error("Trigger stop failed", zap.Error(err))
		}
	}
	cancel()
	if cfg.Event.ProcessorEnabled {
		if err := outboxProcessor.Stop(shutdownCtx); err != nil {
			log.Error("Outbox processor stop failed", zap.Error(err))
		}
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Event bus stop failed", zap.Error(err))
	}

	log.Info("Sync gateway exited gracefully")
}

// runMigrations applies versioned SQL migrations over a dedicated connection
func runMigrations(cfg *config.Config, log *zap.Logger) error {
	sqlDB, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	migrator, err := migration.New(sqlDB, cfg.Database.MigrationsPath, log)
	if err != nil {
		return err
	}
	defer migrator.Close()

	return migrator.Up()
}

// buildTriggers assembles the interval-driven background work: inbound pulls,
// reconciliation, the stale-pending sweep, and the finality-timeout sweep.
func buildTriggers(
	cfg *config.Config,
	syncLog gateway.SyncLog,
	tracker *provenanceapp.Tracker,
	puller *syncapp.InboundPuller,
	reconciler *reconcileapp.Job,
	log *zap.Logger,
) []*scheduler.IntervalTrigger {
	var triggers []*scheduler.IntervalTrigger

	add := func(name string, cfg scheduler.IntervalTriggerConfig, task scheduler.Task) {
		trigger, err := scheduler.NewIntervalTrigger(name, cfg, task, log)
		if err != nil {
			log.Fatal("Invalid trigger configuration", zap.String("trigger", name), zap.Error(err))
		}
		triggers = append(triggers, trigger)
	}

	if cfg.Inbound.Enabled {
		add("inbound-pull", scheduler.IntervalTriggerConfig{
			Interval: cfg.Inbound.PullInterval,
			Jitter:   cfg.Inbound.PullInterval / 10,
		}, puller.PullAll)
	}

	if cfg.Reconciliation.Enabled {
		add("reconciliation", scheduler.IntervalTriggerConfig{
			Interval: cfg.Reconciliation.Interval,
			Jitter:   time.Minute,
		}, func(ctx context.Context) error {
			_, err := reconciler.Run(ctx)
			return err
		})
	}

	add("synclog-sweep", scheduler.IntervalTriggerConfig{
		Interval: cfg.SyncLog.SweepInterval,
	}, func(ctx context.Context) error {
		swept, err := syncLog.SweepStale(ctx, cfg.SyncLog.StaleAfter)
		if err != nil {
			return err
		}
		if swept > 0 {
			log.Warn("Force-failed stale pending sync attempts", zap.Int64("count", swept))
		}
		return nil
	})

	if cfg.Ledger.Enabled {
		add("finality-timeout-sweep", scheduler.IntervalTriggerConfig{
			Interval: cfg.Ledger.FinalityTimeout / 2,
		}, func(ctx context.Context) error {
			_, err := tracker.SweepTimedOut(ctx)
			return err
		})
	}

	return triggers
}
