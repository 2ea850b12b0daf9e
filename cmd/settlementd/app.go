package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"contest-settlement/internal/config"
	"contest-settlement/internal/destination"
	"contest-settlement/internal/ledgerexport"
	"contest-settlement/internal/logger"
	"contest-settlement/internal/outbox"
	"contest-settlement/internal/payout"
	"contest-settlement/internal/provider/stripe"
	"contest-settlement/internal/provider/stub"
	"contest-settlement/internal/settlement"
	"contest-settlement/internal/storage"
	chstore "contest-settlement/internal/storage/clickhouse"
	"contest-settlement/internal/storage/memory"
	pgstore "contest-settlement/internal/storage/postgres"
)

// app holds the wired pipeline for one process.
type app struct {
	cfg config.Config
	log *zap.Logger

	db       storage.DB
	mem      *memory.Store // set in memory mode only
	resolver *destination.CachedResolver

	consumer *outbox.Consumer
	executor *payout.Executor
	exporter *ledgerexport.Exporter // nil without a ClickHouse DSN

	closers []func()
}

func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	if useMemory {
		cfg.App.UseMemory = true
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	var (
		accounts storage.AccountReader
		prov     payout.Provider
		cache    destination.Store = destination.NewMemoryStore()
	)

	if a.cfg.App.UseMemory {
		a.mem = memory.NewStore()
		a.db = a.mem
		accounts = a.mem
		prov = stub.New()
		a.log.Warn("running with in-memory store and stub provider")
	} else {
		pool, err := openPool(ctx, a.cfg.Postgres)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)

		store := pgstore.NewStore(pool)
		a.db = store
		accounts = store

		if a.cfg.Stripe.SecretKey == "" {
			return errors.New("stripe.secret_key is required unless app.use_memory is set")
		}
		prov = stripe.NewClient(stripe.Options{
			BaseURL:   a.cfg.Stripe.BaseURL,
			SecretKey: a.cfg.Stripe.SecretKey,
			Currency:  a.cfg.Stripe.Currency,
			Logger:    a.log.Named("stripe"),
		})

		if a.cfg.Redis.Addr != "" {
			rs := destination.NewRedisStore(&redis.Options{
				Addr:     a.cfg.Redis.Addr,
				Password: a.cfg.Redis.Password,
				DB:       a.cfg.Redis.DB,
			})
			a.closers = append(a.closers, func() { _ = rs.Close() })
			cache = rs
		}

		if a.cfg.ClickHouse.DSN != "" {
			conn, err := chstore.NewConn(ctx, a.cfg.ClickHouse.DSN)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, func() { _ = conn.Close() })
			a.exporter = ledgerexport.NewExporter(store, chstore.NewLedgerMirror(conn), 0, a.log.Named("ledgerexport")).
				WithLookback(a.cfg.ClickHouse.ExportLookback)
		}
	}

	a.resolver = destination.NewCachedResolver(
		destination.NewStoreResolver(accounts),
		cache,
		a.cfg.Destination.CacheTTL,
		a.log.Named("destination"),
	)

	engine := settlement.NewEngine(settlement.EngineOptions{Logger: a.log.Named("settlement")})
	orchestrator := payout.NewOrchestrator(payout.OrchestratorOptions{
		MaxAttempts: a.cfg.Payout.MaxAttempts,
		Logger:      a.log.Named("payout"),
	})
	a.consumer = outbox.NewConsumer(a.db, engine.Handler(orchestrator), outbox.Options{
		BatchSize: a.cfg.Outbox.BatchSize,
		Logger:    a.log.Named("outbox"),
	})
	a.executor = payout.NewExecutor(prov, payout.ExecutorOptions{
		ProviderTimeout: a.cfg.Payout.ProviderTimeout,
		Logger:          a.log.Named("executor"),
	})
	return nil
}

func openPool(ctx context.Context, cfg config.PostgresConfig) (*pgstore.Pool, error) {
	return pgstore.NewPool(ctx, cfg.DSN, pgstore.PoolOptions{
		MaxConns:         cfg.MaxConns,
		MinConns:         cfg.MinConns,
		MaxConnLifetime:  cfg.ConnMaxLifetime,
		MaxConnIdleTime:  cfg.ConnMaxIdleTime,
		StatementTimeout: cfg.StatementTimeout,
	})
}

func (a *app) consumeOutbox(ctx context.Context) error {
	_, err := a.consumer.ConsumeOutbox(ctx)
	return err
}

func (a *app) executePayouts(ctx context.Context) error {
	_, err := a.executor.ExecutePending(ctx, a.db, a.resolver, a.cfg.Payout.BatchSize)
	return err
}

func (a *app) exportLedger(ctx context.Context) error {
	if a.exporter == nil {
		return nil
	}
	_, err := a.exporter.Export(ctx)
	return err
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
