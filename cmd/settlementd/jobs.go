package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"contest-settlement/internal/storage/migrations"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runOnce builds the app, runs fn and prints its result.
func runOnce(cmd *cobra.Command, fn func(ctx context.Context, a *app) (any, error)) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := fn(ctx, a)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres and ClickHouse migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.App.UseMemory {
				return fmt.Errorf("migrate needs postgres; drop --use-memory")
			}

			pool, err := openPool(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.ApplyPostgres(ctx, pool, log.Named("migrations"))
			if err != nil {
				return err
			}
			log.Info("postgres migrations done", zap.Strings("applied", applied))

			if cfg.ClickHouse.DSN != "" {
				conn, err := migrations.ApplyClickHouse(ctx, cfg.ClickHouse.DSN, log.Named("migrations"))
				if err != nil {
					return err
				}
				_ = conn.Close()
			}
			return nil
		},
	}
}

func consumeOutboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume-outbox",
		Short: "Run one outbox consumer pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.consumer.ConsumeOutbox(ctx)
			})
		},
	}
}

func executePayoutsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "execute-payouts",
		Short: "Run one attempt for each claimable transfer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, func(ctx context.Context, a *app) (any, error) {
				if limit <= 0 {
					limit = a.cfg.Payout.BatchSize
				}
				return a.executor.ExecutePending(ctx, a.db, a.resolver, limit)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum transfers (default payout.batch_size)")
	return cmd
}

func executeTransferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute-transfer [transfer-id]",
		Short: "Run one attempt of a single transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.executor.ExecuteTransfer(ctx, a.db, args[0], a.resolver)
			})
		},
	}
}

func exportLedgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-ledger",
		Short: "Copy new ledger entries to ClickHouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, func(ctx context.Context, a *app) (any, error) {
				if a.exporter == nil {
					return nil, fmt.Errorf("clickhouse.dsn is not configured")
				}
				return a.exporter.Export(ctx)
			})
		},
	}
}
