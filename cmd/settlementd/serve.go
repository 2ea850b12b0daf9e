package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"contest-settlement/internal/cronrunner"
	"contest-settlement/internal/ops"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops HTTP server and the scheduled pipeline passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Ops.HTTPAddr,
		Handler:           ops.NewEngine(a.cfg.App.Env, a.db, a.resolver, a.log.Named("ops")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runner := cronrunner.New(ctx, a.log.Named("cron"))
	if a.cfg.Cron.Enabled {
		jobs := []struct {
			name string
			spec string
			fn   func(context.Context) error
		}{
			{"consume_outbox", a.cfg.Cron.ConsumeOutbox, a.consumeOutbox},
			{"execute_payouts", a.cfg.Cron.ExecutePayout, a.executePayouts},
			{"export_ledger", a.cfg.Cron.ExportLedger, a.exportLedger},
		}
		for _, j := range jobs {
			if j.spec == "" {
				continue
			}
			if _, err := runner.Add(j.name, j.spec, j.fn); err != nil {
				return err
			}
		}
		runner.Start()
		defer runner.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown requested")
	case serveErr = <-errCh:
		a.log.Error("server error", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return serveErr
}
