package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/upn-epc-bridge/pkg/config"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/cron"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

// runServe polls the mailbox until ctx is cancelled. The ops server runs next
// to the worker when metrics are enabled.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.ValidateMail(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Observability.MetricsEnabled {
		m = metrics.New()
	}

	deps, err := InitDependencies(ctx, cfg, m, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	if err := deps.initMailbox(); err != nil {
		return fmt.Errorf("failed to init mailbox: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	scheduler := cron.NewScheduler(deps.Mail, cfg.Mail.PollInterval, logger)
	if err := scheduler.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})

	if m != nil {
		srv := metrics.NewServer(cfg.Observability.MetricsPort, m, deps.HealthChecks(), logger)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("upn2epc worker started",
		slog.Duration("poll_interval", cfg.Mail.PollInterval),
		slog.Bool("metrics", m != nil))

	err = g.Wait()
	logger.Info("upn2epc worker stopped")
	return err
}
