package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/mailbox/client"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/mailbox/sender"
	mailservice "github.com/FACorreiaa/upn-epc-bridge/internal/domain/mailbox/service"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/epc"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/extractor"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/render"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/repository"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/service"

	"github.com/FACorreiaa/upn-epc-bridge/pkg/config"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/db"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/metrics"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config  *config.Config
	DB      *db.DB
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Repositories
	Ledger  *repository.PostgresLedger
	Archive storage.Storage

	// Services
	Extractor *extractor.Extractor
	Converter *service.Converter
	Mail      *mailservice.Service
}

// InitDependencies builds the conversion pipeline. The database is only
// opened when DATABASE_URL is set; m may be nil.
func InitDependencies(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
	}

	if cfg.Database.URL != "" {
		if err := deps.initDatabase(ctx); err != nil {
			return nil, fmt.Errorf("failed to init database: %w", err)
		}
	}

	if err := deps.initStorage(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	if err := deps.initConverter(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init converter: %w", err)
	}

	logger.Debug("dependencies initialized",
		slog.Bool("ledger", deps.Ledger != nil),
		slog.Bool("archive", deps.Archive != nil))

	return deps, nil
}

// initDatabase connects, runs migrations and opens the ledger
func (d *Dependencies) initDatabase(ctx context.Context) error {
	database, err := db.New(ctx, db.Config{
		DSN:             d.Config.Database.URL,
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
		DialTimeout:     10 * time.Second,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(ctx); err != nil {
		d.DB.Close()
		d.DB = nil
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Ledger = repository.NewPostgresLedger(d.DB.Pool)
	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initStorage() error {
	if !d.Config.Storage.ArchiveEnabled {
		return nil
	}
	archive, err := storage.NewLocalStorage(d.Config.Storage.LocalPath)
	if err != nil {
		return err
	}
	d.Archive = archive
	return nil
}

// initConverter wires extraction, rendering and the optional archive, ledger
// and metrics into the converter.
func (d *Dependencies) initConverter() error {
	cfg := d.Config.Extraction
	runner := extractor.NewExecRunner(d.Logger)

	d.Extractor = extractor.New(d.Logger, extractor.DefaultDecoders()...).
		WithDPIs(cfg.DPIs...)
	if extractor.Available(cfg.PdftoppmPath) {
		d.Extractor.WithRenderer(extractor.NewPdftoppmRenderer(runner, cfg.PdftoppmPath, d.Logger))
	} else {
		d.Logger.Warn("pdftoppm not found, only embedded images will be decoded",
			slog.String("path", cfg.PdftoppmPath))
	}
	if err := d.Extractor.Check(); err != nil {
		return err
	}
	logCapabilities(d.Logger, d.Extractor.Capabilities())

	encoder := epc.NewEncoder(d.Config.EPC.QRSizePx)
	document := render.NewDocument(encoder).WithBIC(d.Config.EPC.BIC)

	d.Converter = service.NewConverter(d.Extractor, document, d.Logger)

	if cfg.TextFallback {
		bin := cfg.PdftotextPath
		if !extractor.Available(bin) {
			bin = ""
		}
		d.Converter.WithTextFallback(extractor.NewTextSource(runner, bin, d.Logger))
	}
	if d.Archive != nil {
		d.Converter.WithArchive(d.Archive)
	}
	if d.Ledger != nil {
		d.Converter.WithLedger(d.Ledger)
	}
	if d.Metrics != nil {
		d.Converter.WithObserver(d.Metrics)
	}
	return nil
}

// initMailbox builds the mailbox worker around the converter.
func (d *Dependencies) initMailbox() error {
	mc := d.Config.Mail

	var out sender.Sender
	if mc.UseResend() {
		rs, err := sender.NewResendSender(mc.ResendAPIKey, d.Logger)
		if err != nil {
			return err
		}
		out = rs
	} else {
		out = sender.NewSMTPSender(sender.SMTPConfig{
			Host:     mc.SMTPHost,
			Port:     mc.SMTPPort,
			User:     mc.SMTPUser,
			Password: mc.SMTPPassword,
			UseTLS:   mc.SMTPUseTLS,
		}, d.Logger)
	}
	out = sender.NewRateLimited(out, mc.SendRate)

	imapCfg := client.Config{
		Host:     mc.IMAPHost,
		Port:     mc.IMAPPort,
		User:     mc.IMAPUser,
		Password: mc.IMAPPassword,
		Mailbox:  mc.IMAPMailbox,
	}
	dial := func(ctx context.Context) (client.Mailbox, error) {
		mb, err := client.Dial(ctx, imapCfg, d.Logger)
		if err != nil {
			return nil, err
		}
		return mb, nil
	}

	d.Mail = mailservice.NewService(dial, out, d.Converter, mc.FromEmail, d.Logger).
		WithXLSX(mc.AttachXLSX)
	if d.Ledger != nil {
		d.Mail.WithReplyLog(d.Ledger)
	}
	if d.Metrics != nil {
		d.Mail.WithObserver(d.Metrics)
	}

	d.Logger.Info("mailbox worker initialized",
		slog.String("imap", fmt.Sprintf("%s:%d", mc.IMAPHost, mc.IMAPPort)),
		slog.String("transport", mc.Transport),
		slog.String("from", mc.FromEmail))
	return nil
}

// HealthChecks returns the checks served on /healthz
func (d *Dependencies) HealthChecks() map[string]metrics.HealthCheck {
	checks := map[string]metrics.HealthCheck{
		"extractor": func(context.Context) error { return d.Extractor.Check() },
	}
	if d.DB != nil {
		checks["database"] = d.DB.Health
	}
	return checks
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Debug("cleanup completed")
}

func logCapabilities(logger *slog.Logger, caps extractor.Capabilities) {
	logger.Debug("qr extraction ready",
		slog.Bool("embedded_images", caps.EmbeddedImages),
		slog.Bool("first_page", caps.FirstPage),
		slog.Bool("renderer", caps.Renderer),
		slog.String("decoders", strings.Join(caps.Decoders, ",")))
}
