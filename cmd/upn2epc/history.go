package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/repository"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/config"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/db"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/money"
)

type conversionLister interface {
	RecentConversions(ctx context.Context, limit int) ([]repository.Conversion, error)
}

func runHistoryCommand(ctx context.Context, cfg *config.Config, limit int, logger *slog.Logger) int {
	if cfg.Database.URL == "" {
		fmt.Fprintf(os.Stderr, "Error: %v (set DATABASE_URL)\n", db.ErrNoDSN)
		return 1
	}

	database, err := db.New(ctx, db.Config{DSN: cfg.Database.URL, MaxConns: 2, DialTimeout: 10 * time.Second}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer database.Close()

	if err := printHistory(ctx, repository.NewPostgresLedger(database.Pool), limit, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// printHistory writes one aligned row per conversion, newest first.
func printHistory(ctx context.Context, l conversionLister, limit int, w io.Writer) (err error) {
	conversions, err := l.RecentConversions(ctx, limit)
	if err != nil {
		return err
	}
	if len(conversions) == 0 {
		_, err := fmt.Fprintln(w, "No conversions recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer func() {
		err = errors.Join(err, tw.Flush())
	}()

	fmt.Fprintln(tw, "CREATED\tID\tORIGIN\tSTATUS\tPAYMENTS\tTOTAL (EUR)\tSOURCE")
	for _, c := range conversions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.CreatedAt.Local().Format(time.DateTime),
			c.ID,
			c.Origin,
			c.Status,
			c.PaymentCount,
			money.Euros(c.TotalCents).Fixed(),
			c.SourceName)
	}
	return nil
}
