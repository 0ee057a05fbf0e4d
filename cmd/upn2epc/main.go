// Command upn2epc converts Slovenian UPN payment-order PDFs into PDFs with
// EPC QR codes, either once from the command line or by watching a mailbox.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/service"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/config"
)

func main() {
	app := kingpin.New("upn2epc",
		"Build a PDF with EPC QR codes (Revolut) and payment register from a PDF containing UNP/UPN QR codes. "+
			"Payments are read from the QR code content, not from PDF text.")

	convert := app.Command("convert", "Convert one PDF").Default()
	input := convert.Arg("input_pdf", "Input PDF file with payment orders (UNP/UPN)").Required().String()
	output := convert.Flag("output", "Output PDF (default: input_epc_qr.pdf)").Short('o').String()
	debug := convert.Flag("debug", "Print extracted data and payment count").Short('d').Bool()
	registerPath := convert.Flag("register", "Also write the payment register to this file").String()
	registerFormat := convert.Flag("register-format", "Register format").
		Default("text").Enum("text", "txt", "csv", "xlsx")
	bic := convert.Flag("bic", "BIC written into every EPC payload").String()

	serve := app.Command("serve", "Watch the mailbox and reply with converted documents")

	history := app.Command("history", "List recent conversions from the ledger")
	limit := history.Flag("limit", "Number of conversions").Default("20").Int()
	files := history.Flag("files", "List the archived files of this conversion ID instead").String()
	extract := history.Flag("extract", "Copy the archived files of --files into this directory").String()
	purge := history.Flag("purge", "Remove the archived files of --files").Bool()

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch cmd {
	case convert.FullCommand():
		if *debug {
			cfg.LogLevel = "debug"
		}
		if *bic != "" {
			cfg.EPC.BIC = *bic
		}
		logger := newLogger(os.Stderr, false, cfg.LogLevel)

		var deps *Dependencies
		newConverter := func() (documentConverter, error) {
			d, err := InitDependencies(ctx, cfg, nil, logger)
			if err != nil {
				return nil, err
			}
			deps = d
			return d.Converter, nil
		}
		code = runConvert(ctx, convertOptions{
			Input:          *input,
			Output:         *output,
			Debug:          *debug,
			RegisterPath:   *registerPath,
			RegisterFormat: *registerFormat,
		}, newConverter, os.Stdout, os.Stderr)
		if deps != nil {
			deps.Cleanup()
		}

	case serve.FullCommand():
		logger := newLogger(os.Stdout, true, cfg.LogLevel)
		if err := runServe(ctx, cfg, logger); err != nil {
			logger.Error("serve stopped", slog.Any("error", err))
			code = 1
		}

	case history.FullCommand():
		if *files != "" {
			code = runArchiveCommand(ctx, cfg, archiveOptions{
				ConversionID: *files,
				ExtractDir:   *extract,
				Purge:        *purge,
			}, os.Stdout, os.Stderr)
			break
		}
		if *extract != "" || *purge {
			fmt.Fprintln(os.Stderr, "Error: --extract and --purge require --files")
			code = 1
			break
		}
		logger := newLogger(os.Stderr, false, cfg.LogLevel)
		code = runHistoryCommand(ctx, cfg, *limit, logger)
	}

	stop()
	os.Exit(code)
}

// newLogger returns a JSON logger for the worker and a text logger for the CLI.
func newLogger(w io.Writer, json bool, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// documentConverter is the part of the converter the CLI uses.
type documentConverter interface {
	Convert(ctx context.Context, in service.Input) (*service.Result, error)
}
