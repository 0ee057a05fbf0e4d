package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/extractor"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/normalizer"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/register"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/repository"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/service"
)

// debugExcerpt is how much of the extracted data -d prints.
const debugExcerpt = 2000

type convertOptions struct {
	Input          string
	Output         string
	Debug          bool
	RegisterPath   string
	RegisterFormat string
}

// runConvert converts one file and prints the summary. It returns the process
// exit code. The converter is only built once the input is known to exist.
func runConvert(ctx context.Context, opts convertOptions, newConverter func() (documentConverter, error), stdout, stderr io.Writer) int {
	fail := func(err error) int {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	info, err := os.Stat(opts.Input)
	if err != nil || !info.Mode().IsRegular() {
		return fail(fmt.Errorf("file not found: %s", opts.Input))
	}

	output := opts.Output
	if output == "" {
		output = filepath.Join(filepath.Dir(opts.Input), service.OutputName(opts.Input))
	}

	format, err := register.ParseFormat(opts.RegisterFormat)
	if err != nil {
		return fail(err)
	}

	data, err := os.ReadFile(opts.Input)
	if err != nil {
		return fail(fmt.Errorf("failed to read input: %w", err))
	}

	conv, err := newConverter()
	if err != nil {
		return fail(err)
	}

	res, err := conv.Convert(ctx, service.Input{
		Name:   filepath.Base(opts.Input),
		Data:   data,
		Origin: repository.OriginCLI,
	})
	if err != nil {
		return fail(err)
	}

	if err := os.WriteFile(output, res.Document, 0o644); err != nil {
		return fail(fmt.Errorf("failed to write output: %w", err))
	}
	if opts.RegisterPath != "" {
		if err := writeRegister(opts.RegisterPath, format, res); err != nil {
			return fail(err)
		}
	}

	fmt.Fprintf(stdout, "Processed: %d payment(s).\n", len(res.Records))
	fmt.Fprintf(stdout, "Total: %s EUR.\n", res.Total().Fixed())
	fmt.Fprintf(stdout, "Written: %s\n", output)
	if opts.RegisterPath != "" {
		fmt.Fprintf(stdout, "Register: %s\n", opts.RegisterPath)
	}

	if opts.Debug {
		printDebug(stdout, data, res)
	}
	return 0
}

func writeRegister(path string, format register.Format, res *service.Result) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create register: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	if err := register.Write(f, format, res.Records); err != nil {
		return fmt.Errorf("failed to write register: %w", err)
	}
	return nil
}

func printDebug(w io.Writer, input []byte, res *service.Result) {
	fmt.Fprintln(w, "\n--- Input ---")
	if info, err := extractor.Inspect(input); err != nil {
		fmt.Fprintf(w, "PDF: unreadable (%v)\n", err)
	} else {
		fmt.Fprintf(w, "PDF: %d page(s)\n", info.Pages)
	}
	fmt.Fprintf(w, "QR codes: %d (source: %s)\n", res.QRCount, res.Source)

	fmt.Fprintln(w, "\n--- Extracted data (excerpt) ---")
	fmt.Fprintln(w, normalizer.Truncate(res.Extracted(), debugExcerpt))
	fmt.Fprintln(w, "\n--- Payments ---")
	for i, p := range res.Records {
		fmt.Fprintf(w, "%d. %s | %s EUR | %s\n", i+1, p.RecipientName, p.Amount().Fixed(), p.Reference)
	}
}
