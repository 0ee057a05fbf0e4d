// Package service converts UPN payment-order PDFs into EPC QR documents.
package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/parser"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/repository"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/money"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/storage"
)

const tracerName = "github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/service"

// QRSource yields raw QR payloads from a PDF.
type QRSource interface {
	QRStrings(ctx context.Context, pdf []byte) ([]string, error)
}

// TextSource yields the linearized text of a PDF.
type TextSource interface {
	Text(ctx context.Context, pdf []byte) (string, error)
}

// DocumentWriter renders the output document.
type DocumentWriter interface {
	Bytes(records []payment.Record) ([]byte, error)
}

// ConversionRecorder persists conversion outcomes.
type ConversionRecorder interface {
	RecordConversion(ctx context.Context, c *repository.Conversion) error
}

// Observer receives one call per finished conversion.
type Observer interface {
	ObserveConversion(origin, status string, payments int, elapsed time.Duration)
}

// Input is one document to convert
type Input struct {
	Name      string
	Data      []byte
	Origin    repository.Origin
	MessageID string
}

// Result of a successful conversion
type Result struct {
	ID       uuid.UUID
	Records  []payment.Record
	Document []byte
	QRCount  int
	Source   payment.Source

	// Payloads holds the decoded QR contents; FallbackText the document text
	// when the text path was used.
	Payloads     []string
	FallbackText string
}

// Total sums the record amounts.
func (r *Result) Total() *money.Money {
	return payment.Total(r.Records)
}

// Extracted returns the raw data the records were recovered from.
func (r *Result) Extracted() string {
	if r.Source == payment.SourceText {
		return r.FallbackText
	}
	return strings.Join(r.Payloads, "\n")
}

// Converter runs the extract, parse, render pipeline
type Converter struct {
	qr       QRSource
	text     TextSource
	writer   DocumentWriter
	archive  storage.Storage
	ledger   ConversionRecorder
	observer Observer
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewConverter creates a converter that reads payments from QR codes only.
func NewConverter(qr QRSource, writer DocumentWriter, logger *slog.Logger) *Converter {
	return &Converter{
		qr:     qr,
		writer: writer,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// WithTextFallback enables the text-layout parsers when no QR payment is found.
func (c *Converter) WithTextFallback(text TextSource) *Converter {
	c.text = text
	return c
}

// WithArchive stores every input and output document.
func (c *Converter) WithArchive(s storage.Storage) *Converter {
	c.archive = s
	return c
}

// WithLedger records every conversion outcome.
func (c *Converter) WithLedger(l ConversionRecorder) *Converter {
	c.ledger = l
	return c
}

// WithObserver reports conversion counts and durations.
func (c *Converter) WithObserver(o Observer) *Converter {
	c.observer = o
	return c
}

// Convert extracts the payments of one PDF and renders the EPC document.
// When nothing valid is found the error is a *NoPaymentsError.
func (c *Converter) Convert(ctx context.Context, in Input) (res *Result, err error) {
	start := time.Now()
	if in.Origin == "" {
		in.Origin = repository.OriginCLI
	}

	ctx, span := c.tracer.Start(ctx, "payment.Convert",
		trace.WithAttributes(
			attribute.String("document.name", in.Name),
			attribute.Int("document.size", len(in.Data)),
			attribute.String("origin", string(in.Origin)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "conversion failed")
		}
		span.End()
	}()

	res = &Result{ID: uuid.New(), Source: payment.SourceQR}

	payloads, err := c.qr.QRStrings(ctx, in.Data)
	if err != nil {
		c.finish(ctx, in, res, repository.StatusFailed, start)
		return nil, fmt.Errorf("failed to extract QR codes: %w", err)
	}
	res.Payloads = payloads
	res.QRCount = len(payloads)
	res.Records = parser.ParseAll(payloads)

	span.SetAttributes(
		attribute.Int("qr.count", res.QRCount),
		attribute.Int("qr.payments", len(res.Records)),
	)

	if len(res.Records) == 0 && c.text != nil {
		res.Records = c.fallback(ctx, in, res)
	}

	if len(res.Records) == 0 {
		c.finish(ctx, in, res, repository.StatusNoPayments, start)
		return nil, newNoPaymentsError(payloads)
	}

	doc, err := c.writer.Bytes(res.Records)
	if err != nil {
		c.finish(ctx, in, res, repository.StatusFailed, start)
		return nil, fmt.Errorf("failed to render document: %w", err)
	}
	res.Document = doc

	c.logger.InfoContext(ctx, "document converted",
		slog.String("name", in.Name),
		slog.String("source", string(res.Source)),
		slog.Int("qr_count", res.QRCount),
		slog.Int("payments", len(res.Records)),
		slog.String("total", res.Total().Display()))

	c.store(ctx, in, res)
	c.finish(ctx, in, res, repository.StatusConverted, start)
	return res, nil
}

// fallback parses the document text and merges the candidates behind any QR
// records by payment key.
func (c *Converter) fallback(ctx context.Context, in Input, res *Result) []payment.Record {
	ctx, span := c.tracer.Start(ctx, "payment.TextFallback")
	defer span.End()

	text, err := c.text.Text(ctx, in.Data)
	if err != nil {
		c.logger.DebugContext(ctx, "text fallback unavailable",
			slog.String("name", in.Name),
			slog.Any("error", err))
		return res.Records
	}

	found := parser.ParseText(text)
	span.SetAttributes(attribute.Int("text.payments", len(found)))
	if len(found) == 0 {
		return res.Records
	}

	res.Source = payment.SourceText
	res.FallbackText = text
	return payment.Dedupe(append(res.Records, found...))
}

// store archives the input and the rendered document. Failures are logged.
func (c *Converter) store(ctx context.Context, in Input, res *Result) {
	if c.archive == nil {
		return
	}

	name := in.Name
	if name == "" {
		name = "input.pdf"
	}
	if _, err := c.archive.Save(ctx, res.ID, name, storage.ContentTypePDF, bytes.NewReader(in.Data)); err != nil {
		c.logger.WarnContext(ctx, "failed to archive input", slog.Any("error", err))
		return
	}
	if _, err := c.archive.Save(ctx, res.ID, OutputName(name), storage.ContentTypePDF, bytes.NewReader(res.Document)); err != nil {
		c.logger.WarnContext(ctx, "failed to archive output", slog.Any("error", err))
	}
}

// finish records the outcome in the ledger and the observer. Ledger failures
// are logged and never fail the conversion.
func (c *Converter) finish(ctx context.Context, in Input, res *Result, status repository.Status, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveConversion(string(in.Origin), string(status), len(res.Records), time.Since(start))
	}
	if c.ledger == nil {
		return
	}

	conv := &repository.Conversion{
		ID:         res.ID,
		SourceName: in.Name,
		Origin:     in.Origin,
		MessageID:  in.MessageID,
		QRCount:    res.QRCount,
		TotalCents: res.Total().Amount(),
		Status:     status,
	}
	if status == repository.StatusConverted {
		conv.Payments = res.Records
	}
	if err := c.ledger.RecordConversion(ctx, conv); err != nil {
		c.logger.WarnContext(ctx, "failed to record conversion",
			slog.String("name", in.Name),
			slog.Any("error", err))
	}
}

// OutputName derives the converted file name: "<stem>_epc_qr.pdf".
func OutputName(input string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem + "_epc_qr.pdf"
}
