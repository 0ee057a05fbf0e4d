package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/paymenttest"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/repository"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/storage"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeQR struct {
	payloads []string
	err      error
}

func (f fakeQR) QRStrings(context.Context, []byte) ([]string, error) {
	return f.payloads, f.err
}

type fakeText struct {
	text  string
	err   error
	calls int
}

func (f *fakeText) Text(context.Context, []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeWriter struct {
	got []payment.Record
	err error
}

func (f *fakeWriter) Bytes(records []payment.Record) ([]byte, error) {
	f.got = records
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.3 fake\n%%EOF"), nil
}

type fakeLedger struct {
	recorded []*repository.Conversion
	err      error
}

func (f *fakeLedger) RecordConversion(_ context.Context, c *repository.Conversion) error {
	f.recorded = append(f.recorded, c)
	return f.err
}

type fakeObserver struct {
	statuses []string
}

func (f *fakeObserver) ObserveConversion(_, status string, _ int, _ time.Duration) {
	f.statuses = append(f.statuses, status)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const layoutText = `PLAČILO UPN
SI56 1100 2233 4455 667
JANEZ   NOVAK
DUNAJSKA 1 LJUBLJANA
Prispevek za DO
SI56 1100 2233 4455 667
SI19 12345-67890
***28,74
`

// ============================================================================
// QR path
// ============================================================================

func TestConvert_QRPayments(t *testing.T) {
	janez := paymenttest.JanezNovak().Payload()
	other := paymenttest.Fake(7).Payload()

	writer := &fakeWriter{}
	conv := NewConverter(fakeQR{payloads: []string{janez, other, janez}}, writer, testLogger())

	res, err := conv.Convert(context.Background(), Input{Name: "upn.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)

	assert.Equal(t, 3, res.QRCount)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "JANEZ NOVAK", res.Records[0].RecipientName)
	assert.Equal(t, "SI1912345-67890", res.Records[0].Reference)
	assert.Equal(t, payment.SourceQR, res.Source)
	assert.Equal(t, res.Records, writer.got)
	assert.True(t, strings.HasPrefix(string(res.Document), "%PDF"))
	assert.Equal(t, res.Records[0].AmountCents+res.Records[1].AmountCents, res.Total().Amount())
	assert.True(t, strings.HasPrefix(res.Extracted(), "UPNQR"))
}

func TestConvert_QRSkipsTextFallback(t *testing.T) {
	text := &fakeText{text: layoutText}
	conv := NewConverter(fakeQR{payloads: []string{paymenttest.JanezNovak().Payload()}}, &fakeWriter{}, testLogger()).
		WithTextFallback(text)

	res, err := conv.Convert(context.Background(), Input{Name: "upn.pdf"})
	require.NoError(t, err)
	assert.Equal(t, payment.SourceQR, res.Source)
	assert.Zero(t, text.calls)
}

// ============================================================================
// Text fallback
// ============================================================================

func TestConvert_TextFallback(t *testing.T) {
	text := &fakeText{text: layoutText}
	conv := NewConverter(fakeQR{}, &fakeWriter{}, testLogger()).WithTextFallback(text)

	res, err := conv.Convert(context.Background(), Input{Name: "scan.pdf"})
	require.NoError(t, err)

	assert.Equal(t, 1, text.calls)
	assert.Equal(t, payment.SourceText, res.Source)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "JANEZ NOVAK", res.Records[0].RecipientName)
	assert.Equal(t, int64(2874), res.Records[0].AmountCents)
	assert.Equal(t, layoutText, res.Extracted())
}

func TestConvert_TextFallbackErrorReportsNoPayments(t *testing.T) {
	text := &fakeText{err: errors.New("pdftotext missing")}
	conv := NewConverter(fakeQR{}, &fakeWriter{}, testLogger()).WithTextFallback(text)

	_, err := conv.Convert(context.Background(), Input{Name: "scan.pdf"})
	assert.ErrorIs(t, err, ErrNoPayments)
}

// ============================================================================
// Diagnostics
// ============================================================================

func TestConvert_NoQRCodes(t *testing.T) {
	conv := NewConverter(fakeQR{}, &fakeWriter{}, testLogger())

	_, err := conv.Convert(context.Background(), Input{Name: "text-only.pdf"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoPayments)

	var npe *NoPaymentsError
	require.ErrorAs(t, err, &npe)
	assert.Zero(t, npe.QRCount)
	assert.Equal(t,
		"No QR codes found in the PDF. The file may contain text only (no QR images). "+
			"Use a PDF that includes actual QR codes (e.g. upn-qr.si).",
		err.Error())
}

func TestConvert_InvalidQRContent(t *testing.T) {
	payloads := []string{"https://example.com/pay\nsecond line", "BCD\n002"}
	conv := NewConverter(fakeQR{payloads: payloads}, &fakeWriter{}, testLogger())

	_, err := conv.Convert(context.Background(), Input{Name: "wrong.pdf"})
	require.Error(t, err)

	var npe *NoPaymentsError
	require.ErrorAs(t, err, &npe)
	assert.Equal(t, 2, npe.QRCount)
	assert.Equal(t, "https://example.com/pay", npe.FirstLine)
	assert.Equal(t, payloads[0], npe.Preview)
	assert.Equal(t,
		"Found 2 QR code(s) in the PDF, but content is not valid UPN QR format.\n"+
			"First line: \"https://example.com/pay\"\n"+
			"Content preview: \"https://example.com/pay\\nsecond line\"\n"+
			"Expected first line: 'UPNQR' (Slovenian payment order, upn-qr.si).",
		err.Error())
}

func TestNoPaymentsError_PreviewTruncated(t *testing.T) {
	long := strings.Repeat("x", 250)
	e := newNoPaymentsError([]string{long})
	assert.Equal(t, strings.Repeat("x", 200)+"...", e.Preview)
	assert.Equal(t, long, e.FirstLine)

	blank := newNoPaymentsError([]string{"   "})
	assert.Empty(t, blank.FirstLine)
	assert.Equal(t, "   ", blank.Preview)
}

func TestConvert_ExtractionError(t *testing.T) {
	conv := NewConverter(fakeQR{err: errors.New("pdftoppm failed")}, &fakeWriter{}, testLogger())

	_, err := conv.Convert(context.Background(), Input{Name: "broken.pdf"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPayments)
	assert.Contains(t, err.Error(), "failed to extract QR codes")
}

func TestConvert_RenderError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("image too large")}
	conv := NewConverter(fakeQR{payloads: []string{paymenttest.JanezNovak().Payload()}}, writer, testLogger())

	_, err := conv.Convert(context.Background(), Input{Name: "upn.pdf"})
	assert.ErrorContains(t, err, "failed to render document")
}

// ============================================================================
// Ledger, archive and observer
// ============================================================================

func TestConvert_RecordsLedgerAndArchive(t *testing.T) {
	ledger := &fakeLedger{}
	observer := &fakeObserver{}
	archive, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	conv := NewConverter(fakeQR{payloads: []string{paymenttest.JanezNovak().Payload()}}, &fakeWriter{}, testLogger()).
		WithLedger(ledger).
		WithArchive(archive).
		WithObserver(observer)

	in := Input{Name: "upn.pdf", Data: []byte("%PDF-in"), Origin: repository.OriginMail, MessageID: "<m@x>"}
	res, err := conv.Convert(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, ledger.recorded, 1)
	rec := ledger.recorded[0]
	assert.Equal(t, res.ID, rec.ID)
	assert.Equal(t, repository.StatusConverted, rec.Status)
	assert.Equal(t, repository.OriginMail, rec.Origin)
	assert.Equal(t, "<m@x>", rec.MessageID)
	assert.Equal(t, int64(2874), rec.TotalCents)
	assert.Len(t, rec.Payments, 1)

	files, err := archive.List(context.Background(), res.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	names := []string{files[0].Name, files[1].Name}
	assert.ElementsMatch(t, []string{"upn.pdf", "upn_epc_qr.pdf"}, names)

	assert.Equal(t, []string{"converted"}, observer.statuses)
}

func TestConvert_LedgerFailureIgnored(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("db down")}
	conv := NewConverter(fakeQR{}, &fakeWriter{}, testLogger()).WithLedger(ledger)

	_, err := conv.Convert(context.Background(), Input{Name: "empty.pdf"})
	assert.ErrorIs(t, err, ErrNoPayments)
	require.Len(t, ledger.recorded, 1)
	assert.Equal(t, repository.StatusNoPayments, ledger.recorded[0].Status)
	assert.Equal(t, repository.OriginCLI, ledger.recorded[0].Origin)
	assert.Empty(t, ledger.recorded[0].Payments)
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"upn.pdf", "upn_epc_qr.pdf"},
		{"/tmp/batch/Položnice.PDF", "Položnice_epc_qr.pdf"},
		{"noext", "noext_epc_qr.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, OutputName(tt.in))
		})
	}
}
