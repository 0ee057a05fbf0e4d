package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/normalizer"
)

// ErrNoPayments matches every NoPaymentsError through errors.Is.
var ErrNoPayments = errors.New("no payments found")

const previewLen = 200

// NoPaymentsError reports a document from which no valid payment could be
// recovered, with enough of the decoded content to diagnose why.
type NoPaymentsError struct {
	QRCount   int
	FirstLine string
	Preview   string
}

func newNoPaymentsError(payloads []string) *NoPaymentsError {
	e := &NoPaymentsError{QRCount: len(payloads)}
	if len(payloads) == 0 {
		return e
	}
	first := payloads[0]
	e.Preview = normalizer.Truncate(first, previewLen)
	if trimmed := strings.TrimSpace(first); trimmed != "" {
		e.FirstLine = strings.SplitN(trimmed, "\n", 2)[0]
	}
	return e
}

func (e *NoPaymentsError) Error() string {
	if e.QRCount == 0 {
		return "No QR codes found in the PDF. " +
			"The file may contain text only (no QR images). " +
			"Use a PDF that includes actual QR codes (e.g. upn-qr.si)."
	}
	return fmt.Sprintf("Found %d QR code(s) in the PDF, but content is not valid UPN QR format.\n"+
		"First line: %q\n"+
		"Content preview: %q\n"+
		"Expected first line: 'UPNQR' (Slovenian payment order, upn-qr.si).",
		e.QRCount, e.FirstLine, e.Preview)
}

// Is makes errors.Is(err, ErrNoPayments) hold.
func (e *NoPaymentsError) Is(target error) bool {
	return target == ErrNoPayments
}
