// Package epc builds European Payments Council QR payloads (SEPA credit
// transfer, version 002) and rasterizes them.
package epc

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode/decoder"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment"
)

// Fixed header of every SCT payload.
const (
	ServiceTag     = "BCD"
	Version        = "002"
	CharacterSet   = "1" // UTF-8
	Identification = "SCT"
)

// Field limits in characters.
const (
	maxName        = 70
	maxIBAN        = 34
	maxPurposeCode = 4
	maxReference   = 35
	maxPurpose     = 70
)

// BuildPayload renders a record as an EPC QR payload. Trailing empty fields
// are dropped. Limits count characters, not bytes.
func BuildPayload(r payment.Record, bic string) string {
	fields := []string{
		ServiceTag,
		Version,
		CharacterSet,
		Identification,
		strings.TrimSpace(bic),
		truncate(r.RecipientName, maxName),
		truncate(payment.NormalizeIBAN(r.IBAN), maxIBAN),
		"EUR" + r.Amount().Fixed(),
		truncate(r.PurposeCode, maxPurposeCode),
		truncate(r.Reference, maxReference),
		truncate(r.Purpose, maxPurpose),
	}

	for len(fields) > 1 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ============================================================================
// QR rasterization
// ============================================================================

const (
	DefaultSizePx = 400
	DefaultMargin = 2
)

// Encoder rasterizes payloads as QR codes with error correction level M.
type Encoder struct {
	sizePx int
	margin int
}

// NewEncoder creates an encoder producing square images of sizePx pixels.
func NewEncoder(sizePx int) *Encoder {
	if sizePx <= 0 {
		sizePx = DefaultSizePx
	}
	return &Encoder{sizePx: sizePx, margin: DefaultMargin}
}

// WithMargin sets the quiet zone in modules.
func (e *Encoder) WithMargin(modules int) *Encoder {
	if modules >= 0 {
		e.margin = modules
	}
	return e
}

// Image encodes the payload as a QR bit matrix.
func (e *Encoder) Image(payload string) (image.Image, error) {
	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_ERROR_CORRECTION: decoder.ErrorCorrectionLevel_M,
		gozxing.EncodeHintType_CHARACTER_SET:    "UTF-8",
		gozxing.EncodeHintType_MARGIN:           e.margin,
	}

	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, e.sizePx, e.sizePx, hints)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR: %w", err)
	}
	return matrix, nil
}

// PNG encodes the payload as a PNG image.
func (e *Encoder) PNG(payload string) ([]byte, error) {
	img, err := e.Image(payload)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
