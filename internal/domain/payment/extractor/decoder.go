package extractor

import (
	"bytes"
	"fmt"
	"image"
	"unicode/utf8"

	"github.com/makiuchi-d/gozxing"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/normalizer"
)

// Decoder finds QR payloads in a raster image.
type Decoder interface {
	Name() string
	Decode(img image.Image) ([]string, error)
}

func decodeHints() map[gozxing.DecodeHintType]interface{} {
	return map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
}

// QRDecoder reads the single most prominent QR code in an image.
type QRDecoder struct{}

func NewQRDecoder() *QRDecoder { return &QRDecoder{} }

func (QRDecoder) Name() string { return "qrcode" }

// Decode returns no payloads and no error when the image holds no readable
// code. Readers are created per call so the decoder is safe for concurrent use.
func (QRDecoder) Decode(img image.Image) ([]string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("failed to create bitmap: %w", err)
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, decodeHints())
	if err != nil {
		return nil, nil
	}
	return []string{payloadFromResult(result)}, nil
}

// MultiQRDecoder reads every QR code in an image, which matters when a UPN
// order shares the page with other codes.
type MultiQRDecoder struct{}

func NewMultiQRDecoder() *MultiQRDecoder { return &MultiQRDecoder{} }

func (MultiQRDecoder) Name() string { return "qrcode-multi" }

func (MultiQRDecoder) Decode(img image.Image) ([]string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("failed to create bitmap: %w", err)
	}

	results, err := multiqr.NewQRCodeMultiReader().DecodeMultiple(bmp, decodeHints())
	if err != nil {
		return nil, nil
	}

	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, payloadFromResult(r))
	}
	return out, nil
}

// DefaultDecoders returns the single and multi readers, in that order.
func DefaultDecoders() []Decoder {
	return []Decoder{NewQRDecoder(), NewMultiQRDecoder()}
}

// payloadFromResult prefers the raw byte segments over the reader's own
// charset guess. Segments are only trusted when they can account for the
// whole text; numeric or alphanumeric segments are not reported as bytes.
func payloadFromResult(r *gozxing.Result) string {
	text := r.GetText()

	segs, ok := r.GetResultMetadata()[gozxing.ResultMetadataType_BYTE_SEGMENTS].([][]byte)
	if !ok || len(segs) == 0 {
		return normalizer.NormalizeString(text)
	}

	raw := bytes.Join(segs, nil)
	if len(raw) < utf8.RuneCountInString(text) {
		return normalizer.NormalizeString(text)
	}
	return normalizer.Decode(raw)
}
