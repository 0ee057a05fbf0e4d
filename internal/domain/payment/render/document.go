// Package render lays out the converted payment document: a register table
// followed by one EPC QR block per payment.
package render

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/epc"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/normalizer"
)

const DefaultTitle = "Payments with QR codes (EPC / Revolut)"

// Layout in millimetres.
const (
	margin     = 15.0
	qrSize     = 45.0
	descWidth  = 120.0
	blockPad   = 5.0
	blockGap   = 14.0
	lineHeight = 5.0

	maxTableName    = 40
	maxBlockPurpose = 70
)

var (
	tableHeader = []string{"#", "Recipient", "Reference", "Amount (EUR)", "QR"}
	tableWidths = []float64{12, 75, 45, 25, 18}
)

// Document renders payments to PDF.
type Document struct {
	title   string
	bic     string
	encoder *epc.Encoder
}

func NewDocument(encoder *epc.Encoder) *Document {
	if encoder == nil {
		encoder = epc.NewEncoder(epc.DefaultSizePx)
	}
	return &Document{title: DefaultTitle, encoder: encoder}
}

func (d *Document) WithTitle(title string) *Document {
	if title != "" {
		d.title = title
	}
	return d
}

// WithBIC sets the BIC written into every EPC payload.
func (d *Document) WithBIC(bic string) *Document {
	d.bic = bic
	return d
}

// Bytes renders the document into memory.
func (d *Document) Bytes(records []payment.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Write(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write renders the document to w.
func (d *Document) Write(w io.Writer, records []payment.Record) error {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(margin, margin, margin)
	doc.SetAutoPageBreak(true, margin)
	doc.SetTitle(d.title, true)
	doc.AddPage()

	// Core fonts are cp1252.
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.SetFont("Helvetica", "B", 16)
	doc.CellFormat(0, 10, tr(d.title), "", 1, "L", false, 0, "")
	doc.Ln(4)

	d.writeRegister(doc, tr, records)
	doc.Ln(10)

	if err := d.writeBlocks(doc, tr, records); err != nil {
		return err
	}

	if err := doc.Output(w); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

func (d *Document) writeRegister(doc *fpdf.Fpdf, tr func(string) string, records []payment.Record) {
	doc.SetFont("Helvetica", "B", 13)
	doc.CellFormat(0, 8, "Payment register", "", 1, "L", false, 0, "")
	doc.Ln(2)

	doc.SetDrawColor(128, 128, 128)
	doc.SetLineWidth(0.2)

	doc.SetFillColor(0x44, 0x72, 0xC4)
	doc.SetTextColor(255, 255, 255)
	doc.SetFont("Helvetica", "B", 10)
	for i, h := range tableHeader {
		doc.CellFormat(tableWidths[i], 8, h, "1", 0, columnAlign(i), true, 0, "")
	}
	doc.Ln(-1)

	doc.SetTextColor(0, 0, 0)
	doc.SetFont("Helvetica", "", 9)
	for idx, r := range records {
		name := normalizer.Truncate(normalizer.FoldASCII(r.RecipientName), maxTableName)
		row := []string{
			fmt.Sprintf("%d", idx+1),
			tr(name),
			tr(r.Reference),
			r.Amount().Fixed(),
			"Y",
		}
		for i, cell := range row {
			doc.CellFormat(tableWidths[i], 6, cell, "1", 0, columnAlign(i), false, 0, "")
		}
		doc.Ln(-1)
	}

	doc.SetFillColor(0xE2, 0xEF, 0xDA)
	doc.SetFont("Helvetica", "B", 9)
	total := []string{"", "", "TOTAL", payment.Total(records).Fixed(), ""}
	for i, cell := range total {
		doc.CellFormat(tableWidths[i], 6, cell, "1", 0, columnAlign(i), true, 0, "")
	}
	doc.Ln(-1)
}

func columnAlign(i int) string {
	if i == 3 {
		return "R"
	}
	return "L"
}

func (d *Document) writeBlocks(doc *fpdf.Fpdf, tr func(string) string, records []payment.Record) error {
	doc.SetFont("Helvetica", "B", 13)
	doc.CellFormat(0, 8, "Payment QR codes (EPC SCT)", "", 1, "L", false, 0, "")
	doc.Ln(2)

	_, pageH := doc.GetPageSize()
	blockH := qrSize + 2*blockPad
	blockW := descWidth + qrSize + 4*blockPad

	for idx, r := range records {
		png, err := d.encoder.PNG(epc.BuildPayload(r, d.bic))
		if err != nil {
			return fmt.Errorf("failed to encode QR for payment %d: %w", idx+1, err)
		}
		imgName := fmt.Sprintf("epc-%d", idx)
		doc.RegisterImageOptionsReader(imgName, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))

		if doc.GetY()+blockH > pageH-margin {
			doc.AddPage()
		}
		x, y := doc.GetXY()

		doc.SetFillColor(0xF8, 0xF9, 0xFA)
		doc.SetDrawColor(211, 211, 211)
		doc.Rect(x, y, blockW, blockH, "FD")

		textX := x + blockPad
		doc.SetXY(textX, y+blockPad)

		doc.SetFont("Helvetica", "B", 10)
		label := "Recipient "
		labelW := doc.GetStringWidth(label)
		doc.CellFormat(labelW, lineHeight, label, "", 0, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 10)
		doc.MultiCell(descWidth-labelW, lineHeight, tr(normalizer.FoldASCII(r.RecipientName)), "", "L", false)

		lines := []string{
			fmt.Sprintf("IBAN %s · %s EUR", r.IBAN, r.Amount().Fixed()),
			"Ref. " + r.Reference,
			normalizer.Truncate(normalizer.FoldASCII(r.Purpose), maxBlockPurpose),
		}
		for _, l := range lines {
			doc.SetX(textX)
			doc.MultiCell(descWidth, lineHeight, tr(l), "", "L", false)
		}

		doc.ImageOptions(imgName, x+descWidth+3*blockPad, y+blockPad, qrSize, qrSize, false,
			fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

		doc.SetXY(x, y+blockH)
		if idx < len(records)-1 {
			doc.Ln(blockGap)
		}
	}

	if err := doc.Error(); err != nil {
		return fmt.Errorf("failed to lay out QR blocks: %w", err)
	}
	return nil
}
