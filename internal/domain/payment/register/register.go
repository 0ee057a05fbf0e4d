// Package register formats the list of converted payments as a plain-text
// table, CSV or an Excel workbook.
package register

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/normalizer"
)

// Format selects a register encoding.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var ErrUnknownFormat = errors.New("unknown register format")

// ParseFormat accepts "text", "txt", "csv" and "xlsx", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Extension returns the file extension for the format, with the dot.
func (f Format) Extension() string {
	if f == FormatText {
		return ".txt"
	}
	return "." + string(f)
}

// Write encodes the register in the given format.
func Write(w io.Writer, f Format, records []payment.Record) error {
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatText:
		data = []byte(Text(records) + "\n")
	case FormatCSV:
		data, err = CSV(records)
	case FormatXLSX:
		data, err = XLSX(records)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write register: %w", err)
	}
	return nil
}

const (
	ruleWidth   = 60
	maxTextName = 50
)

// Text renders the tab-separated register used in reply bodies.
func Text(records []payment.Record) string {
	rule := strings.Repeat("-", ruleWidth)
	lines := []string{
		"Payment register",
		"",
		"#\tRecipient\tReference\tAmount (EUR)",
		rule,
	}
	for idx, r := range records {
		name := normalizer.Truncate(normalizer.FoldASCII(r.RecipientName), maxTextName)
		lines = append(lines, fmt.Sprintf("%d\t%s\t%s\t%s", idx+1, name, r.Reference, r.Amount().Fixed()))
	}
	lines = append(lines, rule)
	lines = append(lines, "TOTAL\t\t\t"+payment.Total(records).Fixed())
	return strings.Join(lines, "\n")
}

// Row is one register line in the CSV export.
type Row struct {
	Index     int    `csv:"index"`
	Recipient string `csv:"recipient"`
	IBAN      string `csv:"iban"`
	Reference string `csv:"reference"`
	Amount    string `csv:"amount"`
	Purpose   string `csv:"purpose"`
}

// Rows converts records into register rows, numbered from one.
func Rows(records []payment.Record) []Row {
	rows := make([]Row, 0, len(records))
	for i, r := range records {
		rows = append(rows, Row{
			Index:     i + 1,
			Recipient: r.RecipientName,
			IBAN:      r.IBAN,
			Reference: r.Reference,
			Amount:    r.Amount().Fixed(),
			Purpose:   r.Purpose,
		})
	}
	return rows
}

// CSV renders the register with a header row. Names keep their diacritics.
func CSV(records []payment.Record) ([]byte, error) {
	var buf bytes.Buffer
	rows := Rows(records)
	if err := gocsv.Marshal(&rows, &buf); err != nil {
		return nil, fmt.Errorf("failed to marshal CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// SheetName is the worksheet written by XLSX.
const SheetName = "Register"

var xlsxHeaders = []string{"#", "Recipient", "IBAN", "Reference", "Amount (EUR)", "Purpose"}

// XLSX renders the register as a workbook with a header, one row per payment
// and a TOTAL row.
func XLSX(records []payment.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	amountFmt, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	for i, h := range xlsxHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}
	_ = f.SetCellStyle(SheetName, "A1", "F1", bold)

	row := 2
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(SheetName, cell, v)
	}

	for _, r := range Rows(records) {
		write(1, r.Index)
		write(2, r.Recipient)
		write(3, r.IBAN)
		write(4, r.Reference)
		write(5, records[r.Index-1].Amount().ToDecimal().InexactFloat64())
		write(6, r.Purpose)
		row++
	}

	write(4, "TOTAL")
	write(5, payment.Total(records).ToDecimal().InexactFloat64())
	totalRow, _ := excelize.CoordinatesToCellName(1, row)
	totalEnd, _ := excelize.CoordinatesToCellName(6, row)
	_ = f.SetCellStyle(SheetName, totalRow, totalEnd, bold)

	lastAmount, _ := excelize.CoordinatesToCellName(5, row)
	_ = f.SetCellStyle(SheetName, "E2", lastAmount, amountFmt)

	_ = f.SetColWidth(SheetName, "B", "B", 40)
	_ = f.SetColWidth(SheetName, "C", "D", 24)
	_ = f.SetColWidth(SheetName, "F", "F", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
