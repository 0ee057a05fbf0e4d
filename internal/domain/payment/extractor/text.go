package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNoText is returned when no text source produced any text.
var ErrNoText = errors.New("no text found in PDF")

// TextSource linearizes the text of a PDF for the layout fallback.
type TextSource struct {
	runner    Runner
	pdftotext string
	logger    *slog.Logger
}

// NewTextSource creates a text source. With a nil runner only the pure Go
// reader is used.
func NewTextSource(runner Runner, pdftotextBin string, logger *slog.Logger) *TextSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextSource{runner: runner, pdftotext: pdftotextBin, logger: logger}
}

// Text returns the document text, one visual row per line. The pure Go row
// reader is tried first and pdftotext only when it yields nothing.
func (s *TextSource) Text(ctx context.Context, doc []byte) (string, error) {
	text, err := rowText(doc)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if err != nil {
		s.logger.Debug("row text extraction failed", slog.Any("error", err))
	}

	if s.runner == nil || s.pdftotext == "" {
		if err != nil {
			return "", err
		}
		return "", ErrNoText
	}

	out, perr := s.pdfToText(ctx, doc)
	if perr != nil {
		return "", perr
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrNoText
	}
	return out, nil
}

func (s *TextSource) pdfToText(ctx context.Context, doc []byte) (string, error) {
	tmpDir, err := os.MkdirTemp("", "upn-pt-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, doc, 0o600); err != nil {
		return "", fmt.Errorf("failed to write temp pdf: %w", err)
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, stderr, err := s.runner.Run(ctx, s.pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", in, "-")
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w (%s)", err, truncate(string(stderr), 512))
	}
	return string(out), nil
}

// rowText concatenates the words of every text row on every page.
func rowText(doc []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while reading PDF text: %v", r)
			text = ""
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, w := range row.Content {
				words = append(words, w.S)
			}
			b.WriteString(strings.Join(words, " "))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// Info describes a validated PDF.
type Info struct {
	Pages int
}

var disableConfigDir sync.Once

// Inspect validates the document and reports its page count.
func Inspect(doc []byte) (info Info, err error) {
	disableConfigDir.Do(api.DisableConfigDir)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while validating PDF: %v", r)
		}
	}()

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(doc), model.NewDefaultConfiguration())
	if err != nil {
		return Info{}, fmt.Errorf("failed to read and validate PDF: %w", err)
	}
	return Info{Pages: ctx.PageCount}, nil
}
