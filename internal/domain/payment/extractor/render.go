package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sunshineplan/imgconv"
	pdf2 "github.com/sunshineplan/pdf"
)

// PageRenderer rasterizes every page of a PDF at the given resolution.
type PageRenderer interface {
	Render(ctx context.Context, pdf []byte, dpi int) ([]image.Image, error)
}

// PdftoppmRenderer renders pages with poppler's pdftoppm.
type PdftoppmRenderer struct {
	runner   Runner
	bin      string
	maxPages int
	logger   *slog.Logger
}

// NewPdftoppmRenderer creates a renderer; an empty bin means "pdftoppm".
func NewPdftoppmRenderer(runner Runner, bin string, logger *slog.Logger) *PdftoppmRenderer {
	if bin == "" {
		bin = "pdftoppm"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PdftoppmRenderer{runner: runner, bin: bin, logger: logger}
}

// WithMaxPages limits how many rendered pages are decoded. Zero means all.
func (r *PdftoppmRenderer) WithMaxPages(n int) *PdftoppmRenderer {
	r.maxPages = n
	return r
}

func (r *PdftoppmRenderer) Render(ctx context.Context, pdf []byte, dpi int) ([]image.Image, error) {
	tmpDir, err := os.MkdirTemp("", "upn-pp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("failed to remove temp dir", slog.String("path", tmpDir), slog.Any("error", err))
		}
	}()

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp pdf: %w", err)
	}

	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	prefix := filepath.Join(tmpDir, "page")
	_, stderr, err := r.runner.Run(ctx, r.bin, "-r", strconv.Itoa(dpi), "-png", in, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to render pages at %d dpi: %w (%s)", dpi, err, truncate(string(stderr), 512))
	}

	// prefix-1.png, prefix-2.png, ... (zero padded for larger documents)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if r.maxPages > 0 && len(matches) > r.maxPages {
		matches = matches[:r.maxPages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images at %d dpi", dpi)
	}

	pages := make([]image.Image, 0, len(matches))
	for _, path := range matches {
		img, err := imgconv.Open(path)
		if err != nil {
			r.logger.Warn("failed to open rendered page", slog.String("path", path), slog.Any("error", err))
			continue
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// ============================================================================
// Pure Go sources
// ============================================================================

// embeddedImages returns every image object stored in the PDF.
func embeddedImages(pdf []byte) (images []image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while extracting PDF images: %v", r)
			images = nil
		}
	}()

	images, err = pdf2.DecodeAll(bytes.NewReader(pdf))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PDF images: %w", err)
	}
	return images, nil
}

// firstPageImage decodes the PDF as a single image, which gives the first
// page. It stands in for a renderer when none is installed.
func firstPageImage(pdf []byte) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while decoding PDF page: %v", r)
			img = nil
		}
	}()

	img, err = imgconv.Decode(bytes.NewReader(pdf))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PDF with imgconv: %w", err)
	}
	return img, nil
}

// upscale doubles the image size.
func upscale(img image.Image) image.Image {
	b := img.Bounds()
	return imgconv.Resize(img, &imgconv.ResizeOption{
		Width:  b.Dx() * 2,
		Height: b.Dy() * 2,
	})
}
