// Package extractor pulls raw QR payloads and linearized text out of PDF
// payment orders. Payloads come from embedded images first and then from page
// renders at increasing resolution.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

var (
	ErrNoDecoder  = errors.New("no QR decoder available")
	ErrNoRenderer = errors.New("no PDF renderer available: install poppler-utils (pdftoppm) or enable embedded image extraction")
)

// DefaultDPIs is the render escalation order.
var DefaultDPIs = []int{300, 400, 600}

// upscaleBelow is the pixel area under which a render is also decoded at
// twice its size.
const upscaleBelow = 4000 * 4000

const upnPrefix = "UPNQR"

// Capabilities reports which extraction paths are configured.
type Capabilities struct {
	EmbeddedImages bool
	FirstPage      bool
	Renderer       bool
	Decoders       []string
}

// Extractor finds QR payloads in PDF documents.
type Extractor struct {
	decoders    []Decoder
	renderer    PageRenderer
	embedded    bool
	firstPage   bool
	dpis        []int
	concurrency int
	logger      *slog.Logger

	embeddedFn  func([]byte) ([]image.Image, error)
	firstPageFn func([]byte) (image.Image, error)
}

// New creates an extractor with the given decoders. Embedded image extraction
// and the first-page decode are enabled; a renderer must be added with
// WithRenderer.
func New(logger *slog.Logger, decoders ...Decoder) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		decoders:    decoders,
		embedded:    true,
		firstPage:   true,
		dpis:        DefaultDPIs,
		concurrency: runtime.GOMAXPROCS(0),
		logger:      logger,
		embeddedFn:  embeddedImages,
		firstPageFn: firstPageImage,
	}
}

func (e *Extractor) WithRenderer(r PageRenderer) *Extractor {
	e.renderer = r
	return e
}

// WithDPIs overrides the render escalation. Non-positive values are ignored.
func (e *Extractor) WithDPIs(dpis ...int) *Extractor {
	kept := make([]int, 0, len(dpis))
	for _, d := range dpis {
		if d > 0 {
			kept = append(kept, d)
		}
	}
	if len(kept) > 0 {
		e.dpis = kept
	}
	return e
}

func (e *Extractor) WithEmbeddedImages(enabled bool) *Extractor {
	e.embedded = enabled
	return e
}

func (e *Extractor) WithFirstPage(enabled bool) *Extractor {
	e.firstPage = enabled
	return e
}

func (e *Extractor) WithConcurrency(n int) *Extractor {
	if n > 0 {
		e.concurrency = n
	}
	return e
}

// Capabilities lists the configured extraction paths.
func (e *Extractor) Capabilities() Capabilities {
	names := make([]string, 0, len(e.decoders))
	for _, d := range e.decoders {
		names = append(names, d.Name())
	}
	return Capabilities{
		EmbeddedImages: e.embedded,
		FirstPage:      e.firstPage,
		Renderer:       e.renderer != nil,
		Decoders:       names,
	}
}

// Check fails when the minimum set of capabilities is missing.
func (e *Extractor) Check() error {
	if len(e.decoders) == 0 {
		return ErrNoDecoder
	}
	if e.renderer == nil && !e.embedded {
		return ErrNoRenderer
	}
	return nil
}

// QRStrings returns every distinct QR payload in the document, in the order
// first seen. Renders escalate through the configured DPIs and stop after the
// first pass once a UPN payload has been found.
func (e *Extractor) QRStrings(ctx context.Context, pdf []byte) ([]string, error) {
	if err := e.Check(); err != nil {
		return nil, err
	}

	found := newPayloadSet()

	if e.embedded {
		images, err := e.embeddedFn(pdf)
		if err != nil {
			e.logger.Debug("embedded image extraction failed", slog.Any("error", err))
		}
		payloads, err := e.decodeAll(ctx, images)
		if err != nil {
			return nil, err
		}
		found.add(payloads...)
		e.logger.Debug("embedded images decoded",
			slog.Int("images", len(images)),
			slog.Int("payloads", found.len()),
		)
	}

	if e.renderer == nil {
		if e.firstPage {
			img, err := e.firstPageFn(pdf)
			if err != nil {
				e.logger.Debug("first page decode failed", slog.Any("error", err))
			} else {
				found.add(e.decodeScaled(img)...)
			}
		}
		return found.values(), nil
	}

	var renderErr error
	failures := 0
	for _, dpi := range e.dpis {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pages, err := e.renderer.Render(ctx, pdf, dpi)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("page render failed", slog.Int("dpi", dpi), slog.Any("error", err))
			renderErr = err
			failures++
			continue
		}

		before := found.len()
		for _, page := range pages {
			found.add(e.decodeScaled(page)...)
		}
		e.logger.Debug("render pass decoded",
			slog.Int("dpi", dpi),
			slog.Int("pages", len(pages)),
			slog.Int("new_payloads", found.len()-before),
		)

		if found.hasUPN() {
			break
		}
	}

	if failures == len(e.dpis) && found.len() == 0 {
		return nil, fmt.Errorf("failed to render PDF: %w", renderErr)
	}
	return found.values(), nil
}

// decodeAll decodes images with bounded concurrency and returns the payloads
// in image order.
func (e *Extractor) decodeAll(ctx context.Context, images []image.Image) ([]string, error) {
	if len(images) == 0 {
		return nil, nil
	}

	results := make([][]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, img := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.decodeImage(img)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []string
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// decodeScaled decodes a render and, when it is small enough, its ×2 upscale.
func (e *Extractor) decodeScaled(img image.Image) []string {
	out := e.decodeImage(img)
	b := img.Bounds()
	if b.Dx()*b.Dy() < upscaleBelow {
		out = append(out, e.decodeImage(upscale(img))...)
	}
	return out
}

// decodeImage runs every decoder and merges their output.
func (e *Extractor) decodeImage(img image.Image) []string {
	if img == nil {
		return nil
	}
	set := newPayloadSet()
	for _, d := range e.decoders {
		payloads, err := d.Decode(img)
		if err != nil {
			e.logger.Debug("decoder failed", slog.String("decoder", d.Name()), slog.Any("error", err))
			continue
		}
		set.add(payloads...)
	}
	return set.values()
}

// payloadSet keeps payloads unique by their trimmed form, in insertion order.
type payloadSet struct {
	seen  map[string]struct{}
	order []string
}

func newPayloadSet() *payloadSet {
	return &payloadSet{seen: make(map[string]struct{})}
}

func (s *payloadSet) add(payloads ...string) {
	for _, p := range payloads {
		k := strings.TrimSpace(p)
		if k == "" {
			continue
		}
		if _, ok := s.seen[k]; ok {
			continue
		}
		s.seen[k] = struct{}{}
		s.order = append(s.order, p)
	}
}

func (s *payloadSet) len() int { return len(s.order) }

func (s *payloadSet) values() []string {
	return append([]string(nil), s.order...)
}

func (s *payloadSet) hasUPN() bool {
	for _, p := range s.order {
		if strings.HasPrefix(strings.TrimSpace(p), upnPrefix) {
			return true
		}
	}
	return false
}
