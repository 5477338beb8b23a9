// Package render turns document pages into display payloads. Rendering is
// a pure function of its inputs: identical requests against the same
// source produce identical payloads, which is what makes the page cache
// sound.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/GaoZ1en/arxiv-manager-sub001/geom"
	"github.com/GaoZ1en/arxiv-manager-sub001/observability"
)

var (
	ErrRenderFailure = errors.New("page render failed")
	ErrRenderBudget  = errors.New("render exceeds pixel budget")
)

// Format selects the payload kind.
type Format int

const (
	FormatRaster Format = iota
	FormatVector
)

var formatNames = []string{"raster", "vector"}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("format(%d)", int(f))
	}
	return formatNames[f]
}

// PageSource is the slice of an open document the renderer reads from.
// *doc.Handle satisfies it.
type PageSource interface {
	PageBounds(page int) (geom.Size, error)
	RenderRaster(page int, scale float64) (image.Image, error)
	RenderVector(page int) ([]byte, error)
}

// Request describes one page render. Highlights are in document space;
// nil means a plain render.
type Request struct {
	Page       int
	Zoom       float64
	Format     Format
	Highlights []geom.Rect
}

// RenderedPage is the immutable product of one render. Raster payloads
// carry Highlights scaled to output space; vector payloads embed them in
// the SVG's own point units.
type RenderedPage struct {
	Page        int
	Zoom        float64 // effective zoom after clamping and quantization
	Format      Format
	Width       int // output pixels
	Height      int
	Raster      *image.RGBA
	Vector      []byte
	Highlights  []geom.Rect
	Highlighted bool
}

const (
	DefaultMinZoom   = 0.25
	DefaultMaxZoom   = 4.0
	DefaultMaxPixels = 64 << 20
)

// Renderer renders pages within configured zoom and size limits. The zero
// value is not usable; call New.
type Renderer struct {
	minZoom   float64
	maxZoom   float64
	maxPixels int64
	log       observability.Logger
}

type Option func(*Renderer)

// WithZoomBounds overrides the zoom clamp range.
func WithZoomBounds(min, max float64) Option {
	return func(r *Renderer) {
		if min > 0 && max >= min {
			r.minZoom, r.maxZoom = min, max
		}
	}
}

// WithMaxPixels caps Width*Height per render. Zero disables the cap.
func WithMaxPixels(n int64) Option {
	return func(r *Renderer) { r.maxPixels = n }
}

func WithLogger(l observability.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.log = l
		}
	}
}

func New(opts ...Option) *Renderer {
	r := &Renderer{
		minZoom:   DefaultMinZoom,
		maxZoom:   DefaultMaxZoom,
		maxPixels: DefaultMaxPixels,
		log:       observability.NopLogger{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// EffectiveZoom reports the zoom a request will actually render at.
func (r *Renderer) EffectiveZoom(zoom float64) float64 {
	return geom.QuantizeZoom(geom.ClampZoom(zoom, r.minZoom, r.maxZoom))
}

// RenderPage renders one page. Page validation errors from the source
// pass through unchanged; everything else that goes wrong during
// rasterization wraps ErrRenderFailure.
func (r *Renderer) RenderPage(ctx context.Context, src PageSource, req Request) (*RenderedPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zoom := r.EffectiveZoom(req.Zoom)
	bounds, err := src.PageBounds(req.Page)
	if err != nil {
		return nil, err
	}

	w, h := bounds.PixelW(zoom), bounds.PixelH(zoom)
	if r.maxPixels > 0 && int64(w)*int64(h) > r.maxPixels {
		return nil, fmt.Errorf("page %d at zoom %.2f needs %dx%d px: %w",
			req.Page, zoom, w, h, ErrRenderBudget)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rp := &RenderedPage{
		Page:   req.Page,
		Zoom:   zoom,
		Format: req.Format,
		Width:  w,
		Height: h,
	}

	switch req.Format {
	case FormatVector:
		svg, err := src.RenderVector(req.Page)
		if err != nil {
			return nil, fmt.Errorf("vector page %d: %v: %w", req.Page, err, ErrRenderFailure)
		}
		if len(req.Highlights) > 0 {
			svg, err = overlaySVG(svg, req.Highlights, bounds)
			if err != nil {
				return nil, fmt.Errorf("vector page %d: %v: %w", req.Page, err, ErrRenderFailure)
			}
			rp.Highlighted = true
			rp.Highlights = scaleHighlights(req.Highlights, bounds, zoom)
		}
		rp.Vector = svg
	default:
		img, err := src.RenderRaster(req.Page, zoom)
		if err != nil {
			return nil, fmt.Errorf("raster page %d at zoom %.2f: %v: %w", req.Page, zoom, err, ErrRenderFailure)
		}
		rgba := normalize(img, w, h)
		if len(req.Highlights) > 0 {
			rp.Highlights = scaleHighlights(req.Highlights, bounds, zoom)
			burnHighlights(rgba, rp.Highlights)
			rp.Highlighted = true
		}
		rp.Raster = rgba
	}

	r.log.Debug("page rendered",
		observability.Int("page", req.Page),
		observability.Float64("zoom", zoom),
		observability.String("format", req.Format.String()),
		observability.Int("width", w),
		observability.Int("height", h))
	return rp, nil
}

// scaleHighlights clips to the page and applies the document-to-output
// mapping, the single place that scaling happens for a payload.
func scaleHighlights(rects []geom.Rect, page geom.Size, zoom float64) []geom.Rect {
	m := geom.Scaling(zoom)
	out := make([]geom.Rect, 0, len(rects))
	for _, r := range rects {
		c := r.Clip(page)
		if c.IsEmpty() {
			continue
		}
		out = append(out, m.ApplyRect(c))
	}
	return out
}

// normalize converts the backend's image to RGBA at exactly the expected
// dimensions. Backends may round dimensions differently by a pixel, so a
// mismatch resamples rather than fails.
func normalize(img image.Image, w, h int) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok &&
		rgba.Bounds().Dx() == w && rgba.Bounds().Dy() == h && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
