package doc

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"sync"

	"github.com/GaoZ1en/arxiv-manager-sub001/geom"
	"github.com/GaoZ1en/arxiv-manager-sub001/observability"
)

// FallbackPageSize stands in when a backend reports degenerate bounds,
// US Letter in points.
var FallbackPageSize = geom.Size{W: 612, H: 792}

// The %PDF- marker must appear within the first 1024 bytes of the file.
const headerWindow = 1024

type settings struct {
	backend Backend
	log     observability.Logger
}

type Option func(*settings)

// WithBackend overrides the default backend for one open call.
func WithBackend(b Backend) Option {
	return func(s *settings) { s.backend = b }
}

// WithLogger attaches a logger to the handle.
func WithLogger(l observability.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// Handle is an open, validated document. It is safe for concurrent use;
// native calls are serialized internally. All pages are 1-based.
type Handle struct {
	path    string
	backend string
	pages   int
	meta    map[string]string
	log     observability.Logger

	mu     sync.Mutex // serializes src access, guards closed
	src    Source
	closed bool

	boundsMu sync.RWMutex
	bounds   map[int]geom.Size
}

// Open validates and opens the document at path. It is atomic: on error no
// handle exists and no backend resources remain allocated. The error wraps
// one of the package sentinels.
func Open(path string, opts ...Option) (*Handle, error) {
	st := settings{backend: DefaultBackend(), log: observability.NopLogger{}}
	for _, o := range opts {
		o(&st)
	}
	if st.backend == nil {
		return nil, ErrNoBackend
	}

	if err := sniff(path); err != nil {
		return nil, err
	}

	src, err := st.backend.Open(path)
	if err != nil {
		return nil, err
	}

	pages := src.PageCount()
	if pages < 1 {
		src.Close()
		return nil, fmt.Errorf("open %s: document has no pages: %w", path, ErrCorruptedDocument)
	}

	h := &Handle{
		path:    path,
		backend: st.backend.Name(),
		pages:   pages,
		meta:    src.Metadata(),
		log:     st.log,
		src:     src,
		bounds:  make(map[int]geom.Size, pages),
	}
	h.log.Info("document opened",
		observability.String("path", path),
		observability.String("backend", h.backend),
		observability.Int("pages", pages))
	return h, nil
}

// sniff rejects missing files and files that do not carry a PDF header
// before the backend ever sees them.
func sniff(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("open %s: %w", path, ErrFileNotFound)
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("open %s: is a directory: %w", path, ErrUnsupportedFormat)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("open %s: %w", path, ErrFileNotFound)
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, headerWindow)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if !bytes.Contains(buf[:n], []byte("%PDF-")) {
		return fmt.Errorf("open %s: no PDF header: %w", path, ErrUnsupportedFormat)
	}
	return nil
}

// Path returns the file path the handle was opened from.
func (h *Handle) Path() string { return h.path }

// BackendName reports which backend opened the document.
func (h *Handle) BackendName() string { return h.backend }

// PageCount is constant for the lifetime of the handle.
func (h *Handle) PageCount() int { return h.pages }

// Metadata returns a copy of the document information dictionary (title,
// author and similar keys, backend dependent).
func (h *Handle) Metadata() map[string]string {
	out := make(map[string]string, len(h.meta))
	for k, v := range h.meta {
		out[k] = v
	}
	return out
}

func (h *Handle) checkPage(page int) error {
	if page < 1 || page > h.pages {
		return fmt.Errorf("page %d of %d: %w", page, h.pages, ErrInvalidPage)
	}
	return nil
}

func (h *Handle) withSource(fn func(Source) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	return fn(h.src)
}

// PageBounds returns the page size in points. Results are memoized, so
// only the first call per page touches the backend.
func (h *Handle) PageBounds(page int) (geom.Size, error) {
	if err := h.checkPage(page); err != nil {
		return geom.Size{}, err
	}

	h.boundsMu.RLock()
	s, ok := h.bounds[page]
	h.boundsMu.RUnlock()
	if ok {
		return s, nil
	}

	err := h.withSource(func(src Source) error {
		var err error
		s, err = src.PageBounds(page)
		return err
	})
	if err != nil {
		return geom.Size{}, fmt.Errorf("bounds of page %d: %w", page, err)
	}
	if s.IsZero() {
		h.log.Warn("backend reported degenerate page bounds",
			observability.Int("page", page))
		s = FallbackPageSize
	}

	h.boundsMu.Lock()
	h.bounds[page] = s
	h.boundsMu.Unlock()
	return s, nil
}

// RenderRaster rasterizes a page at the given scale (1.0 = 72 DPI).
func (h *Handle) RenderRaster(page int, scale float64) (image.Image, error) {
	if err := h.checkPage(page); err != nil {
		return nil, err
	}
	var img image.Image
	err := h.withSource(func(src Source) error {
		var err error
		img, err = src.RenderRaster(page, scale)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("raster page %d: %w", page, err)
	}
	return img, nil
}

// RenderVector returns the page as an SVG document.
func (h *Handle) RenderVector(page int) ([]byte, error) {
	if err := h.checkPage(page); err != nil {
		return nil, err
	}
	var svg []byte
	err := h.withSource(func(src Source) error {
		var err error
		svg, err = src.RenderVector(page)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("vector page %d: %w", page, err)
	}
	return svg, nil
}

// PageText returns the page's text layer in reading order. Empty output
// is valid: scanned pages have no text layer.
func (h *Handle) PageText(page int) (string, error) {
	if err := h.checkPage(page); err != nil {
		return "", err
	}
	var text string
	err := h.withSource(func(src Source) error {
		var err error
		text, err = src.PageText(page)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("text of page %d: %w", page, err)
	}
	return text, nil
}

// PageHTML returns the backend's positioned structured text for a page.
func (h *Handle) PageHTML(page int) ([]byte, error) {
	if err := h.checkPage(page); err != nil {
		return nil, err
	}
	var out []byte
	err := h.withSource(func(src Source) error {
		var err error
		out, err = src.PageHTML(page)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("structured text of page %d: %w", page, err)
	}
	return out, nil
}

// Close releases the backend document. It is idempotent; other methods
// called after Close return ErrClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	err := h.src.Close()
	h.src = nil
	h.log.Info("document closed", observability.String("path", h.path))
	if err != nil {
		return fmt.Errorf("close %s: %w", h.path, err)
	}
	return nil
}
