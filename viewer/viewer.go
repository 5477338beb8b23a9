// Package viewer coordinates the document subsystem behind one facade: an
// open document handle, its render pipeline and page cache, the text
// index, background prerendering, and the active search session. A GUI
// talks to a Viewer and nothing below it.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/GaoZ1en/arxiv-manager-sub001/cache"
	"github.com/GaoZ1en/arxiv-manager-sub001/config"
	"github.com/GaoZ1en/arxiv-manager-sub001/doc"
	"github.com/GaoZ1en/arxiv-manager-sub001/extractor"
	"github.com/GaoZ1en/arxiv-manager-sub001/observability"
	"github.com/GaoZ1en/arxiv-manager-sub001/ocr"
	"github.com/GaoZ1en/arxiv-manager-sub001/recovery"
	"github.com/GaoZ1en/arxiv-manager-sub001/render"
	"github.com/GaoZ1en/arxiv-manager-sub001/search"
)

// ErrNotReady means no document is open.
var ErrNotReady = errors.New("viewer: no open document")

// State is the coordinator lifecycle.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
)

var stateNames = []string{"idle", "loading", "ready"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

type Option func(*Viewer)

func WithLogger(l observability.Logger) Option {
	return func(v *Viewer) {
		if l != nil {
			v.log = l
		}
	}
}

func WithTracer(t observability.Tracer) Option {
	return func(v *Viewer) {
		if t != nil {
			v.tracer = t
		}
	}
}

// WithBackend overrides the document backend, mainly for tests.
func WithBackend(b doc.Backend) Option {
	return func(v *Viewer) { v.backend = b }
}

// WithOCREngine overrides the engine used when cfg.OCR.Enabled is set.
func WithOCREngine(e ocr.Engine) Option {
	return func(v *Viewer) { v.ocrEngine = e }
}

// WithRecovery overrides how per-page prerender and search failures are
// handled.
func WithRecovery(s recovery.Strategy) Option {
	return func(v *Viewer) {
		if s != nil {
			v.rec = s
		}
	}
}

// WithClock overrides the time source used for duration metrics.
func WithClock(now func() time.Time) Option {
	return func(v *Viewer) {
		if now != nil {
			v.now = now
		}
	}
}

// Viewer is safe for concurrent use. One mutex guards all document state;
// renders are coalesced so the lock is never held across backend work.
type Viewer struct {
	cfg       config.Config
	log       observability.Logger
	tracer    observability.Tracer
	backend   doc.Backend
	ocrEngine ocr.Engine
	rec       recovery.Strategy
	now       func() time.Time

	mu       sync.Mutex
	state    State
	handle   *doc.Handle
	index    *extractor.Index
	searcher *search.Engine
	renderer *render.Renderer
	pages    *cache.PageCache
	session  *search.Session
	current  int
	zoom     float64

	sf     singleflight.Group
	pre    *prerenderer
	docGen uint64 // bumped per Open so coalescing keys never cross documents

	lifeCtx  context.Context
	lifeStop context.CancelFunc
}

// New builds a viewer in the Idle state. The configuration is validated;
// an invalid one is replaced with defaults and logged.
func New(cfg config.Config, opts ...Option) *Viewer {
	v := &Viewer{
		cfg:    cfg,
		log:    observability.NopLogger{},
		tracer: observability.NopTracer(),
		rec:    recovery.NewLenientStrategy(),
		now:    time.Now,
		state:  StateIdle,
	}
	for _, o := range opts {
		o(v)
	}
	if err := v.cfg.Validate(); err != nil {
		v.log.Warn("invalid configuration, using defaults", observability.Error("error", err))
		v.cfg = config.Default()
	}
	return v
}

// Open loads a document and readies the pipeline. An already open
// document is closed first. On failure the viewer returns to Idle.
func (v *Viewer) Open(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == StateReady {
		v.closeLocked()
	}
	v.state = StateLoading
	start := v.now()

	_, span := v.tracer.StartSpan(ctx, "viewer.open")
	defer span.Finish()
	span.SetTag("path", path)

	var docOpts []doc.Option
	if v.backend != nil {
		docOpts = append(docOpts, doc.WithBackend(v.backend))
	}
	docOpts = append(docOpts, doc.WithLogger(v.log))

	handle, err := doc.Open(path, docOpts...)
	if err != nil {
		v.state = StateIdle
		span.SetError(err)
		return fmt.Errorf("open %s: %w", path, err)
	}

	ixOpts := []extractor.Option{
		extractor.WithLogger(v.log),
		extractor.WithMaxTextRunes(v.cfg.Limits.MaxPageTextRunes),
	}
	if v.cfg.OCR.Enabled {
		engine := v.ocrEngine
		if engine == nil {
			engine = ocr.DefaultEngine()
		}
		ixOpts = append(ixOpts,
			extractor.WithOCREngine(engine, v.cfg.OCR.Languages...),
			extractor.WithOCROptions(ocr.WithTesseractPSM(v.cfg.OCR.PSM)))
	}
	index := extractor.NewIndex(handle, ixOpts...)

	v.handle = handle
	v.index = index
	v.renderer = render.New(
		render.WithZoomBounds(v.cfg.Zoom.Min, v.cfg.Zoom.Max),
		render.WithMaxPixels(v.cfg.Limits.MaxPixelsPerPage),
		render.WithLogger(v.log),
	)
	v.pages = cache.New(v.cfg.Cache.MaxPages, cache.WithLogger(v.log))
	v.searcher = search.NewEngine(index,
		search.WithConcurrency(v.cfg.Search.Concurrency),
		search.WithLogger(v.log),
		search.WithRecovery(v.rec),
	)
	v.session = nil
	v.current = 1
	v.zoom = v.renderer.EffectiveZoom(v.cfg.Zoom.Default)

	v.docGen++
	v.lifeCtx, v.lifeStop = context.WithCancel(context.Background())
	v.pre = newPrerenderer(v, v.cfg.Render.Workers)
	v.pre.start(v.lifeCtx)

	v.state = StateReady
	v.log.Info("document opened",
		observability.String("path", path),
		observability.String("backend", handle.BackendName()),
		observability.Int("pages", handle.PageCount()),
		observability.Float64("zoom", v.zoom),
		observability.Duration(observability.MetricOpenDuration, v.now().Sub(start)))
	return nil
}

// Close releases the document and returns to Idle. Safe to call in any
// state, any number of times.
func (v *Viewer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closeLocked()
}

func (v *Viewer) closeLocked() error {
	if v.state == StateIdle {
		return nil
	}
	if v.lifeStop != nil {
		v.lifeStop()
	}
	if v.pre != nil {
		v.pre.stop()
		v.pre = nil
	}

	var err error
	if v.handle != nil {
		err = v.handle.Close()
	}
	if v.pages != nil {
		v.pages.Clear()
	}
	v.handle = nil
	v.index = nil
	v.searcher = nil
	v.renderer = nil
	v.pages = nil
	v.session = nil
	v.current = 0
	v.zoom = 0
	v.state = StateIdle
	v.log.Info("document closed")
	return err
}

// State reports the lifecycle state.
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Document exposes the open handle, nil when Idle.
func (v *Viewer) Document() *doc.Handle {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.handle
}

// CurrentPage is the page the viewer sits on, 0 when Idle.
func (v *Viewer) CurrentPage() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Zoom is the effective (clamped, quantized) zoom factor.
func (v *Viewer) Zoom() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.zoom
}

// CacheStats snapshots the page cache counters.
func (v *Viewer) CacheStats() cache.Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pages == nil {
		return cache.Stats{}
	}
	return v.pages.Stats()
}
