package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GaoZ1en/arxiv-manager-sub001/config"
	"github.com/GaoZ1en/arxiv-manager-sub001/doc"
	"github.com/GaoZ1en/arxiv-manager-sub001/geom"
	"github.com/GaoZ1en/arxiv-manager-sub001/ocr"
)

type fakeBackend struct {
	srcs []*fakeSource
	next int
	err  error
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Open(path string) (doc.Source, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.next >= len(b.srcs) {
		return nil, errors.New("fake backend exhausted")
	}
	s := b.srcs[b.next]
	b.next++
	return s, nil
}

// fakeSource is an n-page document with one body paragraph per page. The
// default text is long enough that extraction never looks scanned.
type fakeSource struct {
	mu         sync.Mutex
	pages      int
	bounds     geom.Size
	texts      map[int]string
	failRaster map[int]bool
	failText   map[int]bool
	renders    map[int]int
	delay      time.Duration
	closed     bool
}

func newFakeSource(pages int) *fakeSource {
	return &fakeSource{
		pages:      pages,
		bounds:     geom.Size{W: 612, H: 792},
		texts:      make(map[int]string),
		failRaster: make(map[int]bool),
		failText:   make(map[int]bool),
		renders:    make(map[int]int),
	}
}

func (s *fakeSource) PageCount() int { return s.pages }

func (s *fakeSource) PageBounds(page int) (geom.Size, error) { return s.bounds, nil }

func (s *fakeSource) RenderRaster(page int, scale float64) (image.Image, error) {
	s.mu.Lock()
	s.renders[page]++
	fail := s.failRaster[page]
	delay := s.delay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		return nil, fmt.Errorf("raster engine broke on page %d", page)
	}
	w, h := s.bounds.PixelW(scale), s.bounds.PixelH(scale)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 32 {
		for x := 0; x < w; x += 32 {
			img.SetRGBA(x, y, color.RGBA{R: uint8(page), G: uint8(x), B: uint8(y), A: 0xFF})
		}
	}
	return img, nil
}

func (s *fakeSource) RenderVector(page int) ([]byte, error) {
	return []byte(`<svg viewBox="0 0 612 792"/>`), nil
}

func (s *fakeSource) PageText(page int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failText[page] {
		return "", fmt.Errorf("text layer broke on page %d", page)
	}
	if t, ok := s.texts[page]; ok {
		return t, nil
	}
	return fmt.Sprintf("page %d %s", page, strings.Repeat("plain readable body text ", 3)), nil
}

func (s *fakeSource) PageHTML(page int) ([]byte, error) {
	return nil, errors.New("no structured text")
}

func (s *fakeSource) Metadata() map[string]string {
	return map[string]string{"Title": "fixture"}
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) renderCount(page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders[page]
}

func (s *fakeSource) renderCounts() map[int]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int, len(s.renders))
	for k, v := range s.renders {
		out[k] = v
	}
	return out
}

func writePDFStub(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.7\nstub"), 0o644); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

// testConfig keeps the cache and prerender window small so eviction is
// observable with a handful of pages.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.Cache.MaxPages = 3
	cfg.Cache.PrerenderBehind = 1
	cfg.Cache.PrerenderAhead = 1
	cfg.Render.Workers = 1
	return cfg
}

func openViewer(t *testing.T, src *fakeSource, cfg config.Config, opts ...Option) *Viewer {
	t.Helper()
	all := append([]Option{WithBackend(&fakeBackend{srcs: []*fakeSource{src}})}, opts...)
	v := New(cfg, all...)
	if err := v.Open(context.Background(), writePDFStub(t)); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v
}

func TestOpenTransitionsToReady(t *testing.T) {
	src := newFakeSource(4)
	v := New(testConfig(), WithBackend(&fakeBackend{srcs: []*fakeSource{src}}))
	if got := v.State(); got != StateIdle {
		t.Fatalf("state before open = %v, want idle", got)
	}
	if err := v.Open(context.Background(), writePDFStub(t)); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer v.Close()

	if got := v.State(); got != StateReady {
		t.Fatalf("state after open = %v, want ready", got)
	}
	h := v.Document()
	if h == nil || h.PageCount() != 4 {
		t.Fatalf("document handle = %v", h)
	}
	if got := v.CurrentPage(); got != 1 {
		t.Fatalf("current page = %d, want 1", got)
	}
	if got := v.Zoom(); got != 1.0 {
		t.Fatalf("zoom = %v, want 1.0", got)
	}
}

func TestOpenFailureReturnsToIdle(t *testing.T) {
	v := New(testConfig(), WithBackend(&fakeBackend{err: doc.ErrPasswordProtected}))
	err := v.Open(context.Background(), writePDFStub(t))
	if !errors.Is(err, doc.ErrPasswordProtected) {
		t.Fatalf("open error = %v, want ErrPasswordProtected", err)
	}
	if got := v.State(); got != StateIdle {
		t.Fatalf("state after failed open = %v, want idle", got)
	}
}

func TestOpenMissingFile(t *testing.T) {
	src := newFakeSource(1)
	v := New(testConfig(), WithBackend(&fakeBackend{srcs: []*fakeSource{src}}))
	err := v.Open(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"))
	if !errors.Is(err, doc.ErrFileNotFound) {
		t.Fatalf("open error = %v, want ErrFileNotFound", err)
	}
}

func TestReopenClosesPrevious(t *testing.T) {
	first := newFakeSource(2)
	second := newFakeSource(6)
	v := New(testConfig(), WithBackend(&fakeBackend{srcs: []*fakeSource{first, second}}))
	ctx := context.Background()

	if err := v.Open(ctx, writePDFStub(t)); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := v.Open(ctx, writePDFStub(t)); err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer v.Close()

	first.mu.Lock()
	closed := first.closed
	first.mu.Unlock()
	if !closed {
		t.Fatalf("first source not closed on reopen")
	}
	if got := v.Document().PageCount(); got != 6 {
		t.Fatalf("page count after reopen = %d, want 6", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	src := newFakeSource(3)
	v := openViewer(t, src, testConfig())

	if err := v.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if got := v.State(); got != StateIdle {
		t.Fatalf("state after close = %v, want idle", got)
	}

	ctx := context.Background()
	if _, err := v.View(ctx); !errors.Is(err, ErrNotReady) {
		t.Fatalf("View after close = %v, want ErrNotReady", err)
	}
	if _, err := v.Navigate(ctx, 1); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Navigate after close = %v, want ErrNotReady", err)
	}
	if _, err := v.SetZoom(ctx, 2.0); !errors.Is(err, ErrNotReady) {
		t.Fatalf("SetZoom after close = %v, want ErrNotReady", err)
	}
	if _, err := v.Search(ctx, "x"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Search after close = %v, want ErrNotReady", err)
	}
	if _, _, err := v.SearchNext(ctx); !errors.Is(err, ErrNotReady) {
		t.Fatalf("SearchNext after close = %v, want ErrNotReady", err)
	}
}

func TestViewRendersCurrentPage(t *testing.T) {
	src := newFakeSource(3)
	v := openViewer(t, src, testConfig())

	rp, err := v.View(context.Background())
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if rp.Page != 1 {
		t.Fatalf("rendered page = %d, want 1", rp.Page)
	}
	if rp.Width != 612 || rp.Height != 792 {
		t.Fatalf("dims = %dx%d, want 612x792", rp.Width, rp.Height)
	}
	if rp.Raster == nil {
		t.Fatalf("raster payload missing")
	}
	if rp.Highlighted {
		t.Fatalf("plain view came back highlighted")
	}
}

// TestNavigationFillsPrerenderWindow walks the canonical flow: view page
// 1, jump to page 5 with a one-page window on each side and a three-page
// cache, then come back to a neighbor that must already be resident.
func TestNavigationFillsPrerenderWindow(t *testing.T) {
	src := newFakeSource(10)
	v := openViewer(t, src, testConfig())
	ctx := context.Background()

	if _, err := v.View(ctx); err != nil {
		t.Fatalf("view page 1: %v", err)
	}
	rp, err := v.Navigate(ctx, 5)
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if rp.Page != 5 || v.CurrentPage() != 5 {
		t.Fatalf("navigate landed on %d/%d, want 5", rp.Page, v.CurrentPage())
	}
	if err := v.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	st := v.CacheStats()
	if st.Size != 3 {
		t.Fatalf("cache size = %d, want 3", st.Size)
	}
	if st.Evictions != 1 {
		t.Fatalf("evictions = %d, want 1 (page 1 pushed out)", st.Evictions)
	}
	counts := src.renderCounts()
	for _, page := range []int{1, 4, 5, 6} {
		if counts[page] != 1 {
			t.Fatalf("page %d rendered %d times, want 1 (counts %v)", page, counts[page], counts)
		}
	}
	if len(counts) != 4 {
		t.Fatalf("rendered pages %v, want exactly 1,4,5,6", counts)
	}

	// Page 4 sits in the prerendered window: serving it must not touch
	// the backend again.
	rp, err = v.Navigate(ctx, 4)
	if err != nil {
		t.Fatalf("navigate back: %v", err)
	}
	if rp.Page != 4 {
		t.Fatalf("rendered page = %d, want 4", rp.Page)
	}
	if got := src.renderCount(4); got != 1 {
		t.Fatalf("page 4 re-rendered (%d times) despite cache", got)
	}
	if err := v.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	st = v.CacheStats()
	if st.Hits != 1 {
		t.Fatalf("cache hits = %d, want 1", st.Hits)
	}
	if st.Size != 3 {
		t.Fatalf("cache size = %d, want 3", st.Size)
	}
}

func TestNavigateRejectsInvalidPage(t *testing.T) {
	src := newFakeSource(3)
	v := openViewer(t, src, testConfig())
	ctx := context.Background()

	for _, page := range []int{0, -2, 4} {
		rp, err := v.Navigate(ctx, page)
		if !errors.Is(err, doc.ErrInvalidPage) {
			t.Fatalf("navigate %d: err = %v, want ErrInvalidPage", page, err)
		}
		if rp != nil {
			t.Fatalf("navigate %d returned a page", page)
		}
	}
	if got := v.CurrentPage(); got != 1 {
		t.Fatalf("current page moved to %d on invalid navigation", got)
	}
}

func TestNavigateRenderFailureYieldsPlaceholder(t *testing.T) {
	src := newFakeSource(5)
	src.failRaster[3] = true
	v := openViewer(t, src, testConfig())

	rp, err := v.Navigate(context.Background(), 3)
	if err == nil {
		t.Fatalf("navigate to broken page succeeded")
	}
	if rp == nil || rp.Raster == nil {
		t.Fatalf("no placeholder tile returned")
	}
	if rp.Page != 3 {
		t.Fatalf("placeholder page = %d, want 3", rp.Page)
	}
	if got := v.CurrentPage(); got != 3 {
		t.Fatalf("current page = %d, want 3 even on failure", got)
	}
	if st := v.CacheStats(); st.Size != 0 {
		t.Fatalf("failed render occupies %d cache slots", st.Size)
	}
}

func TestConcurrentViewsShareOneRender(t *testing.T) {
	src := newFakeSource(3)
	src.delay = 20 * time.Millisecond
	v := openViewer(t, src, testConfig())

	const callers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = v.View(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := src.renderCount(1); got != 1 {
		t.Fatalf("page 1 rendered %d times for %d concurrent views", got, callers)
	}
}

func TestSetZoomClampsAndQuantizes(t *testing.T) {
	src := newFakeSource(3)
	v := openViewer(t, src, testConfig())
	ctx := context.Background()

	rp, err := v.SetZoom(ctx, 1.337)
	if err != nil {
		t.Fatalf("set zoom: %v", err)
	}
	if got := v.Zoom(); got != 1.34 {
		t.Fatalf("zoom = %v, want 1.34", got)
	}
	if want := src.bounds.PixelW(1.34); rp.Width != want {
		t.Fatalf("width = %d, want %d", rp.Width, want)
	}

	if _, err := v.SetZoom(ctx, 99); err != nil {
		t.Fatalf("set zoom high: %v", err)
	}
	if got := v.Zoom(); got != 4.0 {
		t.Fatalf("zoom clamped to %v, want 4.0", got)
	}
	if _, err := v.SetZoom(ctx, 0.01); err != nil {
		t.Fatalf("set zoom low: %v", err)
	}
	if got := v.Zoom(); got != 0.25 {
		t.Fatalf("zoom clamped to %v, want 0.25", got)
	}
}

func TestZoomLevelsCacheIndependently(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.MaxPages = 8
	src := newFakeSource(3)
	v := openViewer(t, src, cfg)
	ctx := context.Background()

	if _, err := v.View(ctx); err != nil {
		t.Fatalf("view: %v", err)
	}
	if _, err := v.SetZoom(ctx, 2.0); err != nil {
		t.Fatalf("zoom in: %v", err)
	}
	if _, err := v.SetZoom(ctx, 1.0); err != nil {
		t.Fatalf("zoom back: %v", err)
	}
	if err := v.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	// 1.0 and 2.0 renders of page 1; the return to 1.0 is a cache hit.
	if got := src.renderCount(1); got != 2 {
		t.Fatalf("page 1 rendered %d times across zoom changes, want 2", got)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateIdle:    "idle",
		StateLoading: "loading",
		StateReady:   "ready",
		State(9):     "state(9)",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestFlushWithoutDocument(t *testing.T) {
	v := New(testConfig())
	if err := v.Flush(context.Background()); err != nil {
		t.Fatalf("flush on idle viewer: %v", err)
	}
}

func TestSearchHighlightFlow(t *testing.T) {
	src := newFakeSource(6)
	src.texts[2] = "the needle hides in this prose somewhere around here"
	src.texts[5] = "another needle appears much later in the document body"
	v := openViewer(t, src, testConfig())
	ctx := context.Background()

	ses, err := v.Search(ctx, "needle")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if ses.Len() != 2 {
		t.Fatalf("matches = %d, want 2", ses.Len())
	}
	if got := v.CurrentPage(); got != 1 {
		t.Fatalf("search alone moved the viewer to page %d", got)
	}

	rp, m, err := v.SearchNext(ctx)
	if err != nil {
		t.Fatalf("first next: %v", err)
	}
	if m.Page != 2 || m.Offset != 4 || m.Length != 6 {
		t.Fatalf("first match = %+v", m)
	}
	if !rp.Highlighted {
		t.Fatalf("match render not highlighted")
	}
	if got := v.CurrentPage(); got != 2 {
		t.Fatalf("current page = %d, want 2", got)
	}

	// Re-viewing the match page serves the highlighted tile from cache.
	again, err := v.View(ctx)
	if err != nil {
		t.Fatalf("view after match: %v", err)
	}
	if again != rp {
		t.Fatalf("view re-rendered the highlighted page")
	}

	if _, m, err = v.SearchNext(ctx); err != nil || m.Page != 5 {
		t.Fatalf("second next = %+v, %v; want page 5", m, err)
	}
	if _, m, err = v.SearchNext(ctx); err != nil || m.Page != 2 {
		t.Fatalf("wraparound next = %+v, %v; want page 2", m, err)
	}
	if _, m, err = v.SearchPrev(ctx); err != nil || m.Page != 5 {
		t.Fatalf("prev = %+v, %v; want page 5", m, err)
	}
}

func TestNewQueryDropsStaleHighlights(t *testing.T) {
	src := newFakeSource(4)
	src.texts[2] = "a rare marker word sits in the middle of this sentence"
	v := openViewer(t, src, testConfig())
	ctx := context.Background()

	if _, err := v.Search(ctx, "marker"); err != nil {
		t.Fatalf("first query: %v", err)
	}
	if _, _, err := v.SearchNext(ctx); err != nil {
		t.Fatalf("first next: %v", err)
	}
	if got := src.renderCount(2); got != 1 {
		t.Fatalf("page 2 rendered %d times, want 1", got)
	}

	// A new query invalidates the burned-in tile; the next view of the
	// page renders it plain.
	if _, err := v.Search(ctx, "unmatched-term"); err != nil {
		t.Fatalf("second query: %v", err)
	}
	rp, err := v.View(ctx)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if rp.Highlighted {
		t.Fatalf("stale highlight survived a query change")
	}
	if got := src.renderCount(2); got != 2 {
		t.Fatalf("page 2 rendered %d times, want 2 (plain re-render)", got)
	}
}

func TestSearchCursorErrors(t *testing.T) {
	src := newFakeSource(2)
	v := openViewer(t, src, testConfig())
	ctx := context.Background()

	if _, _, err := v.SearchNext(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("next without session = %v, want ErrNoSession", err)
	}
	if _, err := v.Search(ctx, "no such phrase anywhere"); err != nil {
		t.Fatalf("search: %v", err)
	}
	if _, _, err := v.SearchNext(ctx); !errors.Is(err, ErrNoMatches) {
		t.Fatalf("next on empty result = %v, want ErrNoMatches", err)
	}
	if _, _, err := v.SearchPrev(ctx); !errors.Is(err, ErrNoMatches) {
		t.Fatalf("prev on empty result = %v, want ErrNoMatches", err)
	}
}

func TestSearchReportsSkippedPages(t *testing.T) {
	src := newFakeSource(5)
	src.failText[3] = true
	v := openViewer(t, src, testConfig())

	ses, err := v.Search(context.Background(), "page")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got := ses.Skipped(); len(got) != 1 || got[0] != 3 {
		t.Fatalf("skipped = %v, want [3]", got)
	}
	if ses.Len() != 4 {
		t.Fatalf("matches = %d, want 4 (one per healthy page)", ses.Len())
	}
}

type fakeOCREngine struct {
	result ocr.Result
}

func (e *fakeOCREngine) Name() string { return "fake-ocr" }

func (e *fakeOCREngine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	return e.result, nil
}

func TestScannedPageSearchableThroughOCR(t *testing.T) {
	src := newFakeSource(3)
	src.texts[2] = "��" // scanned page: no usable text layer
	engine := &fakeOCREngine{result: ocr.Result{
		Words: []ocr.Word{
			{Text: "hidden", Bounds: ocr.Region{X: 200, Y: 400, Width: 160, Height: 40}, Confidence: 0.91},
		},
		MeanConfidence: 0.91,
	}}

	cfg := testConfig()
	cfg.OCR.Enabled = true
	v := openViewer(t, src, cfg, WithOCREngine(engine))

	ses, err := v.Search(context.Background(), "hidden")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if ses.Len() != 1 {
		t.Fatalf("matches = %d, want 1", ses.Len())
	}
	m, _ := ses.At(0)
	if m.Page != 2 {
		t.Fatalf("match page = %d, want 2", m.Page)
	}
}
