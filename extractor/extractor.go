// Package extractor builds the searchable text index of an open document:
// per-page text with positioned line geometry, extracted lazily and
// memoized. Pages whose text layer is missing or garbled fall back to OCR
// when an engine is configured, which is what keeps scanned papers
// searchable.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/GaoZ1en/arxiv-manager-sub001/doc"
	"github.com/GaoZ1en/arxiv-manager-sub001/geom"
	"github.com/GaoZ1en/arxiv-manager-sub001/observability"
	"github.com/GaoZ1en/arxiv-manager-sub001/ocr"
)

// ErrExtract marks a page whose text could not be produced at all. The
// failure is per page; other pages stay extractable.
var ErrExtract = errors.New("text extraction failed")

// TextSource records where a page's text came from.
type TextSource int

const (
	SourceTextLayer TextSource = iota
	SourceOCR
)

var sourceNames = []string{"text-layer", "ocr"}

func (s TextSource) String() string {
	if s < 0 || int(s) >= len(sourceNames) {
		return fmt.Sprintf("source(%d)", int(s))
	}
	return sourceNames[s]
}

// Line is one text line with its document-space box. Offset is the rune
// offset of the line's first rune within the page text, which is built by
// joining line texts with single newlines so the two always agree.
type Line struct {
	Text   string
	Rect   geom.Rect
	Offset int
}

// Quality describes how trustworthy a page's text layer looks.
type Quality struct {
	Chars          int     // non-space printable runes
	PrintableRatio float64 // printable share of non-space runes
}

// PageContent is the memoized extraction product for one page.
type PageContent struct {
	Page    int
	Text    string
	Lines   []Line
	Source  TextSource
	Quality Quality
}

// LineAt returns the line whose text contains the rune offset. An offset
// sitting on a separator resolves to the closest preceding line.
func (pc *PageContent) LineAt(offset int) (Line, bool) {
	if len(pc.Lines) == 0 || offset < 0 {
		return Line{}, false
	}
	i := sort.Search(len(pc.Lines), func(i int) bool { return pc.Lines[i].Offset > offset }) - 1
	if i < 0 {
		return Line{}, false
	}
	return pc.Lines[i], true
}

// PageSource is the slice of an open document the index reads from.
// *doc.Handle satisfies it; the raster method only runs for OCR fallback.
type PageSource interface {
	PageCount() int
	PageBounds(page int) (geom.Size, error)
	PageText(page int) (string, error)
	PageHTML(page int) ([]byte, error)
	RenderRaster(page int, scale float64) (image.Image, error)
}

// Defaults for the scanned-page heuristic and OCR rendering.
const (
	DefaultMinChars          = 40
	DefaultMinPrintableRatio = 0.5
	DefaultOCRScale          = 300.0 / 72.0
)

type Option func(*Index)

// WithOCREngine enables OCR fallback with the given engine and language
// hints. A nil engine leaves fallback disabled.
func WithOCREngine(e ocr.Engine, langs ...string) Option {
	return func(ix *Index) {
		ix.engine = e
		ix.langs = append([]string(nil), langs...)
	}
}

// WithOCROptions forwards extra input options (e.g. Tesseract variables)
// to every OCR submission.
func WithOCROptions(opts ...ocr.InputOption) Option {
	return func(ix *Index) { ix.ocrOpts = append(ix.ocrOpts, opts...) }
}

// WithOCRScale overrides the render scale for OCR input images.
func WithOCRScale(scale float64) Option {
	return func(ix *Index) {
		if scale > 0 {
			ix.ocrScale = scale
		}
	}
}

// WithQualityThresholds overrides when a text layer counts as too poor to
// trust.
func WithQualityThresholds(minChars int, minPrintable float64) Option {
	return func(ix *Index) {
		ix.minChars = minChars
		ix.minPrintable = minPrintable
	}
}

// WithMaxTextRunes caps the indexed runes per page. Zero means no cap.
func WithMaxTextRunes(n int) Option {
	return func(ix *Index) { ix.maxRunes = n }
}

func WithLogger(l observability.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.log = l
		}
	}
}

// Index extracts and memoizes page text. Safe for concurrent use; at most
// one extraction per page is in flight at a time.
type Index struct {
	src          PageSource
	engine       ocr.Engine
	langs        []string
	ocrOpts      []ocr.InputOption
	ocrScale     float64
	minChars     int
	minPrintable float64
	maxRunes     int
	log          observability.Logger

	mu    sync.RWMutex
	pages map[int]*PageContent
	sf    singleflight.Group
}

func NewIndex(src PageSource, opts ...Option) *Index {
	ix := &Index{
		src:          src,
		ocrScale:     DefaultOCRScale,
		minChars:     DefaultMinChars,
		minPrintable: DefaultMinPrintableRatio,
		log:          observability.NopLogger{},
		pages:        make(map[int]*PageContent),
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// PageCount mirrors the underlying document.
func (ix *Index) PageCount() int { return ix.src.PageCount() }

// PageText returns the page's indexed text.
func (ix *Index) PageText(ctx context.Context, page int) (string, error) {
	pc, err := ix.PageContent(ctx, page)
	if err != nil {
		return "", err
	}
	return pc.Text, nil
}

// PageContent returns the memoized extraction for a page, extracting on
// first use. Concurrent callers for the same page share one extraction.
// Failures are not memoized, so a later call may succeed.
func (ix *Index) PageContent(ctx context.Context, page int) (*PageContent, error) {
	if page < 1 || page > ix.src.PageCount() {
		return nil, fmt.Errorf("page %d of %d: %w", page, ix.src.PageCount(), doc.ErrInvalidPage)
	}

	ix.mu.RLock()
	pc, ok := ix.pages[page]
	ix.mu.RUnlock()
	if ok {
		return pc, nil
	}

	ch := ix.sf.DoChan(strconv.Itoa(page), func() (interface{}, error) {
		return ix.extract(ctx, page)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*PageContent), nil
	}
}

// Invalidate drops all memoized pages.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	ix.pages = make(map[int]*PageContent)
	ix.mu.Unlock()
}

func (ix *Index) extract(ctx context.Context, page int) (*PageContent, error) {
	ix.mu.RLock()
	pc, ok := ix.pages[page]
	ix.mu.RUnlock()
	if ok {
		return pc, nil
	}

	pc, err := ix.extractTextLayer(page)
	if err != nil {
		return nil, err
	}

	if ix.engine != nil && ix.poor(pc.Quality) {
		if ocrPC, ocrErr := ix.extractOCR(ctx, page); ocrErr != nil {
			ix.log.Warn("ocr fallback failed, keeping text layer",
				observability.Int("page", page),
				observability.Error("error", ocrErr))
		} else if ocrPC != nil {
			pc = ocrPC
		}
	}

	ix.truncate(pc)

	ix.mu.Lock()
	ix.pages[page] = pc
	ix.mu.Unlock()

	ix.log.Debug("page indexed",
		observability.Int("page", page),
		observability.String("source", pc.Source.String()),
		observability.Int("chars", pc.Quality.Chars),
		observability.Int("lines", len(pc.Lines)))
	return pc, nil
}

// extractTextLayer builds content from the backend's structured output,
// falling back to plain text with estimated geometry.
func (ix *Index) extractTextLayer(page int) (*PageContent, error) {
	bounds, err := ix.src.PageBounds(page)
	if err != nil {
		return nil, fmt.Errorf("page %d: %v: %w", page, err, ErrExtract)
	}

	var lines []Line
	if html, err := ix.src.PageHTML(page); err == nil {
		lines = parseHTMLLines(html, bounds)
	}

	if len(lines) == 0 {
		text, err := ix.src.PageText(page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %v: %w", page, err, ErrExtract)
		}
		lines = estimateLines(text, bounds)
	}

	text := assignOffsets(lines)
	return &PageContent{
		Page:    page,
		Text:    text,
		Lines:   lines,
		Source:  SourceTextLayer,
		Quality: measureQuality(text),
	}, nil
}

// extractOCR renders the page and recognizes it. A result with no words
// returns (nil, nil) so the caller keeps the text-layer content.
func (ix *Index) extractOCR(ctx context.Context, page int) (*PageContent, error) {
	img, err := ix.src.RenderRaster(page, ix.ocrScale)
	if err != nil {
		return nil, fmt.Errorf("render for ocr: %w", err)
	}

	opts := make([]ocr.InputOption, 0, len(ix.ocrOpts)+2)
	opts = append(opts, ocr.WithDPI(int(ix.ocrScale*72)))
	if len(ix.langs) > 0 {
		opts = append(opts, ocr.WithLanguages(ix.langs...))
	}
	opts = append(opts, ix.ocrOpts...)

	in, err := ocr.InputFromImage(page, img, opts...)
	if err != nil {
		return nil, err
	}
	res, err := ix.engine.Recognize(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ix.engine.Name(), err)
	}
	if len(res.Words) == 0 {
		return nil, nil
	}

	lines := linesFromWords(res.Words, ix.ocrScale)
	text := assignOffsets(lines)
	ix.log.Info("page recognized via ocr",
		observability.Int("page", page),
		observability.Int("words", len(res.Words)),
		observability.Float64("confidence", res.MeanConfidence))
	return &PageContent{
		Page:    page,
		Text:    text,
		Lines:   lines,
		Source:  SourceOCR,
		Quality: measureQuality(text),
	}, nil
}

func (ix *Index) poor(q Quality) bool {
	return q.Chars < ix.minChars || q.PrintableRatio < ix.minPrintable
}

// truncate enforces the per-page rune cap on text and drops lines that
// start beyond it.
func (ix *Index) truncate(pc *PageContent) {
	if ix.maxRunes <= 0 {
		return
	}
	runes := []rune(pc.Text)
	if len(runes) <= ix.maxRunes {
		return
	}
	pc.Text = string(runes[:ix.maxRunes])
	kept := pc.Lines[:0]
	for _, ln := range pc.Lines {
		if ln.Offset < ix.maxRunes {
			kept = append(kept, ln)
		}
	}
	pc.Lines = kept
	ix.log.Debug("page text truncated",
		observability.Int("page", pc.Page),
		observability.Int("limit", ix.maxRunes))
}
