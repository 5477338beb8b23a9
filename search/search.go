// Package search runs full-document text queries over the extraction
// index and produces navigable result sessions with document-space
// highlight boxes.
package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/GaoZ1en/arxiv-manager-sub001/extractor"
	"github.com/GaoZ1en/arxiv-manager-sub001/geom"
	"github.com/GaoZ1en/arxiv-manager-sub001/observability"
	"github.com/GaoZ1en/arxiv-manager-sub001/recovery"
)

// ErrNoDocument means the engine has no index to search.
var ErrNoDocument = errors.New("no document to search")

const (
	// DefaultConcurrency bounds the parallel page sweep.
	DefaultConcurrency = 4
	// MinHighlightWidth keeps thin matches visible, in points.
	MinHighlightWidth = 4.0

	snippetRadius = 30
)

// Options select per-query matching behavior.
type Options struct {
	CaseSensitive bool
	WholeWord     bool
}

// Match is one occurrence. Offset and Length are rune positions within
// the page text; Rect is the document-space highlight box anchored to the
// line containing the match start.
type Match struct {
	Page    int
	Offset  int
	Length  int
	Rect    geom.Rect
	Snippet string
}

type Option func(*Engine)

// WithConcurrency bounds the page sweep. Values below 1 keep the default.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.conc = n
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRecovery overrides how per-page extraction failures are handled.
func WithRecovery(s recovery.Strategy) Option {
	return func(e *Engine) {
		if s != nil {
			e.rec = s
		}
	}
}

// Engine searches one document's index. Safe for concurrent use; each
// Search produces an independent Session.
type Engine struct {
	ix   *extractor.Index
	conc int
	log  observability.Logger
	rec  recovery.Strategy
}

func NewEngine(ix *extractor.Index, opts ...Option) *Engine {
	e := &Engine{
		ix:   ix,
		conc: DefaultConcurrency,
		log:  observability.NopLogger{},
		rec:  recovery.NewLenientStrategy(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Search sweeps every page for the query. Pages whose extraction fails
// are skipped per the recovery strategy and recorded on the session; the
// sweep itself fails only on ctx cancellation or an ActionFail strategy.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Session, error) {
	if e.ix == nil {
		return nil, ErrNoDocument
	}
	if strings.TrimSpace(query) == "" {
		return &Session{query: query, opts: opts, current: -1}, nil
	}

	start := time.Now()
	count := e.ix.PageCount()
	perPage := make([][]Match, count+1)

	var mu sync.Mutex
	var skipped []int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.conc)
	for page := 1; page <= count; page++ {
		g.Go(func() error {
			pc, err := e.ix.PageContent(gctx, page)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				loc := recovery.Location{Page: page, Component: recovery.ComponentSearch}
				switch e.rec.OnError(gctx, err, loc) {
				case recovery.ActionFail:
					return err
				case recovery.ActionWarn:
					e.log.Warn("page skipped during search",
						observability.Int("page", page),
						observability.Error("error", err))
				}
				mu.Lock()
				skipped = append(skipped, page)
				mu.Unlock()
				return nil
			}
			if ms := matchPage(pc, query, opts); len(ms) > 0 {
				mu.Lock()
				perPage[page] = ms
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Ints(skipped)
	var matches []Match
	for page := 1; page <= count; page++ {
		matches = append(matches, perPage[page]...)
	}

	e.log.Info("search completed",
		observability.Int("pages", count),
		observability.Int("matches", len(matches)),
		observability.Int("skipped", len(skipped)),
		observability.Duration(observability.MetricSearchDuration, time.Since(start)))

	return &Session{
		query:   query,
		opts:    opts,
		matches: matches,
		skipped: skipped,
		current: -1,
	}, nil
}

// matchPage finds non-overlapping occurrences in rune space, ascending by
// offset.
func matchPage(pc *extractor.PageContent, query string, opts Options) []Match {
	text := []rune(pc.Text)
	needle := []rune(query)
	if len(needle) == 0 || len(text) < len(needle) {
		return nil
	}
	if !opts.CaseSensitive {
		for i, r := range needle {
			needle[i] = unicode.ToLower(r)
		}
	}

	var out []Match
	for i := 0; i+len(needle) <= len(text); {
		if !matchesAt(text, i, needle, opts.CaseSensitive) {
			i++
			continue
		}
		if opts.WholeWord && !wholeWordAt(text, i, len(needle)) {
			i++
			continue
		}
		out = append(out, Match{
			Page:    pc.Page,
			Offset:  i,
			Length:  len(needle),
			Rect:    highlightRect(pc, i, len(needle)),
			Snippet: snippet(text, i, len(needle)),
		})
		i += len(needle)
	}
	return out
}

func matchesAt(text []rune, at int, needle []rune, caseSensitive bool) bool {
	for k, want := range needle {
		got := text[at+k]
		if !caseSensitive {
			got = unicode.ToLower(got)
		}
		if got != want {
			return false
		}
	}
	return true
}

func wholeWordAt(text []rune, at, length int) bool {
	if at > 0 && isWordRune(text[at-1]) {
		return false
	}
	if end := at + length; end < len(text) && isWordRune(text[end]) {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// highlightRect anchors the match to the line holding its start offset.
// The horizontal extent is interpolated by rune proportion within the
// line; a match running past the line end is clamped to that line. Pages
// with no line geometry fall back to a ladder box at the page top.
func highlightRect(pc *extractor.PageContent, offset, length int) geom.Rect {
	line, ok := pc.LineAt(offset)
	if !ok {
		w := float64(length) * 0.5 * extractor.DefaultFontSize
		if w < MinHighlightWidth {
			w = MinHighlightWidth
		}
		return geom.Rect{
			X: extractor.DefaultLeftMargin,
			Y: extractor.DefaultTopMargin,
			W: w,
			H: extractor.DefaultLineHeight,
		}
	}

	lineRunes := len([]rune(line.Text))
	if lineRunes == 0 {
		return geom.Rect{X: line.Rect.X, Y: line.Rect.Y, W: MinHighlightWidth, H: line.Rect.H}
	}

	rel := offset - line.Offset
	if rel < 0 {
		rel = 0
	}
	if rel > lineRunes {
		rel = lineRunes
	}
	end := rel + length
	if end > lineRunes {
		end = lineRunes
	}

	x := line.Rect.X + line.Rect.W*float64(rel)/float64(lineRunes)
	w := line.Rect.W * float64(end-rel) / float64(lineRunes)
	if w < MinHighlightWidth {
		w = MinHighlightWidth
	}
	return geom.Rect{X: x, Y: line.Rect.Y, W: w, H: line.Rect.H}
}

// snippet is the match with ~30 runes of context each side, newlines
// flattened, ellipsized where cut.
func snippet(text []rune, offset, length int) string {
	start := offset - snippetRadius
	end := offset + length + snippetRadius
	cutLeft := start > 0
	cutRight := end < len(text)
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}

	s := strings.ReplaceAll(string(text[start:end]), "\n", " ")
	if cutLeft {
		s = "…" + s
	}
	if cutRight {
		s += "…"
	}
	return s
}
