package viewer

import (
	"context"
	"errors"

	"github.com/GaoZ1en/arxiv-manager-sub001/geom"
	"github.com/GaoZ1en/arxiv-manager-sub001/render"
	"github.com/GaoZ1en/arxiv-manager-sub001/search"
)

var (
	// ErrNoSession means SearchNext or SearchPrev ran before Search.
	ErrNoSession = errors.New("viewer: no search session")
	// ErrNoMatches means the active session found nothing.
	ErrNoMatches = errors.New("viewer: no matches")
)

// Search sweeps the whole document for query with default options and
// installs the resulting session. See SearchWith.
func (v *Viewer) Search(ctx context.Context, query string) (*search.Session, error) {
	return v.SearchWith(ctx, query, search.Options{})
}

// SearchWith sweeps the document and replaces the active session.
// Highlighted cache entries from a previous query are dropped so no tile
// shows a stale burn-in. Navigation stays where it is until SearchNext.
func (v *Viewer) SearchWith(ctx context.Context, query string, opts search.Options) (*search.Session, error) {
	v.mu.Lock()
	if v.state != StateReady {
		v.mu.Unlock()
		return nil, ErrNotReady
	}
	searcher := v.searcher
	pages := v.pages
	v.mu.Unlock()

	ses, err := searcher.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	// The document may have been closed or swapped while the sweep ran;
	// only install the session against the pipeline it was built for.
	if v.state == StateReady && v.pages == pages {
		pages.InvalidateHighlighted()
		v.session = ses
	}
	v.mu.Unlock()
	return ses, nil
}

// SearchNext advances to the next match, wrapping after the last one,
// navigates to its page if needed and renders it with the match rect
// burned in.
func (v *Viewer) SearchNext(ctx context.Context) (*render.RenderedPage, search.Match, error) {
	return v.searchStep(ctx, (*search.Session).Next)
}

// SearchPrev moves to the previous match, wrapping before the first one.
func (v *Viewer) SearchPrev(ctx context.Context) (*render.RenderedPage, search.Match, error) {
	return v.searchStep(ctx, (*search.Session).Prev)
}

func (v *Viewer) searchStep(ctx context.Context, advance func(*search.Session) (search.Match, bool)) (*render.RenderedPage, search.Match, error) {
	v.mu.Lock()
	if v.state != StateReady {
		v.mu.Unlock()
		return nil, search.Match{}, ErrNotReady
	}
	if v.session == nil {
		v.mu.Unlock()
		return nil, search.Match{}, ErrNoSession
	}
	m, ok := advance(v.session)
	if !ok {
		v.mu.Unlock()
		return nil, search.Match{}, ErrNoMatches
	}
	if m.Page != v.current {
		v.current = m.Page
		v.pre.bump()
	}
	pl := v.pipelineLocked()
	zoom := v.zoom
	pre := v.pre
	v.mu.Unlock()

	rp, err := v.renderThrough(ctx, pl, sfExplicit, m.Page, zoom, []geom.Rect{m.Rect})
	if err != nil {
		return v.placeholder(pl, m.Page, zoom), m, err
	}
	pre.schedule(m.Page, zoom, pl.handle.PageCount())
	return rp, m, nil
}
