package viewer

import (
	"context"
	"fmt"

	"github.com/GaoZ1en/arxiv-manager-sub001/cache"
	"github.com/GaoZ1en/arxiv-manager-sub001/config"
	"github.com/GaoZ1en/arxiv-manager-sub001/doc"
	"github.com/GaoZ1en/arxiv-manager-sub001/geom"
	"github.com/GaoZ1en/arxiv-manager-sub001/observability"
	"github.com/GaoZ1en/arxiv-manager-sub001/render"
)

// sfExplicit is the coalescing scope shared by View, Navigate, SetZoom
// and the search cursor. Prerenders coalesce per generation instead, so
// an explicit render never joins a flight a generation bump is about to
// cancel.
const sfExplicit = "x"

// pipeline is a consistent snapshot of the per-document components, taken
// under the viewer lock so renders can run without holding it.
type pipeline struct {
	renderer *render.Renderer
	handle   *doc.Handle
	pages    *cache.PageCache
	life     context.Context
	docGen   uint64
}

func (v *Viewer) pipelineLocked() pipeline {
	return pipeline{
		renderer: v.renderer,
		handle:   v.handle,
		pages:    v.pages,
		life:     v.lifeCtx,
		docGen:   v.docGen,
	}
}

// highlightsLocked returns the rect to burn in when the active match sits
// on page. Only the current match is highlighted, never all of them.
func (v *Viewer) highlightsLocked(page int) []geom.Rect {
	if v.session == nil {
		return nil
	}
	m, ok := v.session.Current()
	if !ok || m.Page != page {
		return nil
	}
	return []geom.Rect{m.Rect}
}

func (v *Viewer) outputFormat() render.Format {
	if v.cfg.Render.Format == config.FormatVector {
		return render.FormatVector
	}
	return render.FormatRaster
}

// View renders the current page, serving from cache when possible.
func (v *Viewer) View(ctx context.Context) (*render.RenderedPage, error) {
	v.mu.Lock()
	if v.state != StateReady {
		v.mu.Unlock()
		return nil, ErrNotReady
	}
	pl := v.pipelineLocked()
	page, zoom := v.current, v.zoom
	hl := v.highlightsLocked(page)
	v.mu.Unlock()

	return v.renderThrough(ctx, pl, sfExplicit, page, zoom, hl)
}

// Navigate moves to page and renders it. The page becomes current even
// when rendering fails; in that case the error comes back together with
// a placeholder tile so the caller can keep its layout. A successful
// navigation schedules the prerender window around the new page.
func (v *Viewer) Navigate(ctx context.Context, page int) (*render.RenderedPage, error) {
	v.mu.Lock()
	if v.state != StateReady {
		v.mu.Unlock()
		return nil, ErrNotReady
	}
	if page < 1 || page > v.handle.PageCount() {
		total := v.handle.PageCount()
		v.mu.Unlock()
		return nil, fmt.Errorf("navigate to page %d of %d: %w", page, total, doc.ErrInvalidPage)
	}
	if page != v.current {
		v.current = page
		v.pre.bump()
	}
	pl := v.pipelineLocked()
	zoom := v.zoom
	hl := v.highlightsLocked(page)
	pre := v.pre
	v.mu.Unlock()

	rp, err := v.renderThrough(ctx, pl, sfExplicit, page, zoom, hl)
	if err != nil {
		return v.placeholder(pl, page, zoom), err
	}
	pre.schedule(page, zoom, pl.handle.PageCount())
	return rp, nil
}

// SetZoom changes the zoom factor and re-renders the current page. The
// requested factor is clamped and quantized; the effective value is what
// Zoom reports afterwards. Cached renders at other zoom levels stay
// untouched until capacity evicts them.
func (v *Viewer) SetZoom(ctx context.Context, zoom float64) (*render.RenderedPage, error) {
	v.mu.Lock()
	if v.state != StateReady {
		v.mu.Unlock()
		return nil, ErrNotReady
	}
	eff := v.renderer.EffectiveZoom(zoom)
	if eff != v.zoom {
		v.zoom = eff
		v.pre.bump()
	}
	pl := v.pipelineLocked()
	page := v.current
	hl := v.highlightsLocked(page)
	pre := v.pre
	v.mu.Unlock()

	rp, err := v.renderThrough(ctx, pl, sfExplicit, page, eff, hl)
	if err != nil {
		return v.placeholder(pl, page, eff), err
	}
	pre.schedule(page, eff, pl.handle.PageCount())
	return rp, nil
}

// Flush blocks until queued prerenders have settled. Mainly for batch
// callers and tests that want to observe a quiet cache.
func (v *Viewer) Flush(ctx context.Context) error {
	v.mu.Lock()
	pre := v.pre
	v.mu.Unlock()
	if pre == nil {
		return nil
	}
	return pre.flush(ctx)
}

// prerenderOne fills the cache for one hinted page. Prerenders are
// always plain; highlights are burned in only when the match page is
// explicitly requested, which keeps speculative work off the render
// budget.
func (v *Viewer) prerenderOne(ctx context.Context, gen uint64, page int, zoom float64) error {
	v.mu.Lock()
	if v.state != StateReady {
		v.mu.Unlock()
		return nil
	}
	pl := v.pipelineLocked()
	v.mu.Unlock()

	_, err := v.renderThrough(ctx, pl, fmt.Sprintf("bg%d", gen), page, zoom, nil)
	return err
}

// renderThrough serves one page through the cache, request coalescing,
// and the renderer. ctx bounds how long the caller waits; the render
// itself runs under the scope's own context (the viewer lifetime for
// explicit requests, the generation for prerenders) plus the configured
// timeout, so an abandoned wait still completes and fills the cache.
//
// A cached entry only counts when its highlight state matches the
// request. Highlighted entries exist solely for the active match page
// and are replaced under the same coalescing scope, so the boolean is
// enough to tell a stale burn-in from a fresh one.
func (v *Viewer) renderThrough(ctx context.Context, pl pipeline, scope string, page int, zoom float64, hl []geom.Rect) (*render.RenderedPage, error) {
	key := cache.NewKey(page, zoom)
	want := len(hl) > 0
	if rp, ok := pl.pages.Get(key); ok && rp.Highlighted == want {
		return rp, nil
	}

	sfKey := fmt.Sprintf("d%d|%s|%s", pl.docGen, scope, key.String())
	if want {
		sfKey += "|hl"
	}
	workCtx := pl.life
	if scope != sfExplicit {
		workCtx = ctx
	}

	ch := v.sf.DoChan(sfKey, func() (interface{}, error) {
		rctx := workCtx
		if t := v.cfg.Limits.RenderTimeout.Std(); t > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(workCtx, t)
			defer cancel()
		}
		start := v.now()
		rp, err := pl.renderer.RenderPage(rctx, pl.handle, render.Request{
			Page:       page,
			Zoom:       zoom,
			Format:     v.outputFormat(),
			Highlights: hl,
		})
		if err != nil {
			return nil, err
		}
		pl.pages.Put(key, rp)
		v.log.Debug("page rendered",
			observability.Int("page", page),
			observability.Float64("zoom", zoom),
			observability.Duration(observability.MetricRenderDuration, v.now().Sub(start)),
			observability.Int64(observability.MetricRenderPixels, int64(rp.Width)*int64(rp.Height)))
		return rp, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*render.RenderedPage), nil
	}
}

// placeholder builds the neutral tile returned alongside a render error.
func (v *Viewer) placeholder(pl pipeline, page int, zoom float64) *render.RenderedPage {
	bounds, err := pl.handle.PageBounds(page)
	if err != nil {
		bounds = geom.Size{}
	}
	return render.Placeholder(page, zoom, bounds, "")
}
