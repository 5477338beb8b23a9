package viewer

import (
	"context"
	"sync"

	"github.com/GaoZ1en/arxiv-manager-sub001/cache"
	"github.com/GaoZ1en/arxiv-manager-sub001/observability"
	"github.com/GaoZ1en/arxiv-manager-sub001/recovery"
)

const prerenderQueueDepth = 32

type prerenderTask struct {
	ctx  context.Context
	gen  uint64
	page int
	zoom float64
}

// prerenderer fills the cache around the current page from a small worker
// pool. Each navigation or zoom change starts a new generation; bumping
// the generation cancels queued and in-flight work from older ones, so
// stale hints never race fresh renders for cache slots.
type prerenderer struct {
	v       *Viewer
	workers int
	tasks   chan prerenderTask

	wg      sync.WaitGroup // workers
	pending sync.WaitGroup // accepted tasks not yet finished

	mu      sync.Mutex
	life    context.Context
	genCtx  context.Context
	genStop context.CancelFunc
	gen     uint64
	closed  bool
}

func newPrerenderer(v *Viewer, workers int) *prerenderer {
	if workers < 1 {
		workers = 1
	}
	return &prerenderer{
		v:       v,
		workers: workers,
		tasks:   make(chan prerenderTask, prerenderQueueDepth),
	}
}

func (p *prerenderer) start(life context.Context) {
	p.mu.Lock()
	p.life = life
	p.genCtx, p.genStop = context.WithCancel(life)
	p.mu.Unlock()
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// bump starts a new generation. Work scheduled before the bump is
// cancelled wherever it has not already completed.
func (p *prerenderer) bump() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.genStop != nil {
		p.genStop()
	}
	p.gen++
	p.genCtx, p.genStop = context.WithCancel(p.life)
}

// schedule queues the prerender window around page at the given zoom.
// Hints are advisory: a full queue drops them rather than block.
func (p *prerenderer) schedule(page int, zoom float64, total int) {
	hints := cache.PrerenderHints(page, p.v.cfg.Cache.PrerenderBehind, p.v.cfg.Cache.PrerenderAhead, total)
	if len(hints) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for _, h := range hints {
		p.pending.Add(1)
		select {
		case p.tasks <- prerenderTask{ctx: p.genCtx, gen: p.gen, page: h, zoom: zoom}:
		default:
			p.pending.Done()
			p.v.log.Debug("prerender hint dropped, queue full", observability.Int("page", h))
		}
	}
	p.v.log.Debug("prerender scheduled",
		observability.Int("around", page),
		observability.Int("hints", len(hints)),
		observability.Int(observability.MetricPrerenderDepth, len(p.tasks)))
}

// flush blocks until every accepted task has finished or ctx expires.
func (p *prerenderer) flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// stop cancels outstanding work and waits for the workers to drain.
func (p *prerenderer) stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.genStop != nil {
		p.genStop()
	}
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *prerenderer) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(t)
	}
}

func (p *prerenderer) run(t prerenderTask) {
	defer p.pending.Done()
	if t.ctx.Err() != nil {
		return
	}
	err := p.v.prerenderOne(t.ctx, t.gen, t.page, t.zoom)
	if err == nil || t.ctx.Err() != nil {
		return
	}
	loc := recovery.Location{Page: t.page, Component: recovery.ComponentPrerender}
	if p.v.rec.OnError(t.ctx, err, loc) == recovery.ActionSkip {
		return
	}
	p.v.log.Warn("prerender failed",
		observability.Int("page", t.page),
		observability.Float64("zoom", t.zoom),
		observability.Error("error", err))
}
