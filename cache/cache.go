// Package cache bounds the memory spent on rendered pages. Entries are
// keyed by page and quantized zoom and evicted least-recently-used, one
// eviction per insert, so the cache never exceeds its configured size.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GaoZ1en/arxiv-manager-sub001/geom"
	"github.com/GaoZ1en/arxiv-manager-sub001/observability"
	"github.com/GaoZ1en/arxiv-manager-sub001/render"
)

// Key identifies a cached render. Zoom is stored as integer hundredths so
// map lookups never compare floats.
type Key struct {
	Page      int
	Centizoom int
}

// NewKey quantizes the zoom and builds the cache key for a page.
func NewKey(page int, zoom float64) Key {
	return Key{Page: page, Centizoom: geom.Centizoom(zoom)}
}

// Zoom recovers the quantized zoom factor.
func (k Key) Zoom() float64 { return float64(k.Centizoom) / 100 }

func (k Key) String() string { return fmt.Sprintf("p%d@z%d", k.Page, k.Centizoom) }

type entry struct {
	key        Key
	page       *render.RenderedPage
	lastAccess time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

type Option func(*PageCache)

func WithLogger(l observability.Logger) Option {
	return func(c *PageCache) {
		if l != nil {
			c.log = l
		}
	}
}

// PageCache is a bounded LRU over rendered pages. Safe for concurrent use.
type PageCache struct {
	mu      sync.Mutex
	max     int
	entries map[Key]*list.Element
	order   *list.List // front is most recently used

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	log observability.Logger
}

// New builds a cache holding at most maxPages rendered pages. Sizes below
// one are raised to one.
func New(maxPages int, opts ...Option) *PageCache {
	if maxPages < 1 {
		maxPages = 1
	}
	c := &PageCache{
		max:     maxPages,
		entries: make(map[Key]*list.Element, maxPages),
		order:   list.New(),
		log:     observability.NopLogger{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached render for key and refreshes its recency. Every
// call counts as a hit or a miss.
func (c *PageCache) Get(key Key) (*render.RenderedPage, bool) {
	c.mu.Lock()
	el, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	c.order.MoveToFront(el)
	e := el.Value.(*entry)
	e.lastAccess = time.Now()
	rp := e.page
	c.mu.Unlock()
	c.hits.Add(1)
	return rp, true
}

// Put inserts or replaces the render for key. A nil page is ignored;
// failed renders must never occupy cache slots. When the cache is full,
// exactly the least-recently-used entry is evicted first.
func (c *PageCache) Put(key Key, rp *render.RenderedPage) {
	if rp == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		e := el.Value.(*entry)
		e.page = rp
		e.lastAccess = time.Now()
		return
	}

	if len(c.entries) >= c.max {
		c.evictOldest()
	}
	el := c.order.PushFront(&entry{key: key, page: rp, lastAccess: time.Now()})
	c.entries[key] = el
}

// evictOldest removes the back of the recency list. Caller holds the lock.
func (c *PageCache) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, e.key)
	c.evictions.Add(1)
	c.log.Debug("page evicted",
		observability.Int("page", e.key.Page),
		observability.Int("centizoom", e.key.Centizoom))
}

// Len reports the number of cached renders.
func (c *PageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Invalidate drops one entry, reporting whether it existed.
func (c *PageCache) Invalidate(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.entries, key)
	return true
}

// InvalidateHighlighted drops every entry whose payload has highlights
// burned in. Called when the active search query changes so stale
// highlights are never served.
func (c *PageCache) InvalidateHighlighted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry)
		if e.page.Highlighted {
			c.order.Remove(el)
			delete(c.entries, e.key)
			dropped++
		}
		el = next
	}
	return dropped
}

// Clear empties the cache. Counters keep their lifetime values.
func (c *PageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*list.Element, c.max)
	c.order.Init()
}

// Stats snapshots the counters.
func (c *PageCache) Stats() Stats {
	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      size,
	}
}
