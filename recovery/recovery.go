// Package recovery decides how the viewer reacts when a single page
// fails: render errors during prerender, extraction errors during a
// search sweep. Strategies let embedders choose between failing fast and
// degrading page by page.
package recovery

import "context"

// Strategy is consulted once per page failure.
type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

// Location names where a failure surfaced.
type Location struct {
	Page      int
	Component string
}

// Component names used by the viewer.
const (
	ComponentRender    = "render"
	ComponentPrerender = "prerender"
	ComponentExtract   = "extract"
	ComponentSearch    = "search"
)

type Action int

const (
	// ActionFail aborts the whole operation with the page's error.
	ActionFail Action = iota
	// ActionSkip drops the page silently and continues.
	ActionSkip
	// ActionWarn drops the page, continues, and asks the caller to log.
	ActionWarn
)
