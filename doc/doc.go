// Package doc owns the lifecycle of an open PDF document: validation,
// page count, per-page bounds and serialized access to the native backend.
//
// The backend seam is the Backend/Source pair. Exactly one concrete
// backend is compiled into a binary and registers itself as the default
// (see the mupdf subpackage); tests substitute fakes through WithBackend.
package doc

import (
	"image"

	"github.com/GaoZ1en/arxiv-manager-sub001/geom"
)

// Backend opens documents with a native PDF library.
type Backend interface {
	Name() string
	Open(path string) (Source, error)
}

// Source is an open native document. Implementations are not required to
// be safe for concurrent use; the Handle serializes access.
//
// Pages are 1-based. Raster scale 1.0 means one pixel per point.
type Source interface {
	PageCount() int
	PageBounds(page int) (geom.Size, error)
	RenderRaster(page int, scale float64) (image.Image, error)
	RenderVector(page int) ([]byte, error)
	PageText(page int) (string, error)
	PageHTML(page int) ([]byte, error)
	Metadata() map[string]string
	Close() error
}

var defaultBackend Backend = unavailableBackend{}

// DefaultBackend returns the process-wide default backend.
func DefaultBackend() Backend {
	return defaultBackend
}

// SetDefaultBackend sets the process-wide default backend. Meant to be
// called from a backend package's init.
func SetDefaultBackend(b Backend) {
	defaultBackend = b
}

type unavailableBackend struct{}

func (unavailableBackend) Name() string { return "unavailable" }

func (unavailableBackend) Open(string) (Source, error) {
	return nil, ErrNoBackend
}
