// Package mupdf adapts MuPDF (through go-fitz) to the doc backend
// contract. Importing the package registers it as the default backend:
//
//	import _ "github.com/GaoZ1en/arxiv-manager-sub001/doc/mupdf"
package mupdf

import (
	"errors"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/GaoZ1en/arxiv-manager-sub001/doc"
	"github.com/GaoZ1en/arxiv-manager-sub001/geom"
)

func init() {
	doc.SetDefaultBackend(New())
}

// Backend opens documents with MuPDF.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (*Backend) Name() string { return "mupdf" }

func (*Backend) Open(path string) (doc.Source, error) {
	d, err := fitz.New(path)
	if err != nil {
		return nil, mapOpenErr(path, err)
	}
	return &source{doc: d}, nil
}

func mapOpenErr(path string, err error) error {
	switch {
	case errors.Is(err, fitz.ErrNeedsPassword):
		return fmt.Errorf("open %s: %w", path, doc.ErrPasswordProtected)
	case errors.Is(err, fitz.ErrNoSuchFile):
		return fmt.Errorf("open %s: %w", path, doc.ErrFileNotFound)
	case errors.Is(err, fitz.ErrOpenDocument):
		return fmt.Errorf("open %s: %w", path, doc.ErrCorruptedDocument)
	default:
		return fmt.Errorf("open %s: %v: %w", path, err, doc.ErrCorruptedDocument)
	}
}

// source wraps an open fitz document. go-fitz serializes its own native
// calls, and the doc.Handle serializes ours, so no extra locking here.
type source struct {
	doc *fitz.Document
}

func (s *source) PageCount() int { return s.doc.NumPage() }

func (s *source) PageBounds(page int) (geom.Size, error) {
	b, err := s.doc.Bound(page - 1)
	if err != nil {
		return geom.Size{}, mapPageErr(page, err)
	}
	return geom.Size{W: float64(b.Dx()), H: float64(b.Dy())}, nil
}

func (s *source) RenderRaster(page int, scale float64) (image.Image, error) {
	// Scale 1.0 is one pixel per point, which MuPDF calls 72 DPI.
	img, err := s.doc.ImageDPI(page-1, scale*72)
	if err != nil {
		return nil, mapPageErr(page, err)
	}
	return img, nil
}

func (s *source) RenderVector(page int) ([]byte, error) {
	svg, err := s.doc.SVG(page - 1)
	if err != nil {
		return nil, mapPageErr(page, err)
	}
	return []byte(svg), nil
}

func (s *source) PageText(page int) (string, error) {
	text, err := s.doc.Text(page - 1)
	if err != nil {
		return "", mapPageErr(page, err)
	}
	return text, nil
}

func (s *source) PageHTML(page int) ([]byte, error) {
	h, err := s.doc.HTML(page-1, false)
	if err != nil {
		return nil, mapPageErr(page, err)
	}
	return []byte(h), nil
}

func (s *source) Metadata() map[string]string {
	return s.doc.Metadata()
}

func (s *source) Close() error {
	return s.doc.Close()
}

func mapPageErr(page int, err error) error {
	if errors.Is(err, fitz.ErrPageMissing) {
		return fmt.Errorf("page %d: %w", page, doc.ErrInvalidPage)
	}
	return fmt.Errorf("page %d: %w", page, err)
}
