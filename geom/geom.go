// Package geom holds the geometry shared by the viewer components.
//
// Document space has its origin at the top-left corner of a page, the unit
// is the PDF point (1/72 inch) and y grows downward, matching both raster
// output and the structured text emitted by the native backend. Output
// space is document space scaled by the zoom factor, in pixels.
package geom

import "math"

// Point is a position in document or output space.
type Point struct {
	X, Y float64
}

// Size is a width/height pair, typically the bounds of a page in points.
type Size struct {
	W, H float64
}

// IsZero reports whether the size has no usable area.
func (s Size) IsZero() bool { return s.W <= 0 || s.H <= 0 }

// Scale returns the size scaled by the given factor.
func (s Size) Scale(f float64) Size { return Size{W: s.W * f, H: s.H * f} }

// PixelW returns the output pixel width at the given zoom, at least 1.
func (s Size) PixelW(zoom float64) int { return pixelDim(s.W, zoom) }

// PixelH returns the output pixel height at the given zoom, at least 1.
func (s Size) PixelH(zoom float64) int { return pixelDim(s.H, zoom) }

func pixelDim(pts, zoom float64) int {
	d := int(math.Floor(pts * zoom))
	if d < 1 {
		d = 1
	}
	return d
}

// Rect is an axis-aligned rectangle anchored at its top-left corner.
type Rect struct {
	X, Y, W, H float64
}

// RectFromCorners builds a rect from two opposite corners in any order.
func RectFromCorners(x0, y0, x1, y1 float64) Rect {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// IsEmpty reports whether the rect has no area.
func (r Rect) IsEmpty() bool { return r.W <= 0 || r.H <= 0 }

// MaxX returns the right edge.
func (r Rect) MaxX() float64 { return r.X + r.W }

// MaxY returns the bottom edge.
func (r Rect) MaxY() float64 { return r.Y + r.H }

// Scale maps the rect by a uniform factor, the document-to-output mapping.
func (r Rect) Scale(f float64) Rect {
	return Rect{X: r.X * f, Y: r.Y * f, W: r.W * f, H: r.H * f}
}

// Contains returns true if the point (x, y) is within the rect.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.MaxX() && y >= r.Y && y <= r.MaxY()
}

// Intersect returns the overlapping region, empty when the rects are
// disjoint.
func (r Rect) Intersect(o Rect) Rect {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.MaxX(), o.MaxX())
	y1 := math.Min(r.MaxY(), o.MaxY())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Union returns the smallest rect covering both. An empty rect is the
// identity.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	x0 := math.Min(r.X, o.X)
	y0 := math.Min(r.Y, o.Y)
	x1 := math.Max(r.MaxX(), o.MaxX())
	y1 := math.Max(r.MaxY(), o.MaxY())
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Clip constrains the rect to the page of the given size.
func (r Rect) Clip(page Size) Rect {
	return r.Intersect(Rect{W: page.W, H: page.H})
}
