package geom

import (
	"math"
	"testing"
)

func TestPixelDims(t *testing.T) {
	letter := Size{W: 612, H: 792}
	cases := []struct {
		zoom float64
		w, h int
	}{
		{0.5, 306, 396},
		{1.0, 612, 792},
		{1.5, 918, 1188},
		{2.0, 1224, 1584},
	}
	for _, c := range cases {
		if got := letter.PixelW(c.zoom); got != c.w {
			t.Fatalf("zoom %v: width %d, want %d", c.zoom, got, c.w)
		}
		if got := letter.PixelH(c.zoom); got != c.h {
			t.Fatalf("zoom %v: height %d, want %d", c.zoom, got, c.h)
		}
	}
}

func TestPixelDimsNeverZero(t *testing.T) {
	tiny := Size{W: 0.3, H: 0.3}
	if w := tiny.PixelW(0.5); w != 1 {
		t.Fatalf("width %d, want 1", w)
	}
	if h := tiny.PixelH(0.5); h != 1 {
		t.Fatalf("height %d, want 1", h)
	}
}

func TestRectIntersectUnion(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 10, H: 10}
	b := Rect{X: 5, Y: 5, W: 10, H: 10}
	got := a.Intersect(b)
	want := Rect{X: 5, Y: 5, W: 5, H: 5}
	if got != want {
		t.Fatalf("intersect = %+v, want %+v", got, want)
	}
	if u := a.Union(b); u != (Rect{X: 0, Y: 0, W: 15, H: 15}) {
		t.Fatalf("union = %+v", u)
	}
	far := Rect{X: 100, Y: 100, W: 1, H: 1}
	if !a.Intersect(far).IsEmpty() {
		t.Fatalf("disjoint rects should intersect empty")
	}
}

func TestRectClip(t *testing.T) {
	page := Size{W: 612, H: 792}
	r := Rect{X: 600, Y: 780, W: 50, H: 50}
	got := r.Clip(page)
	if got.MaxX() > page.W || got.MaxY() > page.H {
		t.Fatalf("clip exceeded page: %+v", got)
	}
	if got.IsEmpty() {
		t.Fatalf("clip dropped a rect that overlaps the page")
	}
}

// Scaling a rect by zoom a then b must match scaling once by a*b, so
// highlight geometry computed at one zoom survives a zoom change.
func TestScaleCommutes(t *testing.T) {
	r := Rect{X: 72.5, Y: 140.25, W: 96.3, H: 11.9}
	zooms := []float64{0.5, 1.0, 1.25, 2.0}
	for _, a := range zooms {
		for _, b := range zooms {
			twice := r.Scale(a).Scale(b)
			once := r.Scale(a * b)
			if !rectNear(twice, once, 1e-9) {
				t.Fatalf("scale(%v).scale(%v) = %+v, scale(%v) = %+v", a, b, twice, a*b, once)
			}
		}
	}
}

func rectNear(a, b Rect, eps float64) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps &&
		math.Abs(a.W-b.W) < eps && math.Abs(a.H-b.H) < eps
}

func TestMatrixRoundTrip(t *testing.T) {
	m := Scaling(1.5).Mul(Translation(10, 20))
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("inverse: %v", err)
	}
	p := Point{X: 30, Y: 40}
	back := inv.Apply(m.Apply(p))
	if math.Abs(back.X-p.X) > 1e-9 || math.Abs(back.Y-p.Y) > 1e-9 {
		t.Fatalf("round trip drifted: %+v", back)
	}
}

func TestMatrixSingular(t *testing.T) {
	if _, err := (Matrix{0, 0, 0, 0, 0, 0}).Inverse(); err == nil {
		t.Fatalf("expected error for singular matrix")
	}
}

func TestMatrixApplyRectNormalizes(t *testing.T) {
	flip := Matrix{-1, 0, 0, 1, 0, 0}
	r := Rect{X: 10, Y: 10, W: 20, H: 5}
	got := flip.ApplyRect(r)
	if got.W < 0 || got.H < 0 {
		t.Fatalf("ApplyRect returned non-normalized rect: %+v", got)
	}
	if got.X != -30 || got.W != 20 {
		t.Fatalf("flip mapped wrong: %+v", got)
	}
}

func TestClampZoom(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.05, 0.25},
		{0.25, 0.25},
		{1.3, 1.3},
		{4.0, 4.0},
		{9.9, 4.0},
		{0, 0.25},
		{-1, 0.25},
		{math.NaN(), 0.25},
		{math.Inf(1), 0.25},
	}
	for _, c := range cases {
		if got := ClampZoom(c.in, 0.25, 4.0); got != c.want {
			t.Fatalf("ClampZoom(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestQuantizeZoom(t *testing.T) {
	if QuantizeZoom(1.004) != 1.0 {
		t.Fatalf("1.004 should quantize to 1.0")
	}
	if QuantizeZoom(1.005) != 1.01 {
		t.Fatalf("1.005 should quantize to 1.01")
	}
	if Centizoom(1.499999) != 150 {
		t.Fatalf("centizoom of 1.499999 should be 150")
	}
	if Centizoom(0.25) != 25 {
		t.Fatalf("centizoom of 0.25 should be 25")
	}
}
