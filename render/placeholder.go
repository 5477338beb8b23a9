package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/GaoZ1en/arxiv-manager-sub001/geom"
)

// Placeholder produces a neutral tile for a page that failed to render,
// so the caller can keep its layout. Placeholders are never cached.
func Placeholder(page int, zoom float64, bounds geom.Size, msg string) *RenderedPage {
	zoom = geom.QuantizeZoom(zoom)
	if bounds.IsZero() {
		bounds = geom.Size{W: 612, H: 792}
	}
	w, h := bounds.PixelW(zoom), bounds.PixelH(zoom)

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{0xEE, 0xEE, 0xEE, 0xFF}), image.Point{}, draw.Src)
	border := color.RGBA{0xBB, 0xBB, 0xBB, 0xFF}
	for x := 0; x < w; x++ {
		img.Set(x, 0, border)
		img.Set(x, h-1, border)
	}
	for y := 0; y < h; y++ {
		img.Set(0, y, border)
		img.Set(w-1, y, border)
	}

	if msg == "" {
		msg = fmt.Sprintf("page %d unavailable", page)
	}
	face := basicfont.Face7x13
	tw := len(msg) * face.Advance
	x := (w - tw) / 2
	if x < 2 {
		x = 2
	}
	y := h / 2
	if y < face.Height {
		y = face.Height
	}
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{0x66, 0x66, 0x66, 0xFF}),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(msg)

	return &RenderedPage{
		Page:   page,
		Zoom:   zoom,
		Format: FormatRaster,
		Width:  w,
		Height: h,
		Raster: img,
	}
}

// Thumbnail downscales a raster page so its longer edge is maxEdge pixels,
// preserving aspect ratio.
func Thumbnail(rp *RenderedPage, maxEdge int) (*image.RGBA, error) {
	if rp == nil || rp.Raster == nil {
		return nil, fmt.Errorf("thumbnail needs a raster payload: %w", ErrRenderFailure)
	}
	if maxEdge < 1 {
		return nil, fmt.Errorf("thumbnail edge %d: %w", maxEdge, ErrRenderFailure)
	}

	sw, sh := rp.Raster.Bounds().Dx(), rp.Raster.Bounds().Dy()
	scale := float64(maxEdge) / float64(sw)
	if sh > sw {
		scale = float64(maxEdge) / float64(sh)
	}
	w := int(math.Round(float64(sw) * scale))
	h := int(math.Round(float64(sh) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), rp.Raster, rp.Raster.Bounds(), draw.Src, nil)
	return dst, nil
}
