package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/GaoZ1en/arxiv-manager-sub001/geom"
)

// Translucent amber, the conventional reader highlight.
var highlightFill = color.NRGBA{R: 0xFF, G: 0xD5, B: 0x4F, A: 0x66}

// burnHighlights composites the fill over each output-space rect in place.
func burnHighlights(dst *image.RGBA, rects []geom.Rect) {
	src := image.NewUniform(highlightFill)
	for _, r := range rects {
		px := image.Rect(
			int(math.Floor(r.X)),
			int(math.Floor(r.Y)),
			int(math.Ceil(r.MaxX())),
			int(math.Ceil(r.MaxY())),
		).Intersect(dst.Bounds())
		if px.Empty() {
			continue
		}
		draw.Draw(dst, px, src, image.Point{}, draw.Over)
	}
}

// overlaySVG appends a highlight group before the closing tag. Rects stay
// in the SVG's native point units so they scale with the drawing.
func overlaySVG(svg []byte, rects []geom.Rect, page geom.Size) ([]byte, error) {
	end := bytes.LastIndex(svg, []byte("</svg>"))
	if end < 0 {
		return nil, errors.New("malformed svg payload")
	}

	var buf bytes.Buffer
	buf.Write(svg[:end])
	buf.WriteString(`<g fill="#ffd54f" fill-opacity="0.4">`)
	for _, r := range rects {
		c := r.Clip(page)
		if c.IsEmpty() {
			continue
		}
		fmt.Fprintf(&buf, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f"/>`,
			c.X, c.Y, c.W, c.H)
	}
	buf.WriteString("</g>")
	buf.Write(svg[end:])
	return buf.Bytes(), nil
}
