package extractor

import (
	"bytes"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/GaoZ1en/arxiv-manager-sub001/geom"
	"github.com/GaoZ1en/arxiv-manager-sub001/ocr"
)

// Line geometry uses backend line boxes where available. The horizontal
// extent is the line-anchored width estimation: the text layer reports
// line origins and heights but not per-glyph advances, so widths are
// interpolated from rune counts at avgGlyphWidthRatio of the font size.
// OCR lines carry true word boxes and skip the estimation entirely.
// The Default* values are the estimation ladder for pages with no
// parsable layout at all.
const (
	DefaultFontSize   = 10.0
	DefaultLineHeight = 12.0
	DefaultLeftMargin = 72.0
	DefaultTopMargin  = 72.0

	lineSpacingRatio   = 1.2
	avgGlyphWidthRatio = 0.5
)

// parseHTMLLines reads MuPDF-style structured text: one <p> per line with
// top/left/line-height in the style attribute and font-size on the inner
// spans. Paragraphs without position styles continue below the previous
// line.
func parseHTMLLines(data []byte, page geom.Size) []Line {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	var lines []Line
	cursorY := DefaultTopMargin
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.P {
			if ln, ok := lineFromParagraph(n, page, cursorY); ok {
				lines = append(lines, ln)
				cursorY = ln.baseline()
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return lines
}

// baseline is where a following unpositioned line starts.
func (l Line) baseline() float64 {
	if l.Rect.H > 0 {
		return l.Rect.MaxY()
	}
	return l.Rect.Y + DefaultLineHeight
}

func lineFromParagraph(n *html.Node, page geom.Size, cursorY float64) (Line, bool) {
	text := strings.TrimSpace(collectText(n))
	if text == "" {
		return Line{}, false
	}

	style := parseStyle(attrValue(n, "style"))
	size := spanFontSize(n)
	if size <= 0 {
		size = DefaultFontSize
	}

	top, hasTop := style["top"]
	if !hasTop {
		top = cursorY
	}
	left, hasLeft := style["left"]
	if !hasLeft {
		left = DefaultLeftMargin
	}
	height, hasHeight := style["line-height"]
	if !hasHeight || height <= 0 {
		height = size * lineSpacingRatio
	}

	width := estimateWidth(text, size)
	if page.W > 0 && left+width > page.W {
		width = page.W - left
	}
	if width <= 0 {
		return Line{}, false
	}
	return Line{
		Text: text,
		Rect: geom.Rect{X: left, Y: top, W: width, H: height},
	}, true
}

func estimateWidth(text string, fontSize float64) float64 {
	return float64(utf8.RuneCountInString(text)) * avgGlyphWidthRatio * fontSize
}

// parseStyle extracts the point-valued declarations of an inline style,
// e.g. "top:71.8pt;left:85.0pt;line-height:11.9pt".
func parseStyle(s string) map[string]float64 {
	out := make(map[string]float64)
	for _, decl := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if !strings.HasSuffix(v, "pt") {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "pt"), 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(k)] = f
	}
	return out
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func collectText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(collectText(c))
	}
	return sb.String()
}

func spanFontSize(n *html.Node) float64 {
	if n.Type == html.ElementNode && n.DataAtom == atom.Span {
		if f, ok := parseStyle(attrValue(n, "style"))["font-size"]; ok {
			return f
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := spanFontSize(c); f > 0 {
			return f
		}
	}
	return 0
}

// estimateLines lays plain text onto the page with the estimation ladder:
// fixed margins and line height, used only when no structured output is
// available.
func estimateLines(text string, page geom.Size) []Line {
	var lines []Line
	y := DefaultTopMargin
	for _, raw := range strings.Split(text, "\n") {
		t := strings.TrimRight(raw, " \t\r")
		if strings.TrimSpace(t) == "" {
			continue
		}
		w := estimateWidth(t, DefaultFontSize)
		if page.W > 0 && DefaultLeftMargin+w > page.W {
			w = page.W - DefaultLeftMargin
		}
		lines = append(lines, Line{
			Text: t,
			Rect: geom.Rect{X: DefaultLeftMargin, Y: y, W: w, H: DefaultLineHeight},
		})
		y += DefaultLineHeight
	}
	return lines
}

type docWord struct {
	text string
	rect geom.Rect
}

// linesFromWords groups recognized words into lines by vertical overlap
// and maps their pixel boxes back to document space.
func linesFromWords(words []ocr.Word, scale float64) []Line {
	inv := 1.0 / scale
	ws := make([]docWord, 0, len(words))
	for _, w := range words {
		t := strings.TrimSpace(w.Text)
		if t == "" {
			continue
		}
		r := geom.Rect{X: w.Bounds.X, Y: w.Bounds.Y, W: w.Bounds.Width, H: w.Bounds.Height}.Scale(inv)
		if r.IsEmpty() {
			continue
		}
		ws = append(ws, docWord{text: t, rect: r})
	}
	if len(ws) == 0 {
		return nil
	}
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].rect.Y < ws[j].rect.Y })

	type group struct {
		rect  geom.Rect
		words []docWord
	}
	var groups []group
	for _, w := range ws {
		if len(groups) > 0 {
			g := &groups[len(groups)-1]
			cy := w.rect.Y + w.rect.H/2
			if cy >= g.rect.Y && cy <= g.rect.MaxY() {
				g.words = append(g.words, w)
				g.rect = g.rect.Union(w.rect)
				continue
			}
		}
		groups = append(groups, group{rect: w.rect, words: []docWord{w}})
	}

	lines := make([]Line, 0, len(groups))
	for _, g := range groups {
		sort.SliceStable(g.words, func(i, j int) bool { return g.words[i].rect.X < g.words[j].rect.X })
		texts := make([]string, len(g.words))
		for i, w := range g.words {
			texts[i] = w.text
		}
		lines = append(lines, Line{Text: strings.Join(texts, " "), Rect: g.rect})
	}
	return lines
}

// assignOffsets writes each line's rune offset and returns the page text,
// line texts joined by single newlines.
func assignOffsets(lines []Line) string {
	var sb strings.Builder
	offset := 0
	for i := range lines {
		if i > 0 {
			sb.WriteString("\n")
			offset++
		}
		lines[i].Offset = offset
		sb.WriteString(lines[i].Text)
		offset += utf8.RuneCountInString(lines[i].Text)
	}
	return sb.String()
}
