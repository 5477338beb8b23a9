package extractor

import (
	"unicode"
	"unicode/utf8"
)

// measureQuality counts non-space runes and the share of them that are
// printable. Replacement characters from broken encodings count against
// the ratio.
func measureQuality(text string) Quality {
	var total, printable int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r != utf8.RuneError && unicode.IsGraphic(r) {
			printable++
		}
	}
	q := Quality{Chars: printable}
	if total > 0 {
		q.PrintableRatio = float64(printable) / float64(total)
	}
	return q
}
