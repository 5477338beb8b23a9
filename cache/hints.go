package cache

// Default prerender window: the page behind and the two ahead.
const (
	DefaultBehind = 1
	DefaultAhead  = 2
)

// PrerenderHints lists the pages worth rendering ahead of need around the
// current page, ascending, clipped to [1, total] and excluding current.
// An out-of-range current page yields no hints.
func PrerenderHints(current, behind, ahead, total int) []int {
	if total < 1 || current < 1 || current > total {
		return nil
	}
	if behind < 0 {
		behind = 0
	}
	if ahead < 0 {
		ahead = 0
	}
	out := make([]int, 0, behind+ahead)
	for p := current - behind; p <= current+ahead; p++ {
		if p < 1 || p > total || p == current {
			continue
		}
		out = append(out, p)
	}
	return out
}
