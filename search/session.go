package search

// Session is an ordered, navigable result set for one query. It belongs
// to the coordinating goroutine: methods are not safe for concurrent use.
type Session struct {
	query   string
	opts    Options
	matches []Match
	skipped []int
	current int
}

// Query returns the query the session was built for.
func (s *Session) Query() string { return s.query }

// Options returns the matching options the session was built with.
func (s *Session) Options() Options { return s.opts }

// Len is the total number of matches.
func (s *Session) Len() int { return len(s.matches) }

// Matches returns the matches ordered by page, then offset.
func (s *Session) Matches() []Match {
	return append([]Match(nil), s.matches...)
}

// Skipped lists pages excluded from the sweep by extraction failures,
// ascending.
func (s *Session) Skipped() []int {
	return append([]int(nil), s.skipped...)
}

// At returns the i-th match in document order.
func (s *Session) At(i int) (Match, bool) {
	if i < 0 || i >= len(s.matches) {
		return Match{}, false
	}
	return s.matches[i], true
}

// Current reports the match the cursor sits on. Before the first Next or
// Prev there is none.
func (s *Session) Current() (Match, bool) {
	if s.current < 0 || s.current >= len(s.matches) {
		return Match{}, false
	}
	return s.matches[s.current], true
}

// Next advances the cursor, wrapping from the last match to the first.
func (s *Session) Next() (Match, bool) {
	if len(s.matches) == 0 {
		return Match{}, false
	}
	s.current = (s.current + 1) % len(s.matches)
	return s.matches[s.current], true
}

// Prev moves the cursor back, wrapping from the first match to the last.
// Called before any Next, it lands on the last match.
func (s *Session) Prev() (Match, bool) {
	if len(s.matches) == 0 {
		return Match{}, false
	}
	if s.current < 0 {
		s.current = len(s.matches) - 1
	} else {
		s.current = (s.current - 1 + len(s.matches)) % len(s.matches)
	}
	return s.matches[s.current], true
}
