package bk

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// folded is a lower-cased line together with a map from each of its byte
// offsets back to the original text.
type folded struct {
	text  string
	index []int // len(text)+1 entries
	orig  int   // length of the original text
}

func fold(s string) folded {
	var sb strings.Builder
	sb.Grow(len(s))
	index := make([]int, 0, len(s)+1)
	var buf [utf8.UTFMax]byte
	for i, r := range s {
		n := utf8.EncodeRune(buf[:], unicode.ToLower(r))
		sb.Write(buf[:n])
		for k := 0; k < n; k++ {
			index = append(index, i)
		}
	}
	index = append(index, len(s))
	return folded{text: sb.String(), index: index, orig: len(s)}
}

func foldQuery(q string) string {
	return strings.Map(unicode.ToLower, q)
}

// hit is a match plus its start in the folded line, kept for narrowing.
type hit struct {
	match SearchMatch
	start int
}

// Searcher finds a query in wrapped chapters as it is typed. Each query
// change recomputes the match list; when the new query extends the old one
// only the previous matches are re-checked.
//
// Matching is case-insensitive and literal. A match may continue from the
// end of one non-blank line onto the start of the next, with the line break
// read as a single space. Matches spanning three or more lines are not found.
type Searcher struct {
	lines  [][]folded
	query  string // as typed
	folded string
	hits   []hit
}

// NewSearcher prepares a searcher over the wrapped lines of each chapter.
// chapters[i] must hold the lines of chapter i.
func NewSearcher(chapters [][]DisplayLine) *Searcher {
	s := &Searcher{lines: make([][]folded, len(chapters))}
	for c, lines := range chapters {
		f := make([]folded, len(lines))
		for i, l := range lines {
			f[i] = fold(l.Text())
		}
		s.lines[c] = f
	}
	return s
}

// Search returns every match of query in chapters, in order.
func Search(chapters [][]DisplayLine, query string) []SearchMatch {
	s := NewSearcher(chapters)
	s.SetQuery(query)
	return s.Matches()
}

// Query returns the current query.
func (s *Searcher) Query() string {
	return s.query
}

// SetQuery replaces the query and recomputes the matches.
func (s *Searcher) SetQuery(q string) {
	f := foldQuery(q)
	switch {
	case f == "":
		s.hits = nil
	case s.folded != "" && strings.HasPrefix(f, s.folded):
		s.narrow(f)
	default:
		s.scan(f)
	}
	s.query = q
	s.folded = f
}

// Append adds r to the end of the query.
func (s *Searcher) Append(r rune) {
	s.SetQuery(s.query + string(r))
}

// Backspace removes the last character of the query.
func (s *Searcher) Backspace() {
	if s.query == "" {
		return
	}
	_, n := utf8.DecodeLastRuneInString(s.query)
	s.SetQuery(s.query[:len(s.query)-n])
}

// Matches returns the matches ordered by chapter, line and start column.
func (s *Searcher) Matches() []SearchMatch {
	out := make([]SearchMatch, len(s.hits))
	for i, h := range s.hits {
		out[i] = h.match
	}
	return out
}

// Len returns the number of matches.
func (s *Searcher) Len() int {
	return len(s.hits)
}

// joins reports whether a match may continue from line i onto line i+1.
func (s *Searcher) joins(c, i int) bool {
	lines := s.lines[c]
	return i+1 < len(lines) && lines[i].orig > 0 && lines[i+1].orig > 0
}

func (s *Searcher) scan(q string) {
	s.hits = s.hits[:0]
	for c, lines := range s.lines {
		for i, l := range lines {
			window := l.text
			if s.joins(c, i) {
				window = l.text + " " + lines[i+1].text
			}
			for from := 0; from <= len(l.text); {
				j := strings.Index(window[from:], q)
				if j < 0 {
					break
				}
				start := from + j
				if start > len(l.text) {
					break
				}
				s.hits = append(s.hits, s.makeHit(c, i, start, len(q)))
				_, size := utf8.DecodeRuneInString(window[start:])
				from = start + size
			}
		}
	}
}

// narrow keeps the previous hits at which the longer query q still matches.
func (s *Searcher) narrow(q string) {
	kept := s.hits[:0]
	for _, h := range s.hits {
		if s.matchAt(h.match.Chapter, h.match.Line, h.start, q) {
			kept = append(kept, s.makeHit(h.match.Chapter, h.match.Line, h.start, len(q)))
		}
	}
	s.hits = kept
}

func (s *Searcher) matchAt(c, i, start int, q string) bool {
	l := s.lines[c][i]
	head := l.text[start:]
	if len(q) <= len(head) {
		return strings.HasPrefix(head, q)
	}
	if !strings.HasPrefix(q, head) || !s.joins(c, i) {
		return false
	}
	rest := q[len(head):]
	return strings.HasPrefix(rest, " ") && strings.HasPrefix(s.lines[c][i+1].text, rest[1:])
}

// makeHit maps a folded match back to original columns.
func (s *Searcher) makeHit(c, i, start, n int) hit {
	l := s.lines[c][i]
	m := SearchMatch{Chapter: c, Line: i, ColumnStart: l.index[start]}
	if end := start + n; end <= len(l.text) {
		m.ColumnEnd = l.index[end]
	} else {
		next := s.lines[c][i+1]
		m.ColumnEnd = l.orig + 1 + next.index[end-len(l.text)-1]
	}
	return hit{match: m, start: start}
}

// Next returns the first match after loc, wrapping to the first match of
// the book. It reports false when there are no matches.
func (s *Searcher) Next(loc Location) (SearchMatch, bool) {
	if len(s.hits) == 0 {
		return SearchMatch{}, false
	}
	i := sort.Search(len(s.hits), func(i int) bool {
		return loc.Less(s.hits[i].match.Location())
	})
	if i == len(s.hits) {
		i = 0
	}
	return s.hits[i].match, true
}

// Prev returns the last match before loc, wrapping to the last match of the
// book. It reports false when there are no matches.
func (s *Searcher) Prev(loc Location) (SearchMatch, bool) {
	if len(s.hits) == 0 {
		return SearchMatch{}, false
	}
	i := sort.Search(len(s.hits), func(i int) bool {
		return !s.hits[i].match.Location().Less(loc)
	})
	if i == 0 {
		i = len(s.hits)
	}
	return s.hits[i-1].match, true
}

// Seek returns the first match at or after loc, wrapping around.
func (s *Searcher) Seek(loc Location) (SearchMatch, bool) {
	if len(s.hits) == 0 {
		return SearchMatch{}, false
	}
	i := sort.Search(len(s.hits), func(i int) bool {
		return !s.hits[i].match.Location().Less(loc)
	})
	if i == len(s.hits) {
		i = 0
	}
	return s.hits[i].match, true
}

// SeekBack returns the last match at or before loc, wrapping around.
func (s *Searcher) SeekBack(loc Location) (SearchMatch, bool) {
	if len(s.hits) == 0 {
		return SearchMatch{}, false
	}
	i := sort.Search(len(s.hits), func(i int) bool {
		return loc.Less(s.hits[i].match.Location())
	})
	if i == 0 {
		i = len(s.hits)
	}
	return s.hits[i-1].match, true
}

// Highlight is a column range of one line covered by a match.
type Highlight struct {
	Line  int
	Start int
	End   int
}

// Highlights splits m into per-line column ranges.
func (m SearchMatch) Highlights(lines []DisplayLine) []Highlight {
	if m.Line < 0 || m.Line >= len(lines) {
		return nil
	}
	n := len(lines[m.Line].Text())
	if m.ColumnEnd <= n {
		return []Highlight{{Line: m.Line, Start: m.ColumnStart, End: m.ColumnEnd}}
	}
	var out []Highlight
	if m.ColumnStart < n {
		out = append(out, Highlight{Line: m.Line, Start: m.ColumnStart, End: n})
	}
	if rest := m.ColumnEnd - n - 1; rest > 0 && m.Line+1 < len(lines) {
		out = append(out, Highlight{Line: m.Line + 1, Start: 0, End: rest})
	}
	return out
}

// Offset returns the chapter text offset where m starts.
func (m SearchMatch) Offset(lines []DisplayLine) int {
	if m.Line < 0 || m.Line >= len(lines) {
		return 0
	}
	return lineOffset(lines[m.Line], m.ColumnStart)
}

// lineOffset maps a byte column of l's text to a chapter text offset.
// Rendered text has single spaces between words, so inside a line columns
// and offsets advance together.
func lineOffset(l DisplayLine, col int) int {
	if l.Blank() || col <= 0 {
		return l.Start
	}
	if col >= len(l.Text()) {
		return l.End
	}
	off := l.Start + col
	if off > l.End {
		off = l.End
	}
	return off
}
