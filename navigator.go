package bk

import (
	"sort"

	"github.com/rs/zerolog"
)

// Mode is the state of a Navigator.
type Mode uint8

// Navigator modes.
const (
	ModeReading Mode = iota
	ModeSearch
	ModeTOC
)

func (m Mode) String() string {
	switch m {
	case ModeSearch:
		return "search"
	case ModeTOC:
		return "toc"
	default:
		return "reading"
	}
}

// Direction is the direction of a search.
type Direction uint8

// Search directions.
const (
	Forward Direction = iota
	Backward
)

const defaultHeight = 24

// TocEntry is a visible row of the TOC outline.
type TocEntry struct {
	Node     TocNode
	Expanded bool
}

// Navigator is the reading state machine. It holds the current position,
// the search and TOC states, bookmarks and the jump-back mark, and reflows
// chapters on demand at its width.
//
// Chapters whose content cannot be read are shown as empty; the failure is
// logged once per chapter.
type Navigator struct {
	book   *Book
	width  int
	height int
	mode   Mode
	pos    Position
	log    zerolog.Logger

	// back is the position before the last jump.
	back    Position
	hasBack bool

	// ret is the position to restore when search or TOC is cancelled.
	ret Position

	searcher    *Searcher
	searchWidth int
	dir         Direction
	selected    int // index into the searcher's matches, -1 when none

	expanded  map[int]bool
	tocCursor int // node ID

	bookmarks []Bookmark
	failed    map[int]bool
}

// NewNavigator starts reading b at start, wrapping to width. An out of range
// start is clamped into the book.
func NewNavigator(b *Book, width int, start Position) (*Navigator, error) {
	if width <= 0 {
		return nil, ErrInvalidWidth
	}
	n := &Navigator{
		book:     b,
		width:    width,
		height:   defaultHeight,
		log:      b.log,
		selected: -1,
		expanded: make(map[int]bool),
		failed:   make(map[int]bool),
	}
	n.pos = n.clamp(start)
	return n, nil
}

func (n *Navigator) clamp(p Position) Position {
	if p.Chapter < 0 {
		p.Chapter = 0
	}
	if last := len(n.book.chapters) - 1; p.Chapter > last {
		p.Chapter = last
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if l, err := n.book.chapters[p.Chapter].Len(); err == nil && p.Offset > l {
		p.Offset = l
	}
	return p
}

// Book returns the book being read.
func (n *Navigator) Book() *Book { return n.book }

// Mode returns the current mode.
func (n *Navigator) Mode() Mode { return n.mode }

// Position returns the current reading position.
func (n *Navigator) Position() Position { return n.pos }

// Chapter returns the current chapter.
func (n *Navigator) Chapter() *Chapter { return n.book.chapters[n.pos.Chapter] }

// Width returns the wrap width.
func (n *Navigator) Width() int { return n.width }

// SetWidth reflows the book to width. The position is kept, so the top line
// still contains the same text.
func (n *Navigator) SetWidth(width int) error {
	if width <= 0 {
		return ErrInvalidWidth
	}
	if width == n.width {
		return nil
	}
	n.width = width
	if n.mode == ModeSearch {
		n.rebuildSearch()
	}
	return nil
}

// Height returns the page height in lines.
func (n *Navigator) Height() int { return n.height }

// SetHeight sets the page height used by paging commands.
func (n *Navigator) SetHeight(h int) {
	if h < 1 {
		h = 1
	}
	n.height = h
}

// linesOf returns the wrapped lines of chapter c, or nil when the chapter
// cannot be read.
func (n *Navigator) linesOf(c int) []DisplayLine {
	lines, err := n.book.chapters[c].Lines(n.width)
	if err != nil {
		if !n.failed[c] {
			n.failed[c] = true
			n.log.Warn().Err(err).Int("chapter", c).Msg("chapter unreadable")
		}
		return nil
	}
	return lines
}

// Lines returns the wrapped lines of the current chapter.
func (n *Navigator) Lines() []DisplayLine {
	return n.linesOf(n.pos.Chapter)
}

// Line returns the index of the top line of the page.
func (n *Navigator) Line() int {
	return LineAt(n.Lines(), n.pos.Offset)
}

// Page returns the lines visible at the current position.
func (n *Navigator) Page() []DisplayLine {
	lines := n.Lines()
	top := LineAt(lines, n.pos.Offset)
	if top >= len(lines) {
		return nil
	}
	end := top + n.height
	if end > len(lines) {
		end = len(lines)
	}
	return lines[top:end]
}

func (n *Navigator) setLine(i int) {
	lines := n.Lines()
	if i >= len(lines) {
		i = len(lines) - 1
	}
	if i < 0 {
		n.pos.Offset = 0
		return
	}
	n.pos.Offset = lines[i].Start
}

// ScrollDown moves down count lines. At the last page of a chapter it moves
// to the start of the next chapter.
func (n *Navigator) ScrollDown(count int) {
	lines := n.Lines()
	top := LineAt(lines, n.pos.Offset)
	if top+n.height < len(lines) {
		n.setLine(top + count)
		return
	}
	n.NextChapter()
}

// ScrollUp moves up count lines. At the top of a chapter it moves to the
// last page of the previous chapter.
func (n *Navigator) ScrollUp(count int) {
	top := LineAt(n.Lines(), n.pos.Offset)
	if top > 0 {
		n.setLine(max(top-count, 0))
		return
	}
	if n.pos.Chapter > 0 {
		n.pos = Position{Chapter: n.pos.Chapter - 1}
		n.setLine(len(n.Lines()) - n.height)
	}
}

// PageDown scrolls down one page.
func (n *Navigator) PageDown() { n.ScrollDown(n.height) }

// PageUp scrolls up one page.
func (n *Navigator) PageUp() { n.ScrollUp(n.height) }

// HalfPageDown scrolls down half a page.
func (n *Navigator) HalfPageDown() { n.ScrollDown(max(n.height/2, 1)) }

// HalfPageUp scrolls up half a page.
func (n *Navigator) HalfPageUp() { n.ScrollUp(max(n.height/2, 1)) }

// NextChapter moves to the start of the next chapter, if any.
func (n *Navigator) NextChapter() {
	if n.pos.Chapter+1 < len(n.book.chapters) {
		n.pos = Position{Chapter: n.pos.Chapter + 1}
	}
}

// PrevChapter moves to the start of the previous chapter, if any.
func (n *Navigator) PrevChapter() {
	if n.pos.Chapter > 0 {
		n.pos = Position{Chapter: n.pos.Chapter - 1}
	}
}

// ChapterStart jumps to the top of the current chapter.
func (n *Navigator) ChapterStart() {
	n.jump(Position{Chapter: n.pos.Chapter})
}

// ChapterEnd jumps to the last page of the current chapter.
func (n *Navigator) ChapterEnd() {
	n.mark()
	n.setLine(len(n.Lines()) - n.height)
}

// GoTo jumps to p, clamped into the book.
func (n *Navigator) GoTo(p Position) {
	n.jump(n.clamp(p))
}

// GoToFraction jumps to a fraction (0 to 1) of chapter c.
func (n *Navigator) GoToFraction(c int, fraction float64) error {
	ch := n.book.Chapter(c)
	if ch == nil {
		return ErrInvalidChapter
	}
	off, err := ch.OffsetAt(fraction)
	if err != nil {
		return err
	}
	n.jump(Position{Chapter: c, Offset: off})
	return nil
}

func (n *Navigator) mark() {
	n.back = n.pos
	n.hasBack = true
}

func (n *Navigator) jump(p Position) {
	n.mark()
	n.pos = p
}

// JumpBack returns to the position before the last jump. Calling it again
// returns to where it was called from.
func (n *Navigator) JumpBack() bool {
	if !n.hasBack {
		return false
	}
	n.pos, n.back = n.back, n.pos
	return true
}

// Progress returns how far into the book the position is, from 0 to 100.
// Each chapter counts equally; within a chapter the byte offset is
// interpolated against the chapter length.
func (n *Navigator) Progress() float64 {
	total := len(n.book.chapters)
	return (float64(n.pos.Chapter) + n.ChapterProgress()/100) / float64(total) * 100
}

// ChapterProgress returns how far into the current chapter the position is,
// from 0 to 100.
func (n *Navigator) ChapterProgress() float64 {
	l, err := n.Chapter().Len()
	if err != nil || l == 0 {
		return 0
	}
	return float64(n.pos.Offset) / float64(l) * 100
}

// location returns the line and column of the current position.
func (n *Navigator) location() Location {
	lines := n.Lines()
	loc := Location{Chapter: n.pos.Chapter}
	if len(lines) == 0 {
		return loc
	}
	loc.Line = LineAt(lines, n.pos.Offset)
	loc.Column = max(n.pos.Offset-lines[loc.Line].Start, 0)
	return loc
}

// --- search ---

// StartSearch enters search mode with an empty query. The current position
// is restored if the search is cancelled.
func (n *Navigator) StartSearch(dir Direction) {
	n.mode = ModeSearch
	n.dir = dir
	n.ret = n.pos
	n.selected = -1
	n.ensureSearcher()
	n.searcher.SetQuery("")
}

func (n *Navigator) ensureSearcher() {
	if n.searcher == nil || n.searchWidth != n.width {
		n.rebuildSearch()
	}
}

// rebuildSearch wraps every chapter at the current width and re-runs the
// current query. This reads every chapter of the book.
func (n *Navigator) rebuildSearch() {
	query := ""
	if n.searcher != nil {
		query = n.searcher.Query()
	}
	all := make([][]DisplayLine, len(n.book.chapters))
	for c := range n.book.chapters {
		all[c] = n.linesOf(c)
	}
	n.searcher = NewSearcher(all)
	n.searchWidth = n.width
	n.searcher.SetQuery(query)
	if n.selected >= 0 {
		n.selected = -1
		if m, ok := n.searcher.Seek(n.location()); ok && m.Chapter == n.pos.Chapter &&
			m.Offset(all[m.Chapter]) == n.pos.Offset {
			n.selected = n.indexOf(m)
		}
	}
	n.log.Debug().Int("width", n.width).Int("chapters", len(all)).Msg("search index built")
}

// Query returns the search query.
func (n *Navigator) Query() string {
	if n.searcher == nil {
		return ""
	}
	return n.searcher.Query()
}

// Direction returns the direction of the last search.
func (n *Navigator) Direction() Direction { return n.dir }

// Matches returns the matches of the current query at the current width.
func (n *Navigator) Matches() []SearchMatch {
	if n.searcher == nil {
		return nil
	}
	n.ensureSearcher()
	return n.searcher.Matches()
}

// Selected returns the match the position was last moved to by a search.
func (n *Navigator) Selected() (SearchMatch, bool) {
	if n.searcher == nil || n.selected < 0 || n.selected >= n.searcher.Len() {
		return SearchMatch{}, false
	}
	return n.searcher.hits[n.selected].match, true
}

// TypeQuery appends r to the query and moves to the first match from the
// point the search started, in the search direction. Without a match the
// position returns to that point. It reports whether a match was found.
func (n *Navigator) TypeQuery(r rune) bool {
	if n.mode != ModeSearch {
		return false
	}
	n.searcher.Append(r)
	return n.seekFromReturn()
}

// Backspace removes the last query character and searches again from the
// point the search started.
func (n *Navigator) Backspace() bool {
	if n.mode != ModeSearch {
		return false
	}
	n.searcher.Backspace()
	return n.seekFromReturn()
}

func (n *Navigator) seekFromReturn() bool {
	n.pos = n.ret
	loc := n.location()
	var m SearchMatch
	var ok bool
	if n.dir == Forward {
		m, ok = n.searcher.Seek(loc)
	} else {
		m, ok = n.searcher.SeekBack(loc)
	}
	if !ok {
		n.selected = -1
		return false
	}
	n.moveTo(m)
	return true
}

func (n *Navigator) moveTo(m SearchMatch) {
	n.pos = Position{Chapter: m.Chapter, Offset: m.Offset(n.linesOf(m.Chapter))}
	n.selected = n.indexOf(m)
}

func (n *Navigator) indexOf(m SearchMatch) int {
	hits := n.searcher.hits
	i := sort.Search(len(hits), func(i int) bool {
		return !hits[i].match.Location().Less(m.Location())
	})
	if i < len(hits) && hits[i].match == m {
		return i
	}
	return -1
}

// SelectMatch leaves search mode at the current match. The point the search
// started from becomes the jump-back mark.
func (n *Navigator) SelectMatch() {
	if n.mode != ModeSearch {
		return
	}
	n.mode = ModeReading
	if n.pos != n.ret {
		n.back = n.ret
		n.hasBack = true
	}
}

// CancelSearch leaves search mode and restores the position the search
// started from.
func (n *Navigator) CancelSearch() {
	if n.mode != ModeSearch {
		return
	}
	n.mode = ModeReading
	n.pos = n.ret
	n.selected = -1
}

// RepeatSearch moves to the next match after the current position in the
// last search direction, or against it when reverse is set. Matches wrap
// around the book. It reports false when there is no query or no match.
func (n *Navigator) RepeatSearch(reverse bool) bool {
	if n.searcher == nil || n.searcher.Query() == "" {
		return false
	}
	n.ensureSearcher()
	dir := n.dir
	if reverse {
		dir = 1 - dir
	}
	loc := n.location()
	var m SearchMatch
	var ok bool
	if dir == Forward {
		m, ok = n.searcher.Next(loc)
	} else {
		m, ok = n.searcher.Prev(loc)
	}
	if !ok {
		return false
	}
	n.mark()
	n.moveTo(m)
	return true
}

// --- table of contents ---

// OpenTOC enters TOC mode with the cursor on the last entry at or before
// the current position. The position is restored when the TOC is closed.
func (n *Navigator) OpenTOC() {
	n.mode = ModeTOC
	n.ret = n.pos
	n.tocCursor = -1
	walkTOC(n.book.toc, func(t *TocNode) bool {
		if !t.HasTarget() || t.Chapter > n.pos.Chapter {
			return true
		}
		if p, ok := n.book.TocPosition(*t); ok && !n.pos.Less(p) {
			n.tocCursor = t.ID
		}
		return true
	})
	if n.tocCursor < 0 && len(n.book.toc) > 0 {
		n.tocCursor = n.book.toc[0].ID
	}
	// Reveal the cursor.
	for id := n.tocCursor; ; {
		p, ok := n.book.TocParent(id)
		if !ok {
			break
		}
		n.expanded[p.ID] = true
		id = p.ID
	}
}

// CloseTOC leaves TOC mode and restores the position it was opened at.
func (n *Navigator) CloseTOC() {
	if n.mode != ModeTOC {
		return
	}
	n.mode = ModeReading
	n.pos = n.ret
}

// TOC returns the visible TOC rows: top-level entries plus the children of
// expanded entries.
func (n *Navigator) TOC() []TocEntry {
	var out []TocEntry
	var visit func(nodes []TocNode)
	visit = func(nodes []TocNode) {
		for _, t := range nodes {
			open := n.expanded[t.ID]
			out = append(out, TocEntry{Node: t, Expanded: open})
			if open {
				visit(t.Children)
			}
		}
	}
	visit(n.book.toc)
	return out
}

// TOCCursor returns the ID of the selected TOC node, or -1.
func (n *Navigator) TOCCursor() int { return n.tocCursor }

// MoveTOCCursor moves the cursor delta rows through the visible entries.
func (n *Navigator) MoveTOCCursor(delta int) {
	rows := n.TOC()
	if len(rows) == 0 {
		return
	}
	i := 0
	for k, r := range rows {
		if r.Node.ID == n.tocCursor {
			i = k
			break
		}
	}
	i = min(max(i+delta, 0), len(rows)-1)
	n.tocCursor = rows[i].Node.ID
}

// ToggleNode expands or collapses the node with the given ID.
func (n *Navigator) ToggleNode(id int) {
	t, ok := n.book.TocNode(id)
	if !ok || len(t.Children) == 0 {
		return
	}
	if n.expanded[id] {
		delete(n.expanded, id)
	} else {
		n.expanded[id] = true
	}
}

// Expanded reports whether the node with the given ID is expanded.
func (n *Navigator) Expanded(id int) bool { return n.expanded[id] }

// TOCParent moves the cursor to the parent of the selected node and
// collapses it.
func (n *Navigator) TOCParent() bool {
	p, ok := n.book.TocParent(n.tocCursor)
	if !ok {
		return false
	}
	n.tocCursor = p.ID
	delete(n.expanded, p.ID)
	return true
}

// JumpTOC leaves TOC mode at the target of the node with the given ID.
// Label-only nodes cannot be jumped to.
func (n *Navigator) JumpTOC(id int) bool {
	t, ok := n.book.TocNode(id)
	if !ok {
		return false
	}
	p, ok := n.book.TocPosition(t)
	if !ok {
		return false
	}
	n.mode = ModeReading
	n.pos = n.ret
	n.jump(n.clamp(p))
	return true
}

// --- bookmarks ---

// SetBookmark stores the current position under label, replacing any
// bookmark with the same label.
func (n *Navigator) SetBookmark(label string) {
	bm := Bookmark{Label: label, Position: n.pos}
	for i := range n.bookmarks {
		if n.bookmarks[i].Label == label {
			n.bookmarks[i] = bm
			return
		}
	}
	n.bookmarks = append(n.bookmarks, bm)
}

// RemoveBookmark deletes the bookmark with the given label.
func (n *Navigator) RemoveBookmark(label string) bool {
	for i := range n.bookmarks {
		if n.bookmarks[i].Label == label {
			n.bookmarks = append(n.bookmarks[:i], n.bookmarks[i+1:]...)
			return true
		}
	}
	return false
}

// JumpBookmark jumps to the bookmark with the given label.
func (n *Navigator) JumpBookmark(label string) bool {
	for _, bm := range n.bookmarks {
		if bm.Label == label {
			n.jump(n.clamp(bm.Position))
			return true
		}
	}
	return false
}

// Bookmarks returns the bookmarks ordered by position.
func (n *Navigator) Bookmarks() []Bookmark {
	out := append([]Bookmark(nil), n.bookmarks...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position.Less(out[j].Position)
	})
	return out
}

// SetBookmarks replaces the bookmark set, e.g. with one restored from disk.
func (n *Navigator) SetBookmarks(bms []Bookmark) {
	n.bookmarks = append([]Bookmark(nil), bms...)
}
