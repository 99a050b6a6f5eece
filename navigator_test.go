package bk

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"
)

// numbered returns a paragraph of n lines "<prefix>00", "<prefix>01", ...
// separated by line breaks.
func numbered(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%02d", prefix, i)
	}
	return "<p>" + strings.Join(parts, "<br/>") + "</p>"
}

func newTestNavigator(t *testing.T, b *Book, start Position) *Navigator {
	t.Helper()
	n, err := NewNavigator(b, 40, start)
	if err != nil {
		t.Fatalf("NewNavigator() error = %v", err)
	}
	return n
}

func TestNewNavigator(t *testing.T) {
	b := loadTestBook(t, epub3Files(numbered("a", 3), numbered("b", 3)))

	if _, err := NewNavigator(b, 0, Position{}); !errors.Is(err, ErrInvalidWidth) {
		t.Errorf("NewNavigator(width 0) error = %v, want ErrInvalidWidth", err)
	}

	n := newTestNavigator(t, b, Position{Chapter: 99, Offset: 1000})
	if got, want := n.Position(), (Position{Chapter: 1, Offset: 11}); got != want {
		t.Errorf("Position() = %+v, want clamped %+v", got, want)
	}
	n = newTestNavigator(t, b, Position{Chapter: -1, Offset: -5})
	if got := n.Position(); got != (Position{}) {
		t.Errorf("Position() = %+v, want zero", got)
	}
	if n.Mode() != ModeReading {
		t.Errorf("Mode() = %v, want reading", n.Mode())
	}
}

func TestNavigator_Scrolling(t *testing.T) {
	b := loadTestBook(t, epub3Files(numbered("a", 30), numbered("b", 30), numbered("c", 5)))
	n := newTestNavigator(t, b, Position{})
	n.SetHeight(10)

	n.ScrollDown(1)
	if n.Line() != 1 {
		t.Fatalf("Line() = %d after ScrollDown, want 1", n.Line())
	}
	n.PageDown()
	if n.Line() != 11 {
		t.Fatalf("Line() = %d after PageDown, want 11", n.Line())
	}
	n.PageDown()
	if n.Line() != 21 {
		t.Fatalf("Line() = %d after second PageDown, want 21", n.Line())
	}
	if page := n.Page(); len(page) != 9 || page[0].Text() != "a21" {
		t.Errorf("Page() = %q", lineTexts(page))
	}

	// The last page is showing, so the next scroll turns the chapter.
	n.PageDown()
	if got := n.Position(); got != (Position{Chapter: 1}) {
		t.Fatalf("Position() = %+v, want start of chapter 1", got)
	}

	// Scrolling up from the top shows the last page of the previous chapter.
	n.ScrollUp(1)
	if n.Position().Chapter != 0 || n.Line() != 20 {
		t.Fatalf("Position() = %+v line %d, want chapter 0 line 20", n.Position(), n.Line())
	}

	n.HalfPageUp()
	if n.Line() != 15 {
		t.Errorf("Line() = %d after HalfPageUp, want 15", n.Line())
	}
	n.HalfPageDown()
	if n.Line() != 20 {
		t.Errorf("Line() = %d after HalfPageDown, want 20", n.Line())
	}
	n.PageUp()
	n.PageUp()
	n.PageUp()
	if got := n.Position(); got != (Position{}) {
		t.Errorf("Position() = %+v, want start of book", got)
	}
	n.ScrollUp(1)
	if got := n.Position(); got != (Position{}) {
		t.Errorf("ScrollUp at the start of the book moved to %+v", got)
	}

	// Scrolling past the last page of the book does nothing.
	n.GoTo(Position{Chapter: 2})
	n.ScrollDown(1)
	if n.Position().Chapter != 2 {
		t.Errorf("ScrollDown past the end of the book moved to %+v", n.Position())
	}
}

func TestNavigator_Chapters(t *testing.T) {
	b := loadTestBook(t, epub3Files(numbered("a", 30), numbered("b", 3)))
	n := newTestNavigator(t, b, Position{})
	n.SetHeight(10)

	n.ChapterEnd()
	if n.Line() != 20 {
		t.Errorf("Line() = %d after ChapterEnd, want 20", n.Line())
	}
	n.ChapterStart()
	if n.Line() != 0 {
		t.Errorf("Line() = %d after ChapterStart, want 0", n.Line())
	}

	n.NextChapter()
	n.NextChapter()
	if n.Position().Chapter != 1 {
		t.Errorf("Chapter = %d, want 1", n.Position().Chapter)
	}
	if n.Chapter() != b.Chapter(1) {
		t.Error("Chapter() does not return the current chapter")
	}
	n.PrevChapter()
	n.PrevChapter()
	if n.Position() != (Position{}) {
		t.Errorf("Position() = %+v, want zero", n.Position())
	}

	if err := n.GoToFraction(5, 0.5); !errors.Is(err, ErrInvalidChapter) {
		t.Errorf("GoToFraction(5) error = %v, want ErrInvalidChapter", err)
	}
	if err := n.GoToFraction(0, 0.5); err != nil {
		t.Fatalf("GoToFraction() error = %v", err)
	}
	l, _ := b.Chapter(0).Len()
	if got := n.Position(); got != (Position{Chapter: 0, Offset: l / 2}) {
		t.Errorf("Position() = %+v, want offset %d", got, l/2)
	}
}

func TestNavigator_JumpBack(t *testing.T) {
	b := loadTestBook(t, epub3Files(numbered("a", 3), numbered("b", 3), numbered("c", 3)))
	n := newTestNavigator(t, b, Position{})
	n.SetHeight(1)

	if n.JumpBack() {
		t.Error("JumpBack() without a jump should report false")
	}

	n.ScrollDown(1)
	start := n.Position()
	n.GoTo(Position{Chapter: 2})
	if !n.JumpBack() || n.Position() != start {
		t.Fatalf("JumpBack() moved to %+v, want %+v", n.Position(), start)
	}
	// A second jump back swaps again.
	if !n.JumpBack() || n.Position() != (Position{Chapter: 2}) {
		t.Fatalf("second JumpBack() moved to %+v", n.Position())
	}
}

func TestNavigator_Progress(t *testing.T) {
	b := loadTestBook(t, epub3Files(numbered("a", 10), numbered("b", 10), numbered("c", 10)))
	n := newTestNavigator(t, b, Position{})

	near := func(got, want float64) bool { return math.Abs(got-want) < 0.01 }

	if p := n.Progress(); p != 0 {
		t.Errorf("Progress() = %v at the start, want 0", p)
	}
	n.GoTo(Position{Chapter: 1})
	if p := n.Progress(); !near(p, 100.0/3) {
		t.Errorf("Progress() = %v, want 33.33", p)
	}
	if err := n.GoToFraction(2, 0.5); err != nil {
		t.Fatal(err)
	}
	l, _ := b.Chapter(2).Len()
	frac := float64(l/2) / float64(l)
	if p := n.ChapterProgress(); !near(p, frac*100) {
		t.Errorf("ChapterProgress() = %v, want %v", p, frac*100)
	}
	if p := n.Progress(); !near(p, (2+frac)/3*100) {
		t.Errorf("Progress() = %v, want %v", p, (2+frac)/3*100)
	}
	if err := n.GoToFraction(2, 1); err != nil {
		t.Fatal(err)
	}
	if p := n.Progress(); !near(p, 100) {
		t.Errorf("Progress() = %v at the end, want 100", p)
	}
}

func TestNavigator_SetWidthKeepsPosition(t *testing.T) {
	b := loadTestBook(t, epub3Files("<p>"+strings.Repeat("lorem ipsum dolor sit amet ", 40)+"</p>"))
	n := newTestNavigator(t, b, Position{})
	n.SetHeight(5)
	n.ScrollDown(7)
	pos := n.Position()

	for _, w := range []int{12, 33, 80} {
		if err := n.SetWidth(w); err != nil {
			t.Fatalf("SetWidth(%d) error = %v", w, err)
		}
		if n.Position() != pos {
			t.Fatalf("SetWidth(%d) moved the position to %+v", w, n.Position())
		}
		l := n.Lines()[n.Line()]
		if pos.Offset < l.Start || pos.Offset > l.End {
			t.Errorf("width %d: top line [%d, %d) does not contain offset %d", w, l.Start, l.End, pos.Offset)
		}
	}
	if err := n.SetWidth(0); !errors.Is(err, ErrInvalidWidth) {
		t.Errorf("SetWidth(0) error = %v, want ErrInvalidWidth", err)
	}
}

func searchBook(t *testing.T) *Book {
	return loadTestBook(t, epub3Files(
		"<p>alpha beta</p>",
		"<p>gamma beta</p>",
		"<p>beta delta</p>",
	))
}

func typeQuery(n *Navigator, q string) bool {
	ok := false
	for _, r := range q {
		ok = n.TypeQuery(r)
	}
	return ok
}

func TestNavigator_Search(t *testing.T) {
	n := newTestNavigator(t, searchBook(t), Position{})

	if n.RepeatSearch(false) {
		t.Error("RepeatSearch() without a query should report false")
	}

	n.StartSearch(Forward)
	if n.Mode() != ModeSearch {
		t.Fatalf("Mode() = %v, want search", n.Mode())
	}
	if !n.TypeQuery('b') {
		t.Fatal("TypeQuery('b') found nothing")
	}
	if got := n.Position(); got != (Position{Chapter: 0, Offset: 6}) {
		t.Errorf("Position() = %+v after typing, want the first match", got)
	}
	typeQuery(n, "eta")
	if n.Query() != "beta" || len(n.Matches()) != 3 {
		t.Fatalf("Query() = %q, %d matches", n.Query(), len(n.Matches()))
	}
	if m, ok := n.Selected(); !ok || m.Chapter != 0 {
		t.Errorf("Selected() = %+v, %v", m, ok)
	}

	n.SelectMatch()
	if n.Mode() != ModeReading {
		t.Fatalf("Mode() = %v after SelectMatch, want reading", n.Mode())
	}

	want := []Position{{Chapter: 1, Offset: 6}, {Chapter: 2, Offset: 0}, {Chapter: 0, Offset: 6}}
	for i, p := range want {
		if !n.RepeatSearch(false) || n.Position() != p {
			t.Fatalf("RepeatSearch #%d moved to %+v, want %+v", i, n.Position(), p)
		}
	}
	if !n.RepeatSearch(true) || n.Position() != (Position{Chapter: 2}) {
		t.Errorf("reverse RepeatSearch moved to %+v, want the last match", n.Position())
	}
	if !n.JumpBack() || n.Position() != (Position{Chapter: 0, Offset: 6}) {
		t.Errorf("JumpBack() after RepeatSearch moved to %+v", n.Position())
	}
}

func TestNavigator_SearchSelectSetsJumpBack(t *testing.T) {
	n := newTestNavigator(t, searchBook(t), Position{Chapter: 1})
	n.StartSearch(Forward)
	typeQuery(n, "delta")
	n.SelectMatch()
	if n.Position() != (Position{Chapter: 2, Offset: 5}) {
		t.Fatalf("Position() = %+v", n.Position())
	}
	if !n.JumpBack() || n.Position() != (Position{Chapter: 1}) {
		t.Errorf("JumpBack() moved to %+v, want the search start", n.Position())
	}
}

func TestNavigator_SearchCancel(t *testing.T) {
	n := newTestNavigator(t, searchBook(t), Position{Chapter: 1})
	n.StartSearch(Forward)

	// "alpha" is only before the start, so the search wraps.
	if !typeQuery(n, "alpha") || n.Position() != (Position{}) {
		t.Fatalf("Position() = %+v, want the wrapped match", n.Position())
	}
	n.CancelSearch()
	if n.Mode() != ModeReading || n.Position() != (Position{Chapter: 1}) {
		t.Errorf("after CancelSearch: mode %v, position %+v", n.Mode(), n.Position())
	}
	if n.TypeQuery('x') {
		t.Error("TypeQuery outside search mode should report false")
	}
}

func TestNavigator_SearchNoMatchAndBackspace(t *testing.T) {
	n := newTestNavigator(t, searchBook(t), Position{Chapter: 1})
	n.StartSearch(Forward)

	if typeQuery(n, "betx") {
		t.Fatal("TypeQuery found a match for betx")
	}
	if n.Position() != (Position{Chapter: 1}) {
		t.Errorf("Position() = %+v, want the search start", n.Position())
	}
	if _, ok := n.Selected(); ok {
		t.Error("Selected() reports a match after a failed search")
	}

	if !n.Backspace() {
		t.Fatal("Backspace() found no match for bet")
	}
	if n.Position() != (Position{Chapter: 1, Offset: 6}) {
		t.Errorf("Position() = %+v, want the match in chapter 1", n.Position())
	}
}

func TestNavigator_SearchBackward(t *testing.T) {
	n := newTestNavigator(t, searchBook(t), Position{Chapter: 1})
	n.StartSearch(Backward)
	typeQuery(n, "beta")
	if n.Position() != (Position{Chapter: 0, Offset: 6}) {
		t.Fatalf("Position() = %+v, want the match before the start", n.Position())
	}
	n.SelectMatch()
	if n.Direction() != Backward {
		t.Errorf("Direction() = %v, want Backward", n.Direction())
	}
	// n repeats backward, N forward.
	if !n.RepeatSearch(false) || n.Position() != (Position{Chapter: 2}) {
		t.Errorf("RepeatSearch(false) moved to %+v, want wrap to the last match", n.Position())
	}
	if !n.RepeatSearch(true) || n.Position() != (Position{Chapter: 0, Offset: 6}) {
		t.Errorf("RepeatSearch(true) moved to %+v", n.Position())
	}
}

func TestNavigator_SearchSurvivesWidthChange(t *testing.T) {
	n := newTestNavigator(t, searchBook(t), Position{})
	n.StartSearch(Forward)
	typeQuery(n, "a be")
	before := len(n.Matches())
	if before != 2 {
		t.Fatalf("matches = %+v, want 2", n.Matches())
	}
	// At width 5 "alpha" and "beta" are on separate lines; the match
	// continues across the wrap.
	if err := n.SetWidth(5); err != nil {
		t.Fatal(err)
	}
	if got := len(n.Matches()); got != before {
		t.Errorf("matches after SetWidth = %+v, want %d", n.Matches(), before)
	}
	m := n.Matches()[0]
	if m.Line != 0 || m.ColumnStart != 4 {
		t.Errorf("first match = %+v", m)
	}
	if sel, ok := n.Selected(); !ok || sel != m {
		t.Errorf("Selected() = %+v, %v after SetWidth, want %+v", sel, ok, m)
	}
}

func TestNavigator_TOC(t *testing.T) {
	b := nestedTOCBook(t)
	s1, _ := b.TocNode(1)
	p, ok := b.TocPosition(s1)
	if !ok {
		t.Fatal("TocPosition() failed")
	}
	n := newTestNavigator(t, b, p)

	n.OpenTOC()
	if n.Mode() != ModeTOC {
		t.Fatalf("Mode() = %v, want toc", n.Mode())
	}
	if n.TOCCursor() != 1 {
		t.Errorf("TOCCursor() = %d, want 1", n.TOCCursor())
	}
	if !n.Expanded(0) {
		t.Error("the cursor's parent should be expanded")
	}
	labels := func() []string {
		var out []string
		for _, e := range n.TOC() {
			out = append(out, e.Node.Label)
		}
		return out
	}
	if got, want := labels(), []string{"One", "One, first", "One, second", "Appendices"}; !reflect.DeepEqual(got, want) {
		t.Errorf("TOC() = %q, want %q", got, want)
	}

	n.MoveTOCCursor(1)
	if n.TOCCursor() != 2 {
		t.Errorf("TOCCursor() = %d, want 2", n.TOCCursor())
	}
	n.MoveTOCCursor(10)
	if n.TOCCursor() != 3 {
		t.Errorf("TOCCursor() = %d, want 3 (clamped)", n.TOCCursor())
	}
	if n.JumpTOC(3) {
		t.Error("JumpTOC() on a label-only node should report false")
	}

	n.ToggleNode(3)
	n.MoveTOCCursor(1)
	if n.TOCCursor() != 4 {
		t.Fatalf("TOCCursor() = %d, want 4 after expanding", n.TOCCursor())
	}
	if !n.JumpTOC(4) {
		t.Fatal("JumpTOC(4) failed")
	}
	if n.Mode() != ModeReading || n.Position() != (Position{Chapter: 1}) {
		t.Errorf("after JumpTOC: mode %v, position %+v", n.Mode(), n.Position())
	}
	if !n.JumpBack() || n.Position() != p {
		t.Errorf("JumpBack() moved to %+v, want %+v", n.Position(), p)
	}
}

func TestNavigator_TOCParentAndClose(t *testing.T) {
	b := nestedTOCBook(t)
	s1, _ := b.TocNode(1)
	p, _ := b.TocPosition(s1)
	n := newTestNavigator(t, b, p)

	n.OpenTOC()
	if !n.TOCParent() || n.TOCCursor() != 0 {
		t.Fatalf("TOCParent() cursor = %d, want 0", n.TOCCursor())
	}
	if n.Expanded(0) {
		t.Error("TOCParent() should collapse the parent")
	}
	if len(n.TOC()) != 2 {
		t.Errorf("TOC() = %+v, want the two top-level entries", n.TOC())
	}
	if n.TOCParent() {
		t.Error("TOCParent() on a top-level node should report false")
	}

	n.ToggleNode(0)
	if !n.Expanded(0) {
		t.Error("ToggleNode() did not expand")
	}
	n.ToggleNode(4) // leaf, ignored
	if n.Expanded(4) {
		t.Error("ToggleNode() expanded a leaf")
	}

	n.CloseTOC()
	if n.Mode() != ModeReading || n.Position() != p {
		t.Errorf("after CloseTOC: mode %v, position %+v", n.Mode(), n.Position())
	}
}

func TestNavigator_Bookmarks(t *testing.T) {
	n := newTestNavigator(t, searchBook(t), Position{Chapter: 1})

	n.SetBookmark("z")
	n.GoTo(Position{})
	n.SetBookmark("a")

	got := n.Bookmarks()
	if len(got) != 2 || got[0].Label != "a" || got[1].Label != "z" {
		t.Fatalf("Bookmarks() = %+v, want ordered by position", got)
	}

	if !n.JumpBookmark("z") || n.Position() != (Position{Chapter: 1}) {
		t.Errorf("JumpBookmark(z) moved to %+v", n.Position())
	}
	if n.JumpBookmark("missing") {
		t.Error("JumpBookmark(missing) should report false")
	}

	n.GoTo(Position{Chapter: 2})
	n.SetBookmark("z")
	if bms := n.Bookmarks(); len(bms) != 2 || bms[1].Position != (Position{Chapter: 2}) {
		t.Errorf("Bookmarks() = %+v, want z replaced", bms)
	}

	if !n.RemoveBookmark("a") || n.RemoveBookmark("a") {
		t.Error("RemoveBookmark() should succeed once")
	}

	restored := []Bookmark{{Label: "x", Position: Position{Chapter: 1, Offset: 2}}}
	n.SetBookmarks(restored)
	restored[0].Label = "mutated"
	if bms := n.Bookmarks(); len(bms) != 1 || bms[0].Label != "x" {
		t.Errorf("Bookmarks() = %+v, want a copy of the restored set", bms)
	}
}

func TestNavigator_UnreadableChapter(t *testing.T) {
	files := epub3Files("<p>"+strings.Repeat("word ", 2000)+"</p>", "<p>fine</p>")
	b, err := Load(buildTestEPubBytes(t, files), WithMaxEntrySize(4096))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	n := newTestNavigator(t, b, Position{})

	if lines := n.Lines(); lines != nil {
		t.Errorf("Lines() = %d lines, want none for an unreadable chapter", len(lines))
	}
	if n.Page() != nil {
		t.Error("Page() should be empty")
	}
	n.ScrollDown(1)
	if n.Position() != (Position{Chapter: 1}) {
		t.Errorf("Position() = %+v, want the next chapter", n.Position())
	}
}
