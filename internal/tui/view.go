package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/simp-lee/bk"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 {
		return ""
	}

	var body []string
	switch {
	case m.view == viewHelp:
		body = m.helpLines()
	case m.view == viewInfo:
		body = m.infoLines()
	case m.nav.Mode() == bk.ModeTOC:
		body = m.tocLines()
	default:
		body = m.pageLines()
	}

	h := m.nav.Height()
	if len(body) > h {
		body = body[:h]
	}
	for len(body) < h {
		body = append(body, "")
	}
	return strings.Join(append(body, m.statusLine()), "\n")
}

// pageLines renders the visible lines, centred in the terminal.
func (m *Model) pageLines() []string {
	lines := m.nav.Lines()
	if len(lines) == 0 {
		return []string{mutedStyle.Render("(empty chapter)")}
	}
	top := m.nav.Line()
	page := m.nav.Page()

	var marks map[int][]bk.Highlight
	if m.showMatches {
		marks = m.highlights(lines, top, len(page))
	}

	pad := strings.Repeat(" ", max((m.width-m.nav.Width())/2, 0))
	out := make([]string, len(page))
	for i, l := range page {
		if l.Blank() {
			continue
		}
		out[i] = pad + renderLine(l, marks[top+i])
	}
	return out
}

// highlights collects the match ranges on lines [top, top+n) of the
// current chapter, keyed by line index.
func (m *Model) highlights(lines []bk.DisplayLine, top, n int) map[int][]bk.Highlight {
	if m.nav.Query() == "" {
		return nil
	}
	chapter := m.nav.Position().Chapter
	out := make(map[int][]bk.Highlight)
	for _, match := range m.nav.Matches() {
		if match.Chapter < chapter || match.Line < top-1 {
			continue
		}
		if match.Chapter > chapter || match.Line >= top+n {
			break
		}
		for _, h := range match.Highlights(lines) {
			if h.Line >= top && h.Line < top+n {
				out[h.Line] = append(out[h.Line], h)
			}
		}
	}
	return out
}

// renderLine styles the spans of l, reversing the columns covered by marks.
func renderLine(l bk.DisplayLine, marks []bk.Highlight) string {
	var b strings.Builder
	col := 0
	for _, s := range l.Spans {
		start := col
		col += len(s.Text)

		cuts := []int{0, len(s.Text)}
		for _, h := range marks {
			for _, c := range []int{h.Start, h.End} {
				if c > start && c < col {
					cuts = append(cuts, c-start)
				}
			}
		}
		slices.Sort(cuts)
		cuts = slices.Compact(cuts)

		for i := 0; i+1 < len(cuts); i++ {
			piece := s.Text[cuts[i]:cuts[i+1]]
			match := covered(start+cuts[i], marks)
			if s.Style == 0 && !match {
				b.WriteString(piece)
				continue
			}
			b.WriteString(spanStyle(s.Style, match).Render(piece))
		}
	}
	return b.String()
}

func covered(col int, marks []bk.Highlight) bool {
	for _, h := range marks {
		if col >= h.Start && col < h.End {
			return true
		}
	}
	return false
}

// tocLines renders the visible TOC rows, scrolled to keep the cursor on
// screen.
func (m *Model) tocLines() []string {
	rows := m.nav.TOC()
	h := m.nav.Height()

	cur := 0
	for i, r := range rows {
		if r.Node.ID == m.nav.TOCCursor() {
			cur = i
			break
		}
	}
	if cur < m.tocTop {
		m.tocTop = cur
	}
	if cur >= m.tocTop+h {
		m.tocTop = cur - h + 1
	}
	m.tocTop = max(min(m.tocTop, len(rows)-h), 0)

	out := make([]string, 0, h)
	for i := m.tocTop; i < min(m.tocTop+h, len(rows)); i++ {
		r := rows[i]
		marker := "  "
		if len(r.Node.Children) > 0 {
			marker = "+ "
			if r.Expanded {
				marker = "- "
			}
		}
		prefix := strings.Repeat("  ", r.Node.Depth) + marker
		avail := max(m.width-runewidth.StringWidth(prefix), 1)
		line := prefix + runewidth.Truncate(r.Node.Label, avail, "…")

		switch {
		case i == cur:
			line = cursorStyle.Render(line)
		case !r.Node.HasTarget():
			line = mutedStyle.Render(line)
		}
		out = append(out, line)
	}
	return out
}

func (m *Model) helpLines() []string {
	out := []string{headingStyle.Render("Reading"), ""}
	bindings := m.keys.Help()

	w := 0
	for _, b := range bindings {
		w = max(w, runewidth.StringWidth(b.Help().Key))
	}
	for _, b := range tocKeys.all() {
		w = max(w, runewidth.StringWidth(b.Help().Key))
	}

	row := func(keys, desc string) string {
		return strings.Repeat(" ", w-runewidth.StringWidth(keys)) + keys + "  " + desc
	}
	for _, b := range bindings {
		out = append(out, row(b.Help().Key, b.Help().Desc))
	}
	out = append(out, row(jumpBackMark+jumpBackMark, "jump to the previous position"))

	out = append(out, "", headingStyle.Render("Contents"), "")
	for _, b := range tocKeys.all() {
		out = append(out, row(b.Help().Key, b.Help().Desc))
	}
	return out
}

func (m *Model) infoLines() []string {
	n := m.nav
	b := n.Book()
	md := b.Metadata()

	h := max(n.Height(), 1)
	out := []string{
		fmt.Sprintf("chapter: %d/%d", n.Line()/h+1, len(n.Lines())/h+1),
		fmt.Sprintf("total: %.0f%%", n.Progress()),
		"",
	}
	field := func(name, value string) {
		if value != "" {
			out = append(out, runewidth.Truncate(name+": "+value, m.width, "…"))
		}
	}

	field("title", strings.Join(md.Titles, " / "))
	for _, a := range md.Authors {
		v := a.Name
		if a.Role != "" {
			v += " (" + a.Role + ")"
		}
		field("author", v)
	}
	field("language", strings.Join(md.Language, ", "))
	field("publisher", md.Publisher)
	field("date", md.Date)
	for _, id := range md.Identifiers {
		v := id.Value
		if id.Scheme != "" {
			v = id.Scheme + " " + v
		}
		field("identifier", v)
	}
	field("subjects", strings.Join(md.Subjects, ", "))
	field("rights", md.Rights)
	field("source", md.Source)
	if c, ok := b.Cover(); ok {
		field("cover", c.Path)
	}
	field("epub", md.Version)

	if md.Description != "" {
		out = append(out, "")
		for _, l := range bk.Wrap(bk.Render([]byte(md.Description)), max(min(m.width, n.Width()), 1)) {
			out = append(out, l.Text())
		}
	}
	if w := b.Warnings(); len(w) > 0 {
		out = append(out, "", mutedStyle.Render(fmt.Sprintf("%d warnings while loading, see the log", len(w))))
	}
	return out
}

// statusLine renders the bottom row: the search prompt, a pending command,
// a message, or the chapter title and progress.
func (m *Model) statusLine() string {
	n := m.nav
	switch {
	case n.Mode() == bk.ModeSearch:
		prompt := "/"
		if n.Direction() == bk.Backward {
			prompt = "?"
		}
		left := prompt + n.Query()
		right := ""
		if n.Query() != "" {
			if _, ok := n.Selected(); ok {
				right = fmt.Sprintf("%d matches", len(n.Matches()))
			} else {
				right = "no match"
			}
		}
		return m.spread(left, right)
	case m.pending == pendingMark:
		return m.spread("mark:", "")
	case m.pending == pendingJump:
		return m.spread("jump to mark:", "")
	case m.status != "":
		return errorStyle.Render(runewidth.Truncate(m.status, m.width, "…"))
	case n.Mode() == bk.ModeTOC:
		return statusStyle.Render(m.spread("Contents", n.Book().Title()))
	}

	title := n.Chapter().Title
	return statusStyle.Render(m.spread(title, fmt.Sprintf("%.0f%%", n.Progress())))
}

// spread places left and right at the two ends of a terminal row,
// truncating left when they do not fit.
func (m *Model) spread(left, right string) string {
	rw := runewidth.StringWidth(right)
	avail := m.width - rw - 1
	if avail < 1 {
		return runewidth.Truncate(left, m.width, "…")
	}
	left = runewidth.Truncate(left, avail, "…")
	gap := m.width - runewidth.StringWidth(left) - rw
	return left + strings.Repeat(" ", max(gap, 1)) + right
}
