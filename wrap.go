package bk

import (
	"github.com/mattn/go-runewidth"
)

// piece is the part of a word that comes from one run.
type piece struct {
	text  string
	style Style
	run   int
	start int // offset of text in the chapter text
}

// gap is the whitespace between two words. Only its style and source are
// kept; it is always shown as a single space.
type gap struct {
	style Style
	run   int
	set   bool
}

// wrapper holds the state of one Wrap call.
type wrapper struct {
	width int
	lines []DisplayLine

	cur      DisplayLine
	curWidth int
	curEmpty bool

	word      []piece
	wordWidth int
	space     gap
}

// Wrap breaks runs into lines of at most width display columns.
//
// Words are separated by whitespace and may cross run boundaries, in which
// case each part keeps the style of its run. A word wider than width is put
// on a line of its own without being broken. A paragraph break ends the
// current line and adds one blank line; a line break only ends the line.
// Widths below 1 are treated as 1.
//
// Wrap is pure: equal inputs give equal outputs.
func Wrap(runs []StyledRun, width int) []DisplayLine {
	if width < 1 {
		width = 1
	}
	w := &wrapper{width: width, curEmpty: true}

	offset := 0
	for i, r := range runs {
		if r.IsBreak() {
			w.endWord()
			w.space = gap{}
			w.emit()
			if r.Break == ParagraphBreak {
				w.lines = append(w.lines, DisplayLine{Start: offset, End: offset, FirstRun: i, LastRun: i})
			}
			offset++
			continue
		}

		text := r.Text
		wordStart := -1
		for j := 0; j < len(text); j++ {
			if isSpace(rune(text[j])) {
				if wordStart >= 0 {
					w.addPiece(piece{text: text[wordStart:j], style: r.Style, run: i, start: offset + wordStart})
					wordStart = -1
				}
				w.endWord()
				if !w.space.set {
					w.space = gap{style: r.Style, run: i, set: true}
				}
				continue
			}
			if wordStart < 0 {
				wordStart = j
			}
		}
		if wordStart >= 0 {
			w.addPiece(piece{text: text[wordStart:], style: r.Style, run: i, start: offset + wordStart})
		}
		offset += len(text)
	}
	w.endWord()
	w.emit()
	return w.lines
}

func (w *wrapper) addPiece(p piece) {
	w.word = append(w.word, p)
	w.wordWidth += runewidth.StringWidth(p.text)
}

// endWord places the pending word on the current line, or on a new line
// when it does not fit.
func (w *wrapper) endWord() {
	if len(w.word) == 0 {
		return
	}
	if !w.curEmpty && w.curWidth+1+w.wordWidth > w.width {
		w.emit()
	}
	if w.curEmpty {
		first := w.word[0]
		w.cur = DisplayLine{Start: first.start, FirstRun: first.run}
		w.curEmpty = false
	} else {
		w.appendSpan(" ", w.space.style)
		w.curWidth++
	}
	for _, p := range w.word {
		w.appendSpan(p.text, p.style)
	}
	last := w.word[len(w.word)-1]
	w.cur.End = last.start + len(last.text)
	w.cur.LastRun = last.run
	w.curWidth += w.wordWidth

	w.word = w.word[:0]
	w.wordWidth = 0
	w.space = gap{}
}

func (w *wrapper) appendSpan(text string, style Style) {
	if n := len(w.cur.Spans); n > 0 && w.cur.Spans[n-1].Style == style {
		w.cur.Spans[n-1].Text += text
		return
	}
	w.cur.Spans = append(w.cur.Spans, Span{Text: text, Style: style})
}

func (w *wrapper) emit() {
	if w.curEmpty {
		return
	}
	w.lines = append(w.lines, w.cur)
	w.cur = DisplayLine{}
	w.curWidth = 0
	w.curEmpty = true
}

// Width returns the display width of the line.
func (l DisplayLine) Width() int {
	n := 0
	for _, s := range l.Spans {
		n += runewidth.StringWidth(s.Text)
	}
	return n
}
