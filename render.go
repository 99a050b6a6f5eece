package bk

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// Tags whose content is never shown.
var skipTags = map[atom.Atom]bool{
	atom.Head:   true,
	atom.Title:  true,
	atom.Script: true,
	atom.Style:  true,
}

// Tags that separate paragraphs, both where they open and where they close.
var paragraphTags = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.Blockquote: true,
	atom.Tr:         true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Dl:         true,
	atom.Table:      true,
	atom.Section:    true,
	atom.Article:    true,
	atom.Aside:      true,
	atom.Header:     true,
	atom.Footer:     true,
	atom.Figure:     true,
	atom.Pre:        true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
}

// Tags that set a style flag for their content.
var styleTags = map[atom.Atom]Style{
	atom.B:      Bold,
	atom.Strong: Bold,
	atom.H1:     Bold,
	atom.H2:     Bold,
	atom.H3:     Bold,
	atom.H4:     Bold,
	atom.H5:     Bold,
	atom.H6:     Bold,
	atom.I:      Italic,
	atom.Em:     Italic,
}

// Render converts chapter markup into styled runs. It never fails: the
// markup is read as a tolerant token stream and whatever text can be
// recovered is returned.
func Render(raw []byte) []StyledRun {
	runs, _ := render(raw)
	return runs
}

type styleFrame struct {
	tag  atom.Atom
	flag Style
}

// renderer accumulates runs while walking the token stream.
type renderer struct {
	runs    []StyledRun
	offset  int // length of the chapter text produced so far
	stack   []styleFrame
	skip    int
	pending Break

	// lineStart is true until the first character after a break.
	lineStart bool
	lastSpace bool

	anchors        map[string]int
	pendingAnchors []string
}

// render returns the runs of raw plus the text offset of every element id.
func render(raw []byte) ([]StyledRun, map[string]int) {
	r := &renderer{lineStart: true, anchors: make(map[string]int)}
	z := html.NewTokenizer(bytes.NewReader(decodeMarkup(raw)))

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a read error: either way the stream ends here and
			// whatever was rendered is kept.
			r.finish()
			return r.runs, r.anchors

		case html.TextToken:
			if r.skip == 0 {
				r.text(string(z.Text()))
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			if tt == html.SelfClosingTagToken {
				// <title/>, <script/> and <style/> would otherwise switch the
				// tokenizer to raw text until a close tag that never comes.
				z.NextIsNotRawText()
			}
			name, hasAttr := z.TagName()
			a := atom.Lookup(name)
			var attrs map[string]string
			if hasAttr {
				attrs = readAttrs(z)
			}
			if a == atom.Body {
				r.skip = 0
			}
			if skipTags[a] {
				if tt == html.StartTagToken {
					r.skip++
				}
				continue
			}
			if r.skip > 0 {
				continue
			}
			if id := attrs["id"]; id != "" {
				r.pendingAnchors = append(r.pendingAnchors, id)
			}
			r.open(a, attrs, tt == html.SelfClosingTagToken)

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipTags[a] {
				if r.skip > 0 {
					r.skip--
				}
				continue
			}
			if r.skip == 0 {
				r.close(a)
			}
		}
	}
}

func readAttrs(z *html.Tokenizer) map[string]string {
	attrs := make(map[string]string)
	for {
		k, v, more := z.TagAttr()
		attrs[string(k)] = string(v)
		if !more {
			return attrs
		}
	}
}

func (r *renderer) open(a atom.Atom, attrs map[string]string, selfClosing bool) {
	switch a {
	case atom.Br:
		r.brk(LineBreak)
		return
	case atom.Hr:
		r.brk(ParagraphBreak)
		r.text("* * *")
		r.brk(ParagraphBreak)
		return
	case atom.Img:
		r.brk(ParagraphBreak)
		if alt := strings.TrimSpace(attrs["alt"]); alt != "" {
			r.text("[IMG: " + alt + "]")
		} else {
			r.text("[IMG]")
		}
		r.brk(ParagraphBreak)
		return
	case atom.Li:
		r.brk(LineBreak)
		if !selfClosing {
			r.text("- ")
		}
		return
	}

	if paragraphTags[a] {
		r.brk(ParagraphBreak)
	}
	if flag, ok := styleTags[a]; ok && !selfClosing {
		r.stack = append(r.stack, styleFrame{tag: a, flag: flag})
	}
}

func (r *renderer) close(a atom.Atom) {
	// Pop the innermost frame opened by the same tag; mis-nested or stray
	// end tags only affect their own frame.
	for i := len(r.stack) - 1; i >= 0; i-- {
		if r.stack[i].tag == a {
			r.stack = append(r.stack[:i], r.stack[i+1:]...)
			break
		}
	}
	switch {
	case a == atom.Li:
		r.brk(LineBreak)
	case paragraphTags[a]:
		r.brk(ParagraphBreak)
	}
}

func (r *renderer) style() Style {
	var s Style
	for _, f := range r.stack {
		s |= f.flag
	}
	return s
}

// brk requests a break before the next text. Breaks before any text are
// dropped, and consecutive requests merge into the strongest one.
func (r *renderer) brk(kind Break) {
	if len(r.runs) == 0 {
		return
	}
	r.trimTrailingSpace()
	if kind > r.pending {
		r.pending = kind
	}
}

// text appends s with whitespace collapsed. Whitespace at the start of a
// line or right after another space is dropped.
func (r *renderer) text(s string) {
	var buf strings.Builder
	for _, c := range s {
		if isSpace(c) {
			if r.lineStart || r.lastSpace || r.pending != NoBreak {
				continue
			}
			buf.WriteByte(' ')
			r.lastSpace = true
			continue
		}
		if r.pending != NoBreak {
			r.flushText(&buf)
			r.emitBreak()
		}
		if r.lineStart {
			r.resolveAnchors()
		}
		buf.WriteRune(c)
		r.lineStart = false
		r.lastSpace = false
	}
	r.flushText(&buf)
}

func (r *renderer) flushText(buf *strings.Builder) {
	if buf.Len() == 0 {
		return
	}
	s := buf.String()
	buf.Reset()
	r.resolveAnchors()
	st := r.style()
	if n := len(r.runs); n > 0 && !r.runs[n-1].IsBreak() && r.runs[n-1].Style == st {
		r.runs[n-1].Text += s
	} else {
		r.runs = append(r.runs, StyledRun{Text: s, Style: st})
	}
	r.offset += len(s)
}

func (r *renderer) emitBreak() {
	r.runs = append(r.runs, StyledRun{Break: r.pending})
	r.offset++
	r.pending = NoBreak
	r.lineStart = true
	r.lastSpace = false
}

// resolveAnchors pins ids seen since the last text to the current offset.
func (r *renderer) resolveAnchors() {
	for _, id := range r.pendingAnchors {
		if _, ok := r.anchors[id]; !ok {
			r.anchors[id] = r.offset
		}
	}
	r.pendingAnchors = r.pendingAnchors[:0]
}

// trimTrailingSpace removes the space that ended the current block.
func (r *renderer) trimTrailingSpace() {
	n := len(r.runs)
	if n == 0 || r.runs[n-1].IsBreak() || !r.lastSpace {
		return
	}
	last := &r.runs[n-1]
	last.Text = strings.TrimSuffix(last.Text, " ")
	r.offset--
	if last.Text == "" {
		r.runs = r.runs[:n-1]
	}
	r.lastSpace = false
	for id, off := range r.anchors {
		if off > r.offset {
			r.anchors[id] = r.offset
		}
	}
}

func (r *renderer) finish() {
	r.trimTrailingSpace()
	r.resolveAnchors()
}

func isSpace(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// decodeMarkup strips a BOM and converts non-UTF-8 markup to UTF-8 using
// the declared or sniffed charset.
func decodeMarkup(raw []byte) []byte {
	data := stripBOM(raw)
	if utf8.Valid(data) {
		return data
	}
	enc, _, _ := charset.DetermineEncoding(data, "application/xhtml+xml")
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}
