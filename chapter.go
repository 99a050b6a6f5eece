package bk

import (
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
)

// Chapter is one linear spine item. Its content is decompressed on first
// use; the rendered runs are kept for the life of the book and the wrapped
// lines are cached for the most recently requested width.
type Chapter struct {
	// Index is the position of the chapter in Book.Chapters.
	Index int

	// ID is the manifest item id.
	ID string

	// Manifest is the index of the chapter's manifest entry.
	Manifest int

	// Href is the archive path of the content document.
	Href string

	// Title comes from the first TOC entry targeting the chapter, or is
	// "Chapter N".
	Title string

	file  *zip.File
	limit int64
	log   zerolog.Logger

	raw      []byte
	loaded   bool
	runs     []StyledRun
	anchors  map[string]int
	rendered bool
	length   int

	lines []DisplayLine
	width int
}

// RawContent returns the chapter's markup, reading it from the archive on
// the first call.
func (c *Chapter) RawContent() ([]byte, error) {
	if c == nil || c.file == nil {
		return nil, ErrInvalidChapter
	}
	if c.loaded {
		return c.raw, nil
	}
	data, err := readZipFile(c.file, c.limit)
	if err != nil {
		return nil, err
	}
	c.raw = stripBOM(data)
	c.loaded = true
	c.log.Debug().Str("href", c.Href).Int("bytes", len(c.raw)).Msg("chapter decompressed")
	return c.raw, nil
}

func (c *Chapter) ensureRendered() error {
	if c.rendered {
		return nil
	}
	raw, err := c.RawContent()
	if err != nil {
		return err
	}
	c.runs, c.anchors = render(raw)
	c.length = runsLength(c.runs)
	c.rendered = true
	c.log.Debug().Str("href", c.Href).Int("runs", len(c.runs)).Msg("chapter rendered")
	return nil
}

// Runs returns the chapter's styled runs. The slice is shared; callers must
// not modify it.
func (c *Chapter) Runs() ([]StyledRun, error) {
	if err := c.ensureRendered(); err != nil {
		return nil, err
	}
	return c.runs, nil
}

// Lines returns the chapter wrapped to width. The result is cached until a
// different width is requested and must not be modified.
func (c *Chapter) Lines(width int) ([]DisplayLine, error) {
	if width <= 0 {
		return nil, ErrInvalidWidth
	}
	if err := c.ensureRendered(); err != nil {
		return nil, err
	}
	if c.lines != nil && c.width == width {
		return c.lines, nil
	}
	c.lines = Wrap(c.runs, width)
	c.width = width
	c.log.Debug().Str("href", c.Href).Int("width", width).Int("lines", len(c.lines)).Msg("chapter reflowed")
	return c.lines, nil
}

// Text returns the chapter text: run texts concatenated with a newline for
// every break. Position offsets index into this string.
func (c *Chapter) Text() (string, error) {
	if err := c.ensureRendered(); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.Grow(c.length)
	for _, r := range c.runs {
		if r.IsBreak() {
			sb.WriteByte('\n')
		} else {
			sb.WriteString(r.Text)
		}
	}
	return sb.String(), nil
}

// Len returns the length in bytes of the chapter text.
func (c *Chapter) Len() (int, error) {
	if err := c.ensureRendered(); err != nil {
		return 0, err
	}
	return c.length, nil
}

// Anchor returns the text offset of the element with the given id.
func (c *Chapter) Anchor(id string) (int, bool) {
	if err := c.ensureRendered(); err != nil {
		return 0, false
	}
	off, ok := c.anchors[id]
	return off, ok
}

// OffsetAt converts a fraction of the chapter (0 to 1) into a text offset.
func (c *Chapter) OffsetAt(fraction float64) (int, error) {
	n, err := c.Len()
	if err != nil {
		return 0, err
	}
	switch {
	case fraction <= 0:
		return 0, nil
	case fraction >= 1:
		return n, nil
	}
	return int(fraction * float64(n)), nil
}

func runsLength(runs []StyledRun) int {
	n := 0
	for _, r := range runs {
		if r.IsBreak() {
			n++
		} else {
			n += len(r.Text)
		}
	}
	return n
}

// LineAt returns the index of the line containing offset: the last line
// starting at or before it. It returns 0 for an empty slice.
func LineAt(lines []DisplayLine, offset int) int {
	i := sort.Search(len(lines), func(i int) bool { return lines[i].Start > offset })
	if i == 0 {
		return 0
	}
	return i - 1
}
