package bk

// Metadata holds the Dublin Core and other metadata extracted from the OPF file.
type Metadata struct {
	// Version is the ePub specification version (e.g., "2.0", "3.0").
	Version string

	// Titles contains all dc:title values. The first entry is the primary title.
	Titles []string

	// Authors contains all dc:creator entries with their roles and file-as values.
	Authors []Author

	// Language contains all dc:language values (BCP 47 tags, e.g., "en", "zh-CN").
	Language []string

	// Identifiers contains all dc:identifier entries (ISBN, UUID, URI, etc.).
	Identifiers []Identifier

	Publisher   string
	Date        string
	Description string
	Subjects    []string
	Rights      string
	Source      string
}

// Author represents a dc:creator entry with optional file-as and role attributes.
type Author struct {
	Name   string
	FileAs string
	Role   string
}

// Identifier represents a dc:identifier entry.
type Identifier struct {
	Value  string
	Scheme string
	ID     string
}

// Summary is the metadata-only view of a book used by preview tools.
type Summary struct {
	Title        string
	Author       string
	ChapterCount int
}

// TocNode is one entry of the table of contents tree.
type TocNode struct {
	// Label is the display text of the entry.
	Label string

	// Chapter is the index into Book.Chapters this entry jumps to.
	// A value of -1 marks a label-only entry whose target could not be resolved.
	Chapter int

	// Fragment is the element id inside the target chapter, without '#'.
	Fragment string

	// Depth is the nesting level recorded while parsing; top-level entries are 0.
	Depth int

	// ID is the pre-order index of the node in the whole tree. It identifies
	// the node in TOC expansion state.
	ID int

	Children []TocNode
}

// HasTarget reports whether the entry can be jumped to.
func (n TocNode) HasTarget() bool {
	return n.Chapter >= 0
}

// Style is a set of text style flags.
type Style uint8

// Style flags.
const (
	Bold Style = 1 << iota
	Italic
)

// Has reports whether all flags in f are set in s.
func (s Style) Has(f Style) bool {
	return s&f == f
}

func (s Style) String() string {
	switch s {
	case 0:
		return "{}"
	case Bold:
		return "{bold}"
	case Italic:
		return "{italic}"
	default:
		return "{bold,italic}"
	}
}

// Break is the kind of break marker a StyledRun represents.
type Break uint8

// Break kinds. A paragraph break is stronger than a line break.
const (
	NoBreak Break = iota
	LineBreak
	ParagraphBreak
)

// StyledRun is a contiguous span of text sharing one style, or a break marker.
// A break marker has an empty Text and occupies one byte ('\n') of chapter text.
type StyledRun struct {
	Text  string
	Style Style
	Break Break
}

// IsBreak reports whether the run is a break marker.
func (r StyledRun) IsBreak() bool {
	return r.Break != NoBreak
}

// Span is a piece of a DisplayLine sharing one style.
type Span struct {
	Text  string
	Style Style
}

// DisplayLine is one line of wrapped chapter text.
type DisplayLine struct {
	Spans []Span

	// Start and End are byte offsets into the chapter text (see Chapter.Text)
	// covered by the line. Blank lines have Start == End.
	Start int
	End   int

	// FirstRun and LastRun are the indexes of the first and last StyledRun
	// contributing to the line, inclusive.
	FirstRun int
	LastRun  int
}

// Text returns the concatenated span text of the line.
func (l DisplayLine) Text() string {
	switch len(l.Spans) {
	case 0:
		return ""
	case 1:
		return l.Spans[0].Text
	}
	n := 0
	for _, s := range l.Spans {
		n += len(s.Text)
	}
	buf := make([]byte, 0, n)
	for _, s := range l.Spans {
		buf = append(buf, s.Text...)
	}
	return string(buf)
}

// Blank reports whether the line carries no text.
func (l DisplayLine) Blank() bool {
	return len(l.Spans) == 0
}

// Position is a width-independent location in a book.
type Position struct {
	Chapter int `json:"chapter"`
	Offset  int `json:"offset"`
}

// Less orders positions by chapter, then offset.
func (p Position) Less(o Position) bool {
	if p.Chapter != o.Chapter {
		return p.Chapter < o.Chapter
	}
	return p.Offset < o.Offset
}

// Bookmark is a labelled Position.
type Bookmark struct {
	Label    string   `json:"label"`
	Position Position `json:"position"`
}

// Location addresses a column of a wrapped line.
type Location struct {
	Chapter int
	Line    int
	Column  int
}

// Less orders locations by chapter, line, then column.
func (l Location) Less(o Location) bool {
	if l.Chapter != o.Chapter {
		return l.Chapter < o.Chapter
	}
	if l.Line != o.Line {
		return l.Line < o.Line
	}
	return l.Column < o.Column
}

// SearchMatch is one occurrence of a query in wrapped text.
//
// ColumnStart and ColumnEnd are byte offsets into the text of line Line.
// A match that continues onto the following line has ColumnEnd greater than
// the length of the line text; the overflow is counted from a single joining
// space, so the match ends at column ColumnEnd-len(text)-1 of line Line+1.
type SearchMatch struct {
	Chapter     int
	Line        int
	ColumnStart int
	ColumnEnd   int
}

// Location returns the start of the match.
func (m SearchMatch) Location() Location {
	return Location{Chapter: m.Chapter, Line: m.Line, Column: m.ColumnStart}
}

// manifestItem represents an entry in the OPF <manifest> element.
type manifestItem struct {
	Index      int
	ID         string
	Href       string
	MediaType  string
	Properties string
}

// spineItem represents an entry in the OPF <spine> element.
type spineItem struct {
	IDRef  string
	Linear bool

	// Manifest is the index of the referenced manifest item, -1 if unresolved.
	Manifest int
}
