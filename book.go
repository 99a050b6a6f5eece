package bk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
)

// expectedMimetype is the required content of the "mimetype" entry.
const expectedMimetype = "application/epub+zip"

// Book is a loaded ePub: metadata, chapters in reading order and the table
// of contents. Its structure is fixed once loading returns; only the
// per-chapter content caches fill in as chapters are read.
//
// A Book is not safe for concurrent use by multiple goroutines.
type Book struct {
	archive  *archive
	closer   io.Closer
	opfDir   string
	opf      *opfPackage
	manifest []manifestItem
	byID     map[string]int
	spine    []spineItem
	metadata Metadata
	chapters []*Chapter
	toc      []TocNode
	warnings []string
	log      zerolog.Logger
}

// LoadOption configures loading.
type LoadOption func(*loadOptions)

type loadOptions struct {
	logger       zerolog.Logger
	maxEntrySize int64
}

// WithLogger sets the logger used by the book and its chapters.
func WithLogger(l zerolog.Logger) LoadOption {
	return func(o *loadOptions) { o.logger = l }
}

// WithMaxEntrySize caps the decompressed size of any single archive entry.
func WithMaxEntrySize(n int64) LoadOption {
	return func(o *loadOptions) {
		if n > 0 {
			o.maxEntrySize = n
		}
	}
}

func buildOptions(opts []LoadOption) loadOptions {
	o := loadOptions{logger: zerolog.Nop(), maxEntrySize: defaultMaxEntrySize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open loads the ePub file at path. The caller must Close the book.
func Open(path string, opts ...LoadOption) (*Book, error) {
	zrc, err := zip.OpenReader(path)
	if err != nil {
		return nil, openError(path, err)
	}
	b, err := load(&zrc.Reader, zrc, buildOptions(opts))
	if err != nil {
		zrc.Close()
		return nil, err
	}
	return b, nil
}

// NewReader loads an ePub from r. The caller owns r; Close is a no-op.
func NewReader(r io.ReaderAt, size int64, opts ...LoadOption) (*Book, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, openError("archive", err)
	}
	return load(zr, nil, buildOptions(opts))
}

// Load loads an ePub held in memory.
func Load(data []byte, opts ...LoadOption) (*Book, error) {
	return NewReader(bytes.NewReader(data), int64(len(data)), opts...)
}

// openError classifies zip open failures. Format errors mean the input is
// not an archive; anything else (e.g. a missing file) is passed through.
func openError(name string, err error) error {
	if errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrAlgorithm) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("bk: open %s: %v: %w", name, err, ErrNotAnArchive)
	}
	return fmt.Errorf("bk: open %s: %w", name, err)
}

func load(zr *zip.Reader, closer io.Closer, o loadOptions) (*Book, error) {
	b := &Book{
		archive: newArchive(zr, o.maxEntrySize),
		closer:  closer,
		log:     o.logger,
	}

	b.validateMimetype()

	opfPath, warnings := locatePackage(b.archive)
	for _, w := range warnings {
		b.warn(w)
	}
	if opfPath == "" {
		return nil, ErrMissingPackageDocument
	}
	b.opfDir = path.Dir(opfPath)

	fontObfuscation, err := checkDRM(b.archive)
	if err != nil {
		return nil, err
	}
	if fontObfuscation {
		b.warn("font obfuscation detected; obfuscated fonts are ignored")
	}

	opfData, err := b.archive.read(opfPath)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, fmt.Errorf("bk: %s: %w", opfPath, ErrMissingPackageDocument)
		}
		return nil, fmt.Errorf("bk: read package document: %w", err)
	}

	pkg, err := parseOPF(opfData)
	if err != nil {
		return nil, err
	}
	b.opf = pkg
	b.manifest, b.byID = buildManifest(pkg.Manifest.Items)
	b.spine = buildSpine(pkg, b.byID)
	b.metadata = extractMetadata(pkg)

	chapterByPath := b.buildChapters()
	if len(b.chapters) == 0 {
		return nil, ErrEmptySpine
	}

	b.parseTOC(chapterByPath)
	b.titleChapters()

	b.log.Debug().
		Str("title", b.Title()).
		Int("chapters", len(b.chapters)).
		Int("warnings", len(b.warnings)).
		Msg("book loaded")
	return b, nil
}

// validateMimetype records a warning when the first entry is not a
// "mimetype" file holding the ePub media type.
func (b *Book) validateMimetype() {
	files := b.archive.zr.File
	if len(files) == 0 {
		b.warn("empty ZIP archive; mimetype entry missing")
		return
	}
	if files[0].Name != "mimetype" {
		b.warn(`first ZIP entry is not "mimetype"`)
		return
	}
	data, err := readZipFile(files[0], b.archive.limit)
	if err != nil {
		b.warn(fmt.Sprintf("cannot read mimetype entry: %v", err))
		return
	}
	if string(bytes.TrimSpace(data)) != expectedMimetype {
		b.warn(fmt.Sprintf("unexpected mimetype: %q", string(data)))
	}
}

// buildChapters creates one chapter per linear spine item whose manifest
// entry exists in the archive. It returns archive entry name -> chapter
// index.
func (b *Book) buildChapters() map[string]int {
	byPath := make(map[string]int, len(b.spine))
	for _, si := range b.spine {
		if !si.Linear {
			continue
		}
		if si.Manifest < 0 {
			b.warn(fmt.Sprintf("spine item %q has no manifest entry", si.IDRef))
			continue
		}
		item := b.manifest[si.Manifest]
		p := b.manifestPath(item.Href)
		f := b.archive.find(p)
		if f == nil {
			b.warn(fmt.Sprintf("spine item %q: %s missing from archive", si.IDRef, p))
			continue
		}
		if _, dup := byPath[f.Name]; dup {
			continue
		}
		byPath[f.Name] = len(b.chapters)
		b.chapters = append(b.chapters, &Chapter{
			Index:    len(b.chapters),
			ID:       item.ID,
			Manifest: item.Index,
			Href:     f.Name,
			file:     f,
			limit:    b.archive.limit,
			log:      b.log,
		})
	}
	return byPath
}

// titleChapters names each chapter after the first TOC entry targeting it,
// or "Chapter N" when none does.
func (b *Book) titleChapters() {
	walkTOC(b.toc, func(n *TocNode) bool {
		if n.Chapter >= 0 && b.chapters[n.Chapter].Title == "" {
			b.chapters[n.Chapter].Title = n.Label
		}
		return true
	})
	for _, ch := range b.chapters {
		if ch.Title == "" {
			ch.Title = "Chapter " + strconv.Itoa(ch.Index+1)
		}
	}
}

func (b *Book) warn(msg string) {
	b.warnings = append(b.warnings, msg)
	b.log.Warn().Msg(msg)
}

func (b *Book) resolveOPFPath(href string) string {
	if b.opfDir == "." || b.opfDir == "" {
		return path.Clean(href)
	}
	return path.Join(b.opfDir, href)
}

// manifestPath returns the archive path of a manifest href. Hrefs are URLs,
// so they are percent-decoded; an entry stored under the escaped name is
// accepted when the decoded one is missing.
func (b *Book) manifestPath(href string) string {
	raw := b.resolveOPFPath(href)
	decoded, err := url.PathUnescape(href)
	if err != nil {
		return raw
	}
	p := b.resolveOPFPath(decoded)
	if b.archive.find(p) == nil && b.archive.find(raw) != nil {
		return raw
	}
	return p
}

func (b *Book) manifestItemByID(id string) (*manifestItem, bool) {
	idx, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	return &b.manifest[idx], true
}

// Close releases the underlying file when the book was opened with Open.
// Close is idempotent.
func (b *Book) Close() error {
	if b.closer != nil {
		err := b.closer.Close()
		b.closer = nil
		return err
	}
	return nil
}

// Title returns the first non-empty dc:title, or "" when there is none.
func (b *Book) Title() string {
	if len(b.metadata.Titles) > 0 {
		return b.metadata.Titles[0]
	}
	return ""
}

// Author returns the first non-empty dc:creator, or "" when there is none.
func (b *Book) Author() string {
	if len(b.metadata.Authors) > 0 {
		return b.metadata.Authors[0].Name
	}
	return ""
}

// Metadata returns a copy of the full package metadata.
func (b *Book) Metadata() Metadata {
	return copyMetadata(b.metadata)
}

// Summary returns the metadata-only view of the book.
func (b *Book) Summary() Summary {
	return Summary{Title: b.Title(), Author: b.Author(), ChapterCount: len(b.chapters)}
}

// Chapters returns the chapters in reading order.
func (b *Book) Chapters() []*Chapter {
	return append([]*Chapter(nil), b.chapters...)
}

// Chapter returns chapter i, or nil when i is out of range.
func (b *Book) Chapter(i int) *Chapter {
	if i < 0 || i >= len(b.chapters) {
		return nil
	}
	return b.chapters[i]
}

// NumChapters returns the number of chapters.
func (b *Book) NumChapters() int {
	return len(b.chapters)
}

// TOC returns a copy of the table of contents tree.
func (b *Book) TOC() []TocNode {
	return copyTOC(b.toc)
}

// HasTOC reports whether the book has a table of contents.
func (b *Book) HasTOC() bool {
	return len(b.toc) > 0
}

// TocNode returns the node with the given ID.
func (b *Book) TocNode(id int) (TocNode, bool) {
	var found *TocNode
	walkTOC(b.toc, func(n *TocNode) bool {
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return TocNode{}, false
	}
	return *found, true
}

// TocParent returns the parent of the node with the given ID. Top-level
// nodes and unknown IDs report false.
func (b *Book) TocParent(id int) (TocNode, bool) {
	var parent *TocNode
	var search func(nodes []TocNode, p *TocNode) bool
	search = func(nodes []TocNode, p *TocNode) bool {
		for i := range nodes {
			if nodes[i].ID == id {
				parent = p
				return true
			}
			if search(nodes[i].Children, &nodes[i]) {
				return true
			}
		}
		return false
	}
	if !search(b.toc, nil) || parent == nil {
		return TocNode{}, false
	}
	return *parent, true
}

// TocPosition returns the position a TOC node jumps to. A fragment is
// resolved through the chapter's anchors, which renders the chapter; an
// unknown fragment falls back to the chapter start.
func (b *Book) TocPosition(n TocNode) (Position, bool) {
	if !n.HasTarget() || n.Chapter >= len(b.chapters) {
		return Position{}, false
	}
	pos := Position{Chapter: n.Chapter}
	if n.Fragment != "" {
		if off, ok := b.chapters[n.Chapter].Anchor(n.Fragment); ok {
			pos.Offset = off
		}
	}
	return pos, true
}

// TocFraction returns how far into its chapter the entry points, from 0 at
// the chapter start to 1 at its end. Fragment targets are measured through
// the chapter's anchors, which renders the chapter.
func (b *Book) TocFraction(n TocNode) (float64, bool) {
	pos, ok := b.TocPosition(n)
	if !ok {
		return 0, false
	}
	if pos.Offset == 0 {
		return 0, true
	}
	total, err := b.chapters[pos.Chapter].Len()
	if err != nil || total == 0 {
		return 0, true
	}
	return float64(pos.Offset) / float64(total), true
}

// Warnings returns the non-fatal problems found while loading.
func (b *Book) Warnings() []string {
	return append([]string(nil), b.warnings...)
}

// ReadSummary loads the book at path only far enough to report its title,
// author and chapter count. No chapter content is decompressed.
func ReadSummary(path string, opts ...LoadOption) (Summary, error) {
	b, err := Open(path, opts...)
	if err != nil {
		return Summary{}, err
	}
	defer b.Close()
	return b.Summary(), nil
}
