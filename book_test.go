package bk

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen_Valid(t *testing.T) {
	fp := buildTestEPubFile(t, epub3Files("<p>a</p>", "<p>b</p>", "<p>c</p>"))

	book, err := Open(fp)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer book.Close()

	if book.opfDir != "OEBPS" {
		t.Errorf("opfDir = %q, want %q", book.opfDir, "OEBPS")
	}
	if len(book.Warnings()) != 0 {
		t.Errorf("unexpected warnings: %v", book.Warnings())
	}
	if book.Title() != "Test Book" || book.Author() != "Jane Doe" {
		t.Errorf("Title/Author = %q/%q", book.Title(), book.Author())
	}
	if book.NumChapters() != 3 {
		t.Errorf("NumChapters() = %d, want 3", book.NumChapters())
	}
	if book.closer == nil {
		t.Error("Open should set closer")
	}
}

func TestNewReader_Valid(t *testing.T) {
	data := buildTestEPubBytes(t, epub2Files("<p>a</p>"))

	book, err := NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	defer book.Close()

	if book.closer != nil {
		t.Error("NewReader should not set closer")
	}
	if book.Title() != "Old Book" {
		t.Errorf("Title() = %q", book.Title())
	}
}

func TestOpen_NotAnArchive(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "plain.epub")
	if err := os.WriteFile(fp, []byte(strings.Repeat("definitely not a zip file\n", 20)), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(fp); !errors.Is(err, ErrNotAnArchive) {
		t.Errorf("Open() error = %v, want ErrNotAnArchive", err)
	}
	if _, err := Load([]byte("nope")); !errors.Is(err, ErrNotAnArchive) {
		t.Errorf("Load() error = %v, want ErrNotAnArchive", err)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.epub"))
	if err == nil {
		t.Fatal("Open() should fail for a missing file")
	}
	if errors.Is(err, ErrNotAnArchive) {
		t.Errorf("Open() error = %v, a missing file is not a format error", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open() error = %v, want os.ErrNotExist in the chain", err)
	}
}

func TestLoad_MimetypeWarnings(t *testing.T) {
	tests := []struct {
		name   string
		modify func(map[string]string)
		want   string
	}{
		{"missing", func(f map[string]string) { delete(f, "mimetype") }, `first ZIP entry is not "mimetype"`},
		{"wrong content", func(f map[string]string) { f["mimetype"] = "text/plain" }, "unexpected mimetype"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := epub3Files("<p>a</p>")
			tt.modify(files)
			b := loadTestBook(t, files)

			found := false
			for _, w := range b.Warnings() {
				if strings.Contains(w, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("warnings = %v, want one containing %q", b.Warnings(), tt.want)
			}
		})
	}
}

func TestLoad_MissingPackageDocument(t *testing.T) {
	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": validContainerXML,
		"OEBPS/ch1.xhtml":        xhtml("c", "<p>x</p>"),
	}
	if _, err := Load(buildTestEPubBytes(t, files)); !errors.Is(err, ErrMissingPackageDocument) {
		t.Errorf("Load() error = %v, want ErrMissingPackageDocument", err)
	}
}

func TestLoad_EmptySpine(t *testing.T) {
	files := epub3Files("<p>a</p>", "<p>b</p>")
	delete(files, "OEBPS/ch1.xhtml")
	delete(files, "OEBPS/ch2.xhtml")

	if _, err := Load(buildTestEPubBytes(t, files)); !errors.Is(err, ErrEmptySpine) {
		t.Errorf("Load() error = %v, want ErrEmptySpine", err)
	}
}

func TestLoad_FallbackOPFScan(t *testing.T) {
	files := epub2Files("<p>Hello</p>")
	delete(files, "META-INF/container.xml")

	b := loadTestBook(t, files)
	if b.Title() != "Old Book" || b.NumChapters() != 1 {
		t.Errorf("Title() = %q, NumChapters() = %d", b.Title(), b.NumChapters())
	}
	text, err := b.Chapter(0).Text()
	if err != nil || text != "Hello" {
		t.Errorf("Text() = %q, %v", text, err)
	}
}

func TestLoad_CaseInsensitivePaths(t *testing.T) {
	files := epub3Files("<p>first</p>", "<p>second</p>")
	files["OEBPS/content.opf"] = strings.Replace(files["OEBPS/content.opf"], `href="ch2.xhtml"`, `href="CH2.XHTML"`, 1)

	b := loadTestBook(t, files)
	if b.NumChapters() != 2 {
		t.Fatalf("NumChapters() = %d, want 2", b.NumChapters())
	}
	if got := b.Chapter(1).Href; got != "OEBPS/ch2.xhtml" {
		t.Errorf("Href = %q, want the archive entry name", got)
	}
	// The nav document's lower-case link still resolves.
	if toc := b.TOC(); len(toc) != 2 || toc[1].Chapter != 1 {
		t.Errorf("TOC() = %+v", toc)
	}
	if b.Chapter(1).Title != "Chapter 2" {
		t.Errorf("Title = %q", b.Chapter(1).Title)
	}
}

func TestLoad_PercentEncodedHrefs(t *testing.T) {
	files := epub3Files("<p>first</p>", "<p>second</p>", "<p>third</p>")
	files["OEBPS/chap 2.xhtml"] = files["OEBPS/ch2.xhtml"]
	delete(files, "OEBPS/ch2.xhtml")
	// Stored under the escaped name.
	files["OEBPS/ch%203.xhtml"] = files["OEBPS/ch3.xhtml"]
	delete(files, "OEBPS/ch3.xhtml")
	for _, name := range []string{"OEBPS/content.opf", "OEBPS/nav.xhtml"} {
		files[name] = strings.Replace(files[name], `href="ch2.xhtml"`, `href="chap%202.xhtml"`, 1)
	}
	files["OEBPS/content.opf"] = strings.Replace(files["OEBPS/content.opf"], `href="ch3.xhtml"`, `href="ch%203.xhtml"`, 1)

	b := loadTestBook(t, files)
	if b.NumChapters() != 3 {
		t.Fatalf("NumChapters() = %d, want 3 (warnings %q)", b.NumChapters(), b.Warnings())
	}
	if got := b.Chapter(1).Href; got != "OEBPS/chap 2.xhtml" {
		t.Errorf("chapter 1 Href = %q", got)
	}
	if got := b.Chapter(2).Href; got != "OEBPS/ch%203.xhtml" {
		t.Errorf("chapter 2 Href = %q", got)
	}
	if text, err := b.Chapter(1).Text(); err != nil || text != "second" {
		t.Errorf("chapter 1 Text() = %q, %v", text, err)
	}
	if toc := b.TOC(); len(toc) < 2 || toc[1].Chapter != 1 {
		t.Errorf("TOC() = %+v, want the encoded nav link on chapter 1", toc)
	}
	for _, w := range b.Warnings() {
		if strings.Contains(w, "missing from archive") {
			t.Errorf("unexpected warning %q", w)
		}
	}
}

func TestLoad_EndToEnd(t *testing.T) {
	b := loadTestBook(t, epub2Files(
		`<h1>Opening</h1><p>It began <em>quietly</em>.</p>`,
		`<p>Then<br/>it ended.</p>`,
	))

	if s := b.Summary(); s != (Summary{Title: "Old Book", Author: "John Smith", ChapterCount: 2}) {
		t.Errorf("Summary() = %+v", s)
	}

	lines, err := b.Chapter(0).Lines(20)
	if err != nil {
		t.Fatalf("Lines() error = %v", err)
	}
	want := []string{"Opening", "", "It began quietly."}
	if got := lineTexts(lines); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("chapter 0 lines = %q, want %q", got, want)
	}

	lines, _ = b.Chapter(1).Lines(20)
	if got := lineTexts(lines); strings.Join(got, "|") != "Then|it ended." {
		t.Errorf("chapter 1 lines = %q", got)
	}

	if ms := Search([][]DisplayLine{lines}, "IT"); len(ms) != 1 || ms[0].Line != 1 {
		t.Errorf("Search() = %+v", ms)
	}
}

func TestClose_Idempotent(t *testing.T) {
	fp := buildTestEPubFile(t, epub3Files("<p>a</p>"))

	book, err := Open(fp)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := book.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := book.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestClose_NewReader(t *testing.T) {
	book := loadTestBook(t, epub3Files("<p>a</p>"))
	// Close should succeed even though there's no underlying file.
	if err := book.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestReadSummary(t *testing.T) {
	fp := buildTestEPubFile(t, epub3Files("<p>a</p>", "<p>b</p>"))

	s, err := ReadSummary(fp)
	if err != nil {
		t.Fatalf("ReadSummary() error = %v", err)
	}
	if s.Title != "Test Book" || s.Author != "Jane Doe" || s.ChapterCount != 2 {
		t.Errorf("ReadSummary() = %+v", s)
	}

	if _, err := ReadSummary(filepath.Join(t.TempDir(), "none.epub")); err == nil {
		t.Error("ReadSummary() should fail for a missing file")
	}
}

func TestBook_ChapterBounds(t *testing.T) {
	b := loadTestBook(t, epub3Files("<p>a</p>"))
	if b.Chapter(-1) != nil || b.Chapter(1) != nil {
		t.Error("Chapter() out of range should return nil")
	}
}

func TestWarnings_DefensiveCopy(t *testing.T) {
	book := &Book{warnings: []string{"warning-a", "warning-b"}}

	got := book.Warnings()
	got[0] = "mutated"
	if book.Warnings()[0] != "warning-a" {
		t.Error("Warnings() exposed internal state")
	}
}

func TestChapters_DefensiveCopy(t *testing.T) {
	b := loadTestBook(t, epub3Files("<p>a</p>", "<p>b</p>"))

	chs := b.Chapters()
	chs[0] = nil
	if b.Chapters()[0] == nil {
		t.Error("Chapters() exposed internal slice")
	}
}
