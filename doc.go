// Package bk is the document model and text engine of a terminal EPUB reader.
//
// It opens ePub 2 and ePub 3 containers, renders chapter XHTML into styled text
// runs, reflows those runs to any terminal width, searches the wrapped text
// incrementally, and tracks the reading position, table of contents state and
// bookmarks. It never touches the terminal itself.
//
// # Opening a book
//
// Use [Open] for a path, [NewReader] for an [io.ReaderAt] or [Load] for bytes:
//
//	book, err := bk.Open("book.epub")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer book.Close()
//
// Chapter content is decompressed lazily, on the first call to
// [Chapter.RawContent], [Chapter.Runs] or [Chapter.Lines].
//
// # Rendering and reflow
//
// [Render] turns markup into a flat sequence of [StyledRun] values and
// [Wrap] turns runs into width-bound [DisplayLine] values:
//
//	lines, err := book.Chapter(0).Lines(72)
//
// Every line records the byte range of the chapter text it covers, so a
// [Position] (chapter, byte offset) survives any change of width.
//
// # Searching
//
// A [Searcher] holds the wrapped lines of one or more chapters and
// re-narrows its match set as the query grows:
//
//	s := bk.NewSearcher(chapterLines)
//	s.SetQuery("whale")
//	m, ok := s.Next(bk.Location{})
//
// # Navigation
//
// [Navigator] is the reading state machine that ties the pieces together:
// scrolling, TOC jumps, search selection, bookmarks and the jump-back mark.
//
//	nav, err := bk.NewNavigator(book, 72, bk.Position{})
//	nav.StartSearch(bk.Forward)
//	for _, r := range "whale" {
//	    nav.TypeQuery(r)
//	}
//	nav.SelectMatch()
//
// # Error handling
//
// Loading fails only on structural problems:
//   - [ErrNotAnArchive] – the input is not a zip archive
//   - [ErrMissingPackageDocument] – no package document could be found
//   - [ErrMalformedManifest] – the package document is unusable
//   - [ErrEmptySpine] – no readable chapters
//   - [ErrDRMProtected] – the file is DRM encrypted
//
// Everything else degrades and is reported through [Book.Warnings].
package bk
