package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/simp-lee/bk"
	"github.com/simp-lee/bk/internal/store"
	"github.com/simp-lee/bk/internal/tui"
)

var errNoBook = errors.New("no book given and no book read before")

// run opens the book at path, or the last book read when path is empty,
// and either prints its metadata or reads it.
func run(ctx context.Context, flags *Flags, path string) error {
	cfg := flags.Config

	st, err := store.Load(cfg.StateFile())
	if err != nil {
		return err
	}
	if path == "" {
		last, ok := st.Last()
		if !ok {
			return errNoBook
		}
		path = last
	}

	book, err := bk.Open(path, bk.WithLogger(log.With().Str("component", "bk").Logger()))
	if err != nil {
		return err
	}
	defer book.Close()

	if flags.Meta {
		return writeMeta(os.Stdout, book)
	}

	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("stdout is not a terminal, use --meta to print metadata")
	}
	width := cfg.Width
	if cols, _, err := term.GetSize(fd); err == nil && cols > 0 {
		width = min(width, cols)
	}

	entry, _ := st.Get(path)
	nav, err := bk.NewNavigator(book, width, entry.Position)
	if err != nil {
		return err
	}
	nav.SetBookmarks(entry.Bookmarks)

	log.Info().
		Str("path", path).
		Int("chapter", entry.Position.Chapter).
		Int("offset", entry.Position.Offset).
		Msg("reading")

	model := tui.New(nav, cfg, log.With().Str("component", "tui").Logger())
	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	_, runErr := p.Run()

	savePosition(st, path, nav)
	if err := st.Save(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return runErr
}

// savePosition stores where reading stopped. An open search or table of
// contents is left first, so the saved position is the one being read.
func savePosition(st *store.Store, path string, nav *bk.Navigator) {
	switch nav.Mode() {
	case bk.ModeSearch:
		nav.CancelSearch()
	case bk.ModeTOC:
		nav.CloseTOC()
	}
	st.Put(path, nav.Position(), nav.Bookmarks())
	log.Debug().Str("path", path).Int("chapter", nav.Position().Chapter).Msg("position saved")
}

// writeMeta prints the book summary, its full metadata and the table of
// contents outline.
func writeMeta(w io.Writer, b *bk.Book) error {
	s := b.Summary()
	md := b.Metadata()

	var sb strings.Builder
	line := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "%s: %s\n", name, value)
		}
	}

	line("title", s.Title)
	line("author", s.Author)
	line("chapters", fmt.Sprint(s.ChapterCount))
	line("epub", md.Version)
	if len(md.Titles) > 1 {
		line("titles", strings.Join(md.Titles, " / "))
	}
	for _, a := range md.Authors {
		v := a.Name
		if a.FileAs != "" {
			v += " [" + a.FileAs + "]"
		}
		if a.Role != "" {
			v += " (" + a.Role + ")"
		}
		line("creator", v)
	}
	line("language", strings.Join(md.Language, ", "))
	for _, id := range md.Identifiers {
		v := id.Value
		if id.Scheme != "" {
			v = id.Scheme + " " + v
		}
		line("identifier", v)
	}
	line("publisher", md.Publisher)
	line("date", md.Date)
	line("subjects", strings.Join(md.Subjects, ", "))
	line("rights", md.Rights)
	line("source", md.Source)
	if c, ok := b.Cover(); ok {
		line("cover", c.Path+" ("+c.MediaType+")")
	}
	if md.Description != "" {
		sb.WriteString("description:\n")
		for _, l := range bk.Wrap(bk.Render([]byte(md.Description)), 72) {
			sb.WriteString("  " + l.Text() + "\n")
		}
	}
	for _, warn := range b.Warnings() {
		line("warning", warn)
	}

	if toc := b.TOC(); len(toc) > 0 {
		sb.WriteString("\ncontents:\n")
		var walk func(nodes []bk.TocNode)
		walk = func(nodes []bk.TocNode) {
			for _, n := range nodes {
				fmt.Fprintf(&sb, "%s%s\n", strings.Repeat("  ", n.Depth+1), n.Label)
				walk(n.Children)
			}
		}
		walk(toc)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
