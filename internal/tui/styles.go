package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/simp-lee/bk"
)

var (
	cursorStyle  = lipgloss.NewStyle().Reverse(true)
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	statusStyle  = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Bold(true)
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// spanStyle returns the style of text with the given flags, reversed when
// it is part of a search match.
func spanStyle(s bk.Style, match bool) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(s.Has(bk.Bold)).
		Italic(s.Has(bk.Italic)).
		Reverse(match)
}
