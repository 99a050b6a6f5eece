// Package tui is the terminal front end of the reader. It maps key presses
// to bk.Navigator commands and draws the page, table of contents, help and
// info views.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/simp-lee/bk"
	"github.com/simp-lee/bk/internal/config"
)

type view uint8

const (
	viewPage view = iota
	viewHelp
	viewInfo
)

// pending is a command waiting for its argument key.
type pending uint8

const (
	pendingNone pending = iota
	pendingMark
	pendingJump
)

// jumpBackMark is the mark label that returns to the previous position.
const jumpBackMark = "'"

// Model is the bubbletea model of the reader.
type Model struct {
	nav  *bk.Navigator
	cfg  *config.Config
	keys KeyMap
	log  zerolog.Logger

	width  int
	height int

	view        view
	pending     pending
	status      string
	showMatches bool
	tocTop      int
}

// New returns a reader over nav. The table of contents is opened first when
// the configuration asks for it.
func New(nav *bk.Navigator, cfg *config.Config, log zerolog.Logger) *Model {
	m := &Model{
		nav:  nav,
		cfg:  cfg,
		keys: NewKeyMap(cfg),
		log:  log,
	}
	if cfg.TOCOnStart && nav.Book().HasTOC() {
		nav.OpenTOC()
	}
	return m
}

// Navigator returns the reading state.
func (m *Model) Navigator() *bk.Navigator { return m.nav }

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
	case tea.MouseMsg:
		m.handleMouse(msg)
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, m.handleKey(msg)
	}
	return m, nil
}

// resize reflows the book to the terminal, capped at the configured width.
// One row is kept for the status line.
func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	w := max(min(width, m.cfg.Width), 1)
	if err := m.nav.SetWidth(w); err != nil {
		m.log.Warn().Err(err).Int("width", w).Msg("reflow failed")
	}
	m.nav.SetHeight(height - 1)
	m.log.Debug().Int("cols", width).Int("rows", height).Int("width", w).Msg("resized")
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	m.status = ""

	if m.view != viewPage {
		m.view = viewPage
		return nil
	}
	if m.pending != pendingNone {
		m.handlePending(msg)
		return nil
	}

	switch m.nav.Mode() {
	case bk.ModeSearch:
		m.handleSearchKey(msg)
		return nil
	case bk.ModeTOC:
		m.handleTOCKey(msg)
		return nil
	}

	action, ok := m.keys.Action(msg)
	if !ok {
		return nil
	}
	return m.do(action)
}

// do runs a page view action.
func (m *Model) do(action string) tea.Cmd {
	n := m.nav
	switch action {
	case config.ActionQuit:
		return tea.Quit
	case config.ActionHelp:
		m.view = viewHelp
	case config.ActionInfo:
		m.view = viewInfo
	case config.ActionTOC:
		if !n.Book().HasTOC() {
			m.status = "no table of contents"
			return nil
		}
		n.OpenTOC()
		m.tocTop = 0
	case config.ActionSetMark:
		m.pending = pendingMark
	case config.ActionJumpMark:
		m.pending = pendingJump
	case config.ActionSearchForward:
		n.StartSearch(bk.Forward)
		m.showMatches = true
	case config.ActionSearchBackward:
		n.StartSearch(bk.Backward)
		m.showMatches = true
	case config.ActionNextMatch:
		m.repeatSearch(false)
	case config.ActionPrevMatch:
		m.repeatSearch(true)
	case config.ActionLineDown:
		n.ScrollDown(3)
	case config.ActionLineUp:
		n.ScrollUp(3)
	case config.ActionPageDown:
		n.PageDown()
	case config.ActionPageUp:
		n.PageUp()
	case config.ActionHalfPageDown:
		n.HalfPageDown()
	case config.ActionHalfPageUp:
		n.HalfPageUp()
	case config.ActionChapterStart:
		n.ChapterStart()
	case config.ActionChapterEnd:
		n.ChapterEnd()
	case config.ActionNextChapter:
		n.NextChapter()
	case config.ActionPrevChapter:
		n.PrevChapter()
	}
	return nil
}

func (m *Model) repeatSearch(reverse bool) {
	q := m.nav.Query()
	if q == "" {
		m.status = "no previous search"
		return
	}
	if !m.nav.RepeatSearch(reverse) {
		m.status = "pattern not found: " + q
		return
	}
	m.showMatches = true
}

// handlePending completes a mark command. Any key other than a single
// character cancels it.
func (m *Model) handlePending(msg tea.KeyMsg) {
	p := m.pending
	m.pending = pendingNone
	if msg.Type != tea.KeyRunes || len(msg.Runes) != 1 || msg.Alt {
		return
	}
	label := string(msg.Runes)

	switch p {
	case pendingMark:
		if label == jumpBackMark {
			m.status = "mark ' is the previous position"
			return
		}
		m.nav.SetBookmark(label)
		m.status = fmt.Sprintf("mark %s set", label)
		m.log.Debug().Str("mark", label).Int("chapter", m.nav.Position().Chapter).Msg("bookmark set")
	case pendingJump:
		if label == jumpBackMark {
			if !m.nav.JumpBack() {
				m.status = "no previous position"
			}
			return
		}
		if !m.nav.JumpBookmark(label) {
			m.status = fmt.Sprintf("mark %s not set", label)
		}
	}
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) {
	n := m.nav
	switch msg.Type {
	case tea.KeyEsc:
		n.CancelSearch()
		m.showMatches = false
	case tea.KeyEnter:
		q := n.Query()
		n.SelectMatch()
		if _, ok := n.Selected(); !ok {
			m.showMatches = false
			if q != "" {
				m.status = "pattern not found: " + q
			}
		}
	case tea.KeyBackspace:
		if n.Query() == "" {
			n.CancelSearch()
			m.showMatches = false
			return
		}
		n.Backspace()
	case tea.KeySpace:
		n.TypeQuery(' ')
	case tea.KeyRunes:
		if msg.Alt {
			return
		}
		for _, r := range msg.Runes {
			n.TypeQuery(r)
		}
	}
}

func (m *Model) handleTOCKey(msg tea.KeyMsg) {
	n := m.nav
	id := n.TOCCursor()
	switch {
	case key.Matches(msg, tocKeys.Close):
		n.CloseTOC()
	case key.Matches(msg, tocKeys.Parent):
		if !n.TOCParent() {
			n.CloseTOC()
		}
	case key.Matches(msg, tocKeys.Open):
		if node, ok := n.Book().TocNode(id); ok && len(node.Children) > 0 && !n.Expanded(id) {
			n.ToggleNode(id)
			return
		}
		m.jumpTOC(id)
	case key.Matches(msg, tocKeys.Select):
		m.jumpTOC(id)
	case key.Matches(msg, tocKeys.Toggle):
		n.ToggleNode(id)
	case key.Matches(msg, tocKeys.Down):
		n.MoveTOCCursor(1)
	case key.Matches(msg, tocKeys.Up):
		n.MoveTOCCursor(-1)
	case key.Matches(msg, tocKeys.Top):
		n.MoveTOCCursor(-len(n.TOC()))
	case key.Matches(msg, tocKeys.Bottom):
		n.MoveTOCCursor(len(n.TOC()))
	case key.Matches(msg, tocKeys.PageDown):
		n.MoveTOCCursor(n.Height())
	case key.Matches(msg, tocKeys.PageUp):
		n.MoveTOCCursor(-n.Height())
	case key.Matches(msg, tocKeys.HalfDown):
		n.MoveTOCCursor(max(n.Height()/2, 1))
	case key.Matches(msg, tocKeys.HalfUp):
		n.MoveTOCCursor(-max(n.Height()/2, 1))
	}
}

// jumpTOC leaves the TOC at the entry. Entries without a target expand
// instead.
func (m *Model) jumpTOC(id int) {
	if m.nav.JumpTOC(id) {
		return
	}
	if node, ok := m.nav.Book().TocNode(id); ok && len(node.Children) > 0 {
		m.nav.ToggleNode(id)
		return
	}
	m.status = "entry has no target"
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	if m.view != viewPage || msg.Action != tea.MouseActionPress {
		return
	}
	n := m.nav
	var down bool
	switch msg.Button {
	case tea.MouseButtonWheelDown:
		down = true
	case tea.MouseButtonWheelUp:
	default:
		return
	}

	switch n.Mode() {
	case bk.ModeReading:
		if down {
			n.ScrollDown(3)
		} else {
			n.ScrollUp(3)
		}
	case bk.ModeTOC:
		if down {
			n.MoveTOCCursor(3)
		} else {
			n.MoveTOCCursor(-3)
		}
	}
}
