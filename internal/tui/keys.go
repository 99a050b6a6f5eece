package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/simp-lee/bk/internal/config"
)

// KeyMap resolves key presses in the page view to configured actions.
type KeyMap struct {
	bindings map[string]key.Binding // action -> binding
}

// NewKeyMap builds the page view bindings from the configured keybindings.
func NewKeyMap(cfg *config.Config) KeyMap {
	km := KeyMap{bindings: make(map[string]key.Binding, len(config.Actions))}
	for _, action := range config.Actions {
		keys := cfg.KeysFor(action)
		if len(keys) == 0 {
			continue
		}
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = keyName(k)
		}
		km.bindings[action] = key.NewBinding(
			key.WithKeys(keys...),
			key.WithHelp(strings.Join(names, " "), cfg.Keybindings[keys[0]].Help),
		)
	}
	return km
}

// Action returns the action bound to msg.
func (km KeyMap) Action(msg tea.KeyMsg) (string, bool) {
	for _, action := range config.Actions {
		if b, ok := km.bindings[action]; ok && key.Matches(msg, b) {
			return action, true
		}
	}
	return "", false
}

// Help returns the bindings in help order.
func (km KeyMap) Help() []key.Binding {
	out := make([]key.Binding, 0, len(km.bindings))
	for _, action := range config.Actions {
		if b, ok := km.bindings[action]; ok {
			out = append(out, b)
		}
	}
	return out
}

func keyName(k string) string {
	if k == " " {
		return "space"
	}
	return k
}

// tocKeyMap holds the fixed bindings of the table of contents.
type tocKeyMap struct {
	Close    key.Binding
	Parent   key.Binding
	Open     key.Binding
	Select   key.Binding
	Toggle   key.Binding
	Down     key.Binding
	Up       key.Binding
	Top      key.Binding
	Bottom   key.Binding
	PageDown key.Binding
	PageUp   key.Binding
	HalfDown key.Binding
	HalfUp   key.Binding
}

var tocKeys = tocKeyMap{
	Close:    key.NewBinding(key.WithKeys("esc", "tab", "q"), key.WithHelp("esc tab q", "close")),
	Parent:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("left h", "parent")),
	Open:     key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("right l", "expand or jump")),
	Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "jump")),
	Toggle:   key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "expand or collapse")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("down j", "next entry")),
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("up k", "previous entry")),
	Top:      key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("home g", "first entry")),
	Bottom:   key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("end G", "last entry")),
	PageDown: key.NewBinding(key.WithKeys("pgdown", "f"), key.WithHelp("pgdown f", "page down")),
	PageUp:   key.NewBinding(key.WithKeys("pgup", "b"), key.WithHelp("pgup b", "page up")),
	HalfDown: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "half page down")),
	HalfUp:   key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "half page up")),
}

func (k tocKeyMap) all() []key.Binding {
	return []key.Binding{
		k.Close, k.Parent, k.Open, k.Select, k.Toggle,
		k.Down, k.Up, k.Top, k.Bottom,
		k.PageDown, k.PageUp, k.HalfDown, k.HalfUp,
	}
}
