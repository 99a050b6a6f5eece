// Package config handles configuration loading and validation for bk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/simp-lee/bk"
)

// Built-in action names for keybindings.
const (
	ActionNone           = "none" // unbinds a default key
	ActionQuit           = "quit"
	ActionHelp           = "help"
	ActionTOC            = "toc"
	ActionInfo           = "info"
	ActionSetMark        = "set_mark"
	ActionJumpMark       = "jump_mark"
	ActionSearchForward  = "search_forward"
	ActionSearchBackward = "search_backward"
	ActionNextMatch      = "next_match"
	ActionPrevMatch      = "prev_match"
	ActionLineDown       = "line_down"
	ActionLineUp         = "line_up"
	ActionPageDown       = "page_down"
	ActionPageUp         = "page_up"
	ActionHalfPageDown   = "half_page_down"
	ActionHalfPageUp     = "half_page_up"
	ActionChapterStart   = "chapter_start"
	ActionChapterEnd     = "chapter_end"
	ActionNextChapter    = "next_chapter"
	ActionPrevChapter    = "prev_chapter"
)

// Actions lists every action in help order.
var Actions = []string{
	ActionQuit,
	ActionHelp,
	ActionTOC,
	ActionInfo,
	ActionPageDown,
	ActionPageUp,
	ActionHalfPageDown,
	ActionHalfPageUp,
	ActionLineDown,
	ActionLineUp,
	ActionChapterStart,
	ActionChapterEnd,
	ActionPrevChapter,
	ActionNextChapter,
	ActionSearchForward,
	ActionSearchBackward,
	ActionNextMatch,
	ActionPrevMatch,
	ActionSetMark,
	ActionJumpMark,
}

// defaultKeybindings provides built-in keybindings that users can override.
// Keys use bubbletea key names.
var defaultKeybindings = map[string]Keybinding{
	"esc":    {Action: ActionQuit, Help: "quit"},
	"q":      {Action: ActionQuit, Help: "quit"},
	"f1":     {Action: ActionHelp, Help: "help"},
	"tab":    {Action: ActionTOC, Help: "table of contents"},
	"i":      {Action: ActionInfo, Help: "progress and metadata"},
	"pgdown": {Action: ActionPageDown, Help: "page down"},
	"right":  {Action: ActionPageDown, Help: "page down"},
	" ":      {Action: ActionPageDown, Help: "page down"},
	"f":      {Action: ActionPageDown, Help: "page down"},
	"l":      {Action: ActionPageDown, Help: "page down"},
	"pgup":   {Action: ActionPageUp, Help: "page up"},
	"left":   {Action: ActionPageUp, Help: "page up"},
	"b":      {Action: ActionPageUp, Help: "page up"},
	"h":      {Action: ActionPageUp, Help: "page up"},
	"d":      {Action: ActionHalfPageDown, Help: "half page down"},
	"u":      {Action: ActionHalfPageUp, Help: "half page up"},
	"down":   {Action: ActionLineDown, Help: "line down"},
	"j":      {Action: ActionLineDown, Help: "line down"},
	"up":     {Action: ActionLineUp, Help: "line up"},
	"k":      {Action: ActionLineUp, Help: "line up"},
	"home":   {Action: ActionChapterStart, Help: "chapter start"},
	"g":      {Action: ActionChapterStart, Help: "chapter start"},
	"end":    {Action: ActionChapterEnd, Help: "chapter end"},
	"G":      {Action: ActionChapterEnd, Help: "chapter end"},
	"[":      {Action: ActionPrevChapter, Help: "previous chapter"},
	"]":      {Action: ActionNextChapter, Help: "next chapter"},
	"/":      {Action: ActionSearchForward, Help: "search forward"},
	"?":      {Action: ActionSearchBackward, Help: "search backward"},
	"n":      {Action: ActionNextMatch, Help: "repeat search forward"},
	"N":      {Action: ActionPrevMatch, Help: "repeat search backward"},
	"m":      {Action: ActionSetMark, Help: "set mark x"},
	"'":      {Action: ActionJumpMark, Help: "jump to mark x"},
}

// DefaultWidth is the default maximum line width in columns.
const DefaultWidth = 75

// Config holds the application configuration.
type Config struct {
	Width       int                   `yaml:"width"`
	TOCOnStart  bool                  `yaml:"toc_on_start"`
	Keybindings map[string]Keybinding `yaml:"keybindings"`
	DataDir     string                `yaml:"-"` // set by caller, not from config file
}

// Keybinding maps a key to a reading action.
type Keybinding struct {
	Action string `yaml:"action"` // built-in action name
	Help   string `yaml:"help"`   // help text, defaults to the action's
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Width:       DefaultWidth,
		Keybindings: map[string]Keybinding{},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			cfg.DataDir = dataDir
		}
	}

	cfg.Keybindings = mergeKeybindings(defaultKeybindings, cfg.Keybindings)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Keybindings == nil {
		c.Keybindings = mergeKeybindings(defaultKeybindings, nil)
	}
	for k, kb := range c.Keybindings {
		if kb.Help == "" && kb.Action != "" {
			kb.Help = helpFor(kb.Action)
			c.Keybindings[k] = kb
		}
	}
}

// mergeKeybindings merges user keybindings into defaults.
// User keybindings override defaults for the same key; ActionNone removes it.
func mergeKeybindings(defaults, user map[string]Keybinding) map[string]Keybinding {
	result := make(map[string]Keybinding, len(defaults)+len(user))

	for k, v := range defaults {
		result[k] = v
	}

	for k, v := range user {
		if v.Action == ActionNone {
			delete(result, k)
			continue
		}
		result[k] = v
	}

	return result
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Width <= 0 {
		return fmt.Errorf("width %d: %w", c.Width, bk.ErrInvalidWidth)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	for key, kb := range c.Keybindings {
		if key == "" {
			return fmt.Errorf("keybinding with empty key")
		}
		if kb.Action == "" {
			return fmt.Errorf("keybinding %q must have an action", key)
		}
		if !IsValidAction(kb.Action) {
			return fmt.Errorf("keybinding %q has invalid action %q", key, kb.Action)
		}
	}

	return nil
}

// KeysFor returns the keys bound to action, sorted.
func (c *Config) KeysFor(action string) []string {
	var keys []string
	for k, kb := range c.Keybindings {
		if kb.Action == action {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// StateFile returns the path to the reading state JSON file.
func (c *Config) StateFile() string {
	return filepath.Join(c.DataDir, "state.json")
}

// IsValidAction reports whether action names a built-in action.
func IsValidAction(action string) bool {
	return slices.Contains(Actions, action)
}

func helpFor(action string) string {
	for _, kb := range defaultKeybindings {
		if kb.Action == action {
			return kb.Help
		}
	}
	return action
}
