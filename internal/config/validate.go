package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hay-kot/criterio"
)

// MaxWidth is the widest line width ValidateDeep accepts.
const MaxWidth = 1000

// ValidateDeep performs comprehensive validation of the configuration
// including file accessibility. The configPath argument specifies the config
// file location to validate (empty string skips the config file check).
// This calls Validate() first for basic structural validation.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		c.validateFileAccess(configPath),
		c.validateWidth(),
		c.validateKeybindings(),
	)
}

// validateFileAccess checks the config file and data directory.
func (c *Config) validateFileAccess(configPath string) error {
	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
	)
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

func (c *Config) validateWidth() error {
	var errs criterio.FieldErrorsBuilder
	if c.Width > MaxWidth {
		errs = errs.Append("width", fmt.Errorf("%d exceeds the maximum of %d", c.Width, MaxWidth))
	}
	return errs.ToError()
}

// validateKeybindings checks key names and that the reader can always be left.
func (c *Config) validateKeybindings() error {
	var errs criterio.FieldErrorsBuilder
	if len(c.KeysFor(ActionQuit)) == 0 {
		errs = errs.Append("keybindings", fmt.Errorf("no key is bound to %q", ActionQuit))
	}
	keys := make([]string, 0, len(c.Keybindings))
	for key := range c.Keybindings {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if !isKeyName(key) {
			errs = errs.Append(fmt.Sprintf("keybindings[%q]", key), fmt.Errorf("unknown key name"))
		}
	}
	return errs.ToError()
}

var namedKeys = []string{
	"up", "down", "left", "right", "pgup", "pgdown", "home", "end",
	"tab", "shift+tab", "enter", "esc", "backspace", "delete", "insert",
}

// isKeyName reports whether key is a bubbletea key name: a single
// character, a named key, a function key or a ctrl/alt combination.
func isKeyName(key string) bool {
	if utf8.RuneCountInString(key) == 1 {
		return true
	}
	if slices.Contains(namedKeys, key) {
		return true
	}
	if n, ok := strings.CutPrefix(key, "f"); ok {
		if i, err := strconv.Atoi(n); err == nil && i >= 1 && i <= 20 {
			return true
		}
	}
	for _, mod := range []string{"ctrl+", "alt+"} {
		if rest, ok := strings.CutPrefix(key, mod); ok {
			return isKeyName(rest)
		}
	}
	return false
}
