// Package store persists reading positions and bookmarks between sessions.
//
// The state lives in one JSON file. Books are keyed by a 16 hex character
// xxh3 hash of their absolute path, so renaming or moving a file starts it
// over from the beginning.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/zeebo/xxh3"

	"github.com/simp-lee/bk"
)

// Entry is the saved state of one book.
type Entry struct {
	Path      string        `json:"path"`
	Position  bk.Position   `json:"position"`
	Bookmarks []bk.Bookmark `json:"bookmarks,omitempty"`
}

type state struct {
	Last  string           `json:"last,omitempty"`
	Books map[string]Entry `json:"books"`
}

// Store is the reading state of every book opened so far. It is safe for
// concurrent use.
type Store struct {
	mu    sync.Mutex
	path  string
	state state
}

// Key returns the identifier of the book at path.
func Key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return fmt.Sprintf("%016x", xxh3.HashString(path))
}

// Load reads the state file at path. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	s := &Store{path: path, state: state{Books: map[string]Entry{}}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	if s.state.Books == nil {
		s.state.Books = map[string]Entry{}
	}
	return s, nil
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Get returns the saved state of the book at path.
func (s *Store) Get(path string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.state.Books[Key(path)]
	return e, ok
}

// Put records the state of the book at path and makes it the last book read.
func (s *Store) Put(path string, pos bk.Position, bookmarks []bk.Bookmark) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	key := Key(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Books[key] = Entry{
		Path:      path,
		Position:  pos,
		Bookmarks: append([]bk.Bookmark(nil), bookmarks...),
	}
	s.state.Last = key
}

// Last returns the path of the most recently read book.
func (s *Store) Last() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.state.Books[s.state.Last]
	if !ok {
		return "", false
	}
	return e.Path, true
}

// Remove forgets the book at path.
func (s *Store) Remove(path string) {
	key := Key(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.Books, key)
	if s.state.Last == key {
		s.state.Last = ""
	}
}

// Len returns the number of books in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Books)
}

// Save writes the state file. The data is written to a temporary file
// which is then renamed over the original, so a crash leaves either the old
// or the new state.
func (s *Store) Save() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write state: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync state: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
