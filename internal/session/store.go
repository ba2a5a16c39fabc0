package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoSession is returned by Load when no session file exists on disk.
var ErrNoSession = errors.New("no active session")

// Store persists the live Session so that a run which dies mid-queue can
// still restore the user's OBS filename format afterwards.
type Store interface {
	Save(s *Session) error
	Load() (*Session, error) // returns ErrNoSession if none exists
	Delete() error
}

// diskStore writes session.json under the XDG data directory.
type diskStore struct {
	path string
}

// NewStore returns a Store backed by
// $XDG_DATA_HOME/clippi/session.json or ~/.local/share/clippi/session.json.
func NewStore() (Store, error) {
	dir, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &diskStore{path: filepath.Join(dir, "session.json")}, nil
}

// DataDir returns the clippi-specific XDG data directory.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "clippi"), nil
}

// Save writes s atomically via a temp file in the same directory + rename.
func (d *diskStore) Save(s *Session) (err error) {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), "session-*.json.tmp")
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("saving session: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	if err = os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Load reads the session file. Returns ErrNoSession if it does not exist.
func (d *diskStore) Load() (*Session, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	return &s, nil
}

// Delete removes the session file. A missing file is not an error.
func (d *diskStore) Delete() error {
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// MemoryStore keeps the session in memory. Used when nothing should touch
// disk, such as in tests.
type MemoryStore struct {
	s *Session
}

func (m *MemoryStore) Save(s *Session) error {
	cp := *s
	m.s = &cp
	return nil
}

func (m *MemoryStore) Load() (*Session, error) {
	if m.s == nil {
		return nil, ErrNoSession
	}
	cp := *m.s
	return &cp, nil
}

func (m *MemoryStore) Delete() error {
	m.s = nil
	return nil
}
