// Package state persists the last content that was successfully shown on the
// panel, so a restart does not cost an extra physical refresh.
package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
)

// Constants
const (
	CurrentVersion  = 1
	DefaultFile     = "state.json"
	FilePermissions = 0644
	tmpPattern      = ".tmp-*"
)

// ErrCorruptState is matched by every CorruptStateError
var ErrCorruptState = errors.New("corrupt state file")

// CorruptStateError reports a state file that exists but cannot be trusted.
// Callers continue with Default() when they see it.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state file %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

func (e *CorruptStateError) Is(target error) bool { return target == ErrCorruptState }

// State is the on-disk record of the last displayed content
type State struct {
	Version         int       `json:"version"`
	LastContentHash string    `json:"last_content_hash,omitempty"`
	LastPickupDate  string    `json:"last_pickup_date"`
	LastTypes       []string  `json:"last_types"`
	LastRenderedAt  time.Time `json:"last_rendered_at"`
}

// Default is the "never rendered" state
func Default() State {
	return State{Version: CurrentVersion}
}

// HasContent reports whether anything was ever shown. The sentinel content
// (no pickup date, no types) still counts as shown.
func (s State) HasContent() bool {
	return s.LastContentHash != ""
}

// Fingerprint hashes a pickup date key and canonical type list with BLAKE2b-256
func Fingerprint(date string, types []string) string {
	var b strings.Builder
	b.WriteString(date)
	b.WriteByte(0x1e)
	b.WriteString(strings.Join(types, "\x1f"))
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Store loads and atomically saves State in a single JSON file
type Store struct {
	fs   afero.Fs
	path string
}

// NewStore creates a store for path on fsys
func NewStore(fsys afero.Fs, path string) *Store {
	if path == "" {
		path = DefaultFile
	}
	return &Store{fs: fsys, path: path}
}

// Path returns the canonical state file location
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file. A missing file yields Default() and no error.
// Unparseable content yields Default() and a *CorruptStateError.
func (s *Store) Load() (State, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("read state file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return Default(), &CorruptStateError{Path: s.path, Err: err}
	}
	if err := st.validate(); err != nil {
		return Default(), &CorruptStateError{Path: s.path, Err: err}
	}
	return st, nil
}

func (st State) validate() error {
	if st.Version < 1 || st.Version > CurrentVersion {
		return fmt.Errorf("unsupported version %d", st.Version)
	}
	if st.LastContentHash == "" {
		if st.LastPickupDate != "" || len(st.LastTypes) > 0 {
			return errors.New("content without hash")
		}
		return nil
	}
	if st.LastPickupDate != "" {
		if _, err := time.Parse("2006-01-02", st.LastPickupDate); err != nil {
			return fmt.Errorf("invalid pickup date: %w", err)
		}
	}
	if Fingerprint(st.LastPickupDate, st.LastTypes) != st.LastContentHash {
		return errors.New("content hash mismatch")
	}
	return nil
}

// Save writes st to a temp file next to the state file, syncs it and renames
// it over the canonical path. A reader never observes a partial file.
func (s *Store) Save(st State) error {
	st.Version = CurrentVersion
	st.LastContentHash = Fingerprint(st.LastPickupDate, st.LastTypes)

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, filepath.Base(s.path)+tmpPattern)
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = s.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := s.fs.Chmod(tmpName, FilePermissions); err != nil {
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	committed = true
	return nil
}

// Reset removes the state file so the next tick redraws unconditionally
func (s *Store) Reset() error {
	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}
