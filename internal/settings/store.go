package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"inkwell/internal/fsutil"
	"inkwell/internal/workspace"
)

const (
	FileName       = "state.yaml"
	MaxRecentRoots = 10
)

// State is what survives a restart: the last active root and the
// recently opened external roots, newest first.
type State struct {
	LastRootKind workspace.RootKind `yaml:"last_root_kind,omitempty" json:"last_root_kind,omitempty"`
	LastRoot     string             `yaml:"last_root,omitempty" json:"last_root,omitempty"`
	RecentRoots  []string           `yaml:"recent_roots,omitempty" json:"recent_roots"`
}

type Store struct {
	mu    sync.Mutex
	path  string
	state State
}

// Open loads the store at path. A missing file yields an empty store. A file
// that cannot be parsed also yields an empty store, along with the parse
// error so the caller can report it.
func Open(path string) (*Store, error) {
	store := &Store{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return store, fmt.Errorf("read workspace state %q: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return store, nil
	}

	var state State
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&state); err != nil {
		return store, fmt.Errorf("invalid workspace state %q: %w", path, err)
	}
	state.RecentRoots = normalizeRecent(state.RecentRoots)
	store.state = state
	return store, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.state)
}

func (s *Store) RecentRoots() []string {
	return s.Snapshot().RecentRoots
}

// RecordRoot remembers a successful root switch and writes the store.
// Only external roots enter the recent list.
func (s *Store) RecordRoot(kind workspace.RootKind, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneState(s.state)
	next.LastRootKind = kind
	next.LastRoot = path
	if kind == workspace.RootExternal {
		next.RecentRoots = normalizeRecent(append([]string{path}, next.RecentRoots...))
	}
	if err := s.saveLocked(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// Forget drops a root from the recent list, for folders that no longer exist.
func (s *Store) Forget(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneState(s.state)
	kept := next.RecentRoots[:0]
	for _, root := range next.RecentRoots {
		if root != path {
			kept = append(kept, root)
		}
	}
	next.RecentRoots = kept
	if next.LastRoot == path {
		next.LastRoot = ""
		next.LastRootKind = ""
	}
	if err := s.saveLocked(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Store) saveLocked(state State) error {
	payload, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode workspace state: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, payload, 0o600); err != nil {
		return fmt.Errorf("write workspace state %q: %w", s.path, err)
	}
	return nil
}

func normalizeRecent(roots []string) []string {
	seen := make(map[string]struct{}, len(roots))
	out := make([]string, 0, len(roots))
	for _, root := range roots {
		if root == "" {
			continue
		}
		cleaned := filepath.Clean(root)
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
		if len(out) == MaxRecentRoots {
			break
		}
	}
	return out
}

func cloneState(state State) State {
	clone := state
	clone.RecentRoots = append([]string{}, state.RecentRoots...)
	return clone
}
