package workspace

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	perrors "github.com/jmgilman/go/errors"
)

const DefaultFileName = "Untitled.md"

// State holds the active root. Readers share the lock; only Set takes it
// exclusively, and only long enough to repoint.
type State struct {
	mu           sync.RWMutex
	active       RootDescriptor
	internalRoot string
	closed       bool
}

func NewState(internalRoot string) (*State, error) {
	if strings.TrimSpace(internalRoot) == "" {
		return nil, perrors.New(CodeInvalidPath, "internal root cannot be empty")
	}
	abs, err := filepath.Abs(internalRoot)
	if err != nil {
		return nil, perrors.Wrap(err, CodeInvalidPath, "failed to resolve internal root")
	}
	return &State{internalRoot: abs}, nil
}

func (s *State) InternalRoot() string {
	return s.internalRoot
}

// Get returns a copy of the active root. The path is empty until the first Set.
func (s *State) Get() (RootDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return RootDescriptor{}, errStateClosed
	}
	return s.active, nil
}

// Require is Get for operations that cannot run before initialization.
func (s *State) Require() (RootDescriptor, error) {
	root, err := s.Get()
	if err != nil {
		return RootDescriptor{}, err
	}
	if root.Path == "" {
		return RootDescriptor{}, errRootUnset
	}
	return root, nil
}

// Set repoints the active root. A nil path selects the internal root and
// seeds it with an empty Untitled.md when it holds no markdown yet.
func (s *State) Set(path *string) (RootDescriptor, error) {
	next, err := s.prepare(path)
	if err != nil {
		return RootDescriptor{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return RootDescriptor{}, errStateClosed
	}
	s.active = next
	return next, nil
}

func (s *State) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *State) prepare(path *string) (RootDescriptor, error) {
	if path == nil {
		if err := ensureDefaultFile(s.internalRoot); err != nil {
			return RootDescriptor{}, err
		}
		return RootDescriptor{Kind: RootInternal, Path: s.internalRoot}, nil
	}

	target := *path
	if strings.TrimSpace(target) == "" {
		return RootDescriptor{}, perrors.New(CodeNotADirectory, "workspace root must be an existing directory")
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return RootDescriptor{}, perrors.Wrap(err, CodeNotADirectory, "workspace root must be an existing directory")
	}
	info, err := os.Stat(abs)
	if err != nil {
		return RootDescriptor{}, wrapIO(err, CodeNotADirectory, "workspace root must be an existing directory", abs)
	}
	if !info.IsDir() {
		return RootDescriptor{}, perrors.WithContext(
			perrors.New(CodeNotADirectory, "workspace root must be an existing directory"),
			"path", abs,
		)
	}
	return RootDescriptor{Kind: RootExternal, Path: abs}, nil
}

// ensureDefaultFile creates root if needed and adds Untitled.md unless some
// visible markdown file already exists anywhere beneath it.
func ensureDefaultFile(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return wrapIO(err, CodeCreateFailed, "failed to create internal root", root)
	}
	found, err := hasMarkdown(root)
	if err != nil {
		return wrapIO(err, CodeScanFailed, "failed to scan internal root", root)
	}
	if found {
		return nil
	}
	target := filepath.Join(root, DefaultFileName)
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return wrapIO(err, CodeCreateFailed, "failed to create default file", target)
	}
	if err := file.Close(); err != nil {
		return wrapIO(err, CodeCreateFailed, "failed to create default file", target)
	}
	return nil
}
