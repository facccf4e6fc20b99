package workspace

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	perrors "github.com/jmgilman/go/errors"

	"inkwell/internal/event"
	"inkwell/internal/logging"
	"inkwell/internal/metrics"
	"inkwell/internal/watcher"
)

// Rearmer owns the single live watcher for the workspace.
type Rearmer interface {
	Rearm(root string, onChange func(root string)) (*watcher.Watcher, error)
	Close() error
}

// RootRecorder persists successful root switches.
type RootRecorder interface {
	RecordRoot(kind RootKind, path string) error
}

type ServiceOptions struct {
	State     *State
	Publisher event.Publisher[ChangeEvent]
	Watchers  Rearmer
	Recorder  RootRecorder
	Logger    *logging.Logger
	Registry  *metrics.Registry
}

// Service runs workspace operations against the active root. File operations
// hold the state read lock only to copy the root; I/O runs unlocked.
type Service struct {
	state     *State
	publisher event.Publisher[ChangeEvent]
	watchers  Rearmer
	recorder  RootRecorder
	logger    *logging.Logger
	registry  *metrics.Registry

	switchMu sync.Mutex
}

func NewService(options ServiceOptions) (*Service, error) {
	if options.State == nil {
		return nil, perrors.New(perrors.CodeInvalidConfig, "workspace state is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	return &Service{
		state:     options.State,
		publisher: options.Publisher,
		watchers:  options.Watchers,
		recorder:  options.Recorder,
		logger:    logger.Named("workspace"),
		registry:  registry,
	}, nil
}

func (s *Service) RootInfo() (RootDescriptor, error) {
	return s.state.Get()
}

func (s *Service) InternalRoot() string {
	return s.state.InternalRoot()
}

func (s *Service) Snapshot() (catalog Catalog, err error) {
	defer s.track("get_snapshot", time.Now(), &err)

	root, err := s.state.Require()
	if err != nil {
		return Catalog{}, err
	}
	return snapshotOf(root)
}

// SetRoot switches the active root, rearms the watcher on it, and publishes a
// fresh snapshot. Only the state change can fail the call.
func (s *Service) SetRoot(path *string) (root RootDescriptor, err error) {
	defer s.track("set_root", time.Now(), &err)

	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	root, err = s.state.Set(path)
	if err != nil {
		return RootDescriptor{}, err
	}
	fields := map[string]string{
		"root": root.Path,
		"kind": string(root.Kind),
	}
	s.logger.Info("workspace root set", fields)

	if s.watchers != nil {
		armed, rearmErr := s.watchers.Rearm(root.Path, s.onWatcherChange)
		switch {
		case rearmErr != nil:
			s.logger.Warn("watcher rearm failed", withError(fields, rearmErr))
		case armed == nil:
			s.logger.Info("workspace root missing; watcher not armed", fields)
		}
	}
	if s.recorder != nil {
		if recordErr := s.recorder.RecordRoot(root.Kind, root.Path); recordErr != nil {
			s.logger.Warn("failed to record workspace root", withError(fields, recordErr))
		}
	}
	s.publish(root, SourceOperation)
	return root, nil
}

func (s *Service) ListEntries() (entries []Entry, err error) {
	defer s.track("list_entries", time.Now(), &err)

	root, err := s.state.Require()
	if err != nil {
		return nil, err
	}
	return Scan(root.Path)
}

func (s *Service) ReadFile(path string) (content string, err error) {
	defer s.track("read_file", time.Now(), &err)

	_, target, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return "", wrapIO(err, CodeReadFailed, "failed to read file", path)
	}
	if !utf8.Valid(data) {
		return "", wrapIO(errors.New("content is not valid UTF-8"), CodeReadFailed, "failed to read file", path)
	}
	return string(data), nil
}

func (s *Service) WriteFile(path, content string) (err error) {
	defer s.track("write_file", time.Now(), &err)

	root, target, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return wrapIO(err, CodeWriteFailed, "failed to create parent directories", path)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return wrapIO(err, CodeWriteFailed, "failed to write file", path)
	}
	s.publish(root, SourceOperation)
	return nil
}

// CreateFile creates an empty file unless something already exists at path.
func (s *Service) CreateFile(path string) (err error) {
	defer s.track("create_file", time.Now(), &err)

	root, target, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return wrapIO(err, CodeCreateFailed, "failed to create parent directories", path)
	}
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	switch {
	case errors.Is(err, fs.ErrExist):
	case err != nil:
		return wrapIO(err, CodeCreateFailed, "failed to create file", path)
	default:
		if err := file.Close(); err != nil {
			return wrapIO(err, CodeCreateFailed, "failed to create file", path)
		}
	}
	s.publish(root, SourceOperation)
	return nil
}

func (s *Service) CreateDir(path string) (err error) {
	defer s.track("create_dir", time.Now(), &err)

	root, target, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return wrapIO(err, CodeCreateFailed, "failed to create directory", path)
	}
	s.publish(root, SourceOperation)
	return nil
}

func (s *Service) DeletePath(path string) (err error) {
	defer s.track("delete_path", time.Now(), &err)

	root, target, err := s.resolveBelowRoot(path)
	if err != nil {
		return err
	}
	info, err := os.Lstat(target)
	if err != nil {
		return wrapIO(err, CodeDeleteFailed, "failed to delete path", path)
	}
	if info.IsDir() {
		err = os.RemoveAll(target)
	} else {
		err = os.Remove(target)
	}
	if err != nil {
		return wrapIO(err, CodeDeleteFailed, "failed to delete path", path)
	}
	s.publish(root, SourceOperation)
	return nil
}

func (s *Service) RenamePath(from, to string) (err error) {
	defer s.track("rename_path", time.Now(), &err)

	root, source, err := s.resolveBelowRoot(from)
	if err != nil {
		return err
	}
	target, err := Resolve(root.Path, to)
	if err != nil {
		return err
	}
	if filepath.Clean(target) == filepath.Clean(root.Path) {
		return perrors.WithContext(perrors.New(CodeInvalidPath, "path must name an entry inside the workspace root"), "path", to)
	}
	created, err := mkdirParents(filepath.Dir(target))
	if err != nil {
		return wrapIO(err, CodeRenameFailed, "failed to create destination directories", to)
	}
	if err := os.Rename(source, target); err != nil {
		for _, dir := range created {
			_ = os.Remove(dir)
		}
		return perrors.WrapWithContext(err, CodeRenameFailed, "failed to rename path", map[string]interface{}{
			"from": from,
			"to":   to,
		})
	}
	s.publish(root, SourceOperation)
	return nil
}

// Close releases the watcher and refuses further state access.
func (s *Service) Close() error {
	var err error
	if s.watchers != nil {
		err = s.watchers.Close()
	}
	s.state.Close()
	return err
}

func (s *Service) resolve(path string) (RootDescriptor, string, error) {
	root, err := s.state.Require()
	if err != nil {
		return RootDescriptor{}, "", err
	}
	target, err := Resolve(root.Path, path)
	if err != nil {
		return RootDescriptor{}, "", err
	}
	return root, target, nil
}

// resolveBelowRoot rejects paths such as "." that name the root itself.
func (s *Service) resolveBelowRoot(path string) (RootDescriptor, string, error) {
	root, target, err := s.resolve(path)
	if err != nil {
		return RootDescriptor{}, "", err
	}
	if filepath.Clean(target) == filepath.Clean(root.Path) {
		return RootDescriptor{}, "", perrors.WithContext(perrors.New(CodeInvalidPath, "path must name an entry inside the workspace root"), "path", path)
	}
	return root, target, nil
}

// onWatcherChange publishes for external edits, unless the reporting watcher
// belongs to a root that has since been replaced.
func (s *Service) onWatcherChange(watchedRoot string) {
	current, err := s.state.Get()
	if err != nil || current.Path != watchedRoot {
		s.logger.Debug("ignoring change from inactive root", map[string]string{
			"root": watchedRoot,
		})
		return
	}
	s.publish(current, SourceWatcher)
}

// publish rescans root and sends the result. Failures are logged only.
func (s *Service) publish(root RootDescriptor, source ChangeSource) {
	if s.publisher == nil {
		return
	}
	catalog, err := snapshotOf(root)
	if err != nil {
		s.logger.Warn("failed to scan workspace for change event", withError(map[string]string{
			"root":   root.Path,
			"source": string(source),
		}, err))
		return
	}
	s.publisher.Publish(NewChangeEvent(catalog, source))
}

func (s *Service) track(operation string, started time.Time, err *error) {
	var failure error
	if err != nil {
		failure = *err
	}
	s.registry.RecordOperation(operation, time.Since(started), failure)
	if failure != nil && !IsValidation(failure) {
		s.logger.Debug("workspace operation failed", map[string]string{
			"operation": operation,
			"error":     failure.Error(),
		})
	}
}

// mkdirParents is os.MkdirAll that also reports the directories it created,
// deepest first.
func mkdirParents(dir string) ([]string, error) {
	var missing []string
	for current := dir; ; current = filepath.Dir(current) {
		if _, err := os.Lstat(current); !errors.Is(err, fs.ErrNotExist) {
			break
		}
		missing = append(missing, current)
		if filepath.Dir(current) == current {
			break
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return missing, nil
}

func snapshotOf(root RootDescriptor) (Catalog, error) {
	entries, err := Scan(root.Path)
	if err != nil {
		return Catalog{}, err
	}
	return Catalog{Root: root, Entries: entries}, nil
}

func withError(fields map[string]string, err error) map[string]string {
	merged := make(map[string]string, len(fields)+1)
	for key, value := range fields {
		merged[key] = value
	}
	merged["error"] = err.Error()
	return merged
}
