package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"inkwell/internal/fsutil"
)

// addRecursiveWatches registers every visible directory below root. Failures
// on single directories are logged; the rest of the tree is still watched.
func (watcher *Watcher) addRecursiveWatches(root string) {
	for _, path := range collectRecursiveDirs(root) {
		if err := watcher.addWatch(path); err != nil {
			if err == ErrMaxWatchesExceeded {
				return
			}
			watcher.logWarn("watch add failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
		}
	}
}

func collectRecursiveDirs(root string) []string {
	dirs := []string{}
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() || path == root {
			return nil
		}
		if fsutil.IsHidden(entry.Name()) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs
}

func (watcher *Watcher) addWatch(path string) error {
	watcher.mutex.Lock()
	if watcher.closed || watcher.watcher == nil {
		watcher.mutex.Unlock()
		return nil
	}
	if _, ok := watcher.watched[path]; ok {
		watcher.mutex.Unlock()
		return nil
	}
	if len(watcher.watched) >= watcher.options.MaxWatches {
		alreadyWarned := watcher.limited
		watcher.limited = true
		watcher.mutex.Unlock()
		if !alreadyWarned {
			watcher.logWarn("watch limit reached; deeper directories are not watched", map[string]string{
				"root":        watcher.root,
				"max_watches": strconv.Itoa(watcher.options.MaxWatches),
			})
		}
		return ErrMaxWatchesExceeded
	}
	watcher.watched[path] = struct{}{}
	count := len(watcher.watched)
	watcher.mutex.Unlock()

	if err := watcher.watcher.Add(path); err != nil {
		watcher.mutex.Lock()
		delete(watcher.watched, path)
		watcher.mutex.Unlock()
		return err
	}
	watcher.registry.SetWatchedDirs(count)
	return nil
}

// watchCreated extends the watch to a directory that appeared after arming,
// including anything created inside it before the watch landed.
func (watcher *Watcher) watchCreated(path string) {
	info, err := os.Lstat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := watcher.addWatch(path); err != nil {
		if err != ErrMaxWatchesExceeded {
			watcher.logWarn("watch add failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
		}
		return
	}
	watcher.addRecursiveWatches(path)
}

// forget drops bookkeeping for a removed or renamed directory and its subtree.
func (watcher *Watcher) forget(path string) {
	prefix := path + string(filepath.Separator)
	var removed []string

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return
	}
	for watched := range watcher.watched {
		if watched == watcher.dir {
			continue
		}
		if watched == path || strings.HasPrefix(watched, prefix) {
			delete(watcher.watched, watched)
			removed = append(removed, watched)
		}
	}
	count := len(watcher.watched)
	watcher.mutex.Unlock()

	if len(removed) == 0 {
		return
	}
	if watcher.watcher != nil {
		for _, watched := range removed {
			_ = watcher.watcher.Remove(watched)
		}
	}
	watcher.registry.SetWatchedDirs(count)
}

func (watcher *Watcher) watchedCount() int {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	return len(watcher.watched)
}
