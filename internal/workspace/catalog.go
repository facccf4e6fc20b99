package workspace

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"inkwell/internal/fsutil"
)

// Scan lists folders and markdown files under root, sorted by relative path.
// A symlinked root is followed; links below it are listed but not entered.
// A missing root yields an empty listing. Any traversal error fails the whole
// scan with SCAN_FAILED.
func Scan(root string) ([]Entry, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, wrapIO(err, CodeScanFailed, "failed to scan workspace", root)
	}
	if !info.IsDir() {
		return nil, wrapIO(errors.New("root is not a directory"), CodeScanFailed, "failed to scan workspace", root)
	}

	dir, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, wrapIO(err, CodeScanFailed, "failed to scan workspace", root)
	}

	entries := []Entry{}
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		name := d.Name()
		if fsutil.IsHidden(name) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		var kind EntryKind
		switch {
		case d.IsDir():
			kind = EntryFolder
		case fsutil.IsMarkdown(name):
			kind = EntryFile
		default:
			return nil
		}

		rel, err := fsutil.RelativeSlash(dir, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			RelativePath: rel,
			DisplayName:  name,
			Kind:         kind,
		})
		return nil
	})
	if walkErr != nil {
		return nil, wrapIO(walkErr, CodeScanFailed, "failed to scan workspace", root)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RelativePath < entries[j].RelativePath
	})
	return entries, nil
}

// hasMarkdown reports whether any visible markdown file exists under root.
func hasMarkdown(root string) (bool, error) {
	dir, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false, err
	}
	found := false
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if fsutil.IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && fsutil.IsMarkdown(d.Name()) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found, err
}
