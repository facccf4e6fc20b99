// Package markdown reads and writes markdown documents by absolute path,
// outside of the active workspace root.
package markdown

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	perrors "github.com/jmgilman/go/errors"

	"inkwell/internal/fsutil"
	"inkwell/internal/workspace"
)

type File struct {
	Path         string `json:"path"`
	RelativePath string `json:"relative_path"`
}

// ListFiles returns every markdown file below root, hidden directories
// included, sorted by relative path. Symlinked directories are followed once.
func ListFiles(root string) ([]File, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, perrors.WrapWithContext(err, perrors.CodeNotFound, "project path does not exist", map[string]interface{}{
			"path": root,
		})
	}
	if err != nil {
		return nil, perrors.WrapWithContext(err, workspace.CodeScanFailed, "failed to read project path", map[string]interface{}{
			"path": root,
		})
	}
	if !info.IsDir() {
		return nil, perrors.WithContext(
			perrors.New(workspace.CodeNotADirectory, "project path is not a directory"),
			"path", root,
		)
	}

	files := []File{}
	visited := map[string]bool{}
	if err := collectFiles(root, "", visited, &files); err != nil {
		return nil, perrors.WrapWithContext(err, workspace.CodeScanFailed, "failed to list markdown files", map[string]interface{}{
			"path": root,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelativePath < files[j].RelativePath
	})
	return files, nil
}

// collectFiles descends through dir, entering linked directories as well.
// visited holds resolved directories so a link cycle is entered only once.
func collectFiles(root, dir string, visited map[string]bool, files *[]File) error {
	current := filepath.Join(root, dir)
	resolved, err := filepath.EvalSymlinks(current)
	if err != nil {
		return err
	}
	if visited[resolved] {
		return nil
	}
	visited[resolved] = true

	entries, err := os.ReadDir(current)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		relative := filepath.Join(dir, entry.Name())
		path := filepath.Join(root, relative)
		isDir := entry.IsDir()
		if entry.Type()&fs.ModeSymlink != 0 {
			if info, err := os.Stat(path); err == nil {
				isDir = info.IsDir()
			}
		}
		if isDir {
			if err := collectFiles(root, relative, visited, files); err != nil {
				return err
			}
			continue
		}
		if fsutil.IsMarkdown(entry.Name()) {
			*files = append(*files, File{Path: path, RelativePath: filepath.ToSlash(relative)})
		}
	}
	return nil
}

func ReadFile(path string) (string, error) {
	if err := requireAbsolute(path); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", perrors.WrapWithContext(err, workspace.CodeReadFailed, "failed to read file", map[string]interface{}{
			"path": path,
		})
	}
	if !utf8.Valid(data) {
		return "", perrors.WithContext(
			perrors.New(workspace.CodeReadFailed, "file is not valid UTF-8"),
			"path", path,
		)
	}
	return string(data), nil
}

// WriteFile replaces the file content. The parent directory must exist.
func WriteFile(path, content string) error {
	if err := requireAbsolute(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return perrors.WrapWithContext(err, workspace.CodeWriteFailed, "failed to write file", map[string]interface{}{
			"path": path,
		})
	}
	return nil
}

func requireAbsolute(path string) error {
	if path == "" || !filepath.IsAbs(path) {
		return perrors.WithContext(
			perrors.New(workspace.CodeInvalidPath, "path must be absolute"),
			"path", path,
		)
	}
	return nil
}
