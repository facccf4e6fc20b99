package workspace

import (
	"path/filepath"
	"runtime"
	"strings"

	perrors "github.com/jmgilman/go/errors"
)

// Resolve joins a caller-supplied relative path onto root.
//
// The check is syntactic: the path must be non-blank, relative, and free of
// ".." components. Symlinks inside root are not resolved, so a link that
// points outside root is followed by later filesystem calls.
func Resolve(root, relative string) (string, error) {
	if strings.TrimSpace(relative) == "" {
		return "", perrors.New(CodeInvalidPath, "path cannot be empty")
	}
	if isAbsolute(relative) {
		return "", perrors.WithContext(
			perrors.New(CodeInvalidPath, "absolute paths are not allowed"),
			"path", relative,
		)
	}
	for _, part := range splitComponents(relative) {
		if part == ".." {
			return "", perrors.WithContext(
				perrors.New(CodePathEscape, "path cannot traverse above the workspace root"),
				"path", relative,
			)
		}
	}
	return filepath.Join(root, relative), nil
}

func isAbsolute(path string) bool {
	if filepath.IsAbs(path) {
		return true
	}
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, `\`) {
		return true
	}
	if runtime.GOOS == "windows" && filepath.VolumeName(path) != "" {
		return true
	}
	return false
}

func splitComponents(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}
