package fsutil

import (
	"path/filepath"
	"strings"
)

// IsHidden reports whether a base name uses the dot-file convention.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// IsMarkdown reports whether name carries an md or markdown extension, ignoring case.
func IsMarkdown(name string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	return strings.EqualFold(ext, "md") || strings.EqualFold(ext, "markdown")
}

// RelativeSlash returns target relative to root with forward slashes.
func RelativeSlash(root, target string) (string, error) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// HasHiddenComponent reports whether any component of target below root is hidden.
func HasHiddenComponent(root, target string) bool {
	rel, err := RelativeSlash(root, target)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if IsHidden(part) {
			return true
		}
	}
	return false
}
