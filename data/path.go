package data

import (
	"fmt"
	"strings"
)

// ToAbsolutePath ensures the path always starts with a leading slash.
func ToAbsolutePath(path string) (string, error) {
	if len(path) == 0 {
		return "", ErrInvalidPath
	}

	if !strings.HasPrefix(path, "/") {
		path = fmt.Sprintf("/%s", path)
	}

	return path, nil
}

// ToRelativePath removes the prefix from path.
// Returns the relative path after the prefix.
// It additionally removes any leading slashes.
func ToRelativePath(path, prefix string) string {
	if prefix == "" || prefix == "/" {
		return strings.TrimPrefix(path, "/")
	}

	if path == prefix {
		return ""
	}

	relPath := strings.TrimPrefix(path, prefix)
	return strings.TrimPrefix(relPath, "/")
}

// HasPrefix checks if path sits at or below prefix.
// A match requires a full segment boundary, so "/src" does not
// cover "/src2". Both paths should be cleaned before calling.
func HasPrefix(path, prefix string) bool {
	// Root matches everything
	if prefix == "" || prefix == "/" {
		return true
	}

	// Exact match
	if path == prefix {
		return true
	}

	// Check if path starts with prefix followed by /
	return strings.HasPrefix(path, prefix+"/")
}

// Split breaks an absolute path into its segments.
// The leading slash produces no empty segment.
func Split(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "/")
}

// Base returns the final segment of the path, or "/" for the root.
func Base(path string) string {
	segments := Split(path)
	if len(segments) == 0 {
		return "/"
	}

	return segments[len(segments)-1]
}
