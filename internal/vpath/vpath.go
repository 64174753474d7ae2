// Package vpath normalizes virtual file paths used as metadata keys:
// forward-slash, no trailing slash (except root), "." and ".."
// resolved, empty segments collapsed. An already-absolute path stays
// absolute; a relative path stays relative rather than being anchored
// to root.
package vpath

import (
	"errors"
	"path"
	"strings"
)

// ErrInvalidPath is returned for paths that escape the root via "..",
// or contain a NUL byte.
var ErrInvalidPath = errors.New("vpath: invalid path")

// Normalize converts p into the canonical form used as a metadata key,
// preserving whether p was absolute or relative: "/home//user" cleans
// to "/home/user", but "user/../file.txt" cleans to "file.txt" rather
// than being anchored to "/".
func Normalize(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", ErrInvalidPath
	}
	if p == "" {
		return "/", nil
	}
	absolute := strings.HasPrefix(p, "/")
	clean := path.Clean(p)
	if absolute && !strings.HasPrefix(clean, "/") {
		clean = "/" + clean
	}
	if strings.HasPrefix(clean, "/..") || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}
	return clean, nil
}

// Join normalizes the result of joining dir and name.
func Join(dir, name string) (string, error) {
	return Normalize(path.Join(dir, name))
}

// Dir returns the normalized parent of p.
func Dir(p string) string { return path.Dir(p) }

// Base returns the final path element of p.
func Base(p string) string { return path.Base(p) }
