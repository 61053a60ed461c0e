package header

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// Path validation errors.
var (
	ErrEmptyPath    = errors.New("empty path")
	ErrAbsolutePath = errors.New("absolute path")
	ErrParentPath   = errors.New("path escapes archive root")
	ErrInvalidPath  = errors.New("invalid path")
)

// ValidatePath checks that p is a canonical slash-separated path relative
// to the archive root: not empty, not absolute, no NUL, and no empty, "."
// or ".." segments.
func ValidatePath(p string) error {
	switch {
	case p == "":
		return ErrEmptyPath
	case strings.ContainsRune(p, 0):
		return ErrInvalidPath
	case strings.HasPrefix(p, "/"), filepath.IsAbs(p), filepath.VolumeName(p) != "":
		return ErrAbsolutePath
	}
	for seg := range strings.SplitSeq(p, "/") {
		switch seg {
		case "..":
			return ErrParentPath
		case "", ".":
			return ErrInvalidPath
		}
	}
	return nil
}

// ValidateLinkTarget checks the target of a hardlink or clone entry, which
// must name an earlier entry inside the archive. Symlink targets are not
// checked here: they are stored verbatim and contained at extraction.
func ValidateLinkTarget(target string) error {
	return ValidatePath(target)
}

// Join appends name to the archive path parent.
func Join(parent, name string) string {
	if parent == "" {
		return name
	}
	return path.Join(parent, name)
}
