// Package engine turns directory trees into archive record streams and back.
//
// The Encoder walks a source tree and writes framed headers and payloads to
// a WriteStream. The Reader parses that framing back into headers and
// bounded payload readers, and the Extractor materializes them beneath a
// destination root. Neither side knows about compression: the pipeline
// stacks a codec stream underneath.
package engine

import (
	"errors"
	"io/fs"
	"log/slog"
)

// EncodeFlags tune what the Encoder emits.
type EncodeFlags uint32

const (
	// DedupeHardlinks emits a hardlink entry for every path after the first
	// that shares a device and inode.
	DedupeHardlinks EncodeFlags = 1 << iota
	// DedupeContent emits a clone entry for regular files whose content
	// matches an earlier file.
	DedupeContent
	// FollowSymlinks archives what symlinks point at instead of the links.
	FollowSymlinks
	// SkipPermissionDenied skips entries the process may not read.
	SkipPermissionDenied
	// SkipErrors skips any entry whose source cannot be read, as long as
	// nothing of it has been written yet.
	SkipErrors
)

// Has reports whether all of want are set.
func (f EncodeFlags) Has(want EncodeFlags) bool { return f&want == want }

// ExtractFlags tune how the Extractor materializes entries.
type ExtractFlags uint32

const (
	// NoAutoSparse writes zero runs instead of leaving holes.
	NoAutoSparse ExtractFlags = 1 << iota
	// NoAutoDedupe materializes clone entries as independent copies rather
	// than hardlinks.
	NoAutoDedupe
	// SkipPermissionDeniedExtract skips entries that cannot be created for
	// lack of permission.
	SkipPermissionDeniedExtract
	// PreserveOwner restores UID and GID when present.
	PreserveOwner
	// NoTimes leaves timestamps at extraction time.
	NoTimes
	// VerifyChecksums checks regular file payloads against HSH.
	VerifyChecksums
)

// Has reports whether all of want are set.
func (f ExtractFlags) Has(want ExtractFlags) bool { return f&want == want }

// devIno identifies a file for hardlink detection and cycle checks.
type devIno struct {
	dev uint64
	ino uint64
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func isPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}
