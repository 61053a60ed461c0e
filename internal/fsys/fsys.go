// Package fsys is the file-system collaborator the archive engine and
// pipeline call into. The encoder reads sources and the pipeline manages
// archive files and staging directories only through an FS, so callers can
// substitute one for tests. Extraction itself is confined to an os.Root.
package fsys

import (
	"io"
	"os"
	"time"

	"github.com/bamsammich/parcel/internal/stream"
)

// Entry describes a single file-system entry with full metadata.
type Entry struct {
	ModTime    time.Time
	AccTime    time.Time
	ChangeTime time.Time
	Name       string // base name
	Path       string // path as passed to the FS
	LinkTarget string
	Size       int64
	Ino        uint64
	Dev        uint64
	Nlink      uint64
	UID        uint32
	GID        uint32
	Perm       uint32 // permission, setuid, setgid and sticky bits (0o7777)
	Mode       os.FileMode
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Mode.IsDir() }

// IsRegular reports whether the entry is a regular file.
func (e Entry) IsRegular() bool { return e.Mode.IsRegular() }

// IsSymlink reports whether the entry is a symbolic link.
func (e Entry) IsSymlink() bool { return e.Mode&os.ModeSymlink != 0 }

// TempFile is a writable temp file created next to its final path. The
// final path changes only on Commit.
type TempFile interface {
	io.WriteCloser
	// Commit closes the file and renames it over the final path.
	Commit() error
	// Abort discards the file unless it was committed.
	Abort() error
}

// FS is the set of file-system primitives the engine and pipeline use.
type FS interface {
	// Lstat returns metadata without following a final symlink.
	Lstat(path string) (Entry, error)
	// Stat returns metadata following symlinks.
	Stat(path string) (Entry, error)
	// Exists reports whether path exists (without following symlinks).
	Exists(path string) (bool, error)
	// ReadDir lists the children of a directory sorted by name.
	ReadDir(path string) ([]Entry, error)
	// Open opens a file for reading.
	Open(path string) (*os.File, error)
	// OpenRead opens a file as a read stream.
	OpenRead(path string) (stream.ReadStream, error)
	// MkdirAll creates a directory and all parents.
	MkdirAll(path string, perm os.FileMode) error
	// MkdirTemp creates a new hidden directory inside dir.
	MkdirTemp(dir, prefix string) (string, error)
	// CreateTemp starts an atomic write of path.
	CreateTemp(path string, perm os.FileMode) (TempFile, error)
	// Chmod changes the permission bits of path.
	Chmod(path string, perm os.FileMode) error
	// Rename atomically moves oldPath to newPath.
	Rename(oldPath, newPath string) error
	// Remove deletes a file or empty directory.
	Remove(path string) error
	// RemoveAll recursively deletes path.
	RemoveAll(path string) error
	// CopyFile copies the content of src to a new file dst.
	CopyFile(src, dst string, perm os.FileMode) (int64, error)
}
