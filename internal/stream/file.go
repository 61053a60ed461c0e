package stream

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/bamsammich/parcel/internal/fault"
)

// DefaultPerm is the permission mask for archive files.
const DefaultPerm os.FileMode = 0o644

type fileReader struct {
	*os.File
	closer io.Closer
}

func (f *fileReader) Close() error { return f.closer.Close() }

type fileWriter struct {
	*os.File
	closer io.Closer
}

func (f *fileWriter) Close() error { return f.closer.Close() }

// OpenRead opens path as a read-only stream.
//
//nolint:ireturn // stream constructors return the stream interface
func OpenRead(path string) (ReadStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.New(fault.KindStreamOpen, "open read", path, err)
	}
	return &fileReader{File: f, closer: Once(f)}, nil
}

// OpenWrite creates or truncates path as a write-only stream with perm.
//
//nolint:ireturn // stream constructors return the stream interface
func OpenWrite(path string, perm os.FileMode) (WriteStream, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return nil, fault.New(fault.KindStreamOpen, "open write", path, err)
	}
	return &fileWriter{File: f, closer: Once(f)}, nil
}

// AtomicWriter writes to a hidden temp file next to its destination and
// renames it into place on Commit. Until then the destination is untouched.
type AtomicWriter struct {
	f       *os.File
	tmpPath string
	dst     string

	mu        sync.Mutex
	closed    bool
	closeErr  error
	committed bool
	aborted   bool
}

// TempName returns the hidden sibling name used while building dst.
func TempName(dst string) string {
	dir := filepath.Dir(dst)
	base := filepath.Base(dst)
	return filepath.Join(dir, fmt.Sprintf(".%s.%s.parcel-tmp", base, uuid.New().String()[:8]))
}

// NewAtomicWriter creates the temp file for dst with perm.
func NewAtomicWriter(dst string, perm os.FileMode) (*AtomicWriter, error) {
	tmpPath := TempName(dst)
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return nil, fault.New(fault.KindStreamOpen, "create temp", tmpPath, err)
	}
	RegisterTmp(tmpPath)
	return &AtomicWriter{f: f, tmpPath: tmpPath, dst: dst}, nil
}

func (w *AtomicWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return w.f.Write(p)
}

// Close syncs and closes the temp file. It does not rename it.
func (w *AtomicWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	syncErr := w.f.Sync()
	if err := w.f.Close(); err != nil {
		w.closeErr = err
	} else if syncErr != nil {
		w.closeErr = syncErr
	}
	return w.closeErr
}

// Commit closes the file if needed and renames it to the destination.
func (w *AtomicWriter) Commit() error {
	if err := w.Close(); err != nil {
		return fault.New(fault.KindIO, "close temp", w.tmpPath, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.aborted {
		return fault.Newf(fault.KindIO, "commit", w.dst, "writer was aborted")
	}
	if w.committed {
		return nil
	}
	if w.closeErr != nil {
		return fault.New(fault.KindIO, "close temp", w.tmpPath, w.closeErr)
	}
	if err := os.Rename(w.tmpPath, w.dst); err != nil {
		return fault.New(fault.KindIO, "rename", w.dst, err)
	}
	w.committed = true
	DeregisterTmp(w.tmpPath)
	return nil
}

// Abort closes and removes the temp file unless Commit succeeded.
// It is safe to call any number of times.
func (w *AtomicWriter) Abort() error {
	_ = w.Close() //nolint:errcheck // temp file is discarded anyway
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.committed || w.aborted {
		return nil
	}
	w.aborted = true
	DeregisterTmp(w.tmpPath)
	if err := os.Remove(w.tmpPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// TempPath returns the temp file path.
func (w *AtomicWriter) TempPath() string { return w.tmpPath }

// Path returns the destination path.
func (w *AtomicWriter) Path() string { return w.dst }
