package fsys

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"github.com/bamsammich/parcel/internal/platform"
	"github.com/bamsammich/parcel/internal/stream"
)

var _ FS = Local{}

// Local is the FS backed by the operating system.
type Local struct{}

func (Local) Lstat(path string) (Entry, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Entry{}, err
	}
	return toEntry(info, path)
}

func (Local) Stat(path string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, err
	}
	return toEntry(info, path)
}

func (Local) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (Local) ReadDir(path string) ([]Entry, error) {
	dirents, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		child := filepath.Join(path, d.Name())
		info, err := os.Lstat(child)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue // removed since the directory was read
			}
			return nil, err
		}
		e, err := toEntry(info, child)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (Local) Open(path string) (*os.File, error) {
	return os.Open(path)
}

//nolint:ireturn // implements FS
func (Local) OpenRead(path string) (stream.ReadStream, error) {
	return stream.OpenRead(path)
}

func (Local) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (Local) MkdirTemp(dir, prefix string) (string, error) {
	return os.MkdirTemp(dir, "."+prefix+"-*")
}

//nolint:ireturn // implements FS
func (Local) CreateTemp(path string, perm os.FileMode) (TempFile, error) {
	return stream.NewAtomicWriter(path, perm)
}

func (Local) Chmod(path string, perm os.FileMode) error {
	return os.Chmod(path, perm)
}

func (Local) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (Local) Remove(path string) error {
	return os.Remove(path)
}

func (Local) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// CopyFile copies src to dst through a temp file, so dst either appears
// complete or not at all.
func (Local) CopyFile(src, dst string, perm os.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	out, err := os.OpenFile(stream.TempName(dst), os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return 0, err
	}
	stream.RegisterTmp(out.Name())
	defer func() {
		stream.DeregisterTmp(out.Name())
		_ = os.Remove(out.Name()) // no-op after rename
	}()

	result, err := platform.CopyFile(platform.CopyFileParams{Src: in, Dst: out, Size: info.Size()})
	if err != nil {
		out.Close()
		return result.BytesWritten, err
	}
	if err := out.Close(); err != nil {
		return result.BytesWritten, err
	}
	if err := os.Rename(out.Name(), dst); err != nil {
		return result.BytesWritten, err
	}
	return result.BytesWritten, nil
}

func toEntry(info os.FileInfo, path string) (Entry, error) {
	e := Entry{
		Name:    info.Name(),
		Path:    path,
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
		Perm:    uint32(info.Mode().Perm()),
	}
	if e.IsSymlink() {
		target, err := os.Readlink(path)
		if err != nil {
			return Entry{}, err
		}
		e.LinkTarget = target
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		e.UID = stat.Uid
		e.GID = stat.Gid
		e.Ino = stat.Ino
		e.Perm = uint32(stat.Mode) & 0o7777 //nolint:gosec,unconvert // mode_t width differs by platform
		fillStatFields(stat, &e)
	}
	return e, nil
}
