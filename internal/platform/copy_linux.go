//go:build linux

package platform

import (
	"errors"

	"golang.org/x/sys/unix"
)

// CopyFile tries copy_file_range, then sendfile, then read/write, moving
// on when the kernel or file system does not support a method.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	if params.length() == 0 {
		return CopyResult{Method: ReadWrite}, nil
	}
	Preallocate(params.Dst, params.Offset+params.length())

	result, err := copyFileRange(params)
	if err == nil || !isFallbackErr(err) {
		return result, err
	}
	result, err = copySendfile(params)
	if err == nil || !isFallbackErr(err) {
		return result, err
	}
	return copyReadWrite(params)
}

//nolint:gosec // G115: fd values are small non-negative integers
func copyFileRange(params CopyFileParams) (CopyResult, error) {
	remaining := params.length()
	roff, woff := params.Offset, params.Offset

	var total int64
	for remaining > 0 {
		n, err := unix.CopyFileRange(int(params.Src.Fd()), &roff, int(params.Dst.Fd()), &woff, int(remaining), 0)
		if err != nil {
			if total > 0 {
				// Partial progress: finish with read/write from where we stopped.
				rest, rerr := copyReadWrite(CopyFileParams{
					Src: params.Src, Dst: params.Dst, Offset: roff, Length: remaining, Size: params.Size,
				})
				return CopyResult{BytesWritten: total + rest.BytesWritten, Method: CopyFileRange}, rerr
			}
			return CopyResult{}, err
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
		total += int64(n)
	}
	return CopyResult{BytesWritten: total, Method: CopyFileRange}, nil
}

//nolint:gosec // G115: fd values are small non-negative integers
func copySendfile(params CopyFileParams) (CopyResult, error) {
	remaining := params.length()
	offset := params.Offset

	// sendfile writes at the destination's file position.
	if _, err := params.Dst.Seek(params.Offset, 0); err != nil {
		return CopyResult{}, err
	}

	var total int64
	for remaining > 0 {
		n, err := unix.Sendfile(int(params.Dst.Fd()), int(params.Src.Fd()), &offset, int(remaining))
		if err != nil {
			if total == 0 {
				return CopyResult{}, err
			}
			return CopyResult{BytesWritten: total, Method: Sendfile}, err
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
		total += int64(n)
	}
	return CopyResult{BytesWritten: total, Method: Sendfile}, nil
}

// isFallbackErr reports whether err means "try the next strategy".
func isFallbackErr(err error) bool {
	return errors.Is(err, unix.ENOSYS) ||
		errors.Is(err, unix.EXDEV) ||
		errors.Is(err, unix.EINVAL) ||
		errors.Is(err, unix.ENOTSUP) ||
		errors.Is(err, unix.EOPNOTSUPP) ||
		errors.Is(err, unix.EBADF)
}
