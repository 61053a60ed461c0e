package platform

import (
	"errors"
	"io"
	"sync"
)

const bufferSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// copyReadWrite copies with ReadAt/WriteAt through a pooled buffer. It
// stops early at end of source, so BytesWritten may be short.
func copyReadWrite(params CopyFileParams) (CopyResult, error) {
	bufp := bufPool.Get().(*[]byte) //nolint:errcheck,forcetypeassert // pool only holds *[]byte
	defer bufPool.Put(bufp)
	buf := *bufp

	offset := params.Offset
	remaining := params.length()

	var total int64
	for remaining > 0 {
		n, err := params.Src.ReadAt(buf[:min(remaining, bufferSize)], offset)
		if n > 0 {
			if _, werr := params.Dst.WriteAt(buf[:n], offset); werr != nil {
				return CopyResult{BytesWritten: total, Method: ReadWrite}, werr
			}
			offset += int64(n)
			remaining -= int64(n)
			total += int64(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return CopyResult{BytesWritten: total, Method: ReadWrite}, err
		}
	}
	return CopyResult{BytesWritten: total, Method: ReadWrite}, nil
}

// CopyReadWrite forces the read/write strategy. Used by tests and by
// callers whose descriptors do not support the faster paths.
func CopyReadWrite(params CopyFileParams) (CopyResult, error) {
	return copyReadWrite(params)
}
