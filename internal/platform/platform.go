// Package platform copies file contents between open descriptors using the
// fastest mechanism the kernel offers, falling back to pread/pwrite.
package platform

import "os"

// CopyMethod identifies which syscall/strategy was used for a copy.
type CopyMethod int

const (
	ReadWrite     CopyMethod = iota
	CopyFileRange            // Linux copy_file_range(2)
	Sendfile                 // Linux sendfile(2)
)

func (m CopyMethod) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case CopyFileRange:
		return "copy_file_range"
	case Sendfile:
		return "sendfile"
	default:
		return "unknown"
	}
}

// CopyResult reports the outcome of a copy operation.
type CopyResult struct {
	BytesWritten int64
	Method       CopyMethod
}

// CopyFileParams describes a range copy. Data is read from Src and written
// to Dst at the same Offset. Length 0 copies through to Size.
type CopyFileParams struct {
	Src    *os.File
	Dst    *os.File
	Offset int64
	Length int64
	Size   int64
}

// length returns the effective byte count to copy.
func (p CopyFileParams) length() int64 {
	if p.Length > 0 {
		return p.Length
	}
	return max(p.Size-p.Offset, 0)
}
