//go:build !linux

package platform

// CopyFile copies with pread/pwrite on platforms without a range-copy
// syscall.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	if params.length() == 0 {
		return CopyResult{Method: ReadWrite}, nil
	}
	Preallocate(params.Dst, params.Offset+params.length())
	return copyReadWrite(params)
}
