package engine

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

const hashBufSize = 32 * 1024

// HashFile computes the BLAKE3 digest of the file at path.
func HashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return hashFile(f, -1)
}

// HexDigest renders a digest the way list output shows it.
func HexDigest(sum []byte) string {
	return hex.EncodeToString(sum)
}

// hashFile hashes the first size bytes of f, or all of it when size is
// negative. It reads with ReadAt so the file offset is left alone.
func hashFile(f *os.File, size int64) ([]byte, error) {
	h := blake3.New()
	var src io.Reader = io.NewSectionReader(f, 0, 1<<62)
	if size >= 0 {
		src = io.NewSectionReader(f, 0, size)
	}
	buf := make([]byte, hashBufSize)
	n, err := io.CopyBuffer(h, src, buf)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", f.Name(), err)
	}
	if size >= 0 && n != size {
		return nil, fmt.Errorf("hash %s: read %d of %d bytes: %w", f.Name(), n, size, io.ErrUnexpectedEOF)
	}
	return h.Sum(nil), nil
}
