package engine

import (
	"bytes"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// sparseBlock is the granularity at which the extractor looks for runs of
// zeros worth turning into holes.
const sparseBlock = 4096

var zeroBlock [sparseBlock]byte

// Segment describes a contiguous region of a file.
type Segment struct {
	Offset int64
	Length int64
	IsData bool
}

// DetectSparseSegments walks SEEK_DATA/SEEK_HOLE to map out the sparse
// layout of a file. Returns a single data segment covering the whole file
// if the filesystem doesn't support sparse detection.
//
//nolint:revive // cognitive-complexity: SEEK_DATA/SEEK_HOLE state machine with error recovery
func DetectSparseSegments(fd *os.File, fileSize int64) ([]Segment, error) {
	if fileSize == 0 {
		return nil, nil
	}

	rawFd := int(fd.Fd()) //nolint:gosec // G115: fd conversion is safe for file descriptors
	var segments []Segment
	offset := int64(0)

	for offset < fileSize {
		dataStart, err := unix.Seek(rawFd, offset, unix.SEEK_DATA)
		if err != nil {
			if err == syscall.ENXIO { //nolint:errorlint // raw errno from unix.Seek
				// Rest of file is a hole.
				segments = append(segments, Segment{Offset: offset, Length: fileSize - offset})
				break
			}
			if err == syscall.EINVAL { //nolint:errorlint // raw errno from unix.Seek
				return wholeFileSegment(fileSize), nil
			}
			return nil, err
		}
		if dataStart >= fileSize {
			// The file shrank or the data lies past the size we were told.
			segments = append(segments, Segment{Offset: offset, Length: fileSize - offset})
			break
		}

		if dataStart > offset {
			segments = append(segments, Segment{Offset: offset, Length: dataStart - offset})
		}

		holeStart, err := unix.Seek(rawFd, dataStart, unix.SEEK_HOLE)
		if err != nil {
			switch err { //nolint:errorlint // raw errno from unix.Seek
			case syscall.ENXIO:
				holeStart = fileSize
			case syscall.EINVAL:
				return wholeFileSegment(fileSize), nil
			default:
				return nil, err
			}
		}
		holeStart = min(holeStart, fileSize)

		segments = append(segments, Segment{
			Offset: dataStart,
			Length: holeStart - dataStart,
			IsData: true,
		})
		offset = holeStart
	}

	if len(segments) == 0 {
		return wholeFileSegment(fileSize), nil
	}
	return segments, nil
}

func wholeFileSegment(size int64) []Segment {
	return []Segment{{Offset: 0, Length: size, IsData: true}}
}

// sparseWriter writes payload bytes to f at increasing offsets, skipping
// block-aligned runs of zeros so the filesystem can leave them as holes.
// Finish must be called to fix the final size.
type sparseWriter struct {
	f   *os.File
	off int64
}

func (s *sparseWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := min(len(p), sparseBlock-int(s.off%sparseBlock))
		chunk := p[:n]
		if !bytes.Equal(chunk, zeroBlock[:n]) {
			if _, err := s.f.WriteAt(chunk, s.off); err != nil {
				return written, err
			}
		}
		s.off += int64(n)
		written += n
		p = p[n:]
	}
	return written, nil
}

// Finish extends the file over any trailing hole.
func (s *sparseWriter) Finish() error {
	return s.f.Truncate(s.off)
}
