package header

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Magic opens every archive, before the first record.
	Magic = "PRCL"
	// Version is the format version written after the magic.
	Version byte = 1
	// MaxHeaderSize bounds a single encoded header.
	MaxHeaderSize = 1 << 20

	tagHeader byte = 'H'
	tagEnd    byte = 'E'

	trailerSize = 16
)

// ErrFormat reports bytes that are not a well-formed archive.
var ErrFormat = errors.New("malformed archive")

// Trailer closes an archive and lets the reader check it saw everything.
type Trailer struct {
	Entries      uint64
	PayloadBytes uint64
}

// Record is one framed item read from an archive: a header, or the end
// marker with its trailer.
type Record struct {
	Header  *Header
	Trailer Trailer
	End     bool
}

// WritePreamble writes the magic and version.
func WritePreamble(w io.Writer) error {
	_, err := w.Write(append([]byte(Magic), Version))
	return err
}

// ReadPreamble checks the magic and version.
func ReadPreamble(r io.Reader) error {
	var buf [len(Magic) + 1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fmt.Errorf("%w: reading preamble: %w", ErrFormat, unexpected(err))
	}
	if string(buf[:len(Magic)]) != Magic {
		return fmt.Errorf("%w: bad magic %q", ErrFormat, buf[:len(Magic)])
	}
	if buf[len(Magic)] != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrFormat, buf[len(Magic)])
	}
	return nil
}

// WriteHeader frames and writes h. The payload, DataLen bytes of it, must
// follow before the next record.
func WriteHeader(w io.Writer, h *Header, keys FieldKeySet) error {
	body, err := Marshal(h, keys)
	if err != nil {
		return fmt.Errorf("encoding header %s: %w", h.Path, err)
	}
	if len(body) > MaxHeaderSize {
		return fmt.Errorf("header for %s is %d bytes, limit %d", h.Path, len(body), MaxHeaderSize)
	}
	frame := make([]byte, 5, 5+len(body))
	frame[0] = tagHeader
	binary.BigEndian.PutUint32(frame[1:], uint32(len(body))) //nolint:gosec // bounded by MaxHeaderSize
	frame = append(frame, body...)
	_, err = w.Write(frame)
	return err
}

// WriteEnd writes the end record.
func WriteEnd(w io.Writer, t Trailer) error {
	var frame [5 + trailerSize]byte
	frame[0] = tagEnd
	binary.BigEndian.PutUint32(frame[1:], trailerSize)
	binary.BigEndian.PutUint64(frame[5:], t.Entries)
	binary.BigEndian.PutUint64(frame[13:], t.PayloadBytes)
	_, err := w.Write(frame[:])
	return err
}

// ReadRecord reads the next record. The caller must consume or skip the
// previous header's payload first. Running out of input before the end
// record is ErrFormat, never io.EOF.
func ReadRecord(r io.Reader) (Record, error) {
	var pre [5]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return Record{}, fmt.Errorf("%w: reading record: %w", ErrFormat, unexpected(err))
	}
	size := binary.BigEndian.Uint32(pre[1:])

	switch pre[0] {
	case tagEnd:
		if size != trailerSize {
			return Record{}, fmt.Errorf("%w: end record length %d", ErrFormat, size)
		}
		var buf [trailerSize]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Record{}, fmt.Errorf("%w: reading trailer: %w", ErrFormat, unexpected(err))
		}
		return Record{End: true, Trailer: Trailer{
			Entries:      binary.BigEndian.Uint64(buf[:8]),
			PayloadBytes: binary.BigEndian.Uint64(buf[8:]),
		}}, nil

	case tagHeader:
		if size > MaxHeaderSize {
			return Record{}, fmt.Errorf("%w: header length %d exceeds %d", ErrFormat, size, MaxHeaderSize)
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return Record{}, fmt.Errorf("%w: reading header: %w", ErrFormat, unexpected(err))
		}
		h, err := Unmarshal(body)
		if err != nil {
			return Record{}, fmt.Errorf("%w: decoding header: %w", ErrFormat, err)
		}
		if h.DataLen < 0 {
			return Record{}, fmt.Errorf("%w: negative payload length for %s", ErrFormat, h.Path)
		}
		return Record{Header: h}, nil

	default:
		return Record{}, fmt.Errorf("%w: unknown record tag 0x%02x", ErrFormat, pre[0])
	}
}

// unexpected turns a clean EOF in the middle of the archive into
// io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
