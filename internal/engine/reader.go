package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bamsammich/parcel/internal/fault"
	"github.com/bamsammich/parcel/internal/header"
	"github.com/bamsammich/parcel/internal/stream"
)

const decodeBufSize = 256 * 1024

// Reader parses an archive record stream. Next advances to the next entry;
// Read then yields that entry's payload. It owns the stream it reads from.
type Reader struct {
	count     *stream.CountingReader
	br        *bufio.Reader
	cur       *header.Header
	closer    io.Closer
	remaining int64
	entries   uint64
	payload   uint64
	done      bool
}

// NewReader checks the archive preamble on r.
func NewReader(r stream.ReadStream) (*Reader, error) {
	rd := &Reader{count: &stream.CountingReader{R: r}}
	rd.br = bufio.NewReaderSize(rd.count, decodeBufSize)
	rd.closer = stream.Once(r)
	if err := header.ReadPreamble(rd.br); err != nil {
		return nil, decodeError("read preamble", "", err)
	}
	return rd, nil
}

// Next skips whatever remains of the current payload and returns the next
// header. At the end record it checks the trailer and returns io.EOF.
func (r *Reader) Next() (*header.Header, error) {
	if r.done {
		return nil, io.EOF
	}
	if r.remaining > 0 {
		if _, err := io.CopyN(io.Discard, r, r.remaining); err != nil {
			return nil, err
		}
	}

	rec, err := header.ReadRecord(r.br)
	if err != nil {
		return nil, decodeError("read record", "", err)
	}
	if rec.End {
		return nil, r.finish(rec.Trailer)
	}

	h := rec.Header
	if err := validate(h); err != nil {
		return nil, err
	}
	r.cur = h
	r.remaining = h.DataLen
	r.entries++
	r.payload += uint64(h.DataLen) //nolint:gosec // negative lengths are rejected by ReadRecord
	return h, nil
}

// Read reads the current entry's payload. It returns io.EOF once DataLen
// bytes have been read, and a decode error if the stream ends first.
func (r *Reader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.br.Read(p)
	r.remaining -= int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, decodeError("read payload", r.cur.Path, io.ErrUnexpectedEOF)
		}
		return n, decodeError("read payload", r.cur.Path, err)
	}
	return n, nil
}

// BytesRead returns how many decoded bytes have been consumed.
func (r *Reader) BytesRead() int64 { return r.count.N - int64(r.br.Buffered()) }

// Close closes the underlying stream.
func (r *Reader) Close() error { return r.closer.Close() }

// finish validates the trailer and that nothing follows it. Reading to EOF
// also makes the codec check its own end-of-stream checksum.
func (r *Reader) finish(t header.Trailer) error {
	r.done = true
	if t.Entries != r.entries || t.PayloadBytes != r.payload {
		return fault.Newf(fault.KindDecode, "read trailer", "",
			"trailer records %d entries and %d payload bytes, archive holds %d and %d",
			t.Entries, t.PayloadBytes, r.entries, r.payload)
	}
	var one [1]byte
	n, err := io.ReadFull(r.br, one[:])
	switch {
	case n > 0:
		return fault.Newf(fault.KindDecode, "read trailer", "", "data after end record")
	case errors.Is(err, io.EOF):
		return io.EOF
	default:
		return decodeError("read trailer", "", err)
	}
}

func validate(h *header.Header) error {
	if err := header.ValidatePath(h.Path); err != nil {
		return fault.New(fault.KindSecurity, "validate", h.Path, err)
	}
	switch h.Type {
	case header.TypeHardlink, header.TypeClone:
		if err := header.ValidateLinkTarget(h.LinkTarget); err != nil {
			return fault.New(fault.KindSecurity, "validate link", h.Path, err)
		}
		if h.DataLen != 0 {
			return fault.Newf(fault.KindDecode, "validate", h.Path, "%s entry carries %d payload bytes", h.Type, h.DataLen)
		}
	case header.TypeDirectory, header.TypeSymlink:
		if h.DataLen != 0 {
			return fault.Newf(fault.KindDecode, "validate", h.Path, "%s entry carries %d payload bytes", h.Type, h.DataLen)
		}
	case header.TypeRegular:
		if h.Has(header.KeySIZ) && h.Size != h.DataLen {
			return fault.Newf(fault.KindDecode, "validate", h.Path, "size %d does not match payload length %d", h.Size, h.DataLen)
		}
	}
	return nil
}

// decodeError classifies a read failure. Cancellation and errors that
// already carry a kind pass through untouched.
func decodeError(op, path string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if fault.KindOf(err) != 0 {
		return err
	}
	if errors.Is(err, header.ErrFormat) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fault.New(fault.KindDecode, op, path, err)
	}
	return fault.New(fault.KindIO, op, path, fmt.Errorf("reading archive: %w", err))
}
