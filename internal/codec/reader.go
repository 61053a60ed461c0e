package codec

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/bamsammich/parcel/internal/fault"
	"github.com/bamsammich/parcel/internal/stream"
)

const (
	readBufSize = 64 * 1024
	sniffLen    = 6
)

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4  = []byte{0x04, 0x22, 0x4d, 0x18}
	magicXZ   = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
)

// Detect identifies the compression format from the first bytes of a
// stream. Anything unrecognised is reported as None; the archive layer
// rejects it if its own magic is missing too.
func Detect(head []byte) Algorithm {
	switch {
	case bytes.HasPrefix(head, magicXZ):
		return XZ
	case bytes.HasPrefix(head, magicZstd):
		return Zstd
	case bytes.HasPrefix(head, magicLZ4):
		return LZ4
	case bytes.HasPrefix(head, magicGzip):
		return Gzip
	case isZlibHeader(head):
		return Zlib
	}
	return None
}

// isZlibHeader checks the RFC 1950 CMF/FLG pair: deflate method, window
// no larger than 32 KiB, and a header checksum divisible by 31.
func isZlibHeader(head []byte) bool {
	if len(head) < 2 {
		return false
	}
	cmf, flg := head[0], head[1]
	if cmf&0x0f != 8 || cmf>>4 > 7 {
		return false
	}
	return (uint16(cmf)<<8|uint16(flg))%31 == 0
}

type decompressReader struct {
	dec     io.Reader
	release func()
	src     stream.ReadStream
	closer  io.Closer
	alg     Algorithm
}

// NewReader detects the compression format of r and returns a stream that
// yields the decompressed bytes. Truncated or corrupt input surfaces as a
// fault.ErrDecode from Read, never as a clean io.EOF. Closing the returned
// stream releases the decoder and closes r. On error r is left open.
//
//nolint:ireturn // stream constructors return the stream interface
func NewReader(r stream.ReadStream) (stream.ReadStream, Algorithm, error) {
	br := bufio.NewReaderSize(r, readBufSize)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, None, fault.New(fault.KindIO, "read", "", err)
	}
	if len(head) == 0 {
		return nil, None, fault.New(fault.KindDecode, "decompress", "", io.ErrUnexpectedEOF)
	}

	alg := Detect(head)
	dec, release, err := newDecoder(br, alg)
	if err != nil {
		return nil, alg, fault.New(fault.KindDecode, "decompress", alg.String(), err)
	}
	d := &decompressReader{dec: dec, release: release, src: r, alg: alg}
	d.closer = stream.Once(closerFunc(d.close))
	return d, alg, nil
}

func newDecoder(br *bufio.Reader, alg Algorithm) (io.Reader, func(), error) {
	switch alg {
	case Zlib:
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { _ = zr.Close() }, nil

	case Gzip:
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, err
		}
		// One archive is one member; trailing members are not archive data.
		gr.Multistream(false)
		return gr, func() { _ = gr.Close() }, nil

	case Zstd:
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil

	case LZ4:
		return lz4.NewReader(br), func() {}, nil

	case XZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, nil, err
		}
		return xr, func() {}, nil

	case None:
		return br, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported codec %s", alg)
	}
}

func (d *decompressReader) Read(p []byte) (int, error) {
	n, err := d.dec.Read(p)
	switch {
	case err == nil, err == io.EOF: //nolint:errorlint // decoders return io.EOF unwrapped
		return n, err
	case errors.Is(err, stream.ErrClosed), errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded), fault.KindOf(err) != 0:
		return n, err
	default:
		return n, fault.New(fault.KindDecode, "decompress", d.alg.String(), err)
	}
}

// Close releases the decoder and closes the source stream.
func (d *decompressReader) Close() error { return d.closer.Close() }

func (d *decompressReader) close() error {
	d.release()
	return d.src.Close()
}

// Algorithm returns the detected algorithm.
func (d *decompressReader) Algorithm() Algorithm { return d.alg }
