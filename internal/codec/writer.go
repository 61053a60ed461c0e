package codec

import (
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

var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// compressWriter owns both the encoder and the stream it writes into.
type compressWriter struct {
	enc    io.WriteCloser
	dst    stream.WriteStream
	alg    Algorithm
	closer io.Closer
}

// NewWriter returns a stream that compresses into w with alg at level.
// Level 0 selects the algorithm's default. Closing the returned stream
// flushes the compressed tail and then closes w, even if the flush failed.
// On error w is left open for the caller to close.
//
//nolint:ireturn // stream constructors return the stream interface
func NewWriter(w stream.WriteStream, alg Algorithm, level int) (stream.WriteStream, error) {
	enc, err := newEncoder(w, alg, level)
	if err != nil {
		return nil, fault.New(fault.KindStreamOpen, "compress", alg.String(), err)
	}
	cw := &compressWriter{enc: enc, dst: w, alg: alg}
	cw.closer = stream.Once(closerFunc(cw.close))
	return cw, nil
}

//nolint:ireturn // returns the encoder for the selected algorithm
func newEncoder(w io.Writer, alg Algorithm, level int) (io.WriteCloser, error) {
	switch alg {
	case None:
		return nopEncoder{w}, nil

	case Zlib:
		if level == DefaultLevel {
			level = zlib.DefaultCompression
		}
		return zlib.NewWriterLevel(w, level)

	case Gzip:
		if level == DefaultLevel {
			level = gzip.DefaultCompression
		}
		return gzip.NewWriterLevel(w, level)

	case Zstd:
		opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if level != DefaultLevel {
			if level < 1 || level > 22 {
				return nil, fmt.Errorf("zstd level %d out of range 1-22", level)
			}
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		return zstd.NewWriter(w, opts...)

	case LZ4:
		if level < 0 || level >= len(lz4Levels) {
			return nil, fmt.Errorf("lz4 level %d out of range 0-9", level)
		}
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.CompressionLevelOption(lz4Levels[level])); err != nil {
			return nil, err
		}
		return zw, nil

	case XZ:
		cfg := xz.WriterConfig{}
		if level != DefaultLevel {
			if level < 1 || level > 9 {
				return nil, fmt.Errorf("xz level %d out of range 1-9", level)
			}
			// Dictionary size grows with level: 512 KiB at 1, 128 MiB at 9.
			cfg.DictCap = 1 << (18 + level)
		}
		return cfg.NewWriter(w)

	default:
		return nil, fmt.Errorf("unsupported codec %s", alg)
	}
}

func (c *compressWriter) Write(p []byte) (int, error) {
	n, err := c.enc.Write(p)
	if err != nil {
		return n, fault.Wrap(fault.KindIO, "compress", c.alg.String(), err)
	}
	return n, nil
}

// Close flushes the encoder and closes the wrapped stream.
func (c *compressWriter) Close() error { return c.closer.Close() }

func (c *compressWriter) close() error {
	var errs []error
	if err := c.enc.Close(); err != nil {
		errs = append(errs, fault.New(fault.KindIO, "flush", c.alg.String(), err))
	}
	if err := c.dst.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Algorithm returns the algorithm in use.
func (c *compressWriter) Algorithm() Algorithm { return c.alg }

type nopEncoder struct{ io.Writer }

func (nopEncoder) Close() error { return nil }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
