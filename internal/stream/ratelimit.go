package stream

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// NewLimiter creates a rate.Limiter that caps archive throughput to
// bytesPerSec. The burst is 1 MB so natural buffer-sized transfers pass
// without blocking on every call. A rate of zero or less means unlimited
// and returns nil.
func NewLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := 1 << 20
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// waitN blocks until n bytes are allowed. WaitN rejects n above the burst,
// so large transfers are admitted in burst-sized steps.
func waitN(ctx context.Context, lim *rate.Limiter, n int) error {
	burst := lim.Burst()
	if burst <= 0 {
		return nil
	}
	for n > 0 {
		step := min(n, burst)
		if err := lim.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

type limitedReader struct {
	ctx context.Context
	r   ReadStream
	lim *rate.Limiter
}

// LimitReader throttles reads from r. A nil limiter returns r unchanged.
//
//nolint:ireturn // wrapper preserves the stream interface
func LimitReader(ctx context.Context, r ReadStream, lim *rate.Limiter) ReadStream {
	if lim == nil {
		return r
	}
	return &limitedReader{ctx: ctx, r: r, lim: lim}
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	if n > 0 {
		if waitErr := waitN(l.ctx, l.lim, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

func (l *limitedReader) Close() error { return l.r.Close() }

type limitedWriter struct {
	ctx context.Context
	w   WriteStream
	lim *rate.Limiter
}

// LimitWriter throttles writes to w. A nil limiter returns w unchanged.
//
//nolint:ireturn // wrapper preserves the stream interface
func LimitWriter(ctx context.Context, w WriteStream, lim *rate.Limiter) WriteStream {
	if lim == nil {
		return w
	}
	return &limitedWriter{ctx: ctx, w: w, lim: lim}
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if err := waitN(l.ctx, l.lim, len(p)); err != nil {
		return 0, err
	}
	return l.w.Write(p)
}

func (l *limitedWriter) Close() error { return l.w.Close() }

var (
	_ io.ReadCloser  = (*limitedReader)(nil)
	_ io.WriteCloser = (*limitedWriter)(nil)
)
