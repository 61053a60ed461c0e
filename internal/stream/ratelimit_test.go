package stream

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewLimiter(t *testing.T) {
	t.Parallel()

	t.Run("burst capped to rate when rate < 1MB", func(t *testing.T) {
		t.Parallel()
		lim := NewLimiter(1024)
		assert.Equal(t, 1024, lim.Burst())
	})

	t.Run("burst is 1MB when rate >= 1MB", func(t *testing.T) {
		t.Parallel()
		lim := NewLimiter(10 * 1024 * 1024)
		assert.Equal(t, 1<<20, lim.Burst())
	})

	t.Run("zero or negative rate is unlimited", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, NewLimiter(0))
		assert.Nil(t, NewLimiter(-1))

		src := NewMemoryReader([]byte("abc"))
		assert.Same(t, src, LimitReader(context.Background(), src, NewLimiter(0)))
	})

	t.Run("zero burst does not block", func(t *testing.T) {
		t.Parallel()
		w := LimitWriter(context.Background(), NewMemoryWriter(), rate.NewLimiter(rate.Inf, 0))
		n, err := w.Write([]byte("payload"))
		require.NoError(t, err)
		assert.Equal(t, 7, n)
	})
}

func TestLimitReader(t *testing.T) {
	t.Parallel()

	t.Run("nil limiter passes through", func(t *testing.T) {
		t.Parallel()
		src := NewMemoryReader([]byte("abc"))
		assert.Same(t, src, LimitReader(context.Background(), src, nil))
	})

	t.Run("reads all data", func(t *testing.T) {
		t.Parallel()
		data := bytes.Repeat([]byte("x"), 4096)
		rl := LimitReader(context.Background(), NewMemoryReader(data), NewLimiter(1<<20))

		got, err := io.ReadAll(rl)
		require.NoError(t, err)
		assert.Equal(t, data, got)
		require.NoError(t, rl.Close())
	})

	t.Run("enforces rate limit", func(t *testing.T) {
		t.Parallel()
		// 10 KB at 5 KB/s: the first 5 KB is burst, the rest waits ~1s.
		data := bytes.Repeat([]byte("a"), 10*1024)
		rl := LimitReader(context.Background(), NewMemoryReader(data), NewLimiter(5*1024))

		start := time.Now()
		got, err := io.ReadAll(rl)
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Len(t, got, len(data))
		assert.Greater(t, elapsed, 500*time.Millisecond)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()
		data := bytes.Repeat([]byte("b"), 1<<20)
		ctx, cancel := context.WithCancel(context.Background())
		rl := LimitReader(ctx, NewMemoryReader(data), NewLimiter(1024))

		cancel()
		buf := make([]byte, 4096)
		for range 100 {
			if _, err := rl.Read(buf); err != nil {
				return
			}
		}
		t.Fatal("expected context cancellation error")
	})
}

func TestLimitWriter_WritesLargerThanBurst(t *testing.T) {
	t.Parallel()

	w := NewMemoryWriter()
	lw := LimitWriter(context.Background(), w, NewLimiter(64*1024))

	data := bytes.Repeat([]byte("z"), 100*1024)
	n, err := lw.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	require.NoError(t, lw.Close())
	assert.Equal(t, data, w.Bytes())
}
