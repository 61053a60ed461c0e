package stream

import (
	"bytes"
	"io"
	"sync"
)

// MemoryWriter is a write-only stream backed by a growing buffer.
type MemoryWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

// NewMemoryWriter returns an empty in-memory write stream.
func NewMemoryWriter() *MemoryWriter { return &MemoryWriter{} }

func (m *MemoryWriter) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.buf.Write(p)
}

// Close marks the stream closed. Closing twice is a no-op.
func (m *MemoryWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (m *MemoryWriter) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Bytes returns a copy of everything written so far.
func (m *MemoryWriter) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.buf.Bytes())
}

// MemoryReader is a read-only stream over a fixed byte slice.
type MemoryReader struct {
	mu     sync.Mutex
	r      *bytes.Reader
	closed bool
}

// NewMemoryReader returns a read stream over data.
func NewMemoryReader(data []byte) *MemoryReader {
	return &MemoryReader{r: bytes.NewReader(data)}
}

func (m *MemoryReader) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.r.Read(p)
}

// Close marks the stream closed. Closing twice is a no-op.
func (m *MemoryReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (m *MemoryReader) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// NopWriteCloser turns w into a WriteStream whose Close does nothing.
//
//nolint:ireturn // adapter returns the stream interface
func NopWriteCloser(w io.Writer) WriteStream {
	return nopWriteCloser{w}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
