// Package stream provides the unidirectional byte streams the archive
// pipeline is assembled from, plus scoped close handling for them.
package stream

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ReadStream is a read-only byte stream. Read returns io.EOF at the end.
type ReadStream interface {
	io.Reader
	io.Closer
}

// WriteStream is a write-only byte stream. Close flushes buffered data and
// releases the underlying resources.
type WriteStream interface {
	io.Writer
	io.Closer
}

// ErrClosed is returned by reads and writes on a closed stream.
var ErrClosed = errors.New("stream closed")

// onceCloser runs the wrapped Close exactly once. Later calls return nil.
type onceCloser struct {
	c    io.Closer
	once sync.Once
}

// Once wraps c so that closing it more than once is harmless.
func Once(c io.Closer) io.Closer {
	if oc, ok := c.(*onceCloser); ok {
		return oc
	}
	return &onceCloser{c: c}
}

func (o *onceCloser) Close() error {
	var err error
	o.once.Do(func() { err = o.c.Close() })
	return err
}

type closeHandler struct {
	fn   func() error
	name string
}

// Stack holds close handlers for the streams opened by one operation.
// Close runs them last-pushed first, so the innermost wrapper is closed
// before what it wraps. Every handler runs even if an earlier one failed.
type Stack struct {
	mu       sync.Mutex
	handlers []closeHandler
	closed   bool
}

// Push registers c to be closed. c is closed at most once even if it is
// also closed elsewhere through the value returned by Once.
func (s *Stack) Push(name string, c io.Closer) {
	s.PushFunc(name, Once(c).Close)
}

// PushFunc registers fn as a close handler.
func (s *Stack) PushFunc(name string, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, closeHandler{name: name, fn: fn})
}

// Len reports the number of registered handlers.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Close runs all handlers in reverse order and joins their errors.
// Calling Close again is a no-op.
func (s *Stack) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handlers := s.handlers
	s.handlers = nil
	s.mu.Unlock()

	var errs []error
	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if err := h.fn(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}

// CountingWriter counts the bytes written through it.
type CountingWriter struct {
	W io.Writer
	N int64
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.W.Write(p)
	c.N += int64(n)
	return n, err
}

// CountingReader counts the bytes read through it.
type CountingReader struct {
	R io.Reader
	N int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	return n, err
}
