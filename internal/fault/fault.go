// Package fault defines the error kinds reported by archive operations.
//
// Every failure returned by the engine and pipeline can be discriminated with
// errors.Is against one of the sentinel kinds below, and errors.As exposes the
// operation and path that failed.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindSourceNotFound Kind = iota + 1
	KindPathResolution
	KindStreamOpen
	KindIO
	KindSecurity
	KindMetadataRestore
	KindDecode
	KindDestinationExists
	KindChecksum
)

var kindNames = [...]string{
	KindSourceNotFound:    "source not found",
	KindPathResolution:    "path resolution",
	KindStreamOpen:        "stream open",
	KindIO:                "i/o",
	KindSecurity:          "security",
	KindMetadataRestore:   "metadata restore",
	KindDecode:            "decode",
	KindDestinationExists: "destination exists",
	KindChecksum:          "checksum mismatch",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Sentinels for errors.Is. A *Error matches the sentinel of its Kind.
var (
	ErrSourceNotFound    = &Error{Kind: KindSourceNotFound}
	ErrPathResolution    = &Error{Kind: KindPathResolution}
	ErrStreamOpen        = &Error{Kind: KindStreamOpen}
	ErrIO                = &Error{Kind: KindIO}
	ErrSecurity          = &Error{Kind: KindSecurity}
	ErrMetadataRestore   = &Error{Kind: KindMetadataRestore}
	ErrDecode            = &Error{Kind: KindDecode}
	ErrDestinationExists = &Error{Kind: KindDestinationExists}
	ErrChecksum          = &Error{Kind: KindChecksum}
)

// Error is a classified failure.
type Error struct {
	Err  error
	Op   string
	Path string
	Kind Kind
}

// New returns an Error of the given kind. err may be nil.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Newf returns an Error whose cause is a formatted message.
func Newf(kind Kind, op, path, format string, args ...any) *Error {
	return New(kind, op, path, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Path == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// Wrap classifies err as kind unless it already carries a kind.
func Wrap(kind Kind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != 0 {
		return err
	}
	return New(kind, op, path, err)
}
