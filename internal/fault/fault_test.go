package fault_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/parcel/internal/fault"
)

func TestError_IsMatchesKind(t *testing.T) {
	t.Parallel()

	err := fault.New(fault.KindSecurity, "extract", "../etc/passwd", errors.New("escapes root"))
	wrapped := fmt.Errorf("decompress: %w", err)

	assert.ErrorIs(t, wrapped, fault.ErrSecurity)
	assert.NotErrorIs(t, wrapped, fault.ErrDecode)
	assert.Equal(t, fault.KindSecurity, fault.KindOf(wrapped))
}

func TestError_AsExposesOpAndPath(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("outer: %w", fault.New(fault.KindIO, "read", "a/b.txt", io.ErrUnexpectedEOF))

	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "read", fe.Op)
	assert.Equal(t, "a/b.txt", fe.Path)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestError_Message(t *testing.T) {
	t.Parallel()

	err := fault.New(fault.KindSourceNotFound, "compress", "/missing", nil)
	assert.Equal(t, "compress: source not found /missing", err.Error())

	err = fault.Newf(fault.KindDecode, "", "", "bad magic %q", "XXXX")
	assert.Equal(t, `decode: bad magic "XXXX"`, err.Error())
}

func TestWrap_KeepsExistingKind(t *testing.T) {
	t.Parallel()

	inner := fault.New(fault.KindChecksum, "verify", "f", nil)
	err := fault.Wrap(fault.KindIO, "copy", "f", fmt.Errorf("ctx: %w", inner))
	assert.ErrorIs(t, err, fault.ErrChecksum)
	assert.NotErrorIs(t, err, fault.ErrIO)

	assert.NoError(t, fault.Wrap(fault.KindIO, "x", "y", nil))
	assert.ErrorIs(t, fault.Wrap(fault.KindIO, "x", "y", io.EOF), fault.ErrIO)
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "destination exists", fault.KindDestinationExists.String())
	assert.Equal(t, "unknown", fault.Kind(0).String())
	assert.Equal(t, "unknown", fault.Kind(99).String())
}
