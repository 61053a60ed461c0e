package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/parcel/internal/engine"
	"github.com/bamsammich/parcel/internal/event"
	"github.com/bamsammich/parcel/internal/fault"
	"github.com/bamsammich/parcel/internal/header"
	"github.com/bamsammich/parcel/internal/stats"
	"github.com/bamsammich/parcel/internal/stream"
)

func TestExtractor_RoundTrip(t *testing.T) {
	src := t.TempDir()
	createTestTree(t, src)

	dst, err := extract(t, encodeTree(t, src, header.DefaultKeys, 0), 0)
	require.NoError(t, err)
	verifyTreeCopy(t, src, dst)

	entries, err := os.ReadDir(filepath.Join(dst, "empty"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtractor_RestoresMetadata(t *testing.T) {
	src := t.TempDir()
	mtime := time.Date(2021, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "ro", "inner"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "ro", "inner", "f"), []byte("x"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(src, "exec"), []byte("#!/bin/sh\n"), 0o755))
	for _, p := range []string{"ro/inner/f", "exec", "ro/inner", "ro"} {
		require.NoError(t, os.Chtimes(filepath.Join(src, p), mtime, mtime))
	}
	// Read-only directory: its mode must land after its children are written.
	require.NoError(t, os.Chmod(filepath.Join(src, "ro"), 0o555))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(src, "ro"), 0o755) })

	dst, err := extract(t, encodeTree(t, src, header.DefaultKeys, 0), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(dst, "ro"), 0o755) })

	info, err := os.Stat(filepath.Join(dst, "exec"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(mtime))

	info, err = os.Stat(filepath.Join(dst, "ro", "inner", "f"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	for _, dir := range []string{"ro", "ro/inner"} {
		info, err = os.Stat(filepath.Join(dst, dir))
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(mtime), "%s mtime survives writing its children", dir)
	}
	info, err = os.Stat(filepath.Join(dst, "ro"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o555), info.Mode().Perm())
}

func TestExtractor_NoTimes(t *testing.T) {
	src := t.TempDir()
	old := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(filepath.Join(src, "f"), old, old))

	dst, err := extract(t, encodeTree(t, src, header.DefaultKeys, 0), engine.NoTimes)
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(dst, "f"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().After(old))
}

func TestExtractor_MissingParentsCreated(t *testing.T) {
	data := buildArchive(t,
		rawEntry{h: header.Header{Type: header.TypeRegular, Path: "a/b/c.txt", Size: 2}, payload: []byte("hi")},
	)
	dst, err := extract(t, data, 0)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dst, "a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))
}

func TestExtractor_DanglingSymlink(t *testing.T) {
	data := buildArchive(t,
		rawEntry{h: header.Header{Type: header.TypeSymlink, Path: "dangling", LinkTarget: "does/not/exist"}},
	)
	dst, err := extract(t, data, 0)
	require.NoError(t, err)
	target, err := os.Readlink(filepath.Join(dst, "dangling"))
	require.NoError(t, err)
	assert.Equal(t, "does/not/exist", target)
}

func TestExtractor_Security(t *testing.T) {
	outside := t.TempDir()

	tests := []struct {
		name    string
		entries []rawEntry
	}{
		{"symlink parent escape", []rawEntry{
			{h: header.Header{Type: header.TypeSymlink, Path: "evil", LinkTarget: outside}},
			{h: header.Header{Type: header.TypeRegular, Path: "evil/pwned", Size: 1}, payload: []byte("x")},
		}},
		{"relative symlink parent escape", []rawEntry{
			{h: header.Header{Type: header.TypeSymlink, Path: "evil", LinkTarget: "../../../../../../../.."}},
			{h: header.Header{Type: header.TypeDirectory, Path: "evil/dir"}},
		}},
		{"hardlink through symlink", []rawEntry{
			{h: header.Header{Type: header.TypeSymlink, Path: "evil", LinkTarget: outside}},
			{h: header.Header{Type: header.TypeHardlink, Path: "stolen", LinkTarget: "evil/secret"}},
		}},
		{"parent path", []rawEntry{
			{h: header.Header{Type: header.TypeRegular, Path: "../pwned", Size: 1}, payload: []byte("x")},
		}},
	}
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0o600))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extract(t, buildArchive(t, tt.entries...), engine.SkipPermissionDeniedExtract)
			require.ErrorIs(t, err, fault.ErrSecurity)

			entries, err := os.ReadDir(outside)
			require.NoError(t, err)
			require.Len(t, entries, 1, "nothing may be written outside the destination")
		})
	}
}

func TestExtractor_EntriesUnderNonDirectories(t *testing.T) {
	tests := []struct {
		name    string
		flags   engine.ExtractFlags
		entries []rawEntry
	}{
		{"file under in-tree symlink", 0, []rawEntry{
			{h: header.Header{Type: header.TypeDirectory, Path: "real"}},
			{h: header.Header{Type: header.TypeSymlink, Path: "alias", LinkTarget: "real"}},
			{h: header.Header{Type: header.TypeRegular, Path: "alias/x", Size: 1}, payload: []byte("x")},
		}},
		{"directory over symlink", 0, []rawEntry{
			{h: header.Header{Type: header.TypeDirectory, Path: "real"}},
			{h: header.Header{Type: header.TypeSymlink, Path: "alias", LinkTarget: "real"}},
			{h: header.Header{Type: header.TypeDirectory, Path: "alias"}},
		}},
		{"directory under file", 0, []rawEntry{
			{h: header.Header{Type: header.TypeRegular, Path: "f", Size: 1}, payload: []byte("f")},
			{h: header.Header{Type: header.TypeDirectory, Path: "f/sub"}},
		}},
		{"copied clone of symlink", engine.NoAutoDedupe, []rawEntry{
			{h: header.Header{Type: header.TypeRegular, Path: "a", Size: 1}, payload: []byte("a")},
			{h: header.Header{Type: header.TypeSymlink, Path: "l", LinkTarget: "a"}},
			{h: header.Header{Type: header.TypeClone, Path: "c", LinkTarget: "l"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst, err := extract(t, buildArchive(t, tt.entries...), tt.flags)
			require.ErrorIs(t, err, fault.ErrSecurity)
			assert.Equal(t, fault.KindSecurity, fault.KindOf(err))
			assert.NoFileExists(t, filepath.Join(dst, "real", "x"))
		})
	}
}

func TestExtractor_Hardlinks(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a"), []byte("linked"), 0o644))
	require.NoError(t, os.Link(filepath.Join(src, "a"), filepath.Join(src, "b")))

	dst, err := extract(t, encodeTree(t, src, header.DefaultKeys, engine.DedupeHardlinks), 0)
	require.NoError(t, err)
	assertSameInode(t, filepath.Join(dst, "a"), filepath.Join(dst, "b"), true)
}

func TestExtractor_Clones(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a"), []byte("same content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b"), []byte("same content"), 0o600))
	data := encodeTree(t, src, header.DefaultKeys, engine.DedupeContent)

	dst, err := extract(t, data, 0)
	require.NoError(t, err)
	assertSameInode(t, filepath.Join(dst, "a"), filepath.Join(dst, "b"), true)

	st := stats.NewCollector()
	dst = filepath.Join(t.TempDir(), "copies")
	require.NoError(t, os.Mkdir(dst, 0o755))
	x := engine.NewExtractor(engine.ExtractorConfig{Flags: engine.NoAutoDedupe, Stats: st})
	_, err = x.Process(context.Background(), stream.NewMemoryReader(data), dst)
	require.NoError(t, err)
	assertSameInode(t, filepath.Join(dst, "a"), filepath.Join(dst, "b"), false)

	got, err := os.ReadFile(filepath.Join(dst, "b"))
	require.NoError(t, err)
	assert.Equal(t, "same content", string(got))
	info, err := os.Stat(filepath.Join(dst, "b"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "a copied clone carries its own mode")
	assert.Equal(t, int64(1), st.Snapshot().Clones)
}

func TestExtractor_Sparse(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "sparse")
	size := int64(8 << 20)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	_, err = f.WriteAt([]byte("tail"), size-4)
	require.NoError(t, err)
	segs, err := engine.DetectSparseSegments(f, size)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	if len(segs) < 2 {
		t.Skip("filesystem does not report holes")
	}

	data := encodeTree(t, src, header.DefaultKeys, 0)

	dst, err := extract(t, data, 0)
	require.NoError(t, err)
	assert.Less(t, allocated(t, filepath.Join(dst, "sparse")), size/2)

	dst, err = extract(t, data, engine.NoAutoSparse)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, allocated(t, filepath.Join(dst, "sparse")), size)

	got, err := os.ReadFile(filepath.Join(dst, "sparse"))
	require.NoError(t, err)
	assert.Len(t, got, int(size))
	assert.Equal(t, []byte("tail"), got[size-4:])
}

func TestExtractor_VerifyChecksums(t *testing.T) {
	good := buildArchive(t, rawEntry{
		h:       header.Header{Type: header.TypeRegular, Path: "f", Size: 3, Checksum: blake3Of(t, "abc")},
		payload: []byte("abc"),
	})
	_, err := extract(t, good, engine.VerifyChecksums)
	require.NoError(t, err)

	bad := buildArchive(t, rawEntry{
		h:       header.Header{Type: header.TypeRegular, Path: "f", Size: 3, Checksum: blake3Of(t, "abd")},
		payload: []byte("abc"),
	})
	_, err = extract(t, bad, 0)
	require.NoError(t, err, "checksums are only checked on request")

	dst, err := extract(t, bad, engine.VerifyChecksums)
	require.ErrorIs(t, err, fault.ErrChecksum)
	_, statErr := os.Stat(filepath.Join(dst, "f"))
	assert.True(t, os.IsNotExist(statErr), "a file failing verification is not left in place")
}

func TestExtractor_UnknownTypeSkipped(t *testing.T) {
	data := buildArchive(t,
		rawEntry{h: header.Header{Type: header.Type(42), Path: "future"}, payload: []byte("opaque")},
		rawEntry{h: header.Header{Type: header.TypeRegular, Path: "after", Size: 2}, payload: []byte("ok")},
	)
	dst, err := extract(t, data, 0)
	require.NoError(t, err)
	_, err = os.Lstat(filepath.Join(dst, "future"))
	assert.True(t, os.IsNotExist(err))
	got, err := os.ReadFile(filepath.Join(dst, "after"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))
}

func TestExtractor_TruncatedArchive(t *testing.T) {
	src := t.TempDir()
	createTestTree(t, src)
	data := encodeTree(t, src, header.DefaultKeys, 0)

	for _, cut := range []int{len(data) / 3, len(data) - 1, 3} {
		_, err := extract(t, data[:cut], 0)
		require.ErrorIs(t, err, fault.ErrDecode, "cut at %d", cut)
	}
}

func TestExtractor_LeavesNoTempFiles(t *testing.T) {
	data := buildArchive(t,
		rawEntry{h: header.Header{Type: header.TypeRegular, Path: "d/f", Size: 4}, payload: []byte("data")},
	)
	dst, err := extract(t, data[:len(data)-23], 0)
	require.ErrorIs(t, err, fault.ErrDecode)

	entries, err := os.ReadDir(filepath.Join(dst, "d"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, stream.PendingTmp())
}

func TestExtractor_Events(t *testing.T) {
	src := t.TempDir()
	createTestTree(t, src)
	events, stop := collectEvents(t)
	st := stats.NewCollector()

	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.Mkdir(dst, 0o755))
	x := engine.NewExtractor(engine.ExtractorConfig{Events: events, Stats: st})
	n, err := x.Process(context.Background(), stream.NewMemoryReader(encodeTree(t, src, header.DefaultKeys, 0)), dst)
	require.NoError(t, err)
	assert.Positive(t, n)

	counts := map[event.Type]int{}
	for _, e := range stop() {
		counts[e.Type]++
	}
	assert.Equal(t, 3, counts[event.DirCreated])
	assert.Equal(t, 5, counts[event.EntryExtracted])

	snap := st.Snapshot()
	assert.Equal(t, int64(8), snap.Entries)
	assert.Equal(t, int64(4), snap.Files)
	assert.Equal(t, int64(1), snap.Symlinks)
	assert.Zero(t, x.MetadataFailures())
}

func TestExtractor_ContextCancel(t *testing.T) {
	src := t.TempDir()
	createTestTree(t, src)
	data := encodeTree(t, src, header.DefaultKeys, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dst := t.TempDir()
	_, err := engine.NewExtractor(engine.ExtractorConfig{}).Process(ctx, stream.NewMemoryReader(data), dst)
	require.ErrorIs(t, err, context.Canceled)
}

func assertSameInode(t *testing.T, a, b string, same bool) {
	t.Helper()
	ia, err := os.Stat(a)
	require.NoError(t, err)
	ib, err := os.Stat(b)
	require.NoError(t, err)
	assert.Equal(t, same, os.SameFile(ia, ib))
}

func allocated(t *testing.T, path string) int64 {
	t.Helper()
	var st syscall.Stat_t
	require.NoError(t, syscall.Stat(path, &st))
	return st.Blocks * 512
}

func blake3Of(t *testing.T, s string) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "h")
	require.NoError(t, os.WriteFile(path, []byte(s), 0o644))
	sum, err := engine.HashFile(path)
	require.NoError(t, err)
	return sum
}
