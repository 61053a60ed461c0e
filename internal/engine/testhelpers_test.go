package engine_test

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/parcel/internal/engine"
	"github.com/bamsammich/parcel/internal/event"
	"github.com/bamsammich/parcel/internal/fsys"
	"github.com/bamsammich/parcel/internal/header"
	"github.com/bamsammich/parcel/internal/stream"
)

// createTestTree populates root with a standard test tree:
//
//	root.txt          (17 bytes)
//	big.bin           (320KB)
//	empty/            (empty directory)
//	sub/mid.txt       (19 bytes)
//	sub/deep/leaf.txt (17 bytes)
//	link.txt          → root.txt (symlink)
func createTestTree(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "root.txt"), []byte("root file content"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "big.bin"),
		bytes.Repeat([]byte("ABCDEFGHIJKLMNOP"), 20000),
		0o644,
	))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "mid.txt"), []byte("middle file content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "deep", "leaf.txt"), []byte("leaf file content"), 0o644))
	require.NoError(t, os.Symlink("root.txt", filepath.Join(root, "link.txt")))
}

// verifyTreeCopy checks that dstRoot contains an exact copy of the test tree
// created by createTestTree under srcRoot.
func verifyTreeCopy(t *testing.T, srcRoot, dstRoot string) {
	t.Helper()

	for _, rel := range []string{"root.txt", "big.bin", "sub/mid.txt", "sub/deep/leaf.txt"} {
		srcData, err := os.ReadFile(filepath.Join(srcRoot, rel))
		require.NoError(t, err, "read src %s", rel)
		dstData, err := os.ReadFile(filepath.Join(dstRoot, rel))
		require.NoError(t, err, "read dst %s", rel)
		require.Equal(t, srcData, dstData, "content mismatch: %s", rel)
	}

	for _, dir := range []string{"empty", "sub", "sub/deep"} {
		info, err := os.Stat(filepath.Join(dstRoot, dir))
		require.NoError(t, err, "stat dir %s", dir)
		require.True(t, info.IsDir(), "%s should be a directory", dir)
	}

	target, err := os.Readlink(filepath.Join(dstRoot, "link.txt"))
	require.NoError(t, err, "readlink link.txt")
	require.Equal(t, "root.txt", target)
}

// encodeTree archives the contents of root and returns the raw record stream.
func encodeTree(t *testing.T, root string, keys header.FieldKeySet, flags engine.EncodeFlags) []byte {
	t.Helper()
	out := stream.NewMemoryWriter()
	enc, err := engine.NewEncoder(out, engine.EncoderConfig{})
	require.NoError(t, err)
	_, err = enc.WriteDirectoryContents(context.Background(), root, keys, flags)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.True(t, out.Closed(), "encoder must close its stream")
	return out.Bytes()
}

// extract materializes data into a fresh directory and returns it.
func extract(t *testing.T, data []byte, flags engine.ExtractFlags) (string, error) {
	t.Helper()
	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.Mkdir(dst, 0o755))
	x := engine.NewExtractor(engine.ExtractorConfig{Flags: flags})
	_, err := x.Process(context.Background(), stream.NewMemoryReader(data), dst)
	return dst, err
}

// listHeaders decodes every header in data.
func listHeaders(t *testing.T, data []byte) []*header.Header {
	t.Helper()
	rd, err := engine.NewReader(stream.NewMemoryReader(data))
	require.NoError(t, err)
	defer rd.Close()
	var out []*header.Header
	for {
		h, err := rd.Next()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			return out
		}
		out = append(out, h)
	}
}

func paths(hs []*header.Header) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Path
	}
	return out
}

func find(hs []*header.Header, path string) *header.Header {
	for _, h := range hs {
		if h.Path == path {
			return h
		}
	}
	return nil
}

// rawEntry is a header and payload for hand-built archives.
type rawEntry struct {
	h       header.Header
	payload []byte
}

// buildArchive frames entries with a correct trailer.
func buildArchive(t *testing.T, entries ...rawEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, header.WritePreamble(&buf))
	var tr header.Trailer
	for _, e := range entries {
		h := e.h
		h.DataLen = int64(len(e.payload))
		require.NoError(t, header.WriteHeader(&buf, &h, header.AllKeys))
		buf.Write(e.payload)
		tr.Entries++
		tr.PayloadBytes += uint64(len(e.payload))
	}
	require.NoError(t, header.WriteEnd(&buf, tr))
	return buf.Bytes()
}

// collectEvents returns an event channel and a function that stops
// collection and returns everything received.
func collectEvents(t *testing.T) (chan<- event.Event, func() []event.Event) {
	t.Helper()
	ch := make(chan event.Event, 4096)
	var (
		mu  sync.Mutex
		got []event.Event
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			mu.Lock()
			got = append(got, e)
			mu.Unlock()
		}
	}()
	var once sync.Once
	stop := func() []event.Event {
		once.Do(func() {
			close(ch)
			<-done
		})
		mu.Lock()
		defer mu.Unlock()
		return got
	}
	t.Cleanup(func() { stop() })
	return ch, stop
}

// deniedFS fails with permission errors for paths containing any of the
// given fragments. Tests run as root, where chmod cannot deny access.
type deniedFS struct {
	fsys.Local
	open    []string
	readDir []string
}

func (d deniedFS) Open(path string) (*os.File, error) {
	if matchAny(path, d.open) {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrPermission}
	}
	return d.Local.Open(path)
}

func (d deniedFS) ReadDir(path string) ([]fsys.Entry, error) {
	if matchAny(path, d.readDir) {
		return nil, &fs.PathError{Op: "readdir", Path: path, Err: fs.ErrPermission}
	}
	return d.Local.ReadDir(path)
}

func matchAny(path string, frags []string) bool {
	for _, f := range frags {
		if strings.HasSuffix(path, f) {
			return true
		}
	}
	return false
}
