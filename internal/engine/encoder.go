package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bamsammich/parcel/internal/event"
	"github.com/bamsammich/parcel/internal/fault"
	"github.com/bamsammich/parcel/internal/filter"
	"github.com/bamsammich/parcel/internal/fsys"
	"github.com/bamsammich/parcel/internal/header"
	"github.com/bamsammich/parcel/internal/stats"
	"github.com/bamsammich/parcel/internal/stream"
)

const encodeBufSize = 256 * 1024

// EncoderConfig configures an Encoder. Every field is optional.
type EncoderConfig struct {
	FS      fsys.FS
	Filter  *filter.Chain
	Stats   *stats.Collector
	Events  chan<- event.Event
	Logger  *slog.Logger
	Archive string // name reported in events
}

// Encoder writes archive records for filesystem entries to a WriteStream.
// It owns the stream: Close writes the end record and closes it.
//
// An Encoder is not safe for concurrent use.
type Encoder struct {
	dst     stream.WriteStream
	buf     *bufio.Writer
	count   *stream.CountingWriter
	fs      fsys.FS
	cfg     EncoderConfig
	log     *slog.Logger
	inodes  map[devIno]string
	content map[[32]byte]string
	closer  io.Closer
	entries uint64
	payload uint64
	broken  error
}

// NewEncoder writes the archive preamble to w and returns an Encoder that
// appends records to it.
func NewEncoder(w stream.WriteStream, cfg EncoderConfig) (*Encoder, error) {
	if cfg.FS == nil {
		cfg.FS = fsys.Local{}
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	e := &Encoder{
		dst:     w,
		count:   &stream.CountingWriter{W: w},
		fs:      cfg.FS,
		cfg:     cfg,
		log:     loggerOrDefault(cfg.Logger),
		inodes:  make(map[devIno]string),
		content: make(map[[32]byte]string),
	}
	e.buf = bufio.NewWriterSize(e.count, encodeBufSize)
	e.closer = stream.Once(closerFunc(e.close))
	if err := header.WritePreamble(e.buf); err != nil {
		return nil, fault.New(fault.KindIO, "write preamble", "", err)
	}
	return e, nil
}

// WriteDirectoryContents encodes every entry beneath root, but not root
// itself, with paths relative to root. Directories are visited in sorted
// order and each directory precedes its children. It returns the number of
// bytes this call appended to the stream.
func (e *Encoder) WriteDirectoryContents(
	ctx context.Context,
	root string,
	keys header.FieldKeySet,
	flags EncodeFlags,
) (int64, error) {
	if err := e.usable(); err != nil {
		return 0, err
	}
	start := e.count.N + int64(e.buf.Buffered())

	info, err := e.fs.Stat(root)
	if err != nil {
		return 0, fault.New(fault.KindSourceNotFound, "stat", root, err)
	}
	if !info.IsDir() {
		return 0, fault.Newf(fault.KindPathResolution, "encode", root, "not a directory")
	}
	children, err := e.fs.ReadDir(root)
	if err != nil {
		return 0, fault.New(fault.KindIO, "read dir", root, err)
	}

	w := &walk{keys: keys | header.RequiredKeys, flags: flags, ancestors: map[devIno]bool{}}
	w.ancestors[devIno{info.Dev, info.Ino}] = true
	err = e.encodeChildren(ctx, w, children, "")
	return e.count.N + int64(e.buf.Buffered()) - start, e.fail(err)
}

// WriteFile encodes the single regular file at path under the archive name
// name. Symlinks at path are followed.
func (e *Encoder) WriteFile(ctx context.Context, path, name string, keys header.FieldKeySet) (int64, error) {
	if err := e.usable(); err != nil {
		return 0, err
	}
	if err := header.ValidatePath(name); err != nil {
		return 0, fault.New(fault.KindPathResolution, "encode", name, err)
	}
	start := e.count.N + int64(e.buf.Buffered())

	info, err := e.fs.Stat(path)
	if err != nil {
		return 0, fault.New(fault.KindSourceNotFound, "stat", path, err)
	}
	if !info.IsRegular() {
		return 0, fault.Newf(fault.KindPathResolution, "encode", path, "not a regular file")
	}
	w := &walk{keys: keys | header.RequiredKeys}
	err = e.encodeRegular(ctx, w, info, name)
	return e.count.N + int64(e.buf.Buffered()) - start, e.fail(err)
}

// Close writes the end record, flushes, and closes the underlying stream.
// It is safe to call more than once.
func (e *Encoder) Close() error {
	return e.closer.Close()
}

func (e *Encoder) close() error {
	var errs []error
	if e.broken == nil {
		t := header.Trailer{Entries: e.entries, PayloadBytes: e.payload}
		if err := header.WriteEnd(e.buf, t); err != nil {
			errs = append(errs, fault.New(fault.KindIO, "write end record", "", err))
		} else if err := e.buf.Flush(); err != nil {
			errs = append(errs, fault.Wrap(fault.KindIO, "flush", "", err))
		}
	}
	if err := e.dst.Close(); err != nil {
		errs = append(errs, fault.Wrap(fault.KindIO, "close", "", err))
	}
	e.broken = stream.ErrClosed
	return errors.Join(errs...)
}

// Entries returns how many records have been written so far.
func (e *Encoder) Entries() uint64 { return e.entries }

func (e *Encoder) usable() error {
	if errors.Is(e.broken, stream.ErrClosed) {
		return fault.New(fault.KindIO, "encode", "", stream.ErrClosed)
	}
	if e.broken != nil {
		return fault.New(fault.KindIO, "encode", "", fmt.Errorf("encoder failed earlier: %w", e.broken))
	}
	return nil
}

// fail marks the encoder unusable once the stream may hold a partial record.
func (e *Encoder) fail(err error) error {
	if err != nil && e.broken == nil {
		e.broken = err
	}
	return err
}

// walk carries per-call traversal state.
type walk struct {
	ancestors map[devIno]bool
	keys      header.FieldKeySet
	flags     EncodeFlags
}

func (e *Encoder) encodeChildren(ctx context.Context, w *walk, children []fsys.Entry, rel string) error {
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.encodeEntry(ctx, w, child, header.Join(rel, child.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeEntry(ctx context.Context, w *walk, ent fsys.Entry, rel string) error {
	if w.flags.Has(FollowSymlinks) && ent.IsSymlink() {
		target, err := e.fs.Stat(ent.Path)
		if err == nil {
			target.Name, target.Path = ent.Name, ent.Path
			ent = target
		} else {
			e.log.Debug("dangling symlink kept as link", "path", ent.Path, "error", err)
		}
	}

	switch {
	case ent.IsDir():
		if !e.cfg.Filter.Match(rel, true, 0) {
			return nil
		}
		return e.encodeDir(ctx, w, ent, rel)
	case ent.IsSymlink():
		if !e.cfg.Filter.MatchPath(rel, false) {
			return nil
		}
		return e.writeLink(w, ent, rel, header.TypeSymlink, ent.LinkTarget)
	case ent.IsRegular():
		if !e.cfg.Filter.Match(rel, false, ent.Size) {
			return nil
		}
		return e.encodeRegular(ctx, w, ent, rel)
	default:
		e.log.Debug("skipping special file", "path", ent.Path, "mode", ent.Mode.String())
		e.skipped(rel, nil)
		return nil
	}
}

func (e *Encoder) encodeDir(ctx context.Context, w *walk, ent fsys.Entry, rel string) error {
	id := devIno{ent.Dev, ent.Ino}
	if w.flags.Has(FollowSymlinks) && w.ancestors[id] {
		return e.sourceError(w, rel, fault.Newf(fault.KindIO, "walk", ent.Path, "directory cycle"))
	}

	// List before writing the header so an unreadable directory can still
	// be skipped whole.
	children, err := e.fs.ReadDir(ent.Path)
	if err != nil {
		return e.sourceError(w, rel, fault.New(fault.KindIO, "read dir", ent.Path, err))
	}

	h := e.baseHeader(ent, rel, header.TypeDirectory)
	if err := e.writeHeader(h, w.keys); err != nil {
		return err
	}
	e.cfg.Stats.AddDirs(1)
	e.emitEncoded(rel, 0)

	w.ancestors[id] = true
	defer delete(w.ancestors, id)
	return e.encodeChildren(ctx, w, children, rel)
}

func (e *Encoder) encodeRegular(ctx context.Context, w *walk, ent fsys.Entry, rel string) error {
	id := devIno{ent.Dev, ent.Ino}
	trackInode := w.flags.Has(DedupeHardlinks) && ent.Nlink > 1
	if trackInode {
		if first, ok := e.inodes[id]; ok {
			return e.writeLink(w, ent, rel, header.TypeHardlink, first)
		}
	}

	f, err := e.fs.Open(ent.Path)
	if err != nil {
		return e.sourceError(w, rel, fault.New(fault.KindIO, "open", ent.Path, err))
	}
	defer f.Close()

	dedupe := w.flags.Has(DedupeContent) && ent.Size > 0
	var sum []byte
	if w.keys.Has(header.KeyHSH) || dedupe {
		sum, err = hashFile(f, ent.Size)
		if err != nil {
			return e.sourceError(w, rel, fault.New(fault.KindIO, "hash", ent.Path, err))
		}
	}
	if dedupe {
		if first, ok := e.content[[32]byte(sum)]; ok {
			h := e.baseHeader(ent, rel, header.TypeClone)
			h.LinkTarget = first
			h.Checksum = sum
			if err := e.writeHeader(h, w.keys); err != nil {
				return err
			}
			if trackInode {
				e.inodes[id] = rel
			}
			e.cfg.Stats.AddClones(1)
			e.emitEncoded(rel, 0)
			return nil
		}
	}

	segments, err := DetectSparseSegments(f, ent.Size)
	if err != nil {
		return e.sourceError(w, rel, fault.New(fault.KindIO, "detect holes", ent.Path, err))
	}

	h := e.baseHeader(ent, rel, header.TypeRegular)
	h.DataLen = ent.Size
	h.Checksum = sum
	if err := e.writeHeader(h, w.keys); err != nil {
		return err
	}
	if err := e.writePayload(ctx, f, segments, ent); err != nil {
		return err
	}
	if trackInode {
		e.inodes[id] = rel
	}
	if dedupe {
		e.content[[32]byte(sum)] = rel
	}
	e.payload += uint64(ent.Size) //nolint:gosec // sizes are never negative
	e.cfg.Stats.AddFiles(1)
	e.cfg.Stats.AddPayloadBytes(ent.Size)
	e.emitEncoded(rel, ent.Size)
	return nil
}

// writePayload streams exactly ent.Size bytes. Holes are written as zeros;
// the archive has no hole encoding and the codec squeezes them flat.
func (e *Encoder) writePayload(ctx context.Context, f *os.File, segments []Segment, ent fsys.Entry) error {
	cw := &ctxWriter{ctx: ctx, w: e.buf}
	for _, seg := range segments {
		var src io.Reader = io.NewSectionReader(f, seg.Offset, seg.Length)
		if !seg.IsData {
			src = io.LimitReader(zeroReader{}, seg.Length)
		}
		n, err := io.Copy(cw, src)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, errWrite) {
				return fault.New(fault.KindIO, "write payload", ent.Path, err)
			}
			return fault.New(fault.KindIO, "read", ent.Path, err)
		}
		if n != seg.Length {
			return fault.Newf(fault.KindIO, "read", ent.Path,
				"file shrank while archiving: got %d of %d bytes at offset %d", n, seg.Length, seg.Offset)
		}
	}
	return nil
}

func (e *Encoder) writeLink(w *walk, ent fsys.Entry, rel string, typ header.Type, target string) error {
	h := e.baseHeader(ent, rel, typ)
	h.LinkTarget = target
	if err := e.writeHeader(h, w.keys); err != nil {
		return err
	}
	if typ == header.TypeHardlink {
		e.cfg.Stats.AddHardlinks(1)
	} else {
		e.cfg.Stats.AddSymlinks(1)
	}
	e.emitEncoded(rel, 0)
	return nil
}

func (e *Encoder) baseHeader(ent fsys.Entry, rel string, typ header.Type) *header.Header {
	h := &header.Header{
		Type:       typ,
		Path:       rel,
		Mode:       ent.Perm,
		UID:        ent.UID,
		GID:        ent.GID,
		ModTime:    ent.ModTime,
		ChangeTime: ent.ChangeTime,
		AccessTime: ent.AccTime,
	}
	if typ == header.TypeRegular || typ == header.TypeClone {
		h.Size = ent.Size
	}
	return h
}

func (e *Encoder) writeHeader(h *header.Header, keys header.FieldKeySet) error {
	if err := header.WriteHeader(e.buf, h, keys); err != nil {
		return fault.New(fault.KindIO, "write header", h.Path, err)
	}
	e.entries++
	e.cfg.Stats.AddEntries(1)
	return nil
}

// sourceError applies the skip flags to a failure that happened before
// anything of the entry reached the stream.
func (e *Encoder) sourceError(w *walk, rel string, err error) error {
	switch {
	case w.flags.Has(SkipErrors):
	case w.flags.Has(SkipPermissionDenied) && isPermission(err):
	default:
		return err
	}
	e.log.Warn("skipping entry", "path", rel, "error", err)
	e.skipped(rel, err)
	return nil
}

func (e *Encoder) skipped(rel string, err error) {
	e.cfg.Stats.AddSkipped(1)
	event.Emit(e.cfg.Events, event.Event{
		Type:    event.EntrySkipped,
		Archive: e.cfg.Archive,
		Path:    rel,
		Error:   err,
	})
}

func (e *Encoder) emitEncoded(rel string, size int64) {
	event.Emit(e.cfg.Events, event.Event{
		Type:    event.EntryEncoded,
		Archive: e.cfg.Archive,
		Path:    rel,
		Size:    size,
	})
}

// errWrite tags failures of the downstream stream so they are not mistaken
// for source read errors.
var errWrite = errors.New("write")

type ctxWriter struct {
	ctx context.Context
	w   io.Writer
}

func (c *ctxWriter) Write(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", errWrite, err)
	}
	return n, nil
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
