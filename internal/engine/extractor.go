package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/bamsammich/parcel/internal/event"
	"github.com/bamsammich/parcel/internal/fault"
	"github.com/bamsammich/parcel/internal/header"
	"github.com/bamsammich/parcel/internal/platform"
	"github.com/bamsammich/parcel/internal/stats"
	"github.com/bamsammich/parcel/internal/stream"
)

const (
	defaultFilePerm os.FileMode = 0o644
	defaultDirPerm  os.FileMode = 0o755
)

// ExtractorConfig configures an Extractor. Every field is optional.
type ExtractorConfig struct {
	Stats   *stats.Collector
	Events  chan<- event.Event
	Logger  *slog.Logger
	Archive string // name reported in events
	Flags   ExtractFlags
}

// Extractor materializes archive entries beneath a destination directory.
// All filesystem access goes through an os.Root, so no entry, symlink or
// hardlink can reach outside the destination.
type Extractor struct {
	cfg          ExtractorConfig
	log          *slog.Logger
	metaFailures atomic.Int64
}

// NewExtractor returns an Extractor.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	return &Extractor{cfg: cfg, log: loggerOrDefault(cfg.Logger)}
}

// MetadataFailures returns how many metadata restorations failed across all
// Process calls. They are logged and do not fail extraction.
func (x *Extractor) MetadataFailures() int64 { return x.metaFailures.Load() }

// Process reads an archive from r and materializes it beneath dest, which
// must exist. It closes r. The returned count is decoded archive bytes
// consumed.
func (x *Extractor) Process(ctx context.Context, r stream.ReadStream, dest string) (int64, error) {
	rd, err := NewReader(r)
	if err != nil {
		_ = r.Close()
		return 0, err
	}
	defer rd.Close()

	root, err := os.OpenRoot(dest)
	if err != nil {
		return 0, fault.New(fault.KindPathResolution, "open destination", dest, err)
	}
	defer root.Close()

	run := &extraction{Extractor: x, root: root, dest: dest, rd: rd}
	for {
		if err := ctx.Err(); err != nil {
			return rd.BytesRead(), err
		}
		h, err := rd.Next()
		if err == io.EOF { //nolint:errorlint // Next returns io.EOF unwrapped
			break
		}
		if err != nil {
			return rd.BytesRead(), err
		}
		if err := run.entry(ctx, h); err != nil {
			return rd.BytesRead(), err
		}
	}
	run.finishDirs()
	return rd.BytesRead(), nil
}

// extraction is the state of one Process call.
type extraction struct {
	*Extractor
	root *os.Root
	rd   *Reader
	dest string
	dirs []*header.Header
}

func (run *extraction) entry(ctx context.Context, h *header.Header) error {
	name := filepath.FromSlash(h.Path)
	if err := run.checkParents(h, name); err != nil {
		return run.failed(h, err)
	}
	if h.Type == header.TypeHardlink || h.Type == header.TypeClone {
		if err := run.checkParents(h, filepath.FromSlash(h.LinkTarget)); err != nil {
			return run.failed(h, err)
		}
	}

	var err error
	switch h.Type {
	case header.TypeDirectory:
		err = run.directory(h, name)
	case header.TypeRegular:
		err = run.regular(ctx, h, name)
	case header.TypeSymlink:
		err = run.symlink(h, name)
	case header.TypeHardlink:
		err = run.link(h, name, event.HardlinkCreated)
	case header.TypeClone:
		if run.cfg.Flags.Has(NoAutoDedupe) {
			err = run.cloneCopy(h, name)
		} else {
			err = run.link(h, name, event.CloneCreated)
		}
	default:
		run.log.Debug("skipping entry of unknown type", "path", h.Path, "type", h.Type.String())
		run.skipped(h.Path, nil)
		return nil
	}
	if err == nil {
		run.cfg.Stats.AddEntries(1)
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case fault.KindOf(err) == 0 && run.cfg.Flags.Has(SkipPermissionDeniedExtract) && isPermission(err):
		run.log.Warn("skipping entry", "path", h.Path, "error", err)
		run.skipped(h.Path, err)
		return nil
	}
	return run.failed(h, err)
}

// failed records a failed entry and returns err classified.
func (run *extraction) failed(h *header.Header, err error) error {
	err = fault.Wrap(fault.KindIO, "extract", h.Path, err)
	run.cfg.Stats.AddFailed(1)
	event.Emit(run.cfg.Events, event.Event{
		Type:    event.EntryFailed,
		Archive: run.cfg.Archive,
		Path:    h.Path,
		Error:   err,
	})
	return err
}

func (run *extraction) directory(h *header.Header, name string) error {
	if info, err := run.root.Lstat(name); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		return fault.Newf(fault.KindSecurity, "extract", h.Path, "directory %s is already a symlink", h.Path)
	}
	if err := run.root.MkdirAll(name, defaultDirPerm); err != nil {
		return err
	}
	// Directory metadata waits until everything inside has been written.
	run.dirs = append(run.dirs, h)
	run.cfg.Stats.AddDirs(1)
	run.emit(event.DirCreated, h.Path, 0)
	return nil
}

func (run *extraction) regular(ctx context.Context, h *header.Header, name string) error {
	var n int64
	err := run.writeFile(h, name, func(f *os.File) error {
		var w io.Writer = f
		var sw *sparseWriter
		if run.cfg.Flags.Has(NoAutoSparse) {
			platform.Preallocate(f, h.DataLen)
		} else {
			sw = &sparseWriter{f: f}
			w = sw
		}

		var hasher *blake3.Hasher
		if run.cfg.Flags.Has(VerifyChecksums) && len(h.Checksum) > 0 {
			hasher = blake3.New()
			w = io.MultiWriter(w, hasher)
		}

		var err error
		n, err = io.Copy(&ctxWriter{ctx: ctx, w: w}, run.rd)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		if sw != nil {
			if err := sw.Finish(); err != nil {
				return err
			}
		}
		if hasher != nil {
			run.cfg.Stats.AddChecksums(1)
			if got := hasher.Sum(nil); !bytes.Equal(got, h.Checksum) {
				return fault.Newf(fault.KindChecksum, "verify", h.Path,
					"content hash %s, archive recorded %s", HexDigest(got), HexDigest(h.Checksum))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	run.cfg.Stats.AddFiles(1)
	run.cfg.Stats.AddPayloadBytes(n)
	run.emit(event.EntryExtracted, h.Path, n)
	return nil
}

func (run *extraction) cloneCopy(h *header.Header, name string) error {
	target := filepath.FromSlash(h.LinkTarget)
	if info, err := run.root.Lstat(target); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		return fault.Newf(fault.KindSecurity, "clone", h.Path, "target %s is a symlink", h.LinkTarget)
	}
	src, err := run.root.Open(target)
	if err != nil {
		return err
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fault.Newf(fault.KindDecode, "clone", h.Path, "target %s is not a regular file", h.LinkTarget)
	}

	err = run.writeFile(h, name, func(f *os.File) error {
		_, err := platform.CopyFile(platform.CopyFileParams{Src: src, Dst: f, Size: info.Size()})
		return err
	})
	if err != nil {
		return err
	}
	run.cfg.Stats.AddClones(1)
	run.emit(event.CloneCreated, h.Path, 0)
	return nil
}

// writeFile creates name's content in a temp file beside it, applies the
// header's metadata, and renames it into place.
func (run *extraction) writeFile(h *header.Header, name string, fill func(*os.File) error) error {
	if err := run.ensureParent(name); err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(name),
		fmt.Sprintf(".%s.%s.parcel-tmp", filepath.Base(name), uuid.New().String()[:8]))
	f, err := run.root.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	abs := filepath.Join(run.dest, tmp)
	stream.RegisterTmp(abs)
	committed := false
	defer func() {
		stream.DeregisterTmp(abs)
		if !committed {
			_ = f.Close()
			_ = run.root.Remove(tmp)
		}
	}()

	if err := fill(f); err != nil {
		return err
	}

	// Ownership first: chown clears setuid and setgid bits.
	if run.cfg.Flags.Has(PreserveOwner) && (h.Has(header.KeyUID) || h.Has(header.KeyGID)) {
		uid, gid := owner(h)
		if err := f.Chown(uid, gid); err != nil {
			run.metadataFailed(h.Path, "chown", err)
		}
	}
	mode := defaultFilePerm
	if h.Has(header.KeyMOD) {
		mode = fileMode(h.Mode)
	}
	if err := f.Chmod(mode); err != nil {
		run.metadataFailed(h.Path, "chmod", err)
	}

	if err := f.Close(); err != nil {
		return err
	}
	committed = true
	if err := run.root.Rename(tmp, name); err != nil {
		_ = run.root.Remove(tmp)
		return err
	}
	run.restoreTimes(h, name)
	return nil
}

func (run *extraction) symlink(h *header.Header, name string) error {
	if err := run.replaceable(name); err != nil {
		return err
	}
	if err := run.root.Symlink(h.LinkTarget, name); err != nil {
		return err
	}
	// os.Root has no lutimes, so link timestamps are left as created.
	if run.cfg.Flags.Has(PreserveOwner) && (h.Has(header.KeyUID) || h.Has(header.KeyGID)) {
		uid, gid := owner(h)
		if err := run.root.Lchown(name, uid, gid); err != nil {
			run.metadataFailed(h.Path, "lchown", err)
		}
	}
	run.cfg.Stats.AddSymlinks(1)
	run.emit(event.EntryExtracted, h.Path, 0)
	return nil
}

func (run *extraction) link(h *header.Header, name string, typ event.Type) error {
	if err := run.replaceable(name); err != nil {
		return err
	}
	if err := run.root.Link(filepath.FromSlash(h.LinkTarget), name); err != nil {
		return err
	}
	if typ == event.CloneCreated {
		run.cfg.Stats.AddClones(1)
	} else {
		run.cfg.Stats.AddHardlinks(1)
	}
	run.emit(typ, h.Path, 0)
	return nil
}

// replaceable makes room for a link at name: parents exist and any file
// already there is gone. A non-empty directory is left alone and the
// following create fails.
func (run *extraction) replaceable(name string) error {
	if err := run.ensureParent(name); err != nil {
		return err
	}
	if err := run.root.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// checkParents walks the already materialized directories leading to name.
// Every one must be a real directory: an entry placed under a symlink or a
// file is refused as an escape attempt, whatever the link points at.
func (run *extraction) checkParents(h *header.Header, name string) error {
	dir := filepath.Dir(name)
	if dir == "." {
		return nil
	}
	cur := ""
	for _, part := range strings.Split(dir, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := run.root.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			return fault.Newf(fault.KindSecurity, "extract", h.Path,
				"parent %s is a symlink", filepath.ToSlash(cur))
		case !info.IsDir():
			return fault.Newf(fault.KindSecurity, "extract", h.Path,
				"parent %s is not a directory", filepath.ToSlash(cur))
		}
	}
	return nil
}

// ensureParent creates missing parents. Archives list directories before
// their contents, but an entry written with a filter or by WriteFile may
// arrive without them.
func (run *extraction) ensureParent(name string) error {
	dir := filepath.Dir(name)
	if dir == "." {
		return nil
	}
	return run.root.MkdirAll(dir, defaultDirPerm)
}

// finishDirs applies deferred directory metadata, deepest first, so that
// restoring a parent's mtime or a read-only mode comes after its children.
func (run *extraction) finishDirs() {
	slices.SortStableFunc(run.dirs, func(a, b *header.Header) int {
		return strings.Count(b.Path, "/") - strings.Count(a.Path, "/")
	})
	for _, h := range run.dirs {
		name := filepath.FromSlash(h.Path)
		if run.cfg.Flags.Has(PreserveOwner) && (h.Has(header.KeyUID) || h.Has(header.KeyGID)) {
			uid, gid := owner(h)
			if err := run.root.Lchown(name, uid, gid); err != nil {
				run.metadataFailed(h.Path, "lchown", err)
			}
		}
		if h.Has(header.KeyMOD) {
			if err := run.root.Chmod(name, fileMode(h.Mode)); err != nil {
				run.metadataFailed(h.Path, "chmod", err)
			}
		}
		run.restoreTimes(h, name)
	}
	run.dirs = nil
}

func (run *extraction) restoreTimes(h *header.Header, name string) {
	if run.cfg.Flags.Has(NoTimes) || !h.Has(header.KeyMTM) {
		return
	}
	atime := h.ModTime
	if h.Has(header.KeyATM) {
		atime = h.AccessTime
	}
	if err := run.root.Chtimes(name, atime, h.ModTime); err != nil {
		run.metadataFailed(h.Path, "chtimes", err)
	}
}

func (run *extraction) metadataFailed(path, op string, err error) {
	ferr := fault.New(fault.KindMetadataRestore, op, path, err)
	run.log.Warn("metadata not restored", "path", path, "op", op, "error", err)
	run.metaFailures.Add(1)
	run.cfg.Stats.AddMetadataFailures(1)
	event.Emit(run.cfg.Events, event.Event{
		Type:    event.MetadataFailed,
		Archive: run.cfg.Archive,
		Path:    path,
		Error:   ferr,
	})
}

func (run *extraction) skipped(path string, err error) {
	run.cfg.Stats.AddSkipped(1)
	event.Emit(run.cfg.Events, event.Event{
		Type:    event.EntrySkipped,
		Archive: run.cfg.Archive,
		Path:    path,
		Error:   err,
	})
}

func (run *extraction) emit(typ event.Type, path string, size int64) {
	event.Emit(run.cfg.Events, event.Event{
		Type:    typ,
		Archive: run.cfg.Archive,
		Path:    path,
		Size:    size,
	})
}

// owner returns the chown arguments for h, -1 leaving a field unchanged.
func owner(h *header.Header) (int, int) {
	uid, gid := -1, -1
	if h.Has(header.KeyUID) {
		uid = int(h.UID)
	}
	if h.Has(header.KeyGID) {
		gid = int(h.GID)
	}
	return uid, gid
}

// fileMode converts stored permission bits, including setuid, setgid and
// sticky, to an os.FileMode.
func fileMode(perm uint32) os.FileMode {
	m := os.FileMode(perm & 0o777)
	if perm&0o4000 != 0 {
		m |= os.ModeSetuid
	}
	if perm&0o2000 != 0 {
		m |= os.ModeSetgid
	}
	if perm&0o1000 != 0 {
		m |= os.ModeSticky
	}
	return m
}
