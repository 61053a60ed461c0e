package pipeline

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/bamsammich/parcel/internal/codec"
	"github.com/bamsammich/parcel/internal/engine"
	"github.com/bamsammich/parcel/internal/event"
	"github.com/bamsammich/parcel/internal/fault"
	"github.com/bamsammich/parcel/internal/filter"
	"github.com/bamsammich/parcel/internal/header"
	"github.com/bamsammich/parcel/internal/stream"
)

const stagingDirPerm = 0o755

// Decompress extracts archive into a directory named after it and returns
// that directory. Extraction happens in a hidden staging directory beside
// the destination, which is renamed into place only on success; on failure
// the destination is left as it was.
func Decompress(ctx context.Context, archive string, opts Options) (string, error) {
	opts = opts.withDefaults()

	info, err := opts.FS.Stat(archive)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fault.New(fault.KindSourceNotFound, "decompress", archive, err)
		}
		return "", fault.New(fault.KindIO, "stat", archive, err)
	}
	if info.IsDir() {
		return "", fault.Newf(fault.KindPathResolution, "decompress", archive, "is a directory")
	}
	dest, err := ExtractPath(archive, opts.OutputDir)
	if err != nil {
		return "", err
	}
	if err := checkDestination(opts, dest); err != nil {
		return "", err
	}

	log := opts.Logger.With("archive", archive)
	log.Debug("decompressing", "destination", dest)
	event.Emit(opts.Events, event.Event{Type: event.ArchiveStarted, Archive: archive, Path: dest})

	if err := extractArchive(ctx, archive, dest, opts); err != nil {
		log.Debug("decompress failed", "error", err)
		event.Emit(opts.Events, event.Event{Type: event.ArchiveFailed, Archive: archive, Path: dest, Error: err})
		return "", err
	}

	opts.Stats.AddArchives(1)
	event.Emit(opts.Events, event.Event{Type: event.ArchiveCompleted, Archive: archive, Path: dest, Size: info.Size})
	return dest, nil
}

func extractArchive(ctx context.Context, archive, dest string, opts Options) error {
	parent := filepath.Dir(dest)
	if err := opts.FS.MkdirAll(parent, 0o755); err != nil {
		return fault.New(fault.KindStreamOpen, "create output dir", parent, err)
	}
	staging, err := opts.FS.MkdirTemp(parent, "parcel-"+filepath.Base(dest))
	if err != nil {
		return fault.New(fault.KindStreamOpen, "create staging dir", parent, err)
	}
	stream.RegisterTmp(staging)
	committed := false
	defer func() {
		stream.DeregisterTmp(staging)
		if !committed {
			if err := opts.FS.RemoveAll(staging); err != nil {
				opts.Logger.Warn("staging directory not removed", "path", staging, "error", err)
			}
		}
	}()

	rs, alg, closers, err := openArchive(ctx, archive, opts)
	if err != nil {
		return err
	}
	opts.Logger.Debug("detected codec", "archive", archive, "codec", alg.String())

	x := engine.NewExtractor(engine.ExtractorConfig{
		Stats:   opts.Stats,
		Events:  opts.Events,
		Logger:  opts.Logger,
		Archive: archive,
		Flags:   opts.ExtractFlags,
	})
	_, err = x.Process(ctx, rs, staging)
	if closeErr := closers.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	if err := opts.FS.Chmod(staging, stagingDirPerm); err != nil {
		opts.Logger.Warn("metadata not restored", "path", dest, "op", "chmod", "error", err)
		opts.Stats.AddMetadataFailures(1)
	}
	if err := replaceDestination(opts, staging, dest); err != nil {
		return err
	}
	committed = true
	return nil
}

// openArchive assembles file -> limiter -> codec for reading. The returned
// stack closes everything opened.
func openArchive(
	ctx context.Context,
	archive string,
	opts Options,
) (stream.ReadStream, codec.Algorithm, *stream.Stack, error) {
	closers := &stream.Stack{}
	src, err := opts.FS.OpenRead(archive)
	if err != nil {
		return nil, 0, nil, fault.Wrap(fault.KindStreamOpen, "open archive", archive, err)
	}
	closers.Push("archive file", src)

	meter := &meterReader{ReadStream: src, stats: opts.Stats}
	limited := stream.LimitReader(ctx, meter, stream.NewLimiter(opts.BWLimit))
	rs, alg, err := codec.NewReader(limited)
	if err != nil {
		return nil, 0, nil, errors.Join(err, closers.Close())
	}
	closers.Push("codec", rs)
	return rs, alg, closers, nil
}

// checkDestination refuses to merge into an existing non-empty path unless
// Overwrite is set. An empty directory is replaced.
func checkDestination(opts Options, dest string) error {
	ent, err := opts.FS.Lstat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fault.New(fault.KindIO, "stat destination", dest, err)
	}
	if opts.Overwrite {
		return nil
	}
	if ent.IsDir() {
		children, err := opts.FS.ReadDir(dest)
		if err != nil {
			return fault.New(fault.KindIO, "read destination", dest, err)
		}
		if len(children) == 0 {
			return nil
		}
	}
	return fault.Newf(fault.KindDestinationExists, "decompress", dest, "destination exists and is not empty")
}

// replaceDestination moves the finished staging directory to dest. The
// check is repeated because the destination may have appeared meanwhile.
func replaceDestination(opts Options, staging, dest string) error {
	if err := checkDestination(opts, dest); err != nil {
		return err
	}
	exists, err := opts.FS.Exists(dest)
	if err != nil {
		return fault.New(fault.KindIO, "stat destination", dest, err)
	}
	if exists {
		if err := opts.FS.RemoveAll(dest); err != nil {
			return fault.New(fault.KindIO, "remove destination", dest, err)
		}
	}
	if err := opts.FS.Rename(staging, dest); err != nil {
		return fault.New(fault.KindIO, "rename", dest, err)
	}
	return nil
}

// Listing is the table of contents of an archive.
type Listing struct {
	Entries   []header.Header
	Algorithm codec.Algorithm
}

// List reads every header of archive without extracting anything. When
// opts.Filter is set only matching entries are returned.
func List(ctx context.Context, archive string, opts Options) (*Listing, error) {
	opts = opts.withDefaults()
	if _, err := opts.FS.Stat(archive); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fault.New(fault.KindSourceNotFound, "list", archive, err)
		}
		return nil, fault.New(fault.KindIO, "stat", archive, err)
	}

	rs, alg, closers, err := openArchive(ctx, archive, opts)
	if err != nil {
		return nil, err
	}
	out := &Listing{Algorithm: alg}
	err = readHeaders(ctx, rs, opts.Filter, out)
	if closeErr := closers.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func readHeaders(ctx context.Context, rs stream.ReadStream, chain *filter.Chain, out *Listing) error {
	rd, err := engine.NewReader(rs)
	if err != nil {
		return err
	}
	defer rd.Close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, err := rd.Next()
		if err == io.EOF { //nolint:errorlint // Next returns io.EOF unwrapped
			return nil
		}
		if err != nil {
			return err
		}
		if chain.MatchHeader(h) {
			out.Entries = append(out.Entries, *h)
		}
	}
}
