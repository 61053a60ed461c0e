package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/bamsammich/parcel/internal/codec"
	"github.com/bamsammich/parcel/internal/engine"
	"github.com/bamsammich/parcel/internal/event"
	"github.com/bamsammich/parcel/internal/fault"
	"github.com/bamsammich/parcel/internal/stream"
)

// Compress archives source, a file or a directory, and returns the path of
// the archive. The archive appears only once complete: on any failure no
// file is left at the destination.
func Compress(ctx context.Context, source string, opts Options) (string, error) {
	opts = opts.withDefaults()

	info, err := opts.FS.Stat(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fault.New(fault.KindSourceNotFound, "compress", source, err)
		}
		return "", fault.New(fault.KindIO, "stat", source, err)
	}
	if !info.IsDir() && !info.IsRegular() {
		return "", fault.Newf(fault.KindPathResolution, "compress", source, "not a file or directory")
	}
	dest, err := ArchivePath(source, info.IsDir(), opts.OutputDir)
	if err != nil {
		return "", err
	}
	if opts.OutputDir != "" {
		if err := opts.FS.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return "", fault.New(fault.KindStreamOpen, "create output dir", opts.OutputDir, err)
		}
	}

	log := opts.Logger.With("archive", dest)
	log.Debug("compressing", "source", source, "codec", opts.Algorithm.String())
	event.Emit(opts.Events, event.Event{Type: event.ArchiveStarted, Archive: dest, Path: source})

	size, err := writeArchive(ctx, source, dest, info.IsDir(), opts)
	if err != nil {
		log.Debug("compress failed", "error", err)
		event.Emit(opts.Events, event.Event{Type: event.ArchiveFailed, Archive: dest, Path: source, Error: err})
		return "", err
	}

	opts.Stats.AddArchives(1)
	event.Emit(opts.Events, event.Event{Type: event.ArchiveCompleted, Archive: dest, Path: source, Size: size})
	log.Debug("compressed", "bytes", size)
	return dest, nil
}

// writeArchive runs encoder -> codec -> file and commits the file.
func writeArchive(ctx context.Context, source, dest string, isDir bool, opts Options) (int64, error) {
	tmp, err := opts.FS.CreateTemp(dest, stream.DefaultPerm)
	if err != nil {
		return 0, fault.New(fault.KindStreamOpen, "create archive", dest, err)
	}
	defer tmp.Abort() //nolint:errcheck // no-op after Commit

	var closers stream.Stack
	closers.Push("archive file", tmp)

	meter := &meterWriter{WriteStream: tmp, stats: opts.Stats}
	limited := stream.LimitWriter(ctx, meter, stream.NewLimiter(opts.BWLimit))
	cw, err := codec.NewWriter(limited, opts.Algorithm, opts.Level)
	if err != nil {
		return 0, errors.Join(err, closers.Close())
	}
	closers.Push("codec", cw)

	enc, err := engine.NewEncoder(cw, engine.EncoderConfig{
		FS:      opts.FS,
		Filter:  opts.Filter,
		Stats:   opts.Stats,
		Events:  opts.Events,
		Logger:  opts.Logger,
		Archive: dest,
	})
	if err != nil {
		return 0, errors.Join(err, closers.Close())
	}
	closers.Push("encoder", enc)

	if isDir {
		_, err = enc.WriteDirectoryContents(ctx, source, opts.Keys, opts.EncodeFlags)
	} else {
		_, err = enc.WriteFile(ctx, source, filepath.Base(source), opts.Keys)
	}
	// Closing writes the end record and flushes the codec, so it has to
	// succeed too before the archive is committed.
	if closeErr := closers.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, err
	}
	if err := tmp.Commit(); err != nil {
		return 0, fault.Wrap(fault.KindIO, "commit", dest, err)
	}
	return meter.n, nil
}
