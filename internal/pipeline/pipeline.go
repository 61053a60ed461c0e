// Package pipeline wires files, codecs and the archive engine into the
// compress, decompress and list operations.
//
// Each call assembles its own chain of streams, closes every one of them on
// every exit path, and shares no mutable state with concurrent calls beyond
// the optional Stats collector and Events channel.
package pipeline

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bamsammich/parcel/internal/codec"
	"github.com/bamsammich/parcel/internal/engine"
	"github.com/bamsammich/parcel/internal/event"
	"github.com/bamsammich/parcel/internal/fault"
	"github.com/bamsammich/parcel/internal/filter"
	"github.com/bamsammich/parcel/internal/fsys"
	"github.com/bamsammich/parcel/internal/header"
	"github.com/bamsammich/parcel/internal/stats"
	"github.com/bamsammich/parcel/internal/stream"
)

// Extension is appended to archive names.
const Extension = ".parcel"

// Options configure a pipeline call. Start from DefaultOptions: the zero
// value stores entries uncompressed.
type Options struct {
	FS     fsys.FS
	Filter *filter.Chain
	Stats  *stats.Collector
	Events chan<- event.Event
	Logger *slog.Logger

	// OutputDir receives archives and extracted trees. Empty means the
	// directory containing the input.
	OutputDir string

	// BWLimit caps archive file throughput in bytes per second; 0 is
	// unlimited.
	BWLimit int64

	Level        int
	Keys         header.FieldKeySet
	EncodeFlags  engine.EncodeFlags
	ExtractFlags engine.ExtractFlags
	Algorithm    codec.Algorithm

	// Overwrite lets Decompress replace a non-empty destination.
	Overwrite bool
}

// DefaultOptions returns the options the CLI starts from.
func DefaultOptions() Options {
	return Options{
		Algorithm: codec.Default,
		Level:     codec.DefaultLevel,
		Keys:      header.DefaultKeys,
	}
}

func (o Options) withDefaults() Options {
	if o.FS == nil {
		o.FS = fsys.Local{}
	}
	if o.Stats == nil {
		o.Stats = stats.NewCollector()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Keys == 0 {
		o.Keys = header.DefaultKeys
	}
	return o
}

// ArchivePath derives the archive written for source: the source's base
// name, without its extension when source is a file, plus Extension.
func ArchivePath(source string, isDir bool, outputDir string) (string, error) {
	clean := filepath.Clean(source)
	base := filepath.Base(clean)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fault.Newf(fault.KindPathResolution, "derive archive name", source, "no usable base name")
	}
	if !isDir {
		if stem := strings.TrimSuffix(base, filepath.Ext(base)); stem != "" {
			base = stem
		}
	}
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(clean)
	}
	return filepath.Join(dir, base+Extension), nil
}

// ExtractPath derives the directory an archive extracts to by stripping its
// extension.
func ExtractPath(archive, outputDir string) (string, error) {
	clean := filepath.Clean(archive)
	base := filepath.Base(clean)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" || stem == "" || stem == "." {
		return "", fault.Newf(fault.KindPathResolution, "derive destination", archive, "archive name has no extension to strip")
	}
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(clean)
	}
	return filepath.Join(dir, stem), nil
}

// meterWriter counts archive bytes as they reach the file.
type meterWriter struct {
	stream.WriteStream
	stats *stats.Collector
	n     int64
}

func (m *meterWriter) Write(p []byte) (int, error) {
	n, err := m.WriteStream.Write(p)
	m.n += int64(n)
	m.stats.AddArchiveBytes(int64(n))
	return n, err
}

// meterReader counts archive bytes as they leave the file.
type meterReader struct {
	stream.ReadStream
	stats *stats.Collector
	n     int64
}

func (m *meterReader) Read(p []byte) (int, error) {
	n, err := m.ReadStream.Read(p)
	m.n += int64(n)
	m.stats.AddArchiveBytes(int64(n))
	return n, err
}
