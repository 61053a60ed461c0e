// Package ui renders pipeline progress and summaries for the CLI.
package ui

import (
	"io"

	"github.com/bamsammich/parcel/internal/event"
	"github.com/bamsammich/parcel/internal/stats"
)

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan event.Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Op names the operation being presented.
type Op string

const (
	OpCompress   Op = "compress"
	OpDecompress Op = "decompress"
)

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Stats     *stats.Collector
	Op        Op
	Archives  int // number of archives the command will produce or read
	Width     int // terminal width; 0 means 80
	IsTTY     bool
	Quiet     bool
	Verbose   bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Quiet {
		return &quietPresenter{}
	}
	if !cfg.IsTTY {
		return &plainPresenter{
			w:       cfg.Writer,
			errW:    cfg.ErrWriter,
			stats:   cfg.Stats,
			op:      cfg.Op,
			verbose: cfg.Verbose,
			multi:   cfg.Archives > 1,
		}
	}
	return &hudPresenter{
		w:        cfg.ErrWriter, // HUD renders to stderr (the TTY)
		stats:    cfg.Stats,
		op:       cfg.Op,
		archives: cfg.Archives,
		width:    cfg.Width,
		verbose:  cfg.Verbose,
	}
}

// archiveLabel returns the path a finished archive event is reported under:
// the archive written by compress, the tree written by decompress.
func archiveLabel(op Op, ev event.Event) string {
	if op == OpDecompress {
		return ev.Path
	}
	return ev.Archive
}

// failureLabel returns the input a failed archive event is reported under.
func failureLabel(op Op, ev event.Event) string {
	if op == OpDecompress {
		return ev.Archive
	}
	return ev.Path
}

// entryLabel returns an entry path, qualified by its archive when several
// archives are processed at once.
func entryLabel(multi bool, ev event.Event) string {
	if !multi || ev.Archive == "" {
		return ev.Path
	}
	return baseName(ev.Archive) + ":" + ev.Path
}
