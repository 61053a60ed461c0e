package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/parcel/internal/event"
	"github.com/bamsammich/parcel/internal/stats"
)

const plainProgressInterval = 5 * time.Second

// plainPresenter prints one line per finished archive to stdout, and
// periodic progress to stderr. Per-entry lines appear only when verbose;
// entry failures are always shown.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   *stats.Collector
	op      Op
	verbose bool
	multi   bool
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	ticker := time.NewTicker(plainProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.stats.Tick()
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.ArchiveCompleted:
		fmt.Fprintf(p.w, "%s  %s\n", archiveLabel(p.op, ev), FormatBytes(ev.Size))
	case event.ArchiveFailed:
		fmt.Fprintf(p.errW, "failed: %s: %s\n", failureLabel(p.op, ev), errText(ev.Error))
	case event.EntryFailed:
		fmt.Fprintf(p.w, "%s  %s\n", entryLabel(p.multi, ev), errText(ev.Error))
	case event.EntrySkipped:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  skipped\n", entryLabel(p.multi, ev))
		}
	case event.MetadataFailed:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  metadata: %s\n", entryLabel(p.multi, ev), errText(ev.Error))
		}
	case event.EntryEncoded, event.EntryExtracted:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  %s\n", entryLabel(p.multi, ev), FormatBytes(ev.Size))
		}
	default:
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	fmt.Fprintf(p.errW, "progress: %s archives  %s entries  %s  %s\n",
		FormatCount(snap.Archives),
		FormatCount(snap.Entries),
		FormatBytes(snap.PayloadBytes),
		FormatRate(p.stats.RollingSpeed(10)),
	)
}

func (p *plainPresenter) Summary() string {
	return Summary(p.op, p.stats.Snapshot(), false)
}

func errText(err error) string {
	if err == nil {
		return "error"
	}
	return err.Error()
}
