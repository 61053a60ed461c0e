package ui

import (
	"fmt"
	"io"
	"path"
	"time"

	"github.com/bamsammich/parcel/internal/event"
	"github.com/bamsammich/parcel/internal/stats"
)

// hudPresenter draws a scrolling feed of finished archives and failures
// with a 2-line status block redrawn in place beneath it.
type hudPresenter struct {
	w        io.Writer
	stats    *stats.Collector
	op       Op
	archives int
	width    int
	verbose  bool

	drawn    bool
	lastDraw time.Time
	failed   int
}

const (
	sparklineWidth   = 20
	progressBarWidth = 20
	hudMinInterval   = 50 * time.Millisecond // don't redraw faster than this
	hudLines         = 2
)

func (p *hudPresenter) Run(events <-chan event.Event) error {
	// Fire the first tick quickly to seed the throughput ring, then settle
	// on one sample per second.
	secTicker := time.NewTicker(250 * time.Millisecond)
	defer secTicker.Stop()
	firstTickDone := false

	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clear()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDraw()

		case <-redrawTicker.C:
			p.draw()

		case <-secTicker.C:
			p.stats.Tick()
			if !firstTickDone {
				firstTickDone = true
				secTicker.Reset(time.Second)
			}
		}
	}
}

func (p *hudPresenter) handleEvent(ev event.Event) {
	multi := p.archives > 1
	switch ev.Type {
	case event.ArchiveCompleted:
		p.printLine(styleIconDone.Render(iconDone), archiveLabel(p.op, ev), FormatBytes(ev.Size))
	case event.ArchiveFailed:
		p.failed++
		p.printLine(styleIconFailed.Render(iconFailed), failureLabel(p.op, ev), errText(ev.Error))
	case event.EntryFailed:
		p.printLine(styleIconFailed.Render(iconFailed), entryLabel(multi, ev), errText(ev.Error))
	case event.EntrySkipped:
		if p.verbose {
			p.printLine(styleIconSkipped.Render(iconSkipped), entryLabel(multi, ev), "skipped")
		}
	case event.MetadataFailed:
		if p.verbose {
			p.printLine(styleIconSkipped.Render(iconSkipped), entryLabel(multi, ev), "metadata: "+errText(ev.Error))
		}
	case event.EntryEncoded, event.EntryExtracted:
		if p.verbose {
			p.printLine(" ", entryLabel(multi, ev), FormatBytes(ev.Size))
		}
	default:
	}
}

// printLine writes a feed line above the status block.
func (p *hudPresenter) printLine(icon, name, detail string) {
	p.clear()
	fmt.Fprintf(p.w, "%s  %s  %s\n", icon, p.styledPath(name), detail)
	p.draw()
}

func (p *hudPresenter) maybeDraw() {
	if time.Since(p.lastDraw) < hudMinInterval {
		return
	}
	p.draw()
}

func (p *hudPresenter) draw() {
	snap := p.stats.Snapshot()
	p.clear()

	spark := styleSparkline.Render(Sparkline(p.stats.Throughput(sparklineWidth), sparklineWidth))
	fmt.Fprintf(p.w, "       %s   %s   %s in   %s out\n",
		spark, FormatRate(p.stats.RollingSpeed(10)),
		FormatBytes(snap.PayloadBytes), FormatBytes(snap.ArchiveBytes))

	done := snap.Archives + int64(p.failed)
	var pct float64
	if p.archives > 0 {
		pct = float64(done) / float64(p.archives)
	}
	fmt.Fprintf(p.w, " %3.0f%%  %s   %s / %s archives   %s entries   %s\n",
		pct*100, ProgressBar(pct, progressBarWidth),
		FormatCount(done), FormatCount(int64(p.archives)),
		FormatCount(snap.Entries), FormatDuration(snap.Elapsed))

	p.drawn = true
	p.lastDraw = time.Now()
}

func (p *hudPresenter) clear() {
	if !p.drawn {
		return
	}
	// Move the cursor up over the status block and clear to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", hudLines)
	p.drawn = false
}

func (p *hudPresenter) Summary() string {
	return Summary(p.op, p.stats.Snapshot(), true)
}

// styledPath dims the directory portion so the file name stands out, and
// trims long paths to the terminal width.
func (p *hudPresenter) styledPath(name string) string {
	width := p.width
	if width <= 0 {
		width = defaultWidth
	}
	name = truncPath(name, max(width/2, 16))
	dir, base := path.Split(name)
	if dir == "" {
		return base
	}
	return styleDir.Render(dir) + base
}
