package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/parcel/internal/event"
	"github.com/bamsammich/parcel/internal/fault"
	"github.com/bamsammich/parcel/internal/filter"
	"github.com/bamsammich/parcel/internal/pipeline"
	"github.com/bamsammich/parcel/internal/stats"
	"github.com/bamsammich/parcel/internal/stream"
	"github.com/bamsammich/parcel/internal/ui"
)

const eventBuffer = 1024

type jobFunc func(ctx context.Context, input string, opts pipeline.Options) (string, error)

// baseOptions returns pipeline options carrying the persistent flags.
func (a *app) baseOptions() (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	opts.OutputDir = a.output
	opts.Logger = slog.Default()
	if a.bwLimit != "" {
		limit, err := filter.ParseSize(a.bwLimit)
		if err != nil {
			return opts, fmt.Errorf("invalid --bwlimit: %w", err)
		}
		opts.BWLimit = limit
	}
	return opts, nil
}

// runJobs runs fn for every input, at most a.jobs at a time, while a
// presenter renders their events. One failing input does not stop the
// others. The result is nil when all succeed, exit code 1 when some fail
// and exit code 2 when all fail or the run is interrupted.
func (a *app) runJobs(parent context.Context, op ui.Op, inputs []string, opts pipeline.Options, fn jobFunc) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	events := make(chan event.Event, eventBuffer)
	opts.Stats = collector
	opts.Events = events

	isTTY, width := a.terminal()
	presenter := ui.NewPresenter(ui.Config{
		Writer:    a.stdout,
		ErrWriter: a.stderr,
		Stats:     collector,
		Op:        op,
		Archives:  len(inputs),
		Width:     width,
		IsTTY:     isTTY,
		Quiet:     a.quiet,
		Verbose:   a.verbose,
	})

	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(events)
	}()

	var failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(a.jobs)
	for _, input := range inputs {
		g.Go(func() error {
			out, err := fn(ctx, input, opts)
			if err != nil {
				failed.Add(1)
				slog.Error(string(op)+" failed", "input", input, "kind", fault.KindOf(err).String(), "error", err)
				return nil
			}
			slog.Debug(string(op)+" done", "input", input, "output", out)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // jobs report failures through the counter
	interrupted := ctx.Err() != nil
	stop()
	if interrupted {
		stream.CleanupTmpFiles()
	}

	close(events)
	presenterWg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(a.stderr, "presenter: %v\n", presenterErr)
	}
	if summary := presenter.Summary(); summary != "" {
		fmt.Fprintln(a.stderr, summary)
	}

	n := failed.Load()
	switch {
	case interrupted:
		fmt.Fprintln(a.stderr, "interrupted")
		return &exitError{code: 2}
	case n == 0:
		return nil
	case n < int64(len(inputs)):
		return &exitError{code: 1}
	default:
		return &exitError{code: 2}
	}
}
