package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/bamsammich/parcel/internal/config"
	"github.com/bamsammich/parcel/internal/filter"
	"github.com/bamsammich/parcel/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// app holds state shared by every subcommand of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// terminal reports whether progress goes to a TTY, and its width.
	terminal func() (bool, int)

	cfg config.Config

	verbose  bool
	quiet    bool
	logFile  string
	jobs     int
	output   string
	bwLimit  string
	closeLog func() error
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{
		stdout:   stdout,
		stderr:   stderr,
		terminal: func() (bool, int) { return false, 0 },
	}
	if stderr == os.Stderr {
		a.terminal = func() (bool, int) { return ui.Terminal(os.Stderr) }
	}
	return a.execute(args)
}

func (a *app) execute(args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.Execute()
	if a.closeLog != nil {
		if cerr := a.closeLog(); cerr != nil {
			fmt.Fprintf(a.stderr, "close log file: %v\n", cerr)
		}
	}
	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:               "parcel",
		Short:             "Pack directory trees into single compressed archives and back",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output (one line per entry, debug logging)")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "suppress all output except errors")
	pf.StringVar(&a.logFile, "log", "", "write structured JSON log to FILE")
	pf.IntVarP(&a.jobs, "jobs", "j", 0, "archives processed concurrently (default: min(NumCPU, 8))")
	pf.StringVarP(&a.output, "output", "o", "", "directory for results (default: next to each input)")
	pf.StringVar(&a.bwLimit, "bwlimit", "", "archive I/O limit per operation (e.g. 100M, 1G)")

	root.AddCommand(newCompressCmd(a), newDecompressCmd(a), newListCmd(a), newDocsCmd())
	return root
}

// setup loads the config file, applies its persistent defaults and
// configures logging. Runs before every subcommand.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(a.stderr, "warning: %v\n", err)
	}
	a.cfg = cfg
	ui.ApplyTheme(cfg.Theme)

	d := cfg.Defaults
	if !cmd.Flags().Changed("jobs") && d.Jobs != nil {
		a.jobs = *d.Jobs
	}
	if !cmd.Flags().Changed("output") && d.OutputDir != nil {
		a.output = *d.OutputDir
	}
	if !cmd.Flags().Changed("bwlimit") && d.BWLimit != nil {
		a.bwLimit = *d.BWLimit
	}
	if a.jobs <= 0 {
		a.jobs = min(runtime.NumCPU(), 8)
	}

	return a.setupLogging()
}

func (a *app) setupLogging() error {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	} else if a.quiet {
		level = slog.LevelError
	}
	textHandler := slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level})
	var handler slog.Handler = textHandler
	if a.logFile != "" {
		lf, err := os.Create(a.logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.closeLog = lf.Close
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// filterFlag is a pflag.Value that preserves CLI ordering of --exclude and
// --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "pattern" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
