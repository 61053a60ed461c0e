package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bamsammich/parcel/internal/engine"
	"github.com/bamsammich/parcel/internal/pipeline"
	"github.com/bamsammich/parcel/internal/ui"
)

type decompressFlags struct {
	overwrite  bool
	noSparse   bool
	noDedupe   bool
	owner      bool
	noTimes    bool
	verify     bool
	skipDenied bool
}

func newDecompressCmd(a *app) *cobra.Command {
	df := &decompressFlags{}
	cmd := &cobra.Command{
		Use:     "decompress [flags] <archive>...",
		Aliases: []string{"extract"},
		Short:   "Extract each archive into a directory named after it",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := df.options(cmd, a)
			if err != nil {
				return err
			}
			return a.runJobs(cmd.Context(), ui.OpDecompress, args, opts,
				func(ctx context.Context, input string, opts pipeline.Options) (string, error) {
					return pipeline.Decompress(ctx, input, opts)
				})
		},
	}

	f := cmd.Flags()
	f.BoolVar(&df.overwrite, "overwrite", false, "replace an existing non-empty destination")
	f.BoolVar(&df.noSparse, "no-sparse", false, "write zero runs instead of leaving holes")
	f.BoolVar(&df.noDedupe, "no-dedupe", false, "copy deduplicated files instead of hardlinking them")
	f.BoolVar(&df.owner, "owner", false, "restore file owner and group")
	f.BoolVar(&df.noTimes, "no-times", false, "don't restore timestamps")
	f.BoolVar(&df.verify, "verify", false, "check stored BLAKE3 checksums while extracting")
	f.BoolVar(&df.skipDenied, "skip-denied", false, "skip entries that cannot be written for lack of permission")
	return cmd
}

func (df *decompressFlags) options(cmd *cobra.Command, a *app) (pipeline.Options, error) {
	d := a.cfg.Defaults
	if !cmd.Flags().Changed("overwrite") && d.Overwrite != nil {
		df.overwrite = *d.Overwrite
	}
	if !cmd.Flags().Changed("verify") && d.Verify != nil {
		df.verify = *d.Verify
	}

	opts, err := a.baseOptions()
	if err != nil {
		return opts, err
	}
	opts.Overwrite = df.overwrite

	var flags engine.ExtractFlags
	for _, fl := range []struct {
		on   bool
		flag engine.ExtractFlags
	}{
		{df.noSparse, engine.NoAutoSparse},
		{df.noDedupe, engine.NoAutoDedupe},
		{df.owner, engine.PreserveOwner},
		{df.noTimes, engine.NoTimes},
		{df.verify, engine.VerifyChecksums},
		{df.skipDenied, engine.SkipPermissionDeniedExtract},
	} {
		if fl.on {
			flags |= fl.flag
		}
	}
	opts.ExtractFlags = flags
	return opts, nil
}
