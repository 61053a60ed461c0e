package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/parcel/internal/codec"
	"github.com/bamsammich/parcel/internal/config"
	"github.com/bamsammich/parcel/internal/engine"
	"github.com/bamsammich/parcel/internal/filter"
	"github.com/bamsammich/parcel/internal/header"
	"github.com/bamsammich/parcel/internal/pipeline"
	"github.com/bamsammich/parcel/internal/ui"
)

// filterFlags are the entry selection flags shared by compress and list.
type filterFlags struct {
	chain   *filter.Chain
	file    string
	minSize string
	maxSize string
}

func (f *filterFlags) register(fs *pflag.FlagSet) {
	f.chain = filter.NewChain()
	fs.Var(&filterFlag{chain: f.chain}, "exclude", "exclude entries matching PATTERN (repeatable)")
	fs.Var(&filterFlag{chain: f.chain, include: true}, "include", "include entries matching PATTERN (repeatable)")
	fs.StringVar(&f.file, "filter", "", "read filter rules from FILE")
	fs.StringVar(&f.minSize, "min-size", "", "skip files smaller than SIZE (e.g. 1M, 100K)")
	fs.StringVar(&f.maxSize, "max-size", "", "skip files larger than SIZE (e.g. 1G, 500M)")
}

// build finishes the chain: command-line rules first, then the filter
// file, then the config file's lists. The first matching rule wins. A chain
// with no rules is returned as nil.
func (f *filterFlags) build(cfg config.FilterConfig) (*filter.Chain, error) {
	if f.file != "" {
		if err := f.chain.LoadFile(f.file); err != nil {
			return nil, fmt.Errorf("load filter file: %w", err)
		}
	}
	if err := f.chain.AddLists(cfg.Include, cfg.Exclude); err != nil {
		return nil, fmt.Errorf("config filter: %w", err)
	}
	if f.minSize != "" {
		n, err := filter.ParseSize(f.minSize)
		if err != nil {
			return nil, fmt.Errorf("invalid --min-size: %w", err)
		}
		f.chain.SetMinSize(n)
	}
	if f.maxSize != "" {
		n, err := filter.ParseSize(f.maxSize)
		if err != nil {
			return nil, fmt.Errorf("invalid --max-size: %w", err)
		}
		f.chain.SetMaxSize(n)
	}
	if f.chain.Empty() {
		return nil, nil
	}
	return f.chain, nil
}

type compressFlags struct {
	filters       filterFlags
	algorithm     codec.Algorithm
	level         int
	keys          header.FieldKeySet
	dedupe        bool
	dedupeContent bool
	follow        bool
	skipDenied    bool
	skipErrors    bool
}

func newCompressCmd(a *app) *cobra.Command {
	cf := &compressFlags{algorithm: codec.Default, keys: header.DefaultKeys}
	cmd := &cobra.Command{
		Use:   "compress [flags] <path>...",
		Short: "Archive each file or directory into <name>.parcel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := cf.options(cmd, a)
			if err != nil {
				return err
			}
			return a.runJobs(cmd.Context(), ui.OpCompress, args, opts,
				func(ctx context.Context, input string, opts pipeline.Options) (string, error) {
					return pipeline.Compress(ctx, input, opts)
				})
		},
	}

	f := cmd.Flags()
	cf.filters.register(f)
	f.Var(&cf.algorithm, "codec", "compression: none, zlib, gzip, zstd, lz4, xz")
	f.IntVar(&cf.level, "level", codec.DefaultLevel, "compression level (0: codec default)")
	f.Var(&cf.keys, "keys", `header fields to store, e.g. "default,HSH" or "all"`)
	f.BoolVar(&cf.dedupe, "dedupe", false, "store hardlinked files once")
	f.BoolVar(&cf.dedupeContent, "dedupe-content", false, "store files with identical content once (BLAKE3)")
	f.BoolVarP(&cf.follow, "follow-symlinks", "L", false, "archive what symlinks point to")
	f.BoolVar(&cf.skipDenied, "skip-denied", false, "skip entries that cannot be read for lack of permission")
	f.BoolVar(&cf.skipErrors, "skip-errors", false, "skip entries that fail to read for any reason")
	return cmd
}

func (cf *compressFlags) options(cmd *cobra.Command, a *app) (pipeline.Options, error) {
	d := a.cfg.Defaults
	if !cmd.Flags().Changed("codec") && d.Codec != nil {
		cf.algorithm = *d.Codec
	}
	if !cmd.Flags().Changed("level") && d.Level != nil {
		cf.level = *d.Level
	}
	if !cmd.Flags().Changed("keys") && d.Keys != nil {
		cf.keys = *d.Keys
	}

	opts, err := a.baseOptions()
	if err != nil {
		return opts, err
	}
	opts.Filter, err = cf.filters.build(a.cfg.Filter)
	if err != nil {
		return opts, err
	}
	opts.Algorithm = cf.algorithm
	opts.Level = cf.level
	opts.Keys = cf.keys

	var flags engine.EncodeFlags
	for _, fl := range []struct {
		on   bool
		flag engine.EncodeFlags
	}{
		{cf.dedupe, engine.DedupeHardlinks},
		{cf.dedupeContent, engine.DedupeContent},
		{cf.follow, engine.FollowSymlinks},
		{cf.skipDenied, engine.SkipPermissionDenied},
		{cf.skipErrors, engine.SkipErrors},
	} {
		if fl.on {
			flags |= fl.flag
		}
	}
	opts.EncodeFlags = flags
	return opts, nil
}
