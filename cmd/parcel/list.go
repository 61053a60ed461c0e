package main

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/parcel/internal/engine"
	"github.com/bamsammich/parcel/internal/fault"
	"github.com/bamsammich/parcel/internal/header"
	"github.com/bamsammich/parcel/internal/pipeline"
)

type listFlags struct {
	filters filterFlags
	long    bool
	json    bool
}

// listedEntry is the JSON form of one archive entry.
type listedEntry struct {
	Path     string     `json:"path"`
	Type     string     `json:"type"`
	Link     string     `json:"link,omitempty"`
	Checksum string     `json:"checksum,omitempty"`
	Modified *time.Time `json:"modified,omitempty"`
	Size     int64      `json:"size"`
	Mode     uint32     `json:"mode,omitempty"`
}

type listedArchive struct {
	Archive string        `json:"archive"`
	Codec   string        `json:"codec"`
	Entries []listedEntry `json:"entries"`
}

func newListCmd(a *app) *cobra.Command {
	lf := &listFlags{}
	cmd := &cobra.Command{
		Use:     "list [flags] <archive>...",
		Aliases: []string{"ls"},
		Short:   "Print the entries of archives without extracting them",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return lf.run(cmd, a, args)
		},
	}
	f := cmd.Flags()
	lf.filters.register(f)
	f.BoolVarP(&lf.long, "long", "l", false, "show type, mode, size and modification time")
	f.BoolVar(&lf.json, "json", false, "output as JSON")
	return cmd
}

func (lf *listFlags) run(cmd *cobra.Command, a *app, archives []string) error {
	opts, err := a.baseOptions()
	if err != nil {
		return err
	}
	opts.Filter, err = lf.filters.build(a.cfg.Filter)
	if err != nil {
		return err
	}

	var (
		failed int
		out    []listedArchive
	)
	for i, archive := range archives {
		listing, err := pipeline.List(cmd.Context(), archive, opts)
		if err != nil {
			failed++
			slog.Error("list failed", "input", archive, "kind", fault.KindOf(err).String(), "error", err)
			continue
		}
		if lf.json {
			out = append(out, jsonListing(archive, listing))
			continue
		}
		if len(archives) > 1 {
			if i > 0 {
				fmt.Fprintln(a.stdout)
			}
			fmt.Fprintf(a.stdout, "%s:\n", archive)
		}
		if err := lf.print(a.stdout, listing); err != nil {
			return err
		}
	}

	if lf.json {
		if out == nil {
			out = []listedArchive{}
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	}

	switch {
	case failed == 0:
		return nil
	case failed < len(archives):
		return &exitError{code: 1}
	default:
		return &exitError{code: 2}
	}
}

func (lf *listFlags) print(w io.Writer, listing *pipeline.Listing) error {
	if !lf.long {
		for _, h := range listing.Entries {
			fmt.Fprintln(w, h.Path)
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, h := range listing.Entries {
		modified := "-"
		if h.Has(header.KeyMTM) {
			modified = h.ModTime.Local().Format(time.DateTime)
		}
		name := h.Path
		if h.LinkTarget != "" {
			name += " -> " + h.LinkTarget
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", modeString(&h), h.Size, modified, name)
	}
	return tw.Flush()
}

// modeString renders an entry's type and permission bits the way ls does,
// with h for hardlinks and c for content clones.
func modeString(h *header.Header) string {
	var kind byte
	switch h.Type {
	case header.TypeDirectory:
		kind = 'd'
	case header.TypeSymlink:
		kind = 'l'
	case header.TypeHardlink:
		kind = 'h'
	case header.TypeClone:
		kind = 'c'
	default:
		kind = '-'
	}
	if !h.Has(header.KeyMOD) {
		return string(kind) + "?????????"
	}
	return string(kind) + fs.FileMode(h.Mode & 0o777).String()[1:]
}

func jsonListing(archive string, listing *pipeline.Listing) listedArchive {
	la := listedArchive{
		Archive: archive,
		Codec:   listing.Algorithm.String(),
		Entries: make([]listedEntry, 0, len(listing.Entries)),
	}
	for _, h := range listing.Entries {
		e := listedEntry{
			Path: h.Path,
			Type: h.Type.String(),
			Link: h.LinkTarget,
			Size: h.Size,
			Mode: h.Mode,
		}
		if len(h.Checksum) > 0 {
			e.Checksum = engine.HexDigest(h.Checksum)
		}
		if h.Has(header.KeyMTM) {
			t := h.ModTime
			e.Modified = &t
		}
		la.Entries = append(la.Entries, e)
	}
	return la
}
