package ui

import (
	"fmt"
	"strings"

	"github.com/bamsammich/parcel/internal/stats"
)

// Summary builds the final summary line from a snapshot, for example:
//
//	compress ✓  archives 3  entries 1,204  data 2.1 GiB  archive 812.4 MiB  ratio 0.38  avg 96.0 MiB/s  time 22s  errors 0
//
// styled colors the icon and labels for a terminal.
func Summary(op Op, snap stats.Snapshot, styled bool) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.PayloadBytes) / snap.Elapsed.Seconds()
	}

	icon, iconStyle := iconDone, styleIconDone
	if snap.Failed > 0 {
		icon, iconStyle = iconFailed, styleIconFailed
	}
	label := func(s string) string { return s }
	number := func(s string) string { return s }
	if styled {
		icon = iconStyle.Render(icon)
		label = func(s string) string { return styleLabel.Render(s) }
		number = func(s string) string { return styleNumber.Render(s) }
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", op, icon)
	field := func(name, value string) {
		fmt.Fprintf(&b, "  %s %s", label(name), number(value))
	}
	field("archives", FormatCount(snap.Archives))
	field("entries", FormatCount(snap.Entries))
	field("data", FormatBytes(snap.PayloadBytes))
	field("archive", FormatBytes(snap.ArchiveBytes))
	if snap.PayloadBytes > 0 {
		field("ratio", fmt.Sprintf("%.2f", snap.Ratio()))
	}
	field("avg", FormatRate(avgSpeed))
	field("time", FormatDuration(snap.Elapsed))
	if snap.Skipped > 0 {
		field("skipped", FormatCount(snap.Skipped))
	}
	if snap.MetadataFailures > 0 {
		field("metadata", FormatCount(snap.MetadataFailures))
	}
	if snap.ChecksumsChecked > 0 {
		field("verified", FormatCount(snap.ChecksumsChecked))
	}
	field("errors", FormatCount(snap.Failed))
	return b.String()
}
