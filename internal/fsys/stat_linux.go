//go:build linux

package fsys

import (
	"syscall"
	"time"
)

// fillStatFields copies the platform-specific Stat_t fields into e.
func fillStatFields(stat *syscall.Stat_t, e *Entry) {
	e.Dev = stat.Dev
	e.Nlink = uint64(stat.Nlink) //nolint:unconvert // uint32 on some architectures
	e.AccTime = time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
	e.ChangeTime = time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
}
