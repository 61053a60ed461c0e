//go:build darwin

package fsys

import (
	"syscall"
	"time"
)

// fillStatFields copies the platform-specific Stat_t fields into e.
func fillStatFields(stat *syscall.Stat_t, e *Entry) {
	e.Dev = uint64(stat.Dev) //nolint:gosec // G115: dev_t is int32 on darwin, always non-negative
	e.Nlink = uint64(stat.Nlink)
	e.AccTime = time.Unix(stat.Atimespec.Sec, stat.Atimespec.Nsec)
	e.ChangeTime = time.Unix(stat.Ctimespec.Sec, stat.Ctimespec.Nsec)
}
