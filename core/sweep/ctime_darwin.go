//go:build darwin

package sweep

import (
	"os"
	"syscall"
	"time"
)

// createdAt returns the birth time, falling back to the modification time.
func createdAt(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Birthtimespec.Sec, st.Birthtimespec.Nsec)
	}
	return info.ModTime()
}
