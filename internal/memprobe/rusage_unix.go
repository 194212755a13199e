//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package memprobe

import (
	"runtime"

	"golang.org/x/sys/unix"
)

func maxRSSBytes() (int64, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	if ru.Maxrss <= 0 {
		return 0, false
	}
	// Darwin reports bytes, the others kilobytes.
	if runtime.GOOS == "darwin" {
		return int64(ru.Maxrss), true
	}
	return int64(ru.Maxrss) * 1024, true
}
