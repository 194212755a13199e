//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd)

package memprobe

func maxRSSBytes() (int64, bool) {
	return 0, false
}
