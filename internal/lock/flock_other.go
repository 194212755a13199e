//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd || windows)

package lock

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("file locking is not supported on this platform")

func lockFile(*os.File, bool) (bool, error) {
	return false, errUnsupported
}

func unlockFile(*os.File) error {
	return errUnsupported
}
