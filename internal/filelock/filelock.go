// Package filelock reports whether another writer still holds a file open
// exclusively, and lets our own encoder hold such a lock.
package filelock

import (
	"errors"
	"os"
)

// ErrUnsupported is returned by Lock on platforms without advisory locks.
var ErrUnsupported = errors.New("filelock: not supported on this platform")

// IsLocked reports whether path is exclusively held by another handle. A
// missing file, or one we are not allowed to open, is reported as unlocked
// and the caller's copy surfaces the error.
func IsLocked(path string) bool {
	return classify(probe(path))
}

func classify(locked bool, err error) bool {
	switch {
	case err == nil:
		return locked
	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return false
	default:
		return true
	}
}
