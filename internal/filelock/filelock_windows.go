//go:build windows

package filelock

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// Lock is a no-op on Windows: the open handle itself denies exclusive
// access to other openers.
func Lock(f *os.File) (func() error, error) {
	return func() error { return nil }, nil
}

// probe opens path with no sharing; a sharing violation means another
// handle is open.
func probe(path string) (bool, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false, err
	}
	h, err := windows.CreateFile(p,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0, nil, windows.OPEN_EXISTING, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if errors.Is(err, windows.ERROR_SHARING_VIOLATION) {
		return true, nil
	}
	if errors.Is(err, windows.ERROR_FILE_NOT_FOUND) || errors.Is(err, windows.ERROR_PATH_NOT_FOUND) {
		return false, os.ErrNotExist
	}
	if err != nil {
		return false, err
	}
	windows.CloseHandle(h)
	return false, nil
}
