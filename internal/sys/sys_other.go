//go:build !unix

package sys

import (
	"errors"
	"os"
)

var ErrWouldBlock = errors.New("file is locked by another process")

// LockFile is a no-op on platforms without flock.
func LockFile(file *os.File) error {
	return nil
}

func UnlockFile(file *os.File) error {
	return nil
}

func GetSysPageSize() int {
	return os.Getpagesize()
}
