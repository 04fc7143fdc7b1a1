//go:build unix

package sys

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by LockFile when another process holds the lock.
var ErrWouldBlock = errors.New("file is locked by another process")

// LockFile takes a non-blocking exclusive advisory lock on file.
func LockFile(file *os.File) error {
	err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrWouldBlock
	}
	return err
}

// UnlockFile releases a lock taken with LockFile.
func UnlockFile(file *os.File) error {
	return unix.Flock(int(file.Fd()), unix.LOCK_UN)
}

func GetSysPageSize() int {
	return unix.Getpagesize()
}
