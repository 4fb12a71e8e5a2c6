//go:build unix

package lock

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// tryLock opens lockPath and takes a non-blocking exclusive flock on it.
// The kernel drops the lock when the holding process dies, so a crashed
// holder never leaves a stale lock behind.
func tryLock(lockPath string) (*os.File, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", lockPath, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("lock: flock %s: %w", lockPath, err)
	}
	return f, nil
}

func unlock(f *os.File, _ string) error {
	unlockErr := syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	closeErr := f.Close()
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
