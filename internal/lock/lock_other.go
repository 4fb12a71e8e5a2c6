//go:build !unix

package lock

import (
	"errors"
	"fmt"
	"os"
)

// tryLock creates lockPath exclusively. Only one creator can succeed.
// Unlike flock, a lock file left by a crashed process must be removed by
// hand.
func tryLock(lockPath string) (*os.File, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("lock: create %s: %w", lockPath, err)
	}
	return f, nil
}

func unlock(f *os.File, lockPath string) error {
	closeErr := f.Close()
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return closeErr
}
