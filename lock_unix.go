//go:build unix

package dustdata

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// flockPath takes a non-blocking exclusive advisory lock on path, creating
// it if necessary. It returns a DatabaseLocked error naming path's
// directory if another holder already has it.
func flockPath(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("dustdata: open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, DatabaseLockedError(filepath.Dir(path))
		}
		return nil, fmt.Errorf("dustdata: flock: %w", err)
	}

	return f, nil
}

func unflockFile(f *os.File) error {
	if f == nil {
		return nil
	}
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return f.Close()
}
