//go:build !unix

package dustdata

import "os"

// flockPath falls back to opening (creating if needed) the lock file
// without locking it on platforms without flock(2); it detects no other
// holder, so it never returns DatabaseLocked.
func flockPath(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
}

func unflockFile(f *os.File) error {
	if f == nil {
		return nil
	}
	return f.Close()
}
