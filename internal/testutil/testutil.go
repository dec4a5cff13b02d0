// Package testutil provides small test-only helpers shared across the
// storage engine's internal packages, mirroring the harness-style setup
// helpers the reference corpus keeps alongside its own component tests.
package testutil

import (
	"path/filepath"
	"testing"
)

// TempDir returns a fresh temporary directory rooted under t's own temp
// dir, scoped to subdir so sibling components (data/, log/, indexes) don't
// collide within the same test.
func TempDir(t *testing.T, subdir string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), subdir)
}
