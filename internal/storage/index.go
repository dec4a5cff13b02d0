package storage

import (
	"sync"

	"github.com/rustbase/dustdata/internal/persist"
	"github.com/rustbase/dustdata/internal/rolling"
)

// Location is where a value's bytes live in the chunked data log.
type Location struct {
	Chunk  rolling.Ref
	Offset uint64
}

// Index is the persistent primary index mapping a key to the location of
// its value in the data log. It is rewritten to disk as a single
// gob-encoded (optionally gzipped) snapshot; see persist.go.
type Index struct {
	mu        sync.RWMutex
	path      string
	gzipLevel int
	entries   map[string]Location
}

// OpenIndex loads path if it exists (gzip auto-detected) or starts empty and
// persists immediately, matching the primary index's documented
// load-or-create-and-persist open sequence.
func OpenIndex(path string, gzipLevel int) (*Index, error) {
	ix := &Index{path: path, gzipLevel: gzipLevel, entries: map[string]Location{}}
	if err := persist.Load(path, &ix.entries); err != nil {
		return nil, err
	}
	if ix.entries == nil {
		ix.entries = map[string]Location{}
	}
	if err := ix.persistLocked(); err != nil {
		return nil, err
	}
	return ix, nil
}

func (ix *Index) persistLocked() error {
	return persist.Save(ix.path, ix.entries, ix.gzipLevel)
}

// Get returns the location of key, if indexed.
func (ix *Index) Get(key string) (Location, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	loc, ok := ix.entries[key]
	return loc, ok
}

// Set records (or overwrites) key's location. It does not persist; Storage
// calls Persist after each mutation.
func (ix *Index) Set(key string, loc Location) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries[key] = loc
}

// Delete removes key from the index.
func (ix *Index) Delete(key string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries, key)
}

// Clear empties the index, as on Drop.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = map[string]Location{}
}

// Len reports the number of indexed keys.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Keys returns a snapshot of every indexed key, used to rebuild the bloom
// filter on open.
func (ix *Index) Keys() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	keys := make([]string, 0, len(ix.entries))
	for k := range ix.entries {
		keys = append(keys, k)
	}
	return keys
}

// Persist atomically rewrites the index snapshot to disk. Invariant I3
// (index entries always reference durable storage bytes) only holds once
// this has been called after the corresponding data append.
func (ix *Index) Persist() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.persistLocked()
}
