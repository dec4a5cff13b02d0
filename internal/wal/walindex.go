package wal

import (
	"sync"

	"github.com/google/btree"

	"github.com/rustbase/dustdata/internal/persist"
	"github.com/rustbase/dustdata/internal/rolling"
)

// entry is one row of the sorted WAL index: which log chunk/offset holds
// the TransactionLog for a given transaction id.
type entry struct {
	ID     uint64
	Chunk  rolling.Ref
	Offset uint64
}

func entryLess(a, b entry) bool { return a.ID < b.ID }

// Index is the sorted tx_id -> (log_chunk, offset) map backed by a
// github.com/google/btree B-tree for ordered head()/diff() queries, and
// persisted to disk as a flat gob-encoded slice (a B-tree itself isn't
// gob-encodable, so the tree is rebuilt from the slice on load).
type Index struct {
	mu        sync.RWMutex
	path      string
	gzipLevel int
	tree      *btree.BTreeG[entry]
}

func OpenIndex(path string, gzipLevel int) (*Index, error) {
	ix := &Index{
		path:      path,
		gzipLevel: gzipLevel,
		tree:      btree.NewG(32, entryLess),
	}

	var entries []entry
	if err := persist.Load(path, &entries); err != nil {
		return nil, err
	}
	for _, e := range entries {
		ix.tree.ReplaceOrInsert(e)
	}
	if err := ix.persistLocked(); err != nil {
		return nil, err
	}
	return ix, nil
}

func (ix *Index) snapshot() []entry {
	entries := make([]entry, 0, ix.tree.Len())
	ix.tree.Ascend(func(e entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries
}

func (ix *Index) persistLocked() error {
	return persist.Save(ix.path, ix.snapshot(), ix.gzipLevel)
}

// Set records a transaction's location and persists the index.
func (ix *Index) Set(id uint64, chunk rolling.Ref, offset uint64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.tree.ReplaceOrInsert(entry{ID: id, Chunk: chunk, Offset: offset})
	return ix.persistLocked()
}

// Get looks up a transaction's location.
func (ix *Index) Get(id uint64) (rolling.Ref, uint64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.tree.Get(entry{ID: id})
	return e.Chunk, e.Offset, ok
}

// Head returns the highest transaction id recorded in the index.
func (ix *Index) Head() (uint64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.tree.Max()
	return e.ID, ok
}

// Range returns every transaction id in [from, to], ascending — the basis
// for diff(range).
func (ix *Index) Range(from, to uint64) []uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var ids []uint64
	ix.tree.AscendGreaterOrEqual(entry{ID: from}, func(e entry) bool {
		if e.ID > to {
			return false
		}
		ids = append(ids, e.ID)
		return true
	})
	return ids
}

// Len reports how many transactions are indexed.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.tree.Len()
}
