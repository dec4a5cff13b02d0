// Package dustdata is an embeddable key-value storage engine: a process
// opens a Database directory, obtains one or more named Collections from
// it, and applies transactional batches of point mutations against each.
//
// The Database handle itself is a thin convenience — directory creation,
// an advisory single-process lock file, and a Collection factory — around
// the real subject of this package: each Collection's durable write path
// through a memtable cache, an append-only chunked data log addressed by a
// persistent primary index, a bloom filter guarding lookups, and a
// write-ahead log that makes every commit both durable and reversible.
package dustdata

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const lockFileName = ".dustdata-lock"

// Database is a directory of named collections, exclusively locked to this
// process for as long as it is open.
type Database struct {
	mu          sync.Mutex
	dir         string
	lockFile    *os.File
	collections map[string]io.Closer
}

// OpenDatabase creates (if necessary) and locks the data directory at dir.
// It returns a DatabaseLocked error if another process already holds it.
func OpenDatabase(dir string) (*Database, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dustdata: create database dir: %w", err)
	}

	lf, err := flockPath(filepath.Join(dir, lockFileName))
	if err != nil {
		if IsDatabaseLocked(err) {
			slog.Warn("dustdata: database directory already locked by another process", "dir", dir)
		}
		return nil, err
	}

	return &Database{
		dir:         dir,
		lockFile:    lf,
		collections: map[string]io.Closer{},
	}, nil
}

// OpenCollection opens (or creates) the named collection within db, typed
// by V and serialized through codec. Reopening an already-open name with
// the same V returns the existing handle; reopening it with a different V
// is an error, since a collection's on-disk bytes are only ever meaningful
// under one codec.
func OpenCollection[V any](db *Database, name string, codec Codec[V], opts ...Option) (*Collection[V], error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if existing, ok := db.collections[name]; ok {
		col, ok := existing.(*Collection[V])
		if !ok {
			return nil, fmt.Errorf("dustdata: collection %q is already open with a different value type", name)
		}
		return col, nil
	}

	col, err := Open[V](filepath.Join(db.dir, "collections", name), codec, opts...)
	if err != nil {
		if IsCorruptedData(err) {
			slog.Warn("dustdata: collection index or log failed to load cleanly", "name", name, "err", err)
		}
		return nil, err
	}
	db.collections[name] = col
	return col, nil
}

// Collections lists the names of every collection opened through this
// Database handle so far.
func (db *Database) Collections() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	return names
}

// Close closes every collection opened through this handle and releases
// the database lock.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var firstErr error
	for name, col := range db.collections {
		if err := col.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("dustdata: closing collection %q: %w", name, err)
		}
	}
	db.collections = map[string]io.Closer{}

	if err := unflockFile(db.lockFile); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("dustdata: releasing database lock: %w", err)
	}
	db.lockFile = nil
	return firstErr
}
