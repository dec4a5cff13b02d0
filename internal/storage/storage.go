// Package storage implements the durable half of a collection: the
// append-only chunked data log, the persistent primary index that maps a
// key to its location in that log, and the bloom filter guarding lookups.
// It is grounded on rustbase/dustdata's collection/storage.rs: insert,
// update, and remove all append (never rewrite) data bytes, so a value's
// old bytes become orphaned rather than reclaimed — compaction is left to a
// future LSM layer.
package storage

import (
	"fmt"

	"github.com/rustbase/dustdata/internal/bloomfilter"
	"github.com/rustbase/dustdata/internal/dderr"
	"github.com/rustbase/dustdata/internal/rolling"
)

// Config configures a Storage instance. Callers (the root dustdata package)
// translate the public Config into this one.
type Config struct {
	DataDir          string
	IndexPath        string
	MaxDataChunkSize int64
	MaxDataChunks    uint32
	GzipLevel        int // compress/gzip.NoCompression disables compression
	FilterFalsePos   float64
}

// Storage owns the data chunks, the primary index, and the membership
// filter for a single collection.
type Storage struct {
	chunks *rolling.Writer
	index  *Index
	filter *bloomfilter.Filter
}

// Open loads (or initializes) a collection's storage directory.
func Open(cfg Config) (*Storage, error) {
	chunks, err := rolling.NewWriter(cfg.DataDir, "Data", ".db",
		rolling.WithMaxFileSize(cfg.MaxDataChunkSize),
		rolling.WithMaxChunksPerPage(cfg.MaxDataChunks),
	)
	if err != nil {
		return nil, dderr.IO(err)
	}

	index, err := OpenIndex(cfg.IndexPath, cfg.GzipLevel)
	if err != nil {
		return nil, err
	}

	keys := index.Keys()
	filter := bloomfilter.New(uint64(len(keys)+1)*8, cfg.FilterFalsePos)
	for _, k := range keys {
		filter.Insert(k)
	}

	return &Storage{chunks: chunks, index: index, filter: filter}, nil
}

// Insert durably appends value under key. It fails with AlreadyExists if
// key is already indexed.
func (s *Storage) Insert(key string, value []byte) error {
	if _, ok := s.index.Get(key); ok {
		return dderr.AlreadyExists(key)
	}
	return s.writeAndIndex(key, value)
}

// Update durably appends a new value for an already-indexed key, orphaning
// the bytes the previous location pointed at. It fails with NotFound if key
// is not indexed.
func (s *Storage) Update(key string, value []byte) error {
	if _, ok := s.index.Get(key); !ok {
		return dderr.NotFound(key)
	}
	return s.writeAndIndex(key, value)
}

func (s *Storage) writeAndIndex(key string, value []byte) error {
	chunk, offset, err := s.chunks.Append(value)
	if err != nil {
		return dderr.IO(err)
	}
	s.index.Set(key, Location{Chunk: chunk, Offset: offset})
	s.filter.Insert(key)
	return s.index.Persist()
}

// Remove deletes key from the index and filter. The value's bytes in the
// data log are left in place (orphaned); Storage never rewrites or
// compacts its chunk files.
func (s *Storage) Remove(key string) error {
	if _, ok := s.index.Get(key); !ok {
		return dderr.NotFound(key)
	}
	s.index.Delete(key)
	s.filter.Remove(key)
	return s.index.Persist()
}

// Get returns key's current value bytes.
func (s *Storage) Get(key string) ([]byte, error) {
	if !s.filter.Contains(key) {
		// Remove may have cleared bits this key shares with a deleted one,
		// so a negative filter answer is re-checked against the index.
		if _, ok := s.index.Get(key); !ok {
			return nil, dderr.NotFound(key)
		}
	}
	loc, ok := s.index.Get(key)
	if !ok {
		// Filter false positive: the index is authoritative.
		return nil, dderr.NotFound(key)
	}
	value, err := s.chunks.ReadAt(loc.Chunk, loc.Offset)
	if err != nil {
		return nil, dderr.IO(fmt.Errorf("read %q at %+v: %w", key, loc, err))
	}
	return value, nil
}

// Contains reports whether key is indexed. The primary index decides both
// ways: the filter can give false positives and, after Remove, false
// negatives.
func (s *Storage) Contains(key string) bool {
	_, ok := s.index.Get(key)
	return ok
}

// Clear empties the index and filter, as on Drop. Existing data chunk
// files are left on disk, orphaned in full.
func (s *Storage) Clear() error {
	s.index.Clear()
	s.filter.Clear()
	return s.index.Persist()
}

// Len reports the number of live (indexed) keys.
func (s *Storage) Len() int {
	return s.index.Len()
}

// Chunks lists the data chunk file names on disk, sorted ascending, for
// read-only diagnostics.
func (s *Storage) Chunks() ([]string, error) {
	refs, err := s.chunks.Chunks()
	if err != nil {
		return nil, dderr.IO(err)
	}
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = s.chunks.Name(ref)
	}
	return names, nil
}

// Close releases the active data chunk file handle.
func (s *Storage) Close() error {
	return s.chunks.Close()
}
