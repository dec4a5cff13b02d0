package dustdata

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rustbase/dustdata/internal/dderr"
	"github.com/rustbase/dustdata/internal/memtable"
	"github.com/rustbase/dustdata/internal/storage"
	"github.com/rustbase/dustdata/internal/wal"
)

// Collection is a single named, transactional key-value store: a memtable
// cache in front of a chunked data log addressed by a persistent primary
// index, backed by a write-ahead log that makes every commit durable and
// every commit invertible.
type Collection[V any] struct {
	mu sync.RWMutex // guards the memtable and storage (whose bloom filter has no lock of its own); wal guards itself

	codec    Codec[V]
	memtable *memtable.SkipList[string, V]
	storage  *storage.Storage
	wal      *wal.Wal
	ids      txIDGenerator
}

// Open creates or reopens a collection rooted at dir.
func Open[V any](dir string, codec Codec[V], opts ...Option) (*Collection[V], error) {
	cfg := NewConfig(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dustdata: create collection dir: %w", err)
	}

	st, err := storage.Open(storage.Config{
		DataDir:          filepath.Join(dir, "data"),
		IndexPath:        filepath.Join(dir, ".index-dustdata"),
		MaxDataChunkSize: cfg.MaxDataChunkSize,
		MaxDataChunks:    cfg.MaxDataChunks,
		GzipLevel:        cfg.StorageGzipLevel,
		FilterFalsePos:   cfg.FilterFalsePos,
	})
	if err != nil {
		return nil, err
	}

	w, err := wal.Open(wal.Config{
		LogDir:     filepath.Join(dir, "log"),
		IndexPath:  filepath.Join(dir, ".wal-index-dustdata"),
		MaxLogSize: cfg.MaxLogSize,
		GzipLevel:  cfg.WALGzipLevel,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &Collection[V]{
		codec:    codec,
		memtable: memtable.NewSkipListMemtable[string, V](),
		storage:  st,
		wal:      w,
	}, nil
}

// Begin creates a new, empty Transaction against this collection.
func (c *Collection[V]) Begin() *Transaction[V] {
	return &Transaction[V]{id: c.ids.next(), status: StatusActive}
}

// RunInTransaction begins a transaction, lets fn populate it, and commits
// it — aborting instead if fn returns an error. It generalizes the
// reference implementation's start_lazy to Go's error-returning closures.
func (c *Collection[V]) RunInTransaction(fn func(tx *Transaction[V]) error) (*Transaction[V], error) {
	tx := c.Begin()
	if err := fn(tx); err != nil {
		tx.status = StatusAborted
		return tx, err
	}
	if err := c.Commit(tx); err != nil {
		return tx, err
	}
	return tx, nil
}

// Abort discards tx without applying any of its queued operations.
func (c *Collection[V]) Abort(tx *Transaction[V]) error {
	if tx.status != StatusActive {
		return fmt.Errorf("dustdata: cannot abort transaction %d in state %s", tx.id, tx.status)
	}
	tx.status = StatusAborted
	return nil
}

// Commit applies every operation queued on tx, in order, against the
// memtable and storage, then durably appends the resulting invertible
// WalOperations as a single TransactionLog. It acquires the WAL's write
// lock first so a re-entrant commit from the same goroutine fails fast
// with Deadlock rather than applying a partial mutation.
func (c *Collection[V]) Commit(tx *Transaction[V]) error {
	if tx.status != StatusActive {
		return fmt.Errorf("dustdata: cannot commit transaction %d in state %s", tx.id, tx.status)
	}

	release, ok := c.wal.TryAcquire()
	if !ok {
		return dderr.Deadlock()
	}
	defer release()

	c.mu.Lock()
	defer c.mu.Unlock()

	executed := make([]wal.Operation, 0, len(tx.ops))
	for _, op := range tx.ops {
		walOp, err := c.applyLocked(op)
		if err != nil {
			return err
		}
		executed = append(executed, walOp)
	}

	if err := c.wal.WriteLocked(wal.TransactionLog{ID: tx.id, Ops: executed}); err != nil {
		return err
	}
	tx.status = StatusCommitted
	return nil
}

func (c *Collection[V]) applyLocked(op Operation[V]) (wal.Operation, error) {
	switch op.Kind {
	case OpInsert:
		raw, err := c.codec.Marshal(op.Value)
		if err != nil {
			return wal.Operation{}, fmt.Errorf("dustdata: marshal %q: %w", op.Key, err)
		}
		if err := c.storage.Insert(op.Key, raw); err != nil {
			return wal.Operation{}, err
		}
		c.memtable.Put(op.Key, op.Value)
		return wal.Operation{Kind: wal.OpInsert, Key: op.Key, Value: raw}, nil

	case OpUpdate:
		oldRaw, err := c.storage.Get(op.Key)
		if err != nil {
			return wal.Operation{}, err
		}
		raw, err := c.codec.Marshal(op.Value)
		if err != nil {
			return wal.Operation{}, fmt.Errorf("dustdata: marshal %q: %w", op.Key, err)
		}
		if err := c.storage.Update(op.Key, raw); err != nil {
			return wal.Operation{}, err
		}
		c.memtable.Put(op.Key, op.Value)
		return wal.Operation{Kind: wal.OpUpdate, Key: op.Key, Value: raw, OldValue: oldRaw}, nil

	case OpDelete:
		oldRaw, err := c.storage.Get(op.Key)
		if err != nil {
			return wal.Operation{}, err
		}
		if err := c.storage.Remove(op.Key); err != nil {
			return wal.Operation{}, err
		}
		c.memtable.Delete(op.Key)
		return wal.Operation{Kind: wal.OpDelete, Key: op.Key, Value: oldRaw}, nil

	case OpDrop:
		if err := c.storage.Clear(); err != nil {
			return wal.Operation{}, err
		}
		c.memtable = memtable.NewSkipListMemtable[string, V]()
		return wal.Operation{Kind: wal.OpDrop}, nil

	default:
		return wal.Operation{}, fmt.Errorf("dustdata: unknown operation kind %d", op.Kind)
	}
}

// Rollback undoes an already-committed transaction by replaying its
// inverse operations as a brand-new transaction (which gets its own,
// later, id) and marking the original RolledBack. tx must have been
// returned by this Collection's Commit.
func (c *Collection[V]) Rollback(tx *Transaction[V]) (*Transaction[V], error) {
	if tx.status != StatusCommitted {
		return nil, fmt.Errorf("dustdata: cannot roll back transaction %d in state %s", tx.id, tx.status)
	}

	logged, err := c.wal.Read(tx.id)
	if err != nil {
		return nil, err
	}

	inverse := c.Begin()
	for _, op := range logged.InverseOps() {
		if err := c.queueInverse(inverse, op); err != nil {
			return nil, err
		}
	}

	if err := c.Commit(inverse); err != nil {
		return nil, err
	}
	tx.status = StatusRolledBack
	return inverse, nil
}

func (c *Collection[V]) queueInverse(tx *Transaction[V], op wal.Operation) error {
	switch op.Kind {
	case wal.OpInsert:
		v, err := c.codec.Unmarshal(op.Value)
		if err != nil {
			return fmt.Errorf("dustdata: unmarshal %q: %w", op.Key, err)
		}
		tx.Insert(op.Key, v)
	case wal.OpUpdate:
		v, err := c.codec.Unmarshal(op.Value)
		if err != nil {
			return fmt.Errorf("dustdata: unmarshal %q: %w", op.Key, err)
		}
		tx.Update(op.Key, v)
	case wal.OpDelete:
		tx.Delete(op.Key)
	case wal.OpDrop:
		tx.Drop()
	}
	return nil
}

// Contains reports whether key currently has a value.
func (c *Collection[V]) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.memtable.Get(key); ok {
		return true
	}
	return c.storage.Contains(key)
}

// Get returns key's current value, consulting the memtable cache before
// falling back to the primary index and data log. The skip list
// (internal/memtable/skip_list.go) has no synchronization of its own, so a
// read-through cache fill re-takes the write lock before mutating it —
// two concurrent misses for the same key must not both write the node.
func (c *Collection[V]) Get(key string) (V, error) {
	c.mu.RLock()
	if v, ok := c.memtable.Get(key); ok {
		c.mu.RUnlock()
		return v, nil
	}
	raw, err := c.storage.Get(key)
	c.mu.RUnlock()
	if err != nil {
		var zero V
		return zero, err
	}

	v, err := c.codec.Unmarshal(raw)
	if err != nil {
		var zero V
		return zero, fmt.Errorf("dustdata: unmarshal %q: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.memtable.Get(key); ok {
		return cached, nil
	}
	c.memtable.Put(key, v)
	return v, nil
}

// Len reports the number of live (indexed) keys.
func (c *Collection[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.storage.Len()
}

// DumpMemtable returns every record currently cached in the memtable, in
// key order, for diagnostics. It does not touch the primary index or data
// log, so it reflects only what has been read or written since open.
func (c *Collection[V]) DumpMemtable() []memtable.Record[string, V] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []memtable.Record[string, V]
	for rec := range c.memtable.Iterator() {
		out = append(out, rec)
	}
	return out
}

// DataChunks lists the collection's data chunk file names, for diagnostics.
func (c *Collection[V]) DataChunks() ([]string, error) {
	return c.storage.Chunks()
}

// WALChunks lists the collection's WAL chunk file names, for diagnostics.
func (c *Collection[V]) WALChunks() ([]string, error) {
	return c.wal.Chunks()
}

// WALHead returns the most recently committed transaction id, if any.
func (c *Collection[V]) WALHead() (uint64, bool) {
	return c.wal.Head()
}

// WALDiff returns every transaction committed with an id in [from, to], as
// the durable operations each one executed.
func (c *Collection[V]) WALDiff(from, to uint64) ([]WalEntry, error) {
	logs, err := c.wal.Diff(from, to)
	if err != nil {
		return nil, err
	}
	entries := make([]WalEntry, len(logs))
	for i, l := range logs {
		entries[i] = toWalEntry(l)
	}
	return entries, nil
}

// Close releases the collection's open file handles.
func (c *Collection[V]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	walErr := c.wal.Close()
	stErr := c.storage.Close()
	if walErr != nil {
		return walErr
	}
	return stErr
}
