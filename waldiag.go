package dustdata

import "github.com/rustbase/dustdata/internal/wal"

// WalOpKind mirrors the durable, invertible operation kinds recorded in the
// write-ahead log, exposed read-only for diagnostics (see WALDiff).
type WalOpKind int

const (
	WalInsert WalOpKind = iota
	WalUpdate
	WalDelete
	WalDrop
)

// WalOperationRecord is one durable operation within a committed
// transaction's log.
type WalOperationRecord struct {
	Kind     WalOpKind
	Key      string
	Value    []byte
	OldValue []byte
}

// WalEntry is a committed transaction as recorded in the write-ahead log.
type WalEntry struct {
	ID  uint64
	Ops []WalOperationRecord
}

func toWalEntry(t wal.TransactionLog) WalEntry {
	ops := make([]WalOperationRecord, len(t.Ops))
	for i, op := range t.Ops {
		ops[i] = WalOperationRecord{
			Kind:     WalOpKind(op.Kind),
			Key:      op.Key,
			Value:    op.Value,
			OldValue: op.OldValue,
		}
	}
	return WalEntry{ID: t.ID, Ops: ops}
}
