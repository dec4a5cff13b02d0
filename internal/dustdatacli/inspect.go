// Package dustdatacli implements the read-only inspection logic behind the
// dustdata-inspect command, kept separate from main so it can be unit
// tested without exec'ing a binary.
package dustdatacli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rustbase/dustdata"
)

// Report is a snapshot of a collection's on-disk state.
type Report struct {
	Dir        string
	Keys       int
	WALHead    uint64
	WALHeadOK  bool
	DataChunks []string
	WALChunks  []string
}

// Inspect opens the collection at dir and reports its index size, WAL head,
// and chunk file listing. Opening reuses the ordinary write path (there is
// no separate read-only mode), so it creates missing directories and an
// empty first chunk file, and rewrites the primary and WAL index snapshots.
// Inspection itself never queues a transaction, so no key or WAL record
// changes.
func Inspect(dir string) (Report, error) {
	col, err := dustdata.Open[[]byte](dir, dustdata.BytesCodec{})
	if err != nil {
		if dustdata.IsCorruptedData(err) {
			slog.Warn("dustdata-inspect: collection index or log failed to load cleanly", "dir", dir, "err", err)
		}
		return Report{}, fmt.Errorf("open collection %q: %w", dir, err)
	}
	defer col.Close()

	dataChunks, err := col.DataChunks()
	if err != nil {
		return Report{}, fmt.Errorf("list data chunks: %w", err)
	}
	walChunks, err := col.WALChunks()
	if err != nil {
		return Report{}, fmt.Errorf("list wal chunks: %w", err)
	}
	head, ok := col.WALHead()

	return Report{
		Dir:        dir,
		Keys:       col.Len(),
		WALHead:    head,
		WALHeadOK:  ok,
		DataChunks: dataChunks,
		WALChunks:  walChunks,
	}, nil
}

// PrintReport writes a human-readable rendering of r to out.
func PrintReport(out io.Writer, r Report) {
	fmt.Fprintf(out, "collection: %s\n", r.Dir)
	fmt.Fprintf(out, "indexed keys: %d\n", r.Keys)
	if r.WALHeadOK {
		fmt.Fprintf(out, "wal head: %d\n", r.WALHead)
	} else {
		fmt.Fprintln(out, "wal head: (empty)")
	}

	fmt.Fprintf(out, "data chunks (%d):\n", len(r.DataChunks))
	for _, name := range r.DataChunks {
		fmt.Fprintf(out, "  %s\n", name)
	}

	fmt.Fprintf(out, "wal chunks (%d):\n", len(r.WALChunks))
	for _, name := range r.WALChunks {
		fmt.Fprintf(out, "  %s\n", name)
	}
}
