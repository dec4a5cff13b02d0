// Package rolling manages a directory of rolling, append-only chunk files
// shared by the data log and the write-ahead log: new chunks are created as
// earlier ones fill up, each chunk holds a sequence of length-prefixed
// records, and every append is fsynced before it returns.
//
// The layout generalizes the teacher's single-axis segment id into an
// optional two-axis page/id scheme: the data log rolls id within a page and
// pages once id wraps at a configured maximum, while the WAL only ever rolls
// id.
package rolling

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
)

const defaultMaxFileSize = 10 * 1024 * 1024

// Ref identifies a single chunk file by its page/id coordinates. WAL chunks
// never page, so their Ref always carries Page == 0.
type Ref struct {
	Page uint32
	ID   uint32
}

// Writer is a rolling, fsync-on-append chunk file manager.
type Writer struct {
	mu sync.Mutex

	dir         string
	prefix      string
	ext         string
	maxFileSize int64
	maxChunkID  uint32 // 0 means unbounded (no paging)
	namePattern *regexp.Regexp

	active   *os.File
	ref      Ref
	pendingN int64
}

// Option configures a Writer at construction time.
type Option func(*Writer)

// WithMaxFileSize caps how large a single chunk file may grow before a new
// one is rolled.
func WithMaxFileSize(n int64) Option {
	return func(w *Writer) { w.maxFileSize = n }
}

// WithMaxChunksPerPage bounds how many chunk ids a page may hold before the
// page axis itself rolls over. Pass 0 (the default) to disable paging,
// which is what the WAL uses.
func WithMaxChunksPerPage(n uint32) Option {
	return func(w *Writer) { w.maxChunkID = n }
}

// NewWriter opens (or creates) a rolling chunk directory. prefix/ext name the
// files, e.g. prefix="Data", ext=".db" with WithMaxChunksPerPage yields
// "Data_0000000000_0000000001.db" chunks, while prefix="DustDataLog", ext=""
// without it yields flat "DustDataLog_0000000001" chunks (paging disabled).
func NewWriter(dir, prefix, ext string, opts ...Option) (*Writer, error) {
	w := &Writer{
		dir:         dir,
		prefix:      prefix,
		ext:         ext,
		maxFileSize: defaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.namePattern = w.buildPattern()

	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("rolling: read dir %s: %w", dir, err)
	}

	best, found := Ref{}, false
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ref, ok := w.parse(e.Name())
		if !ok {
			continue
		}
		if !found || greater(ref, best) {
			best, found = ref, true
		}
	}

	if !found {
		return w, w.openNew(Ref{})
	}

	f, err := os.OpenFile(w.path(best), os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rolling: open active chunk: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	w.active = f
	w.ref = best
	w.pendingN = stat.Size()
	return w, nil
}

func ensureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if !fi.IsDir() {
			return fmt.Errorf("rolling: %s exists and is not a directory", dir)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func greater(a, b Ref) bool {
	if a.Page != b.Page {
		return a.Page > b.Page
	}
	return a.ID > b.ID
}

func (w *Writer) buildPattern() *regexp.Regexp {
	ext := regexp.QuoteMeta(w.ext)
	if w.maxChunkID > 0 {
		return regexp.MustCompile("^" + regexp.QuoteMeta(w.prefix) + `_(\d+)_(\d+)` + ext + "$")
	}
	return regexp.MustCompile("^" + regexp.QuoteMeta(w.prefix) + `_(\d+)` + ext + "$")
}

func (w *Writer) parse(name string) (Ref, bool) {
	m := w.namePattern.FindStringSubmatch(name)
	if m == nil {
		return Ref{}, false
	}
	if w.maxChunkID > 0 {
		page, err1 := strconv.ParseUint(m[1], 10, 32)
		id, err2 := strconv.ParseUint(m[2], 10, 32)
		if err1 != nil || err2 != nil {
			return Ref{}, false
		}
		return Ref{Page: uint32(page), ID: uint32(id)}, true
	}
	id, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return Ref{}, false
	}
	return Ref{ID: uint32(id)}, true
}

// Name returns the chunk filename for ref, without directory.
func (w *Writer) Name(ref Ref) string {
	if w.maxChunkID > 0 {
		return fmt.Sprintf("%s_%010d_%010d%s", w.prefix, ref.Page, ref.ID, w.ext)
	}
	return fmt.Sprintf("%s_%010d%s", w.prefix, ref.ID, w.ext)
}

func (w *Writer) path(ref Ref) string {
	return filepath.Join(w.dir, w.Name(ref))
}

func (w *Writer) openNew(ref Ref) error {
	f, err := os.Create(w.path(ref))
	if err != nil {
		return fmt.Errorf("rolling: create chunk %s: %w", w.Name(ref), err)
	}
	if w.active != nil {
		if err := w.active.Close(); err != nil {
			f.Close()
			return fmt.Errorf("rolling: close previous chunk: %w", err)
		}
	}
	w.active = f
	w.ref = ref
	w.pendingN = 0
	return nil
}

// next computes the (page,id) that follows the current active chunk,
// applying the data log's page-wrap rule when paging is enabled.
func (w *Writer) next() Ref {
	if w.maxChunkID == 0 {
		return Ref{ID: w.ref.ID + 1}
	}
	if w.ref.ID+1 >= w.maxChunkID {
		return Ref{Page: w.ref.Page + 1, ID: 0}
	}
	return Ref{Page: w.ref.Page, ID: w.ref.ID + 1}
}

// Append writes a length-prefixed record to the active chunk, rolling to a
// new chunk first if the record would not fit, and fsyncs before returning.
// It reports the chunk the record landed in and the byte offset at which
// the record (its length prefix) begins.
func (w *Writer) Append(payload []byte) (Ref, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	need := int64(8 + len(payload))
	if need > w.maxFileSize {
		return Ref{}, 0, fmt.Errorf("rolling: record of %d bytes exceeds max chunk size %d", len(payload), w.maxFileSize)
	}

	if w.pendingN+need > w.maxFileSize {
		if err := w.openNew(w.next()); err != nil {
			return Ref{}, 0, err
		}
	}

	offset := uint64(w.pendingN)
	if err := writeRecord(w.active, payload); err != nil {
		return Ref{}, 0, err
	}
	if err := w.active.Sync(); err != nil {
		return Ref{}, 0, fmt.Errorf("rolling: fsync chunk %s: %w", w.Name(w.ref), err)
	}
	w.pendingN += need
	return w.ref, offset, nil
}

// ReadAt reads the record beginning at offset within the given chunk. The
// chunk need not be the active one.
func (w *Writer) ReadAt(ref Ref, offset uint64) ([]byte, error) {
	w.mu.Lock()
	path := w.path(ref)
	w.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rolling: open chunk %s: %w", w.Name(ref), err)
	}
	defer f.Close()

	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("rolling: seek chunk %s: %w", w.Name(ref), err)
	}
	return readRecord(f)
}

// Chunks lists every known chunk ref, sorted ascending.
func (w *Writer) Chunks() ([]Ref, error) {
	w.mu.Lock()
	dir := w.dir
	w.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var refs []Ref
	for _, e := range entries {
		if ref, ok := w.parse(e.Name()); ok {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return less(refs[i], refs[j]) })
	return refs, nil
}

func less(a, b Ref) bool {
	if a.Page != b.Page {
		return a.Page < b.Page
	}
	return a.ID < b.ID
}

// Each streams every record in chunk ref, in file order, calling fn with the
// offset the record started at and its payload. Iteration stops early if fn
// returns false.
func (w *Writer) Each(ref Ref, fn func(offset uint64, payload []byte) bool) error {
	w.mu.Lock()
	path := w.path(ref)
	w.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("rolling: open chunk %s: %w", w.Name(ref), err)
	}
	defer f.Close()

	var offset uint64
	for {
		payload, err := readRecord(f)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		recLen := uint64(8 + len(payload))
		if !fn(offset, payload) {
			return nil
		}
		offset += recLen
	}
}

// Active returns the ref of the currently active chunk.
func (w *Writer) Active() Ref {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ref
}

// Close closes the active chunk file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == nil {
		return nil
	}
	return w.active.Close()
}

// writeRecord writes the shared "len_le_u64 || payload" binary record
// format used by both data chunks and WAL log chunks.
func writeRecord(w io.Writer, payload []byte) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("rolling: write record header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("rolling: write record payload: %w", err)
	}
	return nil
}

func readRecord(r io.Reader) ([]byte, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	n := binary.LittleEndian.Uint64(hdr[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
