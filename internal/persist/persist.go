// Package persist provides the on-disk snapshot format shared by the
// primary index and the WAL index: a gob-encoded value, optionally
// gzip-compressed, rewritten atomically via a temp-file-then-rename so a
// crash mid-write never leaves a half-written index behind.
//
// Compression is auto-detected on load from the gzip magic header, so a
// file written with compression enabled can be read back correctly even if
// the configured level later changes (or vice versa) — mirroring the
// reference implementation's own "sniff the header" load behavior.
package persist

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"

	"github.com/rustbase/dustdata/internal/dderr"
)

var gzipMagic = [2]byte{0x1f, 0x8b}

// Load reads a gob-encoded value from path into dst, transparently
// decompressing it first if the file begins with a gzip header. A missing
// file is not an error: dst is left untouched so callers can treat "never
// persisted" the same as "persisted empty".
func Load(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return dderr.IO(fmt.Errorf("read %s: %w", path, err))
	}

	r, err := maybeGunzip(raw)
	if err != nil {
		return dderr.Corrupted(fmt.Sprintf("%s: %v", path, err))
	}

	if err := gob.NewDecoder(r).Decode(dst); err != nil && err != io.EOF {
		return dderr.Corrupted(fmt.Sprintf("%s: %v", path, err))
	}
	return nil
}

func maybeGunzip(raw []byte) (io.Reader, error) {
	if len(raw) >= 2 && raw[0] == gzipMagic[0] && raw[1] == gzipMagic[1] {
		return gzip.NewReader(bytes.NewReader(raw))
	}
	return bytes.NewReader(raw), nil
}

// Save gob-encodes src, optionally gzipping at the given level
// (compress/gzip.NoCompression disables it), and atomically rewrites path.
func Save(path string, src any, gzipLevel int) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(src); err != nil {
		return dderr.IO(fmt.Errorf("encode %s: %w", path, err))
	}

	final := buf
	if gzipLevel != gzip.NoCompression {
		final = bytes.Buffer{}
		zw, err := gzip.NewWriterLevel(&final, gzipLevel)
		if err != nil {
			return dderr.IO(fmt.Errorf("gzip %s: %w", path, err))
		}
		if _, err := zw.Write(buf.Bytes()); err != nil {
			return dderr.IO(fmt.Errorf("gzip %s: %w", path, err))
		}
		if err := zw.Close(); err != nil {
			return dderr.IO(fmt.Errorf("gzip %s: %w", path, err))
		}
	}

	if err := atomic.WriteFile(path, bytes.NewReader(final.Bytes())); err != nil {
		return dderr.IO(fmt.Errorf("write %s: %w", path, err))
	}
	return nil
}
