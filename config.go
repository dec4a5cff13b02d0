package dustdata

import (
	"compress/gzip"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/rustbase/dustdata/internal/dderr"
)

const (
	defaultMaxDataChunkSize = 10 * 1024 * 1024
	defaultMaxDataChunks    = 1000
	defaultMaxLogSize       = 10 * 1024 * 1024
	defaultFilterFalsePos   = 0.01
)

// Config controls how a Collection lays out and durability-tunes its
// on-disk state. Build one with NewConfig and the With* options below,
// generalizing the teacher's own DiskSegmentManagerOption pattern up to the
// whole collection.
type Config struct {
	MaxDataChunkSize int64   `validate:"gt=0"`
	MaxDataChunks    uint32  `validate:"gt=0"`
	MaxLogSize       int64   `validate:"gt=0"`
	StorageGzipLevel int     `validate:"gzip_level"`
	WALGzipLevel     int     `validate:"gzip_level"`
	FilterFalsePos   float64 `validate:"gt=0,lt=1"`
}

// Option mutates a Config at construction time.
type Option func(*Config)

// WithMaxDataChunkSize caps how large a single data chunk file may grow.
func WithMaxDataChunkSize(n int64) Option {
	return func(c *Config) { c.MaxDataChunkSize = n }
}

// WithMaxDataChunks caps how many chunk ids a data page may hold before the
// page axis rolls over.
func WithMaxDataChunks(n uint32) Option {
	return func(c *Config) { c.MaxDataChunks = n }
}

// WithMaxLogSize caps how large a single WAL chunk file may grow.
func WithMaxLogSize(n int64) Option {
	return func(c *Config) { c.MaxLogSize = n }
}

// WithStorageCompression enables gzip compression of the primary index at
// the given level (compress/gzip.NoCompression disables it).
func WithStorageCompression(level int) Option {
	return func(c *Config) { c.StorageGzipLevel = level }
}

// WithWALCompression enables gzip compression of the WAL index at the given
// level (compress/gzip.NoCompression disables it).
func WithWALCompression(level int) Option {
	return func(c *Config) { c.WALGzipLevel = level }
}

// WithFilterFalsePositiveRate sets the bloom filter's target false-positive
// rate.
func WithFilterFalsePositiveRate(p float64) Option {
	return func(c *Config) { c.FilterFalsePos = p }
}

// NewConfig builds a Config from its defaults plus any options.
func NewConfig(opts ...Option) Config {
	c := Config{
		MaxDataChunkSize: defaultMaxDataChunkSize,
		MaxDataChunks:    defaultMaxDataChunks,
		MaxLogSize:       defaultMaxLogSize,
		StorageGzipLevel: gzip.NoCompression,
		WALGzipLevel:     gzip.NoCompression,
		FilterFalsePos:   defaultFilterFalsePos,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("gzip_level", func(fl validator.FieldLevel) bool {
		lvl := int(fl.Field().Int())
		return lvl == gzip.NoCompression || (lvl >= gzip.BestSpeed && lvl <= gzip.BestCompression)
	})
	return v
}

// Validate checks that every field is within range, surfacing any
// violations as a KindOther error.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return dderr.New(dderr.KindOther, "", fmt.Errorf("invalid config: %w", err))
	}
	return nil
}
