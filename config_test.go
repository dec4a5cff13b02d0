package dustdata

import (
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaultsValidate(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())
}

func TestConfigOptionsOverrideDefaults(t *testing.T) {
	cfg := NewConfig(
		WithMaxDataChunkSize(1024),
		WithMaxDataChunks(5),
		WithMaxLogSize(2048),
		WithStorageCompression(gzip.BestSpeed),
		WithWALCompression(gzip.BestCompression),
		WithFilterFalsePositiveRate(0.001),
	)
	require.NoError(t, cfg.Validate())
	require.Equal(t, int64(1024), cfg.MaxDataChunkSize)
	require.Equal(t, uint32(5), cfg.MaxDataChunks)
	require.Equal(t, int64(2048), cfg.MaxLogSize)
	require.Equal(t, gzip.BestSpeed, cfg.StorageGzipLevel)
	require.Equal(t, gzip.BestCompression, cfg.WALGzipLevel)
	require.Equal(t, 0.001, cfg.FilterFalsePos)
}

func TestConfigValidateRejectsZeroChunkSize(t *testing.T) {
	cfg := NewConfig(WithMaxDataChunkSize(0))
	require.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsOutOfRangeFalsePositiveRate(t *testing.T) {
	cfg := NewConfig(WithFilterFalsePositiveRate(1.5))
	require.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsInvalidGzipLevel(t *testing.T) {
	cfg := NewConfig(WithStorageCompression(42))
	require.Error(t, cfg.Validate())
}
