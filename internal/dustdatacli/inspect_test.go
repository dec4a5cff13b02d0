package dustdatacli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rustbase/dustdata"
	"github.com/rustbase/dustdata/internal/testutil"
)

func TestInspectReportsIndexAndWALState(t *testing.T) {
	dir := testutil.TempDir(t, "coll")

	col, err := dustdata.Open[[]byte](dir, dustdata.BytesCodec{})
	require.NoError(t, err)

	tx := col.Begin()
	tx.Insert("a", []byte("1")).Insert("b", []byte("2"))
	require.NoError(t, col.Commit(tx))
	require.NoError(t, col.Close())

	report, err := Inspect(dir)
	require.NoError(t, err)
	require.Equal(t, 2, report.Keys)
	require.True(t, report.WALHeadOK)
	require.Equal(t, tx.ID(), report.WALHead)
	require.NotEmpty(t, report.DataChunks)
	require.NotEmpty(t, report.WALChunks)
}

func TestInspectMissingDirCreatesEmptyCollection(t *testing.T) {
	dir := testutil.TempDir(t, "new-coll")

	report, err := Inspect(dir)
	require.NoError(t, err)
	require.Equal(t, 0, report.Keys)
	require.False(t, report.WALHeadOK)
}

func TestPrintReportFormatsChunkListing(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, Report{
		Dir:        "/tmp/coll",
		Keys:       3,
		WALHead:    7,
		WALHeadOK:  true,
		DataChunks: []string{"Data_0000000000_0000000000.db"},
		WALChunks:  []string{"DustDataLog_0000000000"},
	})

	out := buf.String()
	require.Contains(t, out, "indexed keys: 3")
	require.Contains(t, out, "wal head: 7")
	require.Contains(t, out, "Data_0000000000_0000000000.db")
	require.Contains(t, out, "DustDataLog_0000000000")
}
