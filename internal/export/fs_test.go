package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
)

func TestFSSinkExportAndVerify(t *testing.T) {
	sink, err := NewFSSink(t.TempDir())
	require.NoError(t, err)

	payload := []byte("scan export payload")
	key := ExportKey(model.ResourceScan, "s1")

	checksum, err := sink.Export(context.Background(), key, payload)
	require.NoError(t, err)
	assert.Equal(t, Checksum(payload), checksum)

	require.NoError(t, sink.Verify(context.Background(), key, checksum))
}

func TestFSSinkOverwriteSameKey(t *testing.T) {
	root := t.TempDir()
	sink, err := NewFSSink(root)
	require.NoError(t, err)

	key := ExportKey(model.ResourceReport, "r1")
	_, err = sink.Export(context.Background(), key, []byte("first"))
	require.NoError(t, err)
	checksum, err := sink.Export(context.Background(), key, []byte("second"))
	require.NoError(t, err)

	require.NoError(t, sink.Verify(context.Background(), key, checksum))

	data, err := os.ReadFile(filepath.Join(root, "exports", "report", "r1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

func TestFSSinkVerifyMissingObject(t *testing.T) {
	sink, err := NewFSSink(t.TempDir())
	require.NoError(t, err)

	err = sink.Verify(context.Background(), ExportKey(model.ResourceScan, "absent"), "whatever")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestFSSinkVerifyChecksumMismatch(t *testing.T) {
	sink, err := NewFSSink(t.TempDir())
	require.NoError(t, err)

	key := ExportKey(model.ResourceScan, "s1")
	_, err = sink.Export(context.Background(), key, []byte("payload"))
	require.NoError(t, err)

	err = sink.Verify(context.Background(), key, Checksum([]byte("different")))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestFSSinkEmptyRoot(t *testing.T) {
	_, err := NewFSSink("   ")
	assert.Error(t, err)
}

func TestKeysAreDeterministic(t *testing.T) {
	assert.Equal(t, "exports/scan/abc", ExportKey(model.ResourceScan, "abc"))
	assert.Equal(t, ExportKey(model.ResourceScan, "abc"), ExportKey(model.ResourceScan, "abc"))
	assert.Equal(t, "archives/rule-1/abc", ArchiveKey("rule-1", "abc"))
}
