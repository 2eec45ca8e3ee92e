package repo

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"

	"github.com/alitto/pond/v2"
	"github.com/dsnet/compress/bzip2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func TestCompressor_CompressAll(t *testing.T) {
	pool := pond.NewResultPool[*compressedFile](2, pond.WithoutPanicRecovery())
	c := newCompressor(pool)

	input := []byte("Package: hello\nVersion: 1.0\n")
	results, err := c.CompressAll(context.Background(), input, []compressionFormat{formatGzip, formatBzip2, formatXZ})
	require.NoError(t, err)
	require.Len(t, results, 3)

	byFormat := make(map[compressionFormat][]byte, len(results))
	for _, r := range results {
		byFormat[r.Format] = r.Data
	}

	gzr, err := gzip.NewReader(bytes.NewReader(byFormat[formatGzip]))
	require.NoError(t, err)
	gzData, err := io.ReadAll(gzr)
	require.NoError(t, err)
	assert.Equal(t, input, gzData)

	bz2r, err := bzip2.NewReader(bytes.NewReader(byFormat[formatBzip2]), nil)
	require.NoError(t, err)
	bz2Data, err := io.ReadAll(bz2r)
	require.NoError(t, err)
	assert.Equal(t, input, bz2Data)

	xzr, err := xz.NewReader(bytes.NewReader(byFormat[formatXZ]))
	require.NoError(t, err)
	xzData, err := io.ReadAll(xzr)
	require.NoError(t, err)
	assert.Equal(t, input, xzData)
}

func TestCompressionFormat_Extension(t *testing.T) {
	tests := []struct {
		format compressionFormat
		want   string
	}{
		{formatGzip, ".gz"},
		{formatBzip2, ".bz2"},
		{formatXZ, ".xz"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.format.extension())
	}
}

func TestCompressBytes_UnsupportedFormat(t *testing.T) {
	_, err := compressBytes([]byte("data"), compressionFormat("lz4"))
	assert.Error(t, err)
}
