package repo

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"

	"github.com/alitto/pond/v2"
	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"
)

// compressionFormat identifies one of the Packages index's published
// compressed encodings.
type compressionFormat string

const (
	formatGzip  compressionFormat = "gz"
	formatBzip2 compressionFormat = "bz2"
	formatXZ    compressionFormat = "xz"
)

func (f compressionFormat) extension() string {
	return "." + string(f)
}

// compressedFile pairs a compression format with its resulting bytes.
type compressedFile struct {
	Format compressionFormat
	Data   []byte
}

// compressor produces the Packages.gz/.bz2/.xz siblings of a Packages index
// in parallel, on a bounded worker pool.
type compressor struct {
	pool pond.ResultPool[*compressedFile]
}

func newCompressor(pool pond.ResultPool[*compressedFile]) *compressor {
	return &compressor{pool: pool}
}

// CompressAll compresses data into every format this repository publishes,
// returning one compressedFile per format in the same order as formats.
func (c *compressor) CompressAll(ctx context.Context, data []byte, formats []compressionFormat) ([]*compressedFile, error) {
	group := c.pool.NewGroupContext(ctx)

	for _, format := range formats {
		group.SubmitErr(func() (*compressedFile, error) {
			return compressBytes(data, format)
		})
	}

	return group.Wait()
}

func compressBytes(data []byte, format compressionFormat) (*compressedFile, error) {
	var buf bytes.Buffer

	w, err := newCompressWriter(format, &buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return &compressedFile{Format: format, Data: buf.Bytes()}, nil
}

func newCompressWriter(format compressionFormat, w io.Writer) (io.WriteCloser, error) {
	switch format {
	case formatGzip:
		return gzip.NewWriter(w), nil
	case formatBzip2:
		return bzip2.NewWriter(w, nil)
	case formatXZ:
		return xz.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported compression format: %s", format)
	}
}
