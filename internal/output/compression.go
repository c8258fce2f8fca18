package output

import (
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/pgzip"
)

// CompressionType defines the compression algorithm to use
type CompressionType string

const (
	CompressionNone   CompressionType = "none"
	CompressionGzip   CompressionType = "gzip"
	CompressionSnappy CompressionType = "snappy"
)

// Extension returns the file suffix for the compression type
func (c CompressionType) Extension() (string, error) {
	switch c {
	case CompressionNone, "":
		return "", nil
	case CompressionGzip:
		return ".gz", nil
	case CompressionSnappy:
		return ".snappy", nil
	default:
		return "", fmt.Errorf("unsupported compression type: %s", c)
	}
}

// Compressed reports whether the type changes the bytes written
func (c CompressionType) Compressed() bool {
	return c != CompressionNone && c != ""
}

// NewCompressWriter wraps w so that bytes written are compressed. Closing the
// returned writer flushes the compressor but leaves w open.
func NewCompressWriter(w io.Writer, c CompressionType) (io.WriteCloser, error) {
	switch c {
	case CompressionNone, "":
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return pgzip.NewWriter(w), nil
	case CompressionSnappy:
		return snappy.NewBufferedWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", c)
	}
}

// NewDecompressReader is the inverse of NewCompressWriter
func NewDecompressReader(r io.Reader, c CompressionType) (io.ReadCloser, error) {
	switch c {
	case CompressionNone, "":
		return io.NopCloser(r), nil
	case CompressionGzip:
		zr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader creation failed: %w", err)
		}
		return zr, nil
	case CompressionSnappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", c)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
