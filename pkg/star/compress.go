package star

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compressed reports whether path names a compressed table.
func Compressed(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".gz":
		return true
	}
	return false
}

// zstdReadCloser adapts *zstd.Decoder, whose Close returns nothing.
type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// fileReader closes the decompressor and then the file.
type fileReader struct {
	io.ReadCloser
	f *os.File
}

func (r fileReader) Close() error {
	err := r.ReadCloser.Close()
	if ferr := r.f.Close(); err == nil {
		err = ferr
	}
	return err
}

func openReader(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	var rc io.ReadCloser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst":
		d, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open zstd stream %s: %w", path, err)
		}
		rc = zstdReadCloser{d}
	case ".gz":
		g, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		rc = g
	default:
		return f, nil
	}
	return fileReader{ReadCloser: rc, f: f}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// compressWriter wraps w with the compressor matching the extension of path.
// Closing the result flushes the compressor but leaves w open.
func compressWriter(w io.Writer, path string) (io.WriteCloser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst":
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd stream for %s: %w", path, err)
		}
		return enc, nil
	case ".gz":
		return gzip.NewWriter(w), nil
	}
	return nopWriteCloser{w}, nil
}
