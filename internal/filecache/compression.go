package filecache

import (
	"archive/zip"
	"fmt"
	"io"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// Compressor names a registered compression codec, matching the plugin
// registry redesign in the spec's design notes (§9): "none", "gzip", "zip".
type Compressor interface {
	Name() string
	Extension() string // "", ".gz", ".zip"
	// Wrap returns a WriteCloser that compresses onto w. entryName is used
	// only by archive formats (zip) that need a member name.
	Wrap(w io.Writer, entryName string) (io.WriteCloser, error)
}

var compressors = map[string]Compressor{}

func init() {
	registerCompressor(noneCompressor{})
	registerCompressor(gzipCompressor{})
	registerCompressor(zipCompressor{})
}

func registerCompressor(c Compressor) { compressors[c.Name()] = c }

// LookupCompressor returns the registered Compressor for name.
func LookupCompressor(name string) (Compressor, error) {
	c, ok := compressors[name]
	if !ok {
		return nil, fmt.Errorf("filecache: unknown compression %q", name)
	}
	return c, nil
}

type noneCompressor struct{}

func (noneCompressor) Name() string      { return "none" }
func (noneCompressor) Extension() string { return "" }
func (noneCompressor) Wrap(w io.Writer, _ string) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type gzipCompressor struct{}

func (gzipCompressor) Name() string      { return "gzip" }
func (gzipCompressor) Extension() string { return ".gz" }
func (gzipCompressor) Wrap(w io.Writer, _ string) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

type zipCompressor struct{}

func (zipCompressor) Name() string      { return "zip" }
func (zipCompressor) Extension() string { return ".zip" }

func (zipCompressor) Wrap(w io.Writer, entryName string) (io.WriteCloser, error) {
	zw := zip.NewWriter(w)
	if entryName == "" {
		entryName = "data"
	}
	entry, err := zw.Create(filepath.Base(entryName))
	if err != nil {
		return nil, fmt.Errorf("filecache: create zip entry: %w", err)
	}
	return &zipEntryWriter{entry: entry, archive: zw}, nil
}

// zipEntryWriter closes the whole single-entry archive on Close, since
// archive/zip finalizes the central directory only when the *zip.Writer
// itself is closed.
type zipEntryWriter struct {
	entry   io.Writer
	archive *zip.Writer
}

func (z *zipEntryWriter) Write(p []byte) (int, error) { return z.entry.Write(p) }
func (z *zipEntryWriter) Close() error                { return z.archive.Close() }

// newGzipReader opens a decompressing reader, used to seed a FileCache's
// temp file with the plaintext content of an already-gzipped target.
func newGzipReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}
