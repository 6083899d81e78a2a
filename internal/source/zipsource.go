package source

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
)

// ZipSource adapts a staged ZIP archive to Source; the other opaque
// producer adaptor the spec names as out of scope.
type ZipSource struct {
	r      *zip.ReadCloser
	byPath map[string]*zip.File
}

// OpenZipSource opens the archive at path.
func OpenZipSource(path string) (*ZipSource, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		byPath[f.Name] = f
	}
	return &ZipSource{r: r, byPath: byPath}, nil
}

// Close releases the underlying archive.
func (z *ZipSource) Close() error { return z.r.Close() }

// Contains implements Source.
func (z *ZipSource) Contains(path string) bool {
	_, ok := z.byPath[path]
	return ok
}

// Open implements Source.
func (z *ZipSource) Open(path string) (io.ReadCloser, error) {
	f, ok := z.byPath[path]
	if !ok {
		return nil, fmt.Errorf("zipsource: %s: %w", path, fs.ErrNotExist)
	}
	return f.Open()
}

// Walk implements Source.
func (z *ZipSource) Walk() ([]Entry, error) {
	entries := make([]Entry, 0, len(z.r.File))
	for _, f := range z.r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entries = append(entries, Entry{Path: f.Name, Size: int64(f.UncompressedSize64)})
	}
	return entries, nil
}
