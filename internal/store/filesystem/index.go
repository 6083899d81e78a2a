package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/pale-court/krangler-go/internal/depot"
	"github.com/pale-court/krangler-go/internal/store"
	"github.com/pale-court/krangler-go/internal/uuid"
)

// indexWriter buffers NDJSON rows in memory, Zstd-frames them on Commit,
// and atomically replaces the index file — so a reader never observes a
// partially-written index (§3, §4.6).
type indexWriter struct {
	finalPath string
	buf       bytes.Buffer
	zw        *zstd.Encoder
	done      bool
}

func newIndexWriter(finalPath string) (*indexWriter, error) {
	iw := &indexWriter{finalPath: finalPath}
	zw, err := zstd.NewWriter(&iw.buf)
	if err != nil {
		return nil, err
	}
	iw.zw = zw
	return iw, nil
}

func (w *indexWriter) Write(p []byte) (int, error) {
	return w.zw.Write(p)
}

func (w *indexWriter) Commit() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.zw.Close(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.finalPath), 0o777); err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(w.finalPath), fmt.Sprintf(".%s.tmp", uuid.NewString()))
	if err := os.WriteFile(tmp, w.buf.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, w.finalPath); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (w *indexWriter) Abort() error {
	w.done = true
	return nil
}

// IndexWriter implements store.Store.
func (d *Driver) IndexWriter(_ context.Context, id depot.ID, kind depot.Kind) (store.IndexWriter, error) {
	return newIndexWriter(d.indexPath(id, kind))
}

// IndexReader implements store.Store. A failure to set up the Zstd decoder
// on an existing file is reported as store.IndexReadError (§7
// IndexReadFailure).
func (d *Driver) IndexReader(_ context.Context, id depot.ID, kind depot.Kind) (io.ReadCloser, error) {
	path := d.indexPath(id, kind)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrIndexAbsent
		}
		return nil, err
	}

	zr, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, &store.IndexReadError{Depot: id.Depot, Manifest: id.Manifest, Kind: kind, Err: err}
	}
	return &zstdReadCloser{zr: zr, f: f}, nil
}

type zstdReadCloser struct {
	zr *zstd.Decoder
	f  *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.zr.Read(p) }

func (z *zstdReadCloser) Close() error {
	z.zr.Close()
	return z.f.Close()
}
