// Package filesystem implements the filesystem artifact store backend
// (§4.6, §6.1): objects under data/, NDJSON indices Zstd-framed under
// index/, and fact markers under state/. Grounded on the teacher's
// registry/storage/driver/filesystem package for its atomic
// write-to-temp-then-rename discipline.
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
	"github.com/pale-court/krangler-go/internal/digest"
	"github.com/pale-court/krangler-go/internal/store"
	"github.com/pale-court/krangler-go/internal/uuid"
)

// Driver is a store.Store backed by a local (or network-mounted)
// filesystem tree.
type Driver struct {
	root string
}

// New constructs a Driver rooted at dir, creating it if absent.
func New(dir string) (*Driver, error) {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, fmt.Errorf("filesystem store: create root %s: %w", dir, err)
	}
	return &Driver{root: dir}, nil
}

func (d *Driver) objectPathRaw(digest digest.Digest) string {
	hex := digest.String()
	return filepath.Join(d.root, "data", hex[:2], hex+".bin")
}

func (d *Driver) objectPathCompressed(digest digest.Digest) string {
	hex := digest.String()
	return filepath.Join(d.root, "data", hex[:2], hex+".bin.zst")
}

func (d *Driver) indexPath(id depot.ID, kind depot.Kind) string {
	return filepath.Join(d.root, "index", fmt.Sprint(id.Depot), fmt.Sprintf("%d-%s.ndjson.zst", id.Manifest, kind))
}

func (d *Driver) factPath(id depot.ID, fact depot.Fact) string {
	return filepath.Join(d.root, "state", fmt.Sprint(id.Depot), fmt.Sprintf("%d.%s", id.Manifest, fact))
}

// atomicWrite writes data to path via a uuid-named temp file in the same
// directory, then renames into place. A losing rename (the destination
// already exists with the bytes some concurrent writer produced) silently
// succeeds — existence is the postcondition, per §4.6.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return err
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp", uuid.NewString()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}
		return err
	}
	return nil
}

// chooseObjectForm picks raw vs. Zstd-compressed storage, keeping whichever
// is smaller — the same "compress if smaller" policy as the relational
// backend, since the artifact store interface carries only a digest and
// bytes and has no source-path extension to hang a content-type heuristic
// on (§4.6 Open Question a).
func chooseObjectForm(data []byte) (body []byte, compressed bool, err error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, false, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, false, err
	}
	if err := w.Close(); err != nil {
		return nil, false, err
	}
	if buf.Len() < len(data) {
		return buf.Bytes(), true, nil
	}
	return data, false, nil
}

func (d *Driver) writeObject(digest digest.Digest, data []byte) error {
	rawPath := d.objectPathRaw(digest)
	zstPath := d.objectPathCompressed(digest)
	if _, err := os.Stat(rawPath); err == nil {
		return nil
	}
	if _, err := os.Stat(zstPath); err == nil {
		return nil
	}

	body, compressed, err := chooseObjectForm(data)
	if err != nil {
		return fmt.Errorf("filesystem store: compress %s: %w", digest, err)
	}
	target := rawPath
	if compressed {
		target = zstPath
	}
	return atomicWrite(target, body)
}

// ListMissingObjects implements store.Store.
func (d *Driver) ListMissingObjects(_ context.Context, digests []digest.Digest) ([]digest.Digest, error) {
	var missing []digest.Digest
	for _, dg := range digests {
		if _, err := os.Stat(d.objectPathRaw(dg)); err == nil {
			continue
		}
		if _, err := os.Stat(d.objectPathCompressed(dg)); err == nil {
			continue
		}
		missing = append(missing, dg)
	}
	return missing, nil
}

type bulkWriter struct {
	d *Driver
}

func (b *bulkWriter) Store(dg digest.Digest, data []byte) error {
	return b.d.writeObject(dg, data)
}

func (b *bulkWriter) Commit() error { return nil }

// WriteDataBulk implements store.Store.
func (d *Driver) WriteDataBulk(context.Context) (store.BulkWriter, error) {
	return &bulkWriter{d: d}, nil
}

// ReadData implements store.Store.
func (d *Driver) ReadData(_ context.Context, dg digest.Digest) ([]byte, error) {
	if raw, err := os.ReadFile(d.objectPathRaw(dg)); err == nil {
		return raw, nil
	}
	compressed, err := os.ReadFile(d.objectPathCompressed(dg))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrObjectAbsent
		}
		return nil, err
	}
	zr, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("filesystem store: decompress %s: %w", dg, err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// HasDepotFact implements store.Store.
func (d *Driver) HasDepotFact(_ context.Context, id depot.ID, fact depot.Fact) (bool, error) {
	_, err := os.Stat(d.factPath(id, fact))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// SetDepotFact implements store.Store.
func (d *Driver) SetDepotFact(_ context.Context, id depot.ID, fact depot.Fact) error {
	return atomicWrite(d.factPath(id, fact), nil)
}

// UnsetDepotFact implements store.Store.
func (d *Driver) UnsetDepotFact(_ context.Context, id depot.ID, fact depot.Fact) error {
	err := os.Remove(d.factPath(id, fact))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
