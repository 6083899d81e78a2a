// Package ingest implements the two ingest phases (§4.4, §4.5): loose
// ingest, which indexes the depot tree as it literally appears in the
// source, and bundled ingest, which expands the bundle container format
// into the files it actually holds.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pale-court/krangler-go/internal/dcontext"
	"github.com/pale-court/krangler-go/internal/depot"
	"github.com/pale-court/krangler-go/internal/digest"
	"github.com/pale-court/krangler-go/internal/extentmap"
	"github.com/pale-court/krangler-go/internal/ggpk"
	"github.com/pale-court/krangler-go/internal/pathhash"
	"github.com/pale-court/krangler-go/internal/sidecar"
	"github.com/pale-court/krangler-go/internal/source"
	"github.com/pale-court/krangler-go/internal/store"
)

const depotDownloaderDir = ".DepotDownloader"

// LooseOptions configures one loose-ingest run.
type LooseOptions struct {
	// SidecarDirs are external directories searched, in order, for a
	// `{manifest}.bin` or `{depot}_{manifest}.bin` sidecar (§4.4 step 1a),
	// before falling back to the source's own .DepotDownloader/ (step 1b).
	SidecarDirs []string
	// SizeBudget and CountBudget size C4's batching queue; zero disables
	// that dimension's auto-flush trigger.
	SizeBudget  int64
	CountBudget int
}

// manifestEntry unifies a sidecar-described file and a walked file under a
// single shape for steps 3-5.
type manifestEntry struct {
	path string
	size int64
	sha1 *digest.SHA1
}

// Loose runs C7 against src, writing the loose index and every object it
// references, then sets FactLooseIngested.
func Loose(ctx context.Context, st store.Store, em *extentmap.Map, src source.Source, id depot.ID, opts LooseOptions) error {
	log := dcontext.IngestLogger(ctx)

	if done, err := st.HasDepotFact(ctx, id, depot.FactLooseIngested); err != nil {
		return fmt.Errorf("ingest: loose: check fact: %w", err)
	} else if done {
		return nil
	}

	entries, err := locateManifest(src, id, opts.SidecarDirs)
	if err != nil {
		return fmt.Errorf("ingest: loose: locate manifest: %w", err)
	}

	iw, err := st.IndexWriter(ctx, id, depot.Loose)
	if err != nil {
		return fmt.Errorf("ingest: loose: open index writer: %w", err)
	}
	aborted := true
	defer func() {
		if aborted {
			_ = iw.Abort()
		}
	}()

	queue := store.NewQueue(st, opts.SizeBudget, opts.CountBudget)

	var ggpkEntry *manifestEntry
	var deferred []manifestEntry

	for i := range entries {
		e := entries[i]
		base := path.Base(filepath.ToSlash(e.path))

		if base == "Content.ggpk" {
			if err := st.SetDepotFact(ctx, id, depot.FactHasPack); err != nil {
				return fmt.Errorf("ingest: loose: set has_pack: %w", err)
			}
			ggpkEntry = &entries[i]
			continue
		}
		if base == "_.index.bin" {
			if err := st.SetDepotFact(ctx, id, depot.FactHasBundles); err != nil {
				return fmt.Errorf("ingest: loose: set has_bundles: %w", err)
			}
		}

		if e.sha1 != nil {
			if bridged, found, err := em.GetSHA256FromSHA1(*e.sha1); err != nil {
				return fmt.Errorf("ingest: loose: bridge lookup: %w", err)
			} else if found {
				if err := writeRecord(iw, e.path, bridged, e.size); err != nil {
					return fmt.Errorf("ingest: loose: write record: %w", err)
				}
				entryPath := e.path
				data := store.Deferred(func() ([]byte, error) {
					return readSourceOnce(src, entryPath)
				})
				if err := queue.StoreOne(ctx, bridged, int(e.size), data); err != nil {
					return fmt.Errorf("ingest: loose: queue bridged object: %w", err)
				}
				continue
			}
		}
		deferred = append(deferred, e)
	}

	// Step 5: deferred entries must be read now to learn their digest.
	for _, e := range deferred {
		raw, err := readSourceOnce(src, e.path)
		if err != nil {
			log.Warnf("ingest: loose: skipping %s, source unavailable: %v", e.path, err)
			continue
		}
		dg := digest.FromBytes(raw)
		if err := writeRecord(iw, e.path, dg, int64(len(raw))); err != nil {
			return fmt.Errorf("ingest: loose: write record: %w", err)
		}
		if err := queue.StoreOne(ctx, dg, len(raw), store.Ready(raw)); err != nil {
			return fmt.Errorf("ingest: loose: queue deferred object: %w", err)
		}
		if e.sha1 != nil {
			if err := em.PutSHA256FromSHA1(*e.sha1, dg); err != nil {
				return fmt.Errorf("ingest: loose: update bridge: %w", err)
			}
		}
	}

	// Step 6: enumerate the legacy pack, if present.
	if ggpkEntry != nil {
		if err := ingestGGPK(ctx, src, ggpkEntry.path, iw, queue); err != nil {
			return fmt.Errorf("ingest: loose: ggpk: %w", err)
		}
	}

	if err := queue.Flush(ctx); err != nil {
		return fmt.Errorf("ingest: loose: flush: %w", err)
	}
	if err := iw.Commit(); err != nil {
		return fmt.Errorf("ingest: loose: commit index: %w", err)
	}
	aborted = false

	if err := st.SetDepotFact(ctx, id, depot.FactLooseIngested); err != nil {
		return fmt.Errorf("ingest: loose: set loose_ingested: %w", err)
	}
	return nil
}

// ingestGGPK implements §4.4 step 6: buffer the pack once, enumerate its
// packed files, and queue every recoverable, hashed one.
func ingestGGPK(ctx context.Context, src source.Source, ggpkPath string, iw store.IndexWriter, queue *store.Queue) error {
	rc, err := src.Open(ggpkPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", ggpkPath, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read %s: %w", ggpkPath, err)
	}

	pack, err := ggpk.Parse(sectionReader{raw}, int64(len(raw)))
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	for _, fe := range pack.Entries() {
		dg := digest.Digest(fe.SHA256)
		if err := writeRecord(iw, fe.Path, dg, fe.DataSize); err != nil {
			return fmt.Errorf("write record %s: %w", fe.Path, err)
		}
		if fe.DataOff < 0 || fe.DataOff+fe.DataSize > int64(len(raw)) {
			return fmt.Errorf("packed file %s: offset range out of bounds", fe.Path)
		}
		slice := raw[fe.DataOff : fe.DataOff+fe.DataSize]
		if err := queue.StoreOne(ctx, dg, len(slice), store.Ready(slice)); err != nil {
			return fmt.Errorf("queue %s: %w", fe.Path, err)
		}
	}
	return nil
}

// sectionReader adapts an in-memory byte slice to io.ReaderAt, since
// Source only yields io.ReadCloser and ggpk.Parse needs random access.
type sectionReader struct{ data []byte }

func (s sectionReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(s.data)) {
		return 0, fmt.Errorf("sectionReader: offset %d out of range", off)
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func writeRecord(iw store.IndexWriter, p string, dg digest.Digest, size int64) error {
	rec := depot.Record{
		Path:   filepath.ToSlash(p),
		SHA256: dg.String(),
		PHash:  strconv.FormatUint(pathhash.HashFile(pathhash.Modern, p), 10),
		Size:   uint32(size),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = iw.Write(b)
	return err
}

func readSourceOnce(src source.Source, path string) ([]byte, error) {
	rc, err := src.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, store.ErrMissingSource)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// locateManifest implements §4.4 steps 1-2.
func locateManifest(src source.Source, id depot.ID, sidecarDirs []string) ([]manifestEntry, error) {
	if files, ok, err := findExternalSidecar(id, sidecarDirs); err != nil {
		return nil, err
	} else if ok {
		return sidecarToEntries(files), nil
	}

	candidates := []string{
		fmt.Sprintf("%s/%d_%d.bin", depotDownloaderDir, id.Depot, id.Manifest),
		fmt.Sprintf("%s/%d.bin", depotDownloaderDir, id.Manifest),
	}
	for _, c := range candidates {
		if !src.Contains(c) {
			continue
		}
		rc, err := src.Open(c)
		if err != nil {
			return nil, fmt.Errorf("open sidecar %s: %w", c, err)
		}
		files, err := sidecar.Parse(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("parse sidecar %s: %w", c, err)
		}
		return sidecarToEntries(files), nil
	}

	return walkManifest(src)
}

func findExternalSidecar(id depot.ID, dirs []string) ([]sidecar.File, bool, error) {
	for _, dir := range dirs {
		names := []string{
			fmt.Sprintf("%d.bin", id.Manifest),
			fmt.Sprintf("%d_%d.bin", id.Depot, id.Manifest),
		}
		for _, name := range names {
			p := filepath.Join(dir, name)
			f, err := os.Open(p)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, false, fmt.Errorf("open %s: %w", p, err)
			}
			files, err := sidecar.Parse(f)
			f.Close()
			if err != nil {
				return nil, false, fmt.Errorf("parse %s: %w", p, err)
			}
			return files, true, nil
		}
	}
	return nil, false, nil
}

func sidecarToEntries(files []sidecar.File) []manifestEntry {
	entries := make([]manifestEntry, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		sha1 := f.SHA1
		entries = append(entries, manifestEntry{path: f.Name, size: int64(f.Size), sha1: &sha1})
	}
	return entries
}

func walkManifest(src source.Source) ([]manifestEntry, error) {
	all, err := src.Walk()
	if err != nil {
		return nil, err
	}
	entries := make([]manifestEntry, 0, len(all))
	for _, e := range all {
		if strings.HasPrefix(filepath.ToSlash(e.Path), depotDownloaderDir+"/") {
			continue
		}
		entries = append(entries, manifestEntry{path: e.Path, size: e.Size})
	}
	return entries, nil
}
