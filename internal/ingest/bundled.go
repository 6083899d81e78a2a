package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pale-court/krangler-go/internal/bundle"
	"github.com/pale-court/krangler-go/internal/dcontext"
	"github.com/pale-court/krangler-go/internal/depot"
	"github.com/pale-court/krangler-go/internal/digest"
	"github.com/pale-court/krangler-go/internal/extentmap"
	"github.com/pale-court/krangler-go/internal/oodle"
	"github.com/pale-court/krangler-go/internal/store"
)

// Bundle group caps (§4.5 step 4): bound the working set materialized per
// group so a single run never holds more than this much decompressed
// bundle data, and never more than this many inner-file records, in memory
// at once.
const (
	groupMaxUncompressedBytes = int64(1) << 30 // 1 GiB
	groupMaxFileCount         = 100_000
)

// decodeConcurrencyLimit bounds how many outer bundles a single group
// decodes at once (§5), the same SetLimit discipline the teacher's
// registry/handlers/manifests.go uses for its untag fan-out.
const decodeConcurrencyLimit = 8

// BundledOptions configures one bundled-ingest run.
type BundledOptions struct {
	SizeBudget  int64
	CountBudget int
	// Decompressor overrides the Oodle codec used to expand outer bundles.
	// Nil uses oodle.Default; tests substitute a trivial stand-in codec for
	// fixtures that don't carry real Oodle-encoded bytes.
	Decompressor oodle.Decompressor
}

// bundleGroup is one partition of whole outer bundles (§4.5 step 4),
// carrying every inner file that references a bundle in the group, sorted
// by (bundle_index, file_offset, file_size).
type bundleGroup struct {
	bundles []uint32
	files   []bundle.FileEntry
}

// Bundled runs C8 against the loose index and the index bundle it
// references, expanding the bundle container into a bundled index.
func Bundled(ctx context.Context, st store.Store, em *extentmap.Map, id depot.ID, opts BundledOptions) error {
	log := dcontext.IngestLogger(ctx)

	if done, err := st.HasDepotFact(ctx, id, depot.FactBundledIngested); err != nil {
		return fmt.Errorf("ingest: bundled: check fact: %w", err)
	} else if done {
		return nil
	}
	if looseOK, err := st.HasDepotFact(ctx, id, depot.FactLooseIngested); err != nil {
		return fmt.Errorf("ingest: bundled: check loose_ingested: %w", err)
	} else if !looseOK {
		return nil
	}
	if hasBundles, err := st.HasDepotFact(ctx, id, depot.FactHasBundles); err != nil {
		return fmt.Errorf("ingest: bundled: check has_bundles: %w", err)
	} else if !hasBundles {
		return nil
	}

	pathDigests, indexDigest, err := streamLooseIndex(ctx, st, id)
	if err != nil {
		return fmt.Errorf("ingest: bundled: stream loose index: %w", err)
	}
	if indexDigest == nil {
		return fmt.Errorf("ingest: bundled: has_bundles set but no _.index.bin in loose index")
	}

	dec := opts.Decompressor
	if dec == nil {
		dec = oodle.Default
	}

	idx, err := fetchIndex(ctx, st, *indexDigest, dec)
	if err != nil {
		return fmt.Errorf("ingest: bundled: fetch index: %w", err)
	}

	if err := putResolvedPaths(em, idx); err != nil {
		return fmt.Errorf("ingest: bundled: put paths: %w", err)
	}

	groups := partitionGroups(idx)

	iw, err := st.IndexWriter(ctx, id, depot.Bundled)
	if err != nil {
		return fmt.Errorf("ingest: bundled: open index writer: %w", err)
	}
	aborted := true
	defer func() {
		if aborted {
			_ = iw.Abort()
		}
	}()

	queue := store.NewQueue(st, opts.SizeBudget, opts.CountBudget)

	for gi, g := range groups {
		var materializeMu sync.Mutex
		materialized := make(map[uint32][]byte, len(g.bundles))

		decodeBundle := func(bundleIndex uint32) ([]byte, error) {
			name := idx.Bundles[bundleIndex].Name
			path := bundleBinPath(name)
			dg, ok := pathDigests[path]
			if !ok {
				return nil, fmt.Errorf("outer bundle %s has no stored digest in the loose index", path)
			}
			raw, err := st.ReadData(ctx, dg)
			if err != nil {
				return nil, fmt.Errorf("read outer bundle %s: %w", path, err)
			}
			return bundle.Decode(raw, dec)
		}

		// materialize returns bundleIndex's decoded payload, decoding it at
		// most once even under concurrent callers.
		materialize := func(bundleIndex uint32) ([]byte, error) {
			materializeMu.Lock()
			if payload, ok := materialized[bundleIndex]; ok {
				materializeMu.Unlock()
				return payload, nil
			}
			materializeMu.Unlock()

			payload, err := decodeBundle(bundleIndex)
			if err != nil {
				return nil, fmt.Errorf("decode outer bundle %s: %w", idx.Bundles[bundleIndex].Name, err)
			}

			materializeMu.Lock()
			materialized[bundleIndex] = payload
			materializeMu.Unlock()
			return payload, nil
		}

		bundleDigestOf := func(bundleIndex uint32) (digest.Digest, error) {
			name := idx.Bundles[bundleIndex].Name
			path := bundleBinPath(name)
			dg, ok := pathDigests[path]
			if !ok {
				return digest.Digest{}, fmt.Errorf("outer bundle %s has no stored digest in the loose index", path)
			}
			return dg, nil
		}

		inner := make(map[bundleSlice]digest.Digest, len(g.files))
		needed := make(map[uint32]struct{})

		for _, fe := range g.files {
			bdg, err := bundleDigestOf(fe.BundleIndex)
			if err != nil {
				return fmt.Errorf("ingest: bundled: group %d: %w", gi, err)
			}
			if cached, hit, err := em.GetExtent(bdg, fe.FileOffset, fe.FileSize); err != nil {
				return fmt.Errorf("ingest: bundled: extent lookup: %w", err)
			} else if hit {
				inner[bundleSlice{fe.BundleIndex, fe.FileOffset, fe.FileSize}] = cached
				continue
			}
			needed[fe.BundleIndex] = struct{}{}
		}

		// §5: Oodle decompression of the bundles this group actually needs
		// runs concurrently (deterministic rejoin below: every digest is
		// computed independently of decode order).
		var group errgroup.Group
		group.SetLimit(decodeConcurrencyLimit)
		for bi := range needed {
			bi := bi
			group.Go(func() error {
				_, err := materialize(bi)
				return err
			})
		}
		if err := group.Wait(); err != nil {
			return fmt.Errorf("ingest: bundled: group %d: %w", gi, err)
		}

		var pendingExtents []extentmap.PendingExtent

		for _, fe := range g.files {
			key := bundleSlice{fe.BundleIndex, fe.FileOffset, fe.FileSize}
			if _, done := inner[key]; done {
				continue
			}
			bdg, err := bundleDigestOf(fe.BundleIndex)
			if err != nil {
				return fmt.Errorf("ingest: bundled: group %d: %w", gi, err)
			}
			payload, err := materialize(fe.BundleIndex)
			if err != nil {
				return fmt.Errorf("ingest: bundled: group %d: %w", gi, err)
			}
			if int64(fe.FileOffset)+int64(fe.FileSize) > int64(len(payload)) {
				return fmt.Errorf("ingest: bundled: file %s: offset range out of bounds", fe.Path)
			}
			slice := payload[fe.FileOffset : fe.FileOffset+fe.FileSize]
			computed := digest.FromBytes(slice)
			inner[key] = computed
			pendingExtents = append(pendingExtents, extentmap.PendingExtent{
				Bundle: bdg, Offset: fe.FileOffset, Size: fe.FileSize, Digest: computed,
			})
		}

		for _, fe := range g.files {
			dg := inner[bundleSlice{fe.BundleIndex, fe.FileOffset, fe.FileSize}]
			if err := writeRecord(iw, fe.Path, dg, int64(fe.FileSize)); err != nil {
				return fmt.Errorf("ingest: bundled: write record %s: %w", fe.Path, err)
			}
		}

		// §5 ordering guarantee: the extent-map batch commits before the
		// matching object-upload batch.
		if err := em.PutExtents(pendingExtents); err != nil {
			return fmt.Errorf("ingest: bundled: put extents: %w", err)
		}

		unique := make([]digest.Digest, 0, len(inner))
		seen := make(map[digest.Digest]struct{}, len(inner))
		for _, dg := range inner {
			if _, ok := seen[dg]; ok {
				continue
			}
			seen[dg] = struct{}{}
			unique = append(unique, dg)
		}
		missing, err := st.ListMissingObjects(ctx, unique)
		if err != nil {
			return fmt.Errorf("ingest: bundled: list missing: %w", err)
		}
		missingSet := make(map[digest.Digest]struct{}, len(missing))
		for _, dg := range missing {
			missingSet[dg] = struct{}{}
		}

		for _, fe := range g.files {
			dg := inner[bundleSlice{fe.BundleIndex, fe.FileOffset, fe.FileSize}]
			if _, ok := missingSet[dg]; !ok {
				continue
			}
			fe := fe
			data := store.Deferred(func() ([]byte, error) {
				payload, err := materialize(fe.BundleIndex)
				if err != nil {
					return nil, err
				}
				if int64(fe.FileOffset)+int64(fe.FileSize) > int64(len(payload)) {
					return nil, fmt.Errorf("file %s: offset range out of bounds", fe.Path)
				}
				return payload[fe.FileOffset : fe.FileOffset+fe.FileSize], nil
			})
			if err := queue.StoreOne(ctx, dg, int(fe.FileSize), data); err != nil {
				return fmt.Errorf("ingest: bundled: queue %s: %w", fe.Path, err)
			}
		}

		log.Infof("bundled ingest group %d/%d: %d bundles, %d files", gi+1, len(groups), len(g.bundles), len(g.files))
	}

	if err := queue.Flush(ctx); err != nil {
		return fmt.Errorf("ingest: bundled: flush: %w", err)
	}
	if err := iw.Commit(); err != nil {
		return fmt.Errorf("ingest: bundled: commit index: %w", err)
	}
	aborted = false

	if err := st.SetDepotFact(ctx, id, depot.FactBundledIngested); err != nil {
		return fmt.Errorf("ingest: bundled: set bundled_ingested: %w", err)
	}
	return nil
}

// bundleSlice identifies one inner file's byte range within an outer
// bundle, used as a map key while resolving digests within a group.
type bundleSlice struct {
	bundleIndex uint32
	offset      uint32
	size        uint32
}

// bundleBinPath reconstructs the loose-index path of an outer bundle from
// its bare index name (e.g. "B000"), mirroring the original's
// PurePosixPath(f"Bundles2/{name}.bundle.bin").
func bundleBinPath(name string) string {
	return "Bundles2/" + name + ".bundle.bin"
}

// indexBinPath is the loose-index path of the bundle index blob itself.
const indexBinPath = "Bundles2/_.index.bin"

// streamLooseIndex implements §4.5 step 1: read back every loose-index
// row, recording the digest of Bundles2/_.index.bin and every *.bundle.bin
// path.
func streamLooseIndex(ctx context.Context, st store.Store, id depot.ID) (map[string]digest.Digest, *digest.Digest, error) {
	rc, err := st.IndexReader(ctx, id, depot.Loose)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	paths := make(map[string]digest.Digest)
	var indexDigest *digest.Digest

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec depot.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, nil, fmt.Errorf("decode loose index row: %w", err)
		}
		dg, err := digest.Parse(rec.SHA256)
		if err != nil {
			return nil, nil, fmt.Errorf("decode loose index row %s: %w", rec.Path, err)
		}
		paths[rec.Path] = dg
		if rec.Path == indexBinPath {
			d := dg
			indexDigest = &d
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return paths, indexDigest, nil
}

// putResolvedPaths implements §4.2/§4.3's "path dictionary created on first
// observation": every index file entry that path reconstruction resolved to
// a name seeds the fingerprint-to-path table, so a later SHA-1 hint or a
// fingerprint-only lookup against this depot can recover the path.
func putResolvedPaths(em *extentmap.Map, idx *bundle.Index) error {
	batch := make([]extentmap.PendingPath, 0, len(idx.Files))
	for _, fe := range idx.Files {
		if fe.Path == "" {
			continue
		}
		batch = append(batch, extentmap.PendingPath{Fingerprint: fe.PathFingerprint, Path: fe.Path})
	}
	return em.PutPaths(batch)
}

// fetchIndex implements §4.5 step 2.
func fetchIndex(ctx context.Context, st store.Store, indexDigest digest.Digest, dec oodle.Decompressor) (*bundle.Index, error) {
	raw, err := st.ReadData(ctx, indexDigest)
	if err != nil {
		return nil, fmt.Errorf("read index bundle: %w", err)
	}
	payload, err := bundle.Decode(raw, dec)
	if err != nil {
		return nil, fmt.Errorf("decode index bundle: %w", err)
	}
	idx, err := bundle.ParseIndex(payload, dec)
	if err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	return idx, nil
}

// partitionGroups implements §4.5 steps 3-4: sort inner files by
// (bundle_index, file_offset, file_size), bucket per outer bundle, then
// accumulate whole bundles into groups bounded by cumulative uncompressed
// size and inner-file count.
func partitionGroups(idx *bundle.Index) []bundleGroup {
	files := make([]bundle.FileEntry, len(idx.Files))
	copy(files, idx.Files)
	sort.Slice(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.BundleIndex != b.BundleIndex {
			return a.BundleIndex < b.BundleIndex
		}
		if a.FileOffset != b.FileOffset {
			return a.FileOffset < b.FileOffset
		}
		return a.FileSize < b.FileSize
	})

	var order []uint32
	buckets := make(map[uint32][]bundle.FileEntry)
	for _, fe := range files {
		if _, ok := buckets[fe.BundleIndex]; !ok {
			order = append(order, fe.BundleIndex)
		}
		buckets[fe.BundleIndex] = append(buckets[fe.BundleIndex], fe)
	}

	var groups []bundleGroup
	var cur bundleGroup
	var curSize int64
	var curCount int

	flush := func() {
		if len(cur.bundles) > 0 {
			groups = append(groups, cur)
		}
		cur = bundleGroup{}
		curSize = 0
		curCount = 0
	}

	for _, bi := range order {
		bucket := buckets[bi]
		size := int64(idx.Bundles[bi].UncompressedSize)
		count := len(bucket)

		if len(cur.bundles) > 0 && (curSize+size > groupMaxUncompressedBytes || curCount+count > groupMaxFileCount) {
			flush()
		}
		cur.bundles = append(cur.bundles, bi)
		cur.files = append(cur.files, bucket...)
		curSize += size
		curCount += count
	}
	flush()

	return groups
}
