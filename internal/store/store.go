// Package store defines the artifact store abstraction (§4.6): a
// content-addressed blob store, an NDJSON index store, and per-manifest
// fact flags. Two backends implement Store: internal/store/filesystem and
// internal/store/relational.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pale-court/krangler-go/internal/depot"
	"github.com/pale-court/krangler-go/internal/digest"
)

// ConflictError reports a write that raced with an existing object of the
// same digest (§7 StoreConflict). It is always safe to treat as success:
// content-addressed writes are idempotent.
type ConflictError struct {
	Digest digest.Digest
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: write raced with existing object %s", e.Digest)
}

// IndexReadError wraps a Zstd-framing or NDJSON-parse failure on a
// pre-existing index (§7 IndexReadFailure). Callers should treat this the
// same as "index absent" and may re-run the producing phase.
type IndexReadError struct {
	Depot    uint32
	Manifest uint64
	Kind     depot.Kind
	Err      error
}

func (e *IndexReadError) Error() string {
	return fmt.Sprintf("store: index read failure for %d/%d-%s: %v", e.Depot, e.Manifest, e.Kind, e.Err)
}

func (e *IndexReadError) Unwrap() error { return e.Err }

// ErrIndexAbsent is returned by IndexReader when no index has ever been
// written for the given (depot, manifest, kind).
var ErrIndexAbsent = errors.New("store: index absent")

// ErrObjectAbsent is returned by ReadData when no object exists for a
// digest.
var ErrObjectAbsent = errors.New("store: object absent")

// ErrMissingSource marks a LazyBytes materialization failure caused by the
// backing Source no longer having the requested path available (§7
// MissingSource: skipped with a warning, not fatal to the manifest).
// Producers should wrap the underlying cause with this sentinel via
// fmt.Errorf("...: %w", ErrMissingSource) so Queue.Flush can tell it apart
// from a genuine I/O failure.
var ErrMissingSource = errors.New("store: source missing for queued object")

// IndexWriter is a scoped resource: on Commit, the index is atomically
// replaced; on Abort (or a Commit error), no partial index becomes visible.
type IndexWriter interface {
	io.Writer
	Commit() error
	Abort() error
}

// BulkWriter is a scoped bulk-insert resource with on-conflict-ignore
// semantics.
type BulkWriter interface {
	// Store queues bytes under digest. Duplicate digests across calls, or
	// digests that already exist in the store, are silently absorbed.
	Store(d digest.Digest, data []byte) error
	// Commit flushes all queued stores.
	Commit() error
}

// Store is the artifact store interface (§4.6), implemented by both
// backends.
type Store interface {
	// IndexWriter opens a scoped writer for the (depot, manifest, kind)
	// index. The index only becomes visible on Commit.
	IndexWriter(ctx context.Context, d depot.ID, kind depot.Kind) (IndexWriter, error)
	// IndexReader yields the NDJSON rows of a previously committed index,
	// lazily. Returns ErrIndexAbsent if none exists.
	IndexReader(ctx context.Context, d depot.ID, kind depot.Kind) (io.ReadCloser, error)

	// ListMissingObjects is a bulk existence filter. digests must be
	// unique on input.
	ListMissingObjects(ctx context.Context, digests []digest.Digest) ([]digest.Digest, error)
	// WriteDataBulk opens a scoped bulk-insert resource.
	WriteDataBulk(ctx context.Context) (BulkWriter, error)
	// ReadData returns the bytes for digest, or ErrObjectAbsent.
	ReadData(ctx context.Context, d digest.Digest) ([]byte, error)

	HasDepotFact(ctx context.Context, id depot.ID, fact depot.Fact) (bool, error)
	SetDepotFact(ctx context.Context, id depot.ID, fact depot.Fact) error
	UnsetDepotFact(ctx context.Context, id depot.ID, fact depot.Fact) error
}
