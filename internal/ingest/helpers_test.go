package ingest

import (
	"bytes"
	"context"
	"io"

	"github.com/pale-court/krangler-go/internal/depot"
	"github.com/pale-court/krangler-go/internal/digest"
	"github.com/pale-court/krangler-go/internal/store"
)

// memStore is a minimal in-memory Store implementation used only by this
// package's tests, covering the index-writer/reader paths the batching
// queue tests in internal/store don't need to exercise.
type memStore struct {
	objects map[digest.Digest][]byte
	indices map[string][]byte
	facts   map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		objects: map[digest.Digest][]byte{},
		indices: map[string][]byte{},
		facts:   map[string]bool{},
	}
}

func indexKey(id depot.ID, kind depot.Kind) string {
	return id.String() + "-" + string(kind)
}

type memIndexWriter struct {
	s   *memStore
	key string
	buf bytes.Buffer
}

func (w *memIndexWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *memIndexWriter) Commit() error {
	w.s.indices[w.key] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}
func (w *memIndexWriter) Abort() error { return nil }

func (m *memStore) IndexWriter(_ context.Context, id depot.ID, kind depot.Kind) (store.IndexWriter, error) {
	return &memIndexWriter{s: m, key: indexKey(id, kind)}, nil
}

func (m *memStore) IndexReader(_ context.Context, id depot.ID, kind depot.Kind) (io.ReadCloser, error) {
	b, ok := m.indices[indexKey(id, kind)]
	if !ok {
		return nil, store.ErrIndexAbsent
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) ListMissingObjects(_ context.Context, digests []digest.Digest) ([]digest.Digest, error) {
	var missing []digest.Digest
	for _, d := range digests {
		if _, ok := m.objects[d]; !ok {
			missing = append(missing, d)
		}
	}
	return missing, nil
}

type memBulk struct{ s *memStore }

func (b *memBulk) Store(d digest.Digest, data []byte) error {
	if _, ok := b.s.objects[d]; ok {
		return nil
	}
	b.s.objects[d] = append([]byte(nil), data...)
	return nil
}
func (b *memBulk) Commit() error { return nil }

func (m *memStore) WriteDataBulk(context.Context) (store.BulkWriter, error) {
	return &memBulk{s: m}, nil
}

func (m *memStore) ReadData(_ context.Context, d digest.Digest) ([]byte, error) {
	v, ok := m.objects[d]
	if !ok {
		return nil, store.ErrObjectAbsent
	}
	return v, nil
}

func (m *memStore) HasDepotFact(_ context.Context, id depot.ID, fact depot.Fact) (bool, error) {
	return m.facts[id.String()+string(fact)], nil
}
func (m *memStore) SetDepotFact(_ context.Context, id depot.ID, fact depot.Fact) error {
	m.facts[id.String()+string(fact)] = true
	return nil
}
func (m *memStore) UnsetDepotFact(_ context.Context, id depot.ID, fact depot.Fact) error {
	delete(m.facts, id.String()+string(fact))
	return nil
}
