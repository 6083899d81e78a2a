package store

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pale-court/krangler-go/internal/depot"
	"github.com/pale-court/krangler-go/internal/digest"
)

// mockStore is a minimal in-memory Store used only to exercise Queue's
// flush discipline in isolation from any real backend.
type mockStore struct {
	objects map[digest.Digest][]byte
	facts   map[string]bool
}

func newMockStore() *mockStore {
	return &mockStore{objects: map[digest.Digest][]byte{}, facts: map[string]bool{}}
}

func (m *mockStore) IndexWriter(context.Context, depot.ID, depot.Kind) (IndexWriter, error) {
	panic("unused")
}
func (m *mockStore) IndexReader(context.Context, depot.ID, depot.Kind) (io.ReadCloser, error) {
	panic("unused")
}

func (m *mockStore) ListMissingObjects(_ context.Context, digests []digest.Digest) ([]digest.Digest, error) {
	var missing []digest.Digest
	for _, d := range digests {
		if _, ok := m.objects[d]; !ok {
			missing = append(missing, d)
		}
	}
	return missing, nil
}

type mockBulk struct{ m *mockStore }

func (b *mockBulk) Store(d digest.Digest, data []byte) error {
	if _, ok := b.m.objects[d]; ok {
		return nil
	}
	b.m.objects[d] = append([]byte(nil), data...)
	return nil
}
func (b *mockBulk) Commit() error { return nil }

func (m *mockStore) WriteDataBulk(context.Context) (BulkWriter, error) {
	return &mockBulk{m: m}, nil
}

func (m *mockStore) ReadData(_ context.Context, d digest.Digest) ([]byte, error) {
	v, ok := m.objects[d]
	if !ok {
		return nil, ErrObjectAbsent
	}
	return v, nil
}

func (m *mockStore) HasDepotFact(_ context.Context, id depot.ID, fact depot.Fact) (bool, error) {
	return m.facts[id.String()+string(fact)], nil
}
func (m *mockStore) SetDepotFact(_ context.Context, id depot.ID, fact depot.Fact) error {
	m.facts[id.String()+string(fact)] = true
	return nil
}
func (m *mockStore) UnsetDepotFact(_ context.Context, id depot.ID, fact depot.Fact) error {
	delete(m.facts, id.String()+string(fact))
	return nil
}

func testCtx() context.Context {
	return context.Background()
}

func TestQueueFlushUploadsOnlyMissing(t *testing.T) {
	s := newMockStore()
	d1 := digest.FromBytes([]byte("one"))
	d2 := digest.FromBytes([]byte("two"))
	s.objects[d1] = []byte("one") // already present

	q := NewQueue(s, 0, 0)
	require.NoError(t, q.StoreOne(testCtx(), d1, 3, Ready([]byte("one"))))
	require.NoError(t, q.StoreOne(testCtx(), d2, 3, Ready([]byte("two"))))
	require.NoError(t, q.Flush(testCtx()))

	got, err := s.ReadData(testCtx(), d2)
	require.NoError(t, err)
	require.Equal(t, "two", string(got))
}

func TestQueueAutoFlushesOnCountBudget(t *testing.T) {
	s := newMockStore()
	q := NewQueue(s, 0, 2)

	d1 := digest.FromBytes([]byte("a"))
	d2 := digest.FromBytes([]byte("b"))
	require.NoError(t, q.StoreOne(testCtx(), d1, 1, Ready([]byte("a"))))
	require.Empty(t, s.objects, "must not flush before the count budget is reached")
	require.NoError(t, q.StoreOne(testCtx(), d2, 1, Ready([]byte("b"))))
	require.Len(t, s.objects, 2, "must auto-flush once the count budget is reached")
}

func TestLazyBytesMaterializesOnce(t *testing.T) {
	calls := 0
	lb := Deferred(func() ([]byte, error) {
		calls++
		return []byte("materialized"), nil
	})

	_, err := lb.Bytes()
	require.NoError(t, err)
	_, err = lb.Bytes()
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
