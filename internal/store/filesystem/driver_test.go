package filesystem

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pale-court/krangler-go/internal/depot"
	"github.com/pale-court/krangler-go/internal/digest"
	"github.com/pale-court/krangler-go/internal/store"
)

func TestWriteAndReadObjectRoundTrip(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte("the quick brown fox jumps over the lazy dog, repeated many times to make compression worthwhile. " +
		"the quick brown fox jumps over the lazy dog, repeated many times to make compression worthwhile.")
	dg := digest.FromBytes(data)

	bulk, err := d.WriteDataBulk(ctx)
	require.NoError(t, err)
	require.NoError(t, bulk.Store(dg, data))
	require.NoError(t, bulk.Commit())

	got, err := d.ReadData(ctx, dg)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestListMissingObjects(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	present := []byte("present object")
	dgPresent := digest.FromBytes(present)
	dgMissing := digest.FromBytes([]byte("absent object"))

	bulk, err := d.WriteDataBulk(ctx)
	require.NoError(t, err)
	require.NoError(t, bulk.Store(dgPresent, present))
	require.NoError(t, bulk.Commit())

	missing, err := d.ListMissingObjects(ctx, []digest.Digest{dgPresent, dgMissing})
	require.NoError(t, err)
	require.Equal(t, []digest.Digest{dgMissing}, missing)
}

func TestIndexWriterAtomicCommit(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	id := depot.ID{Depot: 1, Manifest: 2}

	w, err := d.IndexWriter(ctx, id, depot.Loose)
	require.NoError(t, err)
	_, err = w.Write([]byte("{\"path\":\"a\"}\n"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r, err := d.IndexReader(ctx, id, depot.Loose)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "{\"path\":\"a\"}\n", string(got))
}

func TestIndexReaderAbsentBeforeAnyWrite(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = d.IndexReader(ctx, depot.ID{Depot: 9, Manifest: 9}, depot.Bundled)
	require.ErrorIs(t, err, store.ErrIndexAbsent)
}

func TestDepotFacts(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	id := depot.ID{Depot: 5, Manifest: 10}

	has, err := d.HasDepotFact(ctx, id, depot.FactLooseIngested)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, d.SetDepotFact(ctx, id, depot.FactLooseIngested))
	has, err = d.HasDepotFact(ctx, id, depot.FactLooseIngested)
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, d.UnsetDepotFact(ctx, id, depot.FactLooseIngested))
	has, err = d.HasDepotFact(ctx, id, depot.FactLooseIngested)
	require.NoError(t, err)
	require.False(t, has)
}
