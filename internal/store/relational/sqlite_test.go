package relational

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pale-court/krangler-go/internal/depot"
	"github.com/pale-court/krangler-go/internal/digest"
	"github.com/pale-court/krangler-go/internal/store"
)

func openTestDriver(t *testing.T) *Driver {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "store.db")
	d, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestObjectRoundTripAndCompression(t *testing.T) {
	d := openTestDriver(t)
	ctx := context.Background()

	compressible := bytesRepeat("compress me please ", 200)
	dg := digest.FromBytes(compressible)

	bulk, err := d.WriteDataBulk(ctx)
	require.NoError(t, err)
	require.NoError(t, bulk.Store(dg, compressible))
	require.NoError(t, bulk.Commit())

	got, err := d.ReadData(ctx, dg)
	require.NoError(t, err)
	require.Equal(t, compressible, got)
}

func TestListMissingObjectsAntiJoin(t *testing.T) {
	d := openTestDriver(t)
	ctx := context.Background()

	present := []byte("present")
	dgPresent := digest.FromBytes(present)
	dgMissing := digest.FromBytes([]byte("missing"))

	bulk, err := d.WriteDataBulk(ctx)
	require.NoError(t, err)
	require.NoError(t, bulk.Store(dgPresent, present))
	require.NoError(t, bulk.Commit())

	missing, err := d.ListMissingObjects(ctx, []digest.Digest{dgPresent, dgMissing})
	require.NoError(t, err)
	require.Equal(t, []digest.Digest{dgMissing}, missing)
}

func TestIndexWriterUpsertsOnReingest(t *testing.T) {
	d := openTestDriver(t)
	ctx := context.Background()
	id := depot.ID{Depot: 1, Manifest: 42}

	w, err := d.IndexWriter(ctx, id, depot.Loose)
	require.NoError(t, err)
	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	w2, err := d.IndexWriter(ctx, id, depot.Loose)
	require.NoError(t, err)
	_, err = w2.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, w2.Commit())

	r, err := d.IndexReader(ctx, id, depot.Loose)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "second\n", string(got))
}

func TestIndexReaderAbsent(t *testing.T) {
	d := openTestDriver(t)
	ctx := context.Background()

	_, err := d.IndexReader(ctx, depot.ID{Depot: 1, Manifest: 2}, depot.Bundled)
	require.ErrorIs(t, err, store.ErrIndexAbsent)
}

func TestDepotFactLifecycle(t *testing.T) {
	d := openTestDriver(t)
	ctx := context.Background()
	id := depot.ID{Depot: 3, Manifest: 4}

	has, err := d.HasDepotFact(ctx, id, depot.FactHasBundles)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, d.SetDepotFact(ctx, id, depot.FactHasBundles))
	has, err = d.HasDepotFact(ctx, id, depot.FactHasBundles)
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, d.UnsetDepotFact(ctx, id, depot.FactHasBundles))
	has, err = d.HasDepotFact(ctx, id, depot.FactHasBundles)
	require.NoError(t, err)
	require.False(t, has)
}

func bytesRepeat(s string, n int) []byte {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return out
}
