package extentmap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pale-court/krangler-go/internal/digest"
)

func openTestMap(t *testing.T) *Map {
	t.Helper()
	m, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestExtentRoundTrip(t *testing.T) {
	m := openTestMap(t)
	bundle := digest.FromBytes([]byte("X.bundle.bin"))
	want := digest.FromBytes([]byte("DEFG"))

	_, found, err := m.GetExtent(bundle, 3, 4)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, m.PutExtents([]PendingExtent{{Bundle: bundle, Offset: 3, Size: 4, Digest: want}}))

	got, found, err := m.GetExtent(bundle, 3, 4)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want, got)
}

func TestScanExtentsByBundleGroupsContiguously(t *testing.T) {
	m := openTestMap(t)
	bundleA := digest.FromBytes([]byte("bundleA"))
	bundleB := digest.FromBytes([]byte("bundleB"))

	batch := []PendingExtent{
		{Bundle: bundleA, Offset: 0, Size: 4, Digest: digest.FromBytes([]byte("a0"))},
		{Bundle: bundleB, Offset: 0, Size: 4, Digest: digest.FromBytes([]byte("b0"))},
		{Bundle: bundleA, Offset: 10, Size: 6, Digest: digest.FromBytes([]byte("a10"))},
	}
	require.NoError(t, m.PutExtents(batch))

	got, err := m.ScanExtentsByBundle(bundleA)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, e := range got {
		require.True(t, e.Offset == 0 || e.Offset == 10)
	}

	got, err = m.ScanExtentsByBundle(bundleB)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.EqualValues(t, 0, got[0].Offset)
}

func TestPutPathsIdempotent(t *testing.T) {
	m := openTestMap(t)
	const fp = uint64(12345)

	require.NoError(t, m.PutPaths([]PendingPath{{Fingerprint: fp, Path: "Art/first.dds"}}))
	require.NoError(t, m.PutPaths([]PendingPath{{Fingerprint: fp, Path: "Art/second.dds"}}))

	got, found, err := m.GetPath(fp)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Art/first.dds", got)
}

func TestSHA1BridgeMonotonic(t *testing.T) {
	m := openTestMap(t)
	h1 := digest.SHA1OfBytes([]byte("hello"))
	h2a := digest.FromBytes([]byte("hello"))
	h2b := digest.FromBytes([]byte("different content"))

	require.NoError(t, m.PutSHA256FromSHA1(h1, h2a))
	require.NoError(t, m.PutSHA256FromSHA1(h1, h2b))

	got, found, err := m.GetSHA256FromSHA1(h1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, h2a, got, "bridge entries must never be rewritten once set")
}
