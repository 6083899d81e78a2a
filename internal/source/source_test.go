package source

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirSourceWalkAndOpen(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Art"), 0o777))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Art", "textures.dds"), []byte("dds"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Content.ggpk"), []byte("pack"), 0o644))

	s := NewDirSource(dir)
	entries, err := s.Walk()
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)
	require.Equal(t, []string{"Art/textures.dds", "Content.ggpk"}, paths)

	require.True(t, s.Contains("Content.ggpk"))
	require.False(t, s.Contains("missing.bin"))

	rc, err := s.Open("Art/textures.dds")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "dds", string(got))
}

func TestZipSourceWalkAndOpen(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "staged.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("bin/game.exe")
	require.NoError(t, err)
	_, err = w.Write([]byte("exe bytes"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	s, err := OpenZipSource(zipPath)
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.Contains("bin/game.exe"))
	entries, err := s.Walk()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "bin/game.exe", entries[0].Path)

	rc, err := s.Open("bin/game.exe")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "exe bytes", string(got))
}
