package bundle

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pale-court/krangler-go/internal/pathhash"
)

// storeDecompressor is a stand-in Oodle codec for tests: it treats "blocks"
// as already-uncompressed bytes, so fixtures don't need real Oodle-encoded
// payloads.
type storeDecompressor struct{}

func (storeDecompressor) Decompress(src []byte, dstSize int) ([]byte, error) {
	out := make([]byte, dstSize)
	copy(out, src)
	return out, nil
}

func putU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func putU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

// buildBundle assembles a one-block outer bundle wrapping payload, using
// storeDecompressor semantics (block bytes equal the uncompressed bytes).
func buildBundle(payload []byte) []byte {
	var b []byte
	b = putU32(b, uint32(len(payload))) // uncompressed_size
	b = putU32(b, uint32(len(payload))) // total_payload_size
	b = putU32(b, uint32(len(payload))) // head_payload_size
	b = putU32(b, 0)                    // first_file_encode
	b = putU32(b, 0)                    // unknown_10
	b = putU64(b, uint64(len(payload))) // uncompressed_size_2
	b = putU64(b, uint64(len(payload))) // total_payload_size_2
	b = putU32(b, 1)                    // block_count
	b = putU32(b, uint32(len(payload))) // block_granularity
	b = putU32(b, 0)                    // reserved x4
	b = putU32(b, 0)
	b = putU32(b, 0)
	b = putU32(b, 0)
	b = putU32(b, uint32(len(payload))) // block_sizes[0]
	b = append(b, payload...)
	return b
}

func TestDecodeSingleBlockBundle(t *testing.T) {
	payload := []byte("hello, this is the uncompressed payload")
	raw := buildBundle(payload)

	got, err := Decode(raw, storeDecompressor{})
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestDecodeMultiBlockBundle(t *testing.T) {
	block0 := []byte("0123456789") // granularity 10
	block1 := []byte("abcde")      // remainder 5
	payload := append(append([]byte{}, block0...), block1...)

	var b []byte
	b = putU32(b, uint32(len(payload)))
	b = putU32(b, uint32(len(block0)+len(block1)))
	b = putU32(b, uint32(len(payload)))
	b = putU32(b, 0)
	b = putU32(b, 0)
	b = putU64(b, uint64(len(payload)))
	b = putU64(b, uint64(len(block0)+len(block1)))
	b = putU32(b, 2)  // block_count
	b = putU32(b, 10) // block_granularity
	b = putU32(b, 0)
	b = putU32(b, 0)
	b = putU32(b, 0)
	b = putU32(b, 0)
	b = putU32(b, uint32(len(block0)))
	b = putU32(b, uint32(len(block1)))
	b = append(b, block0...)
	b = append(b, block1...)

	got, err := Decode(b, storeDecompressor{})
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestDecodeRejectsDuplicateMismatch(t *testing.T) {
	raw := buildBundle([]byte("abc"))
	// Corrupt the uncompressed_size_2 duplicate.
	binary.LittleEndian.PutUint64(raw[20:28], 999)

	_, err := Decode(raw, storeDecompressor{})
	require.Error(t, err)
	var ce *CorruptError
	require.ErrorAs(t, err, &ce)
}

func TestDecodePathspecBaseAndEmitPhases(t *testing.T) {
	// cmd=0 (toggle to base phase), cmd=1 "Art" (no base yet; base[0]="Art"),
	// cmd=0 (toggle to emit phase), cmd=1 -> "Art"+"/textures.dds"
	var data []byte
	data = putU32(data, 0)
	data = putU32(data, 1)
	data = append(data, "Art\x00"...)
	data = putU32(data, 0)
	data = putU32(data, 1)
	data = append(data, "/textures.dds\x00"...)

	got := decodePathspec(data)
	require.Equal(t, []string{"Art/textures.dds"}, got)
}

func TestDecodePathspecNoPrefix(t *testing.T) {
	var data []byte
	data = putU32(data, 1)
	data = append(data, "standalone.txt\x00"...)

	got := decodePathspec(data)
	require.Equal(t, []string{"standalone.txt"}, got)
}

// buildIndexPayload constructs a raw (pre-Oodle) index bundle payload for a
// single file "Art/textures.dds" using the modern hash variant, with a
// path_comp region that reconstructs that one path.
func buildIndexPayload(algo pathhash.Algorithm) []byte {
	path := "Art/textures.dds"
	fp := pathhash.HashFile(algo, path)
	artDirHash := pathhash.HashDir(algo, "Art")

	var pathData []byte
	pathData = putU32(pathData, 0)
	pathData = putU32(pathData, 1)
	pathData = append(pathData, "Art\x00"...)
	pathData = putU32(pathData, 0)
	pathData = putU32(pathData, 1)
	pathData = append(pathData, "/textures.dds\x00"...)
	pathCompBundle := buildBundle(pathData)

	var b []byte
	b = putU32(b, 1) // bundle_count
	b = putU32(b, 4)
	b = append(b, "B000"...)
	b = putU32(b, 100) // uncompressed_size

	b = putU32(b, 1) // file_count
	b = putU64(b, fp)
	b = putU32(b, 0)  // bundle_index
	b = putU32(b, 0)  // file_offset
	b = putU32(b, 16) // file_size

	b = putU32(b, 2) // path_rep_count
	b = putU64(b, artDirHash)
	b = putU32(b, 0)
	b = putU32(b, 0)
	b = putU32(b, 0)
	// second path_rep covers the whole reconstructable region
	b = putU64(b, pathhash.HashDir(algo, "unused-probe"))
	b = putU32(b, 0)
	b = putU32(b, uint32(len(pathData)))
	b = putU32(b, 0)

	b = append(b, pathCompBundle...)
	return b
}

func TestParseIndexDetectsModernAlgorithm(t *testing.T) {
	payload := buildIndexPayload(pathhash.Modern)

	idx, err := ParseIndex(payload, storeDecompressor{})
	require.NoError(t, err)
	require.Equal(t, pathhash.Modern, idx.Algorithm)
	require.Len(t, idx.Files, 1)
	require.Equal(t, "Art/textures.dds", idx.Files[0].Path)
}

func TestParseIndexDetectsLegacyAlgorithm(t *testing.T) {
	payload := buildIndexPayload(pathhash.Legacy)

	idx, err := ParseIndex(payload, storeDecompressor{})
	require.NoError(t, err)
	require.Equal(t, pathhash.Legacy, idx.Algorithm)
	require.Len(t, idx.Files, 1)
	require.Equal(t, "Art/textures.dds", idx.Files[0].Path)
}

func TestParseIndexUnknownAlgorithm(t *testing.T) {
	payload := buildIndexPayload(pathhash.Modern)
	// Corrupt every path_rep hash so neither probe matches.
	// bundle table: 4(count)+4(namelen)+4(name)+4(size) = 16 bytes
	// file table starts at offset 16+4(file_count)=20, one record of 20 bytes -> ends at 40
	// path_rep_count at 40, first hash at 44
	binary.LittleEndian.PutUint64(payload[44:52], 0xdeadbeefdeadbeef)
	binary.LittleEndian.PutUint64(payload[64:72], 0xfeedfacefeedface)

	_, err := ParseIndex(payload, storeDecompressor{})
	require.Error(t, err)
	var uae *UnknownHashAlgorithmError
	require.ErrorAs(t, err, &uae)
}
