package bundle

import (
	"encoding/binary"
	"sort"

	"github.com/pale-court/krangler-go/internal/oodle"
	"github.com/pale-court/krangler-go/internal/pathhash"
)

// BundleEntry describes one named outer bundle referenced by the index.
type BundleEntry struct {
	Name             string
	UncompressedSize uint32
}

// FileEntry is one file record from the index's file table, resolved to a
// path once path reconstruction has run.
type FileEntry struct {
	PathFingerprint uint64
	BundleIndex     uint32
	FileOffset      uint32
	FileSize        uint32
	Path            string // empty if no path_rep resolved to this fingerprint
}

type pathRep struct {
	hash          uint64
	offset        uint32
	size          uint32
	recursiveSize uint32
}

// Index is the decoded content of Bundles2/_.index.bin (§4.3).
type Index struct {
	Bundles []BundleEntry
	Files   []FileEntry

	// Algorithm records which path-hash variant matched during detection
	// (§4.3 algorithm detection).
	Algorithm pathhash.Algorithm
}

// ParseIndex decodes the already-Oodle-decompressed payload of the index
// bundle. dec decompresses the nested path_comp bundle; pass nil to use
// oodle.Default.
func ParseIndex(payload []byte, dec oodle.Decompressor) (*Index, error) {
	p := 0
	need := func(n int) error {
		if p+n > len(payload) {
			return corruptf("index truncated at offset %d, need %d more bytes", p, n)
		}
		return nil
	}

	if err := need(4); err != nil {
		return nil, err
	}
	bundleCount := binary.LittleEndian.Uint32(payload[p:])
	p += 4

	bundles := make([]BundleEntry, bundleCount)
	for i := range bundles {
		if err := need(4); err != nil {
			return nil, err
		}
		nameLen := int(binary.LittleEndian.Uint32(payload[p:]))
		p += 4
		if err := need(nameLen + 4); err != nil {
			return nil, err
		}
		name := string(payload[p : p+nameLen])
		p += nameLen
		size := binary.LittleEndian.Uint32(payload[p:])
		p += 4
		bundles[i] = BundleEntry{Name: name, UncompressedSize: size}
	}

	if err := need(4); err != nil {
		return nil, err
	}
	fileCount := binary.LittleEndian.Uint32(payload[p:])
	p += 4

	files := make([]FileEntry, fileCount)
	for i := range files {
		if err := need(20); err != nil {
			return nil, err
		}
		files[i] = FileEntry{
			PathFingerprint: binary.LittleEndian.Uint64(payload[p:]),
			BundleIndex:     binary.LittleEndian.Uint32(payload[p+8:]),
			FileOffset:      binary.LittleEndian.Uint32(payload[p+12:]),
			FileSize:        binary.LittleEndian.Uint32(payload[p+16:]),
		}
		p += 20
	}

	if err := need(4); err != nil {
		return nil, err
	}
	pathRepCount := binary.LittleEndian.Uint32(payload[p:])
	p += 4

	reps := make([]pathRep, pathRepCount)
	for i := range reps {
		if err := need(20); err != nil {
			return nil, err
		}
		reps[i] = pathRep{
			hash:          binary.LittleEndian.Uint64(payload[p:]),
			offset:        binary.LittleEndian.Uint32(payload[p+8:]),
			size:          binary.LittleEndian.Uint32(payload[p+12:]),
			recursiveSize: binary.LittleEndian.Uint32(payload[p+16:]),
		}
		p += 20
	}

	pathCompRaw := payload[p:]
	pathComp, err := Decode(pathCompRaw, dec)
	if err != nil {
		return nil, err
	}

	algo, err := detectAlgorithm(reps)
	if err != nil {
		return nil, err
	}

	byFingerprint := make(map[uint64]int, len(files))
	for i, f := range files {
		byFingerprint[f.PathFingerprint] = i
	}

	for _, rep := range reps {
		if rep.offset+rep.size > uint32(len(pathComp)) {
			return nil, corruptf("path_rep region [%d,%d) exceeds path_comp length %d", rep.offset, rep.offset+rep.size, len(pathComp))
		}
		region := pathComp[rep.offset : rep.offset+rep.size]
		for _, path := range decodePathspec(region) {
			modernFP := pathhash.HashFile(pathhash.Modern, path)
			if i, ok := byFingerprint[modernFP]; ok {
				files[i].Path = path
				continue
			}
			if algo == pathhash.Legacy {
				legacyFP := pathhash.HashFile(pathhash.Legacy, path)
				if i, ok := byFingerprint[legacyFP]; ok {
					files[i].Path = path
				}
			}
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return &Index{Bundles: bundles, Files: files, Algorithm: algo}, nil
}

// detectAlgorithm implements §4.3's algorithm detection: probe hash_dir("Art")
// under both variants against the index's path_rep hashes.
func detectAlgorithm(reps []pathRep) (pathhash.Algorithm, error) {
	legacyArt := pathhash.HashDir(pathhash.Legacy, "Art")
	modernArt := pathhash.HashDir(pathhash.Modern, "Art")

	for _, rep := range reps {
		if rep.hash == modernArt {
			return pathhash.Modern, nil
		}
	}
	for _, rep := range reps {
		if rep.hash == legacyArt {
			return pathhash.Legacy, nil
		}
	}
	return 0, &UnknownHashAlgorithmError{}
}
