package extentmap

import (
	"encoding/binary"

	"github.com/pale-court/krangler-go/internal/digest"
)

// Three logical tables share one badger keyspace, namespaced by a leading
// byte so range scans over one table never cross into another. The extent
// table's keys additionally sort so that all entries for a given bundle
// digest are contiguous (§4.2 scan_extents_by_bundle, §6.3).
const (
	nsExtent byte = 'e'
	nsPath   byte = 'p'
	nsBridge byte = 'b'
)

// extentKeyLen is §6.3's 32 + 4 + 4 = 40 bytes, plus the namespace byte.
const extentKeyLen = 1 + digest.Size + 4 + 4

func extentKey(bundle digest.Digest, offset, size uint32) []byte {
	key := make([]byte, extentKeyLen)
	key[0] = nsExtent
	copy(key[1:], bundle[:])
	binary.LittleEndian.PutUint32(key[1+digest.Size:], offset)
	binary.LittleEndian.PutUint32(key[1+digest.Size+4:], size)
	return key
}

// extentBundlePrefix returns the key prefix common to every extent of the
// given bundle, i.e. the namespace byte plus the bundle digest.
func extentBundlePrefix(bundle digest.Digest) []byte {
	prefix := make([]byte, 1+digest.Size)
	prefix[0] = nsExtent
	copy(prefix[1:], bundle[:])
	return prefix
}

func pathKey(fingerprint uint64) []byte {
	key := make([]byte, 1+8)
	key[0] = nsPath
	binary.LittleEndian.PutUint64(key[1:], fingerprint)
	return key
}

func bridgeKey(sha1 digest.SHA1) []byte {
	key := make([]byte, 1+digest.SHA1Size)
	key[0] = nsBridge
	copy(key[1:], sha1[:])
	return key
}
