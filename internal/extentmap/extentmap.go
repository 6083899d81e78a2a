// Package extentmap implements the persistent extent memoization database
// (§4.2): a key-value cache of (outer-bundle-digest, offset, length) →
// inner-file-digest, a path dictionary, and a SHA-1→SHA-256 bridge table.
//
// The embedded store is badger/v3, chosen because it provides the ordered
// byte-key iteration §4.2 requires for scan_extents_by_bundle without an
// auxiliary secondary index (§9 design note on range scans).
package extentmap

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/pale-court/krangler-go/internal/digest"
)

// Extent is one (offset, length, digest) entry within a single outer
// bundle, as returned by ScanExtentsByBundle.
type Extent struct {
	Offset uint32
	Size   uint32
	Digest digest.Digest
}

// Map wraps a badger database holding the three logical tables described in
// §4.2. A single badger instance is shared across manifests; callers
// coordinate lifetime via Open/Close.
type Map struct {
	db *badger.DB
}

// Open opens (creating if absent) the extent map database rooted at dir.
func Open(dir string) (*Map, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("extentmap: open %s: %w", dir, err)
	}
	return &Map{db: db}, nil
}

// Close releases the underlying database.
func (m *Map) Close() error {
	return m.db.Close()
}

// GetExtent performs the point lookup described in §4.2 get_extent.
func (m *Map) GetExtent(bundle digest.Digest, offset, size uint32) (digest.Digest, bool, error) {
	var out digest.Digest
	found := false
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(extentKey(bundle, offset, size))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			if len(val) != digest.Size {
				return fmt.Errorf("extentmap: corrupt extent value length %d", len(val))
			}
			copy(out[:], val)
			return nil
		})
	})
	if err != nil {
		return digest.Digest{}, false, err
	}
	return out, found, nil
}

// ScanExtentsByBundle implements §4.2 scan_extents_by_bundle: an
// insertion-order-agnostic range scan over every extent recorded for
// bundle, starting at the first key ≥ bundle‖0‖0 and stopping at the first
// key whose leading 32 bytes differ from bundle.
func (m *Map) ScanExtentsByBundle(bundle digest.Digest) ([]Extent, error) {
	prefix := extentBundlePrefix(bundle)
	var extents []Extent

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			off, size, err := decodeExtentKeySuffix(key)
			if err != nil {
				return err
			}
			var d digest.Digest
			if err := item.Value(func(val []byte) error {
				if len(val) != digest.Size {
					return fmt.Errorf("extentmap: corrupt extent value length %d", len(val))
				}
				copy(d[:], val)
				return nil
			}); err != nil {
				return err
			}
			extents = append(extents, Extent{Offset: off, Size: size, Digest: d})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return extents, nil
}

func decodeExtentKeySuffix(key []byte) (offset, size uint32, err error) {
	if len(key) != extentKeyLen {
		return 0, 0, fmt.Errorf("extentmap: corrupt extent key length %d", len(key))
	}
	tail := key[1+digest.Size:]
	return leUint32(tail[0:4]), leUint32(tail[4:8]), nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// PendingExtent is one entry queued for PutExtents.
type PendingExtent struct {
	Bundle digest.Digest
	Offset uint32
	Size   uint32
	Digest digest.Digest
}

// PutExtents implements §4.2 put_extents: an atomic bulk insert, so a
// mid-flight abort never leaves a partially-written batch visible (§5
// ordering guarantee: the extent-map batch commits before the matching
// object-upload batch).
func (m *Map) PutExtents(batch []PendingExtent) error {
	if len(batch) == 0 {
		return nil
	}
	return m.db.Update(func(txn *badger.Txn) error {
		for _, e := range batch {
			if err := txn.Set(extentKey(e.Bundle, e.Offset, e.Size), append([]byte(nil), e.Digest[:]...)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPath implements §4.2 get_path.
func (m *Map) GetPath(fingerprint uint64) (string, bool, error) {
	var path string
	found := false
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pathKey(fingerprint))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			path = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return path, found, nil
}

// PendingPath is one entry queued for PutPaths.
type PendingPath struct {
	Fingerprint uint64
	Path        string
}

// PutPaths implements §4.2 put_paths with idempotent semantics: an existing
// entry for a fingerprint is never overwritten.
func (m *Map) PutPaths(batch []PendingPath) error {
	if len(batch) == 0 {
		return nil
	}
	return m.db.Update(func(txn *badger.Txn) error {
		for _, p := range batch {
			key := pathKey(p.Fingerprint)
			if _, err := txn.Get(key); err == nil {
				continue // idempotent put: first writer wins
			} else if err != badger.ErrKeyNotFound {
				return err
			}
			if err := txn.Set(key, []byte(p.Path)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSHA256FromSHA1 implements §4.2 get_sha256_from_sha1.
func (m *Map) GetSHA256FromSHA1(h1 digest.SHA1) (digest.Digest, bool, error) {
	var out digest.Digest
	found := false
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(bridgeKey(h1))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			if len(val) != digest.Size {
				return fmt.Errorf("extentmap: corrupt bridge value length %d", len(val))
			}
			copy(out[:], val)
			return nil
		})
	})
	if err != nil {
		return digest.Digest{}, false, err
	}
	return out, found, nil
}

// PutSHA256FromSHA1 implements §4.2 put_sha256_from_sha1. Per §3's
// monotonic invariant, an existing bridge entry for h1 is never rewritten.
func (m *Map) PutSHA256FromSHA1(h1 digest.SHA1, h2 digest.Digest) error {
	return m.db.Update(func(txn *badger.Txn) error {
		key := bridgeKey(h1)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, append([]byte(nil), h2[:]...))
	})
}
