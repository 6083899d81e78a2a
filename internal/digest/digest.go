// Package digest provides the content-addressing primitive used across the
// pipeline: a 32-byte SHA-256 digest, serialized as 64-char lowercase hex at
// the index boundary and carried as raw bytes everywhere else. A 20-byte
// SHA-1 type models the depot-manifest-supplied hint (§3 Digest).
package digest

import (
	"crypto/sha1" //nolint:gosec // depot-manifest hint only, never used for addressing
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Size is the byte length of a Digest.
const Size = sha256.Size

// Digest is a 32-byte SHA-256 content digest.
type Digest [Size]byte

// Zero is the all-zero digest, used by GGPK to mark unhashed entries.
var Zero Digest

// IsZero reports whether d is the all-zero digest.
func (d Digest) IsZero() bool {
	return d == Zero
}

// String renders d as 64-char lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText implements encoding.TextMarshaler so Digest serializes as hex
// inside NDJSON index rows.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Parse decodes a 64-char lowercase hex string into a Digest.
func Parse(s string) (Digest, error) {
	var d Digest
	if len(s) != Size*2 {
		return d, fmt.Errorf("digest: wrong length %d, want %d", len(s), Size*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("digest: invalid hex: %w", err)
	}
	copy(d[:], b)
	return d, nil
}

// FromBytes computes the SHA-256 digest of p.
func FromBytes(p []byte) Digest {
	return Digest(sha256.Sum256(p))
}

// FromRawBytes wraps an already-computed 32-byte digest value, e.g. one
// read back from a store's binary column. It does not hash p.
func FromRawBytes(p []byte) (Digest, error) {
	var d Digest
	if len(p) != Size {
		return d, fmt.Errorf("digest: raw value wrong length %d, want %d", len(p), Size)
	}
	copy(d[:], p)
	return d, nil
}

// FromReader computes the SHA-256 digest of everything read from r.
func FromReader(r io.Reader) (Digest, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Digest{}, err
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// SHA1Size is the byte length of a SHA1 hint.
const SHA1Size = sha1.Size

// SHA1 is a 20-byte SHA-1 digest, used only as a depot-manifest hint and
// never as an object address.
type SHA1 [SHA1Size]byte

// String renders s as 40-char lowercase hex.
func (s SHA1) String() string {
	return hex.EncodeToString(s[:])
}

// SHA1FromBytes wraps a raw 20-byte SHA-1 hash. It does not compute a hash;
// use SHA1OfBytes for that.
func SHA1FromBytes(b []byte) (SHA1, error) {
	var s SHA1
	if len(b) != SHA1Size {
		return s, fmt.Errorf("digest: sha1 hint wrong length %d, want %d", len(b), SHA1Size)
	}
	copy(s[:], b)
	return s, nil
}

// SHA1OfBytes computes the SHA-1 hash of p. Used only when bridging a depot
// manifest's hint to a freshly observed object (§4.4 step 5).
func SHA1OfBytes(p []byte) SHA1 {
	return SHA1(sha1.Sum(p)) //nolint:gosec // hint only
}
