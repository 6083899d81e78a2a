package pathhash

import "strings"

// ModernSeed is the fixed seed used by the modern MurmurHash2-64A path
// fingerprint (§4.1 Variant B).
const ModernSeed = uint64(0x1337B33F)

// fileSuffix is appended to the path before legacy hashing (§4.1 Variant
// A): to the lowercased path for a file, to the path as given for a
// directory.
const fileSuffix = "++"

// Algorithm names a path-fingerprint variant.
type Algorithm int

const (
	// Legacy is Variant A: FNV-1a-64 with a "++" suffix for files and
	// directories, and no lowercasing for directories.
	Legacy Algorithm = iota
	// Modern is Variant B: MurmurHash2-64A, seeded, always lowercased.
	Modern
)

func (a Algorithm) String() string {
	switch a {
	case Legacy:
		return "legacy"
	case Modern:
		return "modern"
	default:
		return "unknown"
	}
}

// toRootRelative reduces an absolute or backslash-separated path to its
// POSIX-style root-relative form. The wire case is preserved; callers
// lowercase separately where the algorithm calls for it.
func toRootRelative(path string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	p = strings.TrimPrefix(p, "/")
	for strings.HasPrefix(p, "../") {
		p = p[3:]
	}
	return p
}

// HashFile returns the path fingerprint of a file path under the given
// algorithm.
func HashFile(alg Algorithm, path string) uint64 {
	rel := toRootRelative(path)
	switch alg {
	case Legacy:
		return FNV1a64([]byte(strings.ToLower(rel) + fileSuffix))
	default:
		return MurmurHash2_64A([]byte(strings.ToLower(rel)), ModernSeed)
	}
}

// HashDir returns the path fingerprint of a directory path under the given
// algorithm. The legacy variant skips lowercasing for directories.
func HashDir(alg Algorithm, path string) uint64 {
	rel := toRootRelative(path)
	switch alg {
	case Legacy:
		return FNV1a64([]byte(rel + fileSuffix))
	default:
		return MurmurHash2_64A([]byte(strings.ToLower(rel)), ModernSeed)
	}
}
