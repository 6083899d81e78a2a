package pathhash

import "testing"

func TestMurmurHash2_64A_KnownVector(t *testing.T) {
	// Empty input with a zero seed must reduce to 0: the initial state
	// seed ^ (0 * m) is 0 and the avalanche keeps it 0. This checks the
	// empty-input path only; with an all-zero state the values of m and r
	// do not affect the result.
	got := MurmurHash2_64A(nil, 0)
	if got != 0 {
		t.Fatalf("MurmurHash2_64A(nil, 0) = %#x, want 0", got)
	}
}

func TestMurmurHash2_64A_Deterministic(t *testing.T) {
	a := MurmurHash2_64A([]byte("art/2dart/bandits"), ModernSeed)
	b := MurmurHash2_64A([]byte("art/2dart/bandits"), ModernSeed)
	if a != b {
		t.Fatalf("hash not deterministic: %#x != %#x", a, b)
	}
	if a == MurmurHash2_64A([]byte("art/2dart/bandits2"), ModernSeed) {
		t.Fatalf("distinct inputs collided")
	}
}

func TestFNV1a64_OffsetBasis(t *testing.T) {
	if got := FNV1a64(nil); got != fnvOffsetBasis {
		t.Fatalf("FNV1a64(nil) = %#x, want offset basis %#x", got, fnvOffsetBasis)
	}
}

func TestHashFile_LegacyLowercasesAndSuffixes(t *testing.T) {
	mixed := HashFile(Legacy, "Art/2DArt/Bandits.dds")
	lower := FNV1a64([]byte("art/2dart/bandits.dds++"))
	if mixed != lower {
		t.Fatalf("legacy file hash = %#x, want %#x", mixed, lower)
	}
}

func TestHashDir_LegacySkipsLowercase(t *testing.T) {
	mixed := HashDir(Legacy, "Art")
	notLowered := FNV1a64([]byte("Art++"))
	if mixed != notLowered {
		t.Fatalf("legacy dir hash lowercased when it should not have")
	}
	if mixed == FNV1a64([]byte("art++")) {
		t.Fatalf("legacy dir hash should differ from the lowercased variant in this fixture")
	}
}

func TestHashFile_Modern(t *testing.T) {
	got := HashFile(Modern, "Art/2DArt/Bandits.dds")
	want := MurmurHash2_64A([]byte("art/2dart/bandits.dds"), ModernSeed)
	if got != want {
		t.Fatalf("modern file hash = %#x, want %#x", got, want)
	}
}

func TestHashDir_ModernSameAsFile(t *testing.T) {
	// Variant B uses the same reduction for files and directories.
	if HashDir(Modern, "Art") != HashFile(Modern, "Art") {
		t.Fatalf("modern file/dir hash should agree for the same path")
	}
}
