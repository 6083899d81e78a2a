// Package oodle isolates the one external, proprietary codec the bundle
// format depends on: Oodle block decompression. The real implementation
// binds github.com/oriath-net/gooz, the Go port of the "ooz" Oodle
// reimplementation used by the closest pack analogue, jchantrell/exiledb,
// for the identical Path of Exile bundle container format.
//
// The rest of the bundle package depends only on the Decompressor
// interface below, never on gooz directly, so tests can substitute a
// trivial stand-in codec for fixtures that don't carry real Oodle-encoded
// bytes.
package oodle

import "github.com/oriath-net/gooz"

// Decompressor decompresses one Oodle-compressed block. dstSize is the
// exact expected decompressed length (known up front from the bundle
// header, §4.3).
type Decompressor interface {
	Decompress(src []byte, dstSize int) ([]byte, error)
}

// gooz implementation.
type goozDecompressor struct{}

// Default is the production Decompressor, backed by gooz's Oodle
// reimplementation.
var Default Decompressor = goozDecompressor{}

func (goozDecompressor) Decompress(src []byte, dstSize int) ([]byte, error) {
	return gooz.Decompress(src, dstSize)
}
