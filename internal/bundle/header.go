// Package bundle parses the outer bundle container (§4.3): a block-framed,
// Oodle-compressed payload, plus the index bundle's file table and the
// two-phase path-string reconstruction layered on top of it.
//
// Grounded on the pack reference internal-bundle-index.go.go (the Path of
// Exile bundle reader from jchantrell/exiledb), the closest available
// analogue for this exact container format.
package bundle

import (
	"encoding/binary"
	"fmt"

	"github.com/pale-court/krangler-go/internal/oodle"
)

// fixedHeaderLen is the byte length of the outer bundle header up to, but
// not including, the block_sizes array.
const fixedHeaderLen = 4*5 + 8*2 + 4*2 + 4*4

// Header is the outer bundle's fixed fields, §4.3.
type Header struct {
	UncompressedSize  uint32
	TotalPayloadSize  uint32
	HeadPayloadSize   uint32
	FirstFileEncode   uint32
	Unknown10         uint32
	BlockCount        uint32
	BlockGranularity  uint32
	BlockSizes        []uint32
}

// parseHeader reads the fixed header and the block_sizes array starting at
// data[0]. It returns the header and the byte offset of the first block
// payload.
func parseHeader(data []byte) (Header, int, error) {
	if len(data) < fixedHeaderLen {
		return Header{}, 0, corruptf("header truncated: have %d bytes, need at least %d", len(data), fixedHeaderLen)
	}

	var h Header
	h.UncompressedSize = binary.LittleEndian.Uint32(data[0:4])
	h.TotalPayloadSize = binary.LittleEndian.Uint32(data[4:8])
	h.HeadPayloadSize = binary.LittleEndian.Uint32(data[8:12])
	h.FirstFileEncode = binary.LittleEndian.Uint32(data[12:16])
	h.Unknown10 = binary.LittleEndian.Uint32(data[16:20])

	uncompressedSize2 := binary.LittleEndian.Uint64(data[20:28])
	totalPayloadSize2 := binary.LittleEndian.Uint64(data[28:36])
	if uncompressedSize2 != uint64(h.UncompressedSize) {
		return Header{}, 0, corruptf("uncompressed_size duplicate mismatch: %d vs %d", h.UncompressedSize, uncompressedSize2)
	}
	if totalPayloadSize2 != uint64(h.TotalPayloadSize) {
		return Header{}, 0, corruptf("total_payload_size duplicate mismatch: %d vs %d", h.TotalPayloadSize, totalPayloadSize2)
	}

	h.BlockCount = binary.LittleEndian.Uint32(data[36:40])
	h.BlockGranularity = binary.LittleEndian.Uint32(data[40:44])
	// data[44:60] is the four reserved words; the Open Question b decision
	// is to skip them without validation.

	offset := fixedHeaderLen
	need := offset + int(h.BlockCount)*4
	if len(data) < need {
		return Header{}, 0, corruptf("block_sizes truncated: have %d bytes, need %d", len(data), need)
	}
	h.BlockSizes = make([]uint32, h.BlockCount)
	for i := range h.BlockSizes {
		h.BlockSizes[i] = binary.LittleEndian.Uint32(data[offset : offset+4])
		offset += 4
	}

	return h, offset, nil
}

// Decode parses and fully decompresses a bundle's raw bytes using dec,
// returning the concatenated, uncompressed payload.
func Decode(raw []byte, dec oodle.Decompressor) ([]byte, error) {
	h, blockOffset, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}
	if dec == nil {
		dec = oodle.Default
	}

	out := make([]byte, 0, h.UncompressedSize)
	offset := blockOffset
	remaining := h.UncompressedSize
	for i, blockSize := range h.BlockSizes {
		if offset+int(blockSize) > len(raw) {
			return nil, corruptf("block %d payload truncated: offset %d size %d len %d", i, offset, blockSize, len(raw))
		}
		src := raw[offset : offset+int(blockSize)]
		offset += int(blockSize)

		want := h.BlockGranularity
		if want == 0 || want > remaining {
			want = remaining
		}
		block, err := dec.Decompress(src, int(want))
		if err != nil {
			return nil, fmt.Errorf("bundle: decompress block %d: %w", i, err)
		}
		if uint32(len(block)) != want {
			return nil, corruptf("block %d decompressed to %d bytes, want %d", i, len(block), want)
		}
		out = append(out, block...)
		remaining -= want
	}

	if uint32(len(out)) != h.UncompressedSize {
		return nil, corruptf("decoded %d bytes, want %d", len(out), h.UncompressedSize)
	}
	return out, nil
}
