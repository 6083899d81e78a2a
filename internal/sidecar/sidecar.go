// Package sidecar decodes the depot manifest sidecar (§6.6): a
// zlib-deflated protobuf message listing every file in a depot with its
// SHA-1 hint and size. The message is decoded by hand against the wire
// format via protowire's low-level primitives rather than generated code,
// since no .proto compiler runs in this pipeline.
package sidecar

import (
	"compress/zlib"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/pale-court/krangler-go/internal/digest"
)

// dirFlag marks a Files entry as a directory (§6.6), to be skipped.
const dirFlag = 0x40

// File is one decoded Files entry.
type File struct {
	Name  string
	SHA1  digest.SHA1
	Size  uint64
	Flags uint32
}

// IsDir reports whether the OS-attribute directory flag is set.
func (f File) IsDir() bool { return f.Flags&dirFlag != 0 }

// field numbers on the top-level message and its repeated Files entries.
// The wire message has a single repeated field (Files); within each Files
// entry the four fields appear in FileName, FileHash, TotalSize, Flags
// order.
const (
	fieldFiles = 1

	fieldFileName  = 1
	fieldFileHash  = 2
	fieldTotalSize = 3
	fieldFlags     = 4
)

// Parse inflates r's zlib stream and decodes its Files entries.
func Parse(r io.Reader) ([]File, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("sidecar: zlib: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("sidecar: inflate: %w", err)
	}
	return decode(raw)
}

func decode(data []byte) ([]File, error) {
	var files []File

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("sidecar: malformed tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		if num != fieldFiles || typ != protowire.BytesType {
			// Skip unknown top-level fields rather than failing the whole
			// sidecar over a field this code doesn't know about.
			skip, n2 := protowire.ConsumeFieldValue(num, typ, data)
			if n2 < 0 {
				return nil, fmt.Errorf("sidecar: skip field %d: %w", num, protowire.ParseError(n2))
			}
			_ = skip
			data = data[n2:]
			continue
		}

		entryBytes, n2 := protowire.ConsumeBytes(data)
		if n2 < 0 {
			return nil, fmt.Errorf("sidecar: malformed Files entry: %w", protowire.ParseError(n2))
		}
		data = data[n2:]

		f, err := decodeFileEntry(entryBytes)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	return files, nil
}

func decodeFileEntry(data []byte) (File, error) {
	var f File
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return File{}, fmt.Errorf("sidecar: malformed entry tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldFileName:
			v, n2 := protowire.ConsumeBytes(data)
			if n2 < 0 {
				return File{}, fmt.Errorf("sidecar: FileName: %w", protowire.ParseError(n2))
			}
			f.Name = string(v)
			data = data[n2:]

		case fieldFileHash:
			v, n2 := protowire.ConsumeBytes(data)
			if n2 < 0 {
				return File{}, fmt.Errorf("sidecar: FileHash: %w", protowire.ParseError(n2))
			}
			sha, err := digest.SHA1FromBytes(v)
			if err != nil {
				return File{}, fmt.Errorf("sidecar: FileHash: %w", err)
			}
			f.SHA1 = sha
			data = data[n2:]

		case fieldTotalSize:
			v, n2 := protowire.ConsumeVarint(data)
			if n2 < 0 {
				return File{}, fmt.Errorf("sidecar: TotalSize: %w", protowire.ParseError(n2))
			}
			f.Size = v
			data = data[n2:]

		case fieldFlags:
			v, n2 := protowire.ConsumeVarint(data)
			if n2 < 0 {
				return File{}, fmt.Errorf("sidecar: Flags: %w", protowire.ParseError(n2))
			}
			f.Flags = uint32(v)
			data = data[n2:]

		default:
			skip, n2 := protowire.ConsumeFieldValue(num, typ, data)
			if n2 < 0 {
				return File{}, fmt.Errorf("sidecar: skip entry field %d: %w", num, protowire.ParseError(n2))
			}
			_ = skip
			data = data[n2:]
		}
	}
	return f, nil
}
