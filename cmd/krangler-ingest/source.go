package main

import (
	"fmt"

	"github.com/pale-court/krangler-go/internal/source"
)

// openSource adapts --source/--source-kind into a source.Source, closing
// over whichever of the two out-of-scope producer adaptors (directory
// walk, staged ZIP archive) the flag names.
func openSource(kind, path string) (source.Source, func() error, error) {
	switch kind {
	case "dir":
		return source.NewDirSource(path), nil, nil
	case "zip":
		z, err := source.OpenZipSource(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open zip source %s: %w", path, err)
		}
		return z, z.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q (want \"dir\" or \"zip\")", kind)
	}
}
