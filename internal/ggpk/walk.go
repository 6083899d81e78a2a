package ggpk

import "strings"

// Entries reconstructs the full path of every FILE chunk reachable from the
// root directory. Orphan files (no back-edge chain to the root) are
// skipped, as are entries whose declared SHA-256 is all-zero (§4.7 Open
// Question c: treated as unhashed, no byte-identical reconstruction
// attempted).
func (p *Pack) Entries() []Entry {
	var entries []Entry
	for off, f := range p.files {
		segments, ok := p.pathSegments(off)
		if !ok {
			continue
		}
		if isZeroSHA256(f.sha256) {
			continue
		}
		entries = append(entries, Entry{
			Path:     strings.Join(segments, "/"),
			SHA256:   f.sha256,
			DataOff:  f.dataOff,
			DataSize: f.dataSize,
		})
	}
	return entries
}

// pathSegments walks child_offset -> parent back-edges from childOffset up
// to the root, returning the directory names root-to-leaf plus the entry's
// own name. The root directory's own name is never included.
func (p *Pack) pathSegments(childOffset int64) ([]string, bool) {
	var reversed []string

	name, ok := p.nameOf(childOffset)
	if !ok {
		return nil, false
	}
	reversed = append(reversed, name)

	cur := childOffset
	for {
		parent, ok := p.parentOf[cur]
		if !ok {
			return nil, false // orphan: never reached the root
		}
		if parent == p.root {
			break
		}
		dir, ok := p.dirs[parent]
		if !ok {
			return nil, false
		}
		reversed = append(reversed, dir.name)
		cur = parent
	}

	segments := make([]string, len(reversed))
	for i, s := range reversed {
		segments[len(reversed)-1-i] = s
	}
	return segments, true
}

func (p *Pack) nameOf(offset int64) (string, bool) {
	if f, ok := p.files[offset]; ok {
		return f.name, true
	}
	if d, ok := p.dirs[offset]; ok {
		return d.name, true
	}
	return "", false
}

func isZeroSHA256(sha [32]byte) bool {
	for _, b := range sha {
		if b != 0 {
			return false
		}
	}
	return true
}
