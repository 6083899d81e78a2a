// Package depot holds the shared identifiers and record shapes used across
// the ingestion pipeline: depot/manifest identifiers, per-manifest fact
// flags, and the NDJSON index record schema (§3, §6.2).
package depot

import "fmt"

// ID identifies a single depot/manifest pair, the key that scopes every
// per-manifest artifact (indices, fact flags).
type ID struct {
	Depot    uint32
	Manifest uint64
}

func (id ID) String() string {
	return fmt.Sprintf("%d/%d", id.Depot, id.Manifest)
}

// Kind names an index flavor.
type Kind string

const (
	// Loose is the index of externally-visible depot-tree files (§4.4).
	Loose Kind = "loose"
	// Bundled is the index of files recovered from the bundle container
	// format (§4.5).
	Bundled Kind = "bundled"
)

// Fact is a string tag recording pipeline progress for a (depot, manifest)
// pair. Facts are set at most once; existence is the only state (§3).
type Fact string

const (
	// FactLooseIngested is set once the loose index and every object it
	// references are durable (§4.4 step 7).
	FactLooseIngested Fact = "loose_ingested"
	// FactBundledIngested is set once the bundled index and every object
	// it references are durable (§4.5 step 6).
	FactBundledIngested Fact = "bundled_ingested"
	// FactHasPack marks that the source contained a legacy Content.ggpk
	// pack (§4.4 step 3).
	FactHasPack Fact = "has_pack"
	// FactHasBundles marks that the source contained a bundle index blob
	// (§4.4 step 3).
	FactHasBundles Fact = "has_bundles"
)

// Record is one row of a loose or bundled index (§6.2). Field order and
// names are fixed by the wire schema; json tags are load-bearing.
type Record struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	PHash  string `json:"phash"`
	Size   uint32 `json:"size"`
}
