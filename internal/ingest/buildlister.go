package ingest

import "context"

// ListedObject is one object a BuildLister reports for a build: a name and
// a declared size, the shape `krangler/meta_api.py`'s build listing call
// returns.
type ListedObject struct {
	Name string
	Size int64
}

// BuildLister is the narrow shape of the out-of-scope metadata HTTP
// client: given a (depot, manifest), return the object names and sizes it
// advertises for that build. No implementation lives in this module —
// only the interface, so a CLI entrypoint can wire a real HTTP-backed
// lister in later without the ingest core ever depending on net/http.
type BuildLister interface {
	ListBuildObjects(ctx context.Context, depot uint32, manifest uint64) ([]ListedObject, error)
}
