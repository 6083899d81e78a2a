package dcontext

import "context"

type depotKey struct{}
type manifestKey struct{}
type kindKey struct{}

func (depotKey) String() string    { return "depot" }
func (manifestKey) String() string { return "manifest" }
func (kindKey) String() string     { return "kind" }

// WithIngestScope returns a context annotated with the (depot, manifest,
// kind) triple that scopes a single ingest phase invocation (§5: "every
// phase checks its completion fact first"). IngestLogger(ctx) adds these
// fields by passing their keys to GetLogger; a bare GetLogger(ctx) does not.
func WithIngestScope(ctx context.Context, depot uint32, manifest uint64, kind string) context.Context {
	ctx = context.WithValue(ctx, depotKey{}, depot)
	ctx = context.WithValue(ctx, manifestKey{}, manifest)
	ctx = context.WithValue(ctx, kindKey{}, kind)
	return ctx
}

// IngestLogger returns GetLogger(ctx) pre-annotated with any ingest scope
// previously attached via WithIngestScope.
func IngestLogger(ctx context.Context) Logger {
	return GetLogger(ctx, depotKey{}, manifestKey{}, kindKey{})
}
