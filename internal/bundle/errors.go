package bundle

import "fmt"

// CorruptError reports a §4.3 outer-bundle or index-bundle structural
// failure: header self-consistency, block decompression, or a declared
// size mismatch. It corresponds to the spec's CorruptBundle error kind
// (§7) and is fatal only to the manifest currently being processed.
type CorruptError struct {
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("bundle: corrupt: %s", e.Reason)
}

func corruptf(format string, args ...any) error {
	return &CorruptError{Reason: fmt.Sprintf(format, args...)}
}

// UnknownHashAlgorithmError is returned when path-table detection (§4.3)
// finds neither the legacy nor the modern path-hashing algorithm among the
// index's path_reps.
type UnknownHashAlgorithmError struct{}

func (e *UnknownHashAlgorithmError) Error() string {
	return "bundle: unknown path hash algorithm: neither legacy nor modern probe matched"
}
