// Package incremental provides the build cache that lets grammardist skip
// regenerating grammars whose sources and outputs are unchanged.
package incremental

import "time"

// Entry records the inputs and outputs of one grammar's last successful build.
type Entry struct {
	// Build identifies the target and generator that produced the artifacts,
	// e.g. "javascript+antlr-4.13.2".
	Build     string            `json:"build,omitempty"`
	Sources   map[string]string `json:"sources"`             // mirror-relative path -> SHA-256 hex
	Artifacts map[string]string `json:"artifacts,omitempty"` // dist-relative path -> xxHash64 hex
	BuiltAt   time.Time         `json:"built_at"`
}
