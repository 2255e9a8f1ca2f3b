package incremental

import (
	"context"
	"fmt"
	"path/filepath"
)

// Snapshot is the current view of one grammar used for status checks.
type Snapshot struct {
	Key     string
	Sources []string // mirror-relative source paths
	Outputs []string // dist-relative artifact paths that must exist
}

// Tracker provides read-only cache status for a set of grammars.
type Tracker struct {
	store      Store
	build      string
	mirrorRoot string
	distRoot   string
}

// NewTracker creates a tracker over a cache store. build is the identity of
// the target and generator a dist run would use.
func NewTracker(store Store, build, mirrorRoot, distRoot string) *Tracker {
	return &Tracker{
		store:      store,
		build:      build,
		mirrorRoot: mirrorRoot,
		distRoot:   distRoot,
	}
}

// Status classifies every grammar without modifying state.
func (t *Tracker) Status(ctx context.Context, grammars []Snapshot) (*ChangeSet, error) {
	idx, err := t.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}

	cs := NewChangeSet()
	seen := make(map[string]bool, len(grammars))
	for _, p := range grammars {
		seen[p.Key] = true

		digests, err := DigestSources(ctx, t.mirrorRoot, p.Sources)
		if err != nil {
			return nil, err
		}

		outputs := make([]string, len(p.Outputs))
		for i, rel := range p.Outputs {
			outputs[i] = filepath.Join(t.distRoot, filepath.FromSlash(rel))
		}

		state := idx.Check(p.Key, t.build, digests, outputs)
		cs.Add(p.Key, state)

		if state == StateFresh && t.drifted(idx, p.Key) {
			cs.Drifted = append(cs.Drifted, p.Key)
		}
	}

	for _, key := range idx.Keys() {
		if !seen[key] {
			cs.Orphaned = append(cs.Orphaned, key)
		}
	}

	cs.sort()
	return cs, nil
}

// drifted reports whether any recorded artifact no longer matches its fingerprint.
func (t *Tracker) drifted(idx *Index, key string) bool {
	e, ok := idx.Get(key)
	if !ok {
		return false
	}
	for rel, want := range e.Artifacts {
		got, err := FingerprintFile(filepath.Join(t.distRoot, filepath.FromSlash(rel)))
		if err != nil || got != want {
			return true
		}
	}
	return false
}
