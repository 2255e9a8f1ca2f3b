package incremental

import (
	"maps"
	"time"

	"github.com/albertocavalcante/grammardist/internal/fsutil"
	"github.com/albertocavalcante/grammardist/pkg/util"
)

// IndexVersion is the current version of the cache format.
const IndexVersion = 1

// Index maps grammar keys to their last successful build.
type Index struct {
	Version   int               `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
	Entries   map[string]*Entry `json:"entries"`
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		Version:   IndexVersion,
		UpdatedAt: time.Now(),
		Entries:   make(map[string]*Entry),
	}
}

// Get retrieves the entry for a grammar key.
func (idx *Index) Get(key string) (*Entry, bool) {
	if idx == nil || idx.Entries == nil {
		return nil, false
	}
	e, ok := idx.Entries[key]
	return e, ok
}

// Record stores the result of a successful build, replacing any prior entry.
// build is the identity of the target and generator used.
func (idx *Index) Record(key, build string, sources, artifacts map[string]string, builtAt time.Time) {
	if idx == nil {
		return
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*Entry)
	}
	idx.Entries[key] = &Entry{
		Build:     build,
		Sources:   maps.Clone(sources),
		Artifacts: maps.Clone(artifacts),
		BuiltAt:   builtAt,
	}
}

// Remove drops the entry for a grammar key.
func (idx *Index) Remove(key string) {
	if idx == nil || idx.Entries == nil {
		return
	}
	delete(idx.Entries, key)
}

// Keys returns the recorded grammar keys in sorted order.
func (idx *Index) Keys() []string {
	if idx == nil {
		return nil
	}
	return util.SortedKeys(idx.Entries)
}

// State is the cache verdict for one grammar.
type State string

const (
	StateFresh          State = "fresh"
	StateNew            State = "new"
	StateBuildChanged   State = "build-changed"
	StateSourcesChanged State = "sources-changed"
	StateOutputsMissing State = "outputs-missing"
)

// Check classifies a grammar against its recorded entry. build is the
// current target and generator identity, digests are the current source
// digests, and outputs are absolute paths of the artifacts that must exist
// for the entry to be reused.
func (idx *Index) Check(key, build string, digests map[string]string, outputs []string) State {
	e, ok := idx.Get(key)
	if !ok {
		return StateNew
	}
	if e.Build != build {
		return StateBuildChanged
	}
	if !util.EqualStringMaps(e.Sources, digests) {
		return StateSourcesChanged
	}
	if !fsutil.AllExist(outputs) {
		return StateOutputsMissing
	}
	return StateFresh
}

// IsValid reports whether a grammar's build can be skipped: it was built by
// the same target and generator, every recorded digest matches and every
// expected output exists.
func (idx *Index) IsValid(key, build string, digests map[string]string, outputs []string) bool {
	return idx.Check(key, build, digests, outputs) == StateFresh
}
