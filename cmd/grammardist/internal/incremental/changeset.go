package incremental

import (
	"slices"
)

// ChangeSet groups grammar keys by their cache state.
type ChangeSet struct {
	Fresh          []string `json:"fresh"`
	New            []string `json:"new"`
	BuildChanged   []string `json:"build_changed"`
	SourcesChanged []string `json:"sources_changed"`
	OutputsMissing []string `json:"outputs_missing"`
	Drifted        []string `json:"drifted"`  // fresh, but an artifact's bytes differ from the recorded fingerprint
	Orphaned       []string `json:"orphaned"` // cached, but no longer in the manifest
}

// NewChangeSet creates an empty ChangeSet.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		Fresh:          []string{},
		New:            []string{},
		BuildChanged:   []string{},
		SourcesChanged: []string{},
		OutputsMissing: []string{},
		Drifted:        []string{},
		Orphaned:       []string{},
	}
}

// Add files a grammar key under its state.
func (cs *ChangeSet) Add(key string, state State) {
	switch state {
	case StateFresh:
		cs.Fresh = append(cs.Fresh, key)
	case StateNew:
		cs.New = append(cs.New, key)
	case StateBuildChanged:
		cs.BuildChanged = append(cs.BuildChanged, key)
	case StateSourcesChanged:
		cs.SourcesChanged = append(cs.SourcesChanged, key)
	case StateOutputsMissing:
		cs.OutputsMissing = append(cs.OutputsMissing, key)
	}
}

// IsEmpty returns true if no grammar needs rebuilding.
func (cs *ChangeSet) IsEmpty() bool {
	if cs == nil {
		return true
	}
	return cs.Stale() == 0 && len(cs.Drifted) == 0
}

// Stale returns the number of grammars a dist build would regenerate.
func (cs *ChangeSet) Stale() int {
	if cs == nil {
		return 0
	}
	return len(cs.New) + len(cs.BuildChanged) + len(cs.SourcesChanged) + len(cs.OutputsMissing)
}

// StaleKeys returns the sorted keys a dist build would regenerate.
func (cs *ChangeSet) StaleKeys() []string {
	if cs == nil {
		return nil
	}
	keys := slices.Concat(cs.New, cs.BuildChanged, cs.SourcesChanged, cs.OutputsMissing)
	slices.Sort(keys)
	return keys
}

// sort sorts all slices for deterministic output.
func (cs *ChangeSet) sort() {
	if cs == nil {
		return
	}
	slices.Sort(cs.Fresh)
	slices.Sort(cs.New)
	slices.Sort(cs.BuildChanged)
	slices.Sort(cs.SourcesChanged)
	slices.Sort(cs.OutputsMissing)
	slices.Sort(cs.Drifted)
	slices.Sort(cs.Orphaned)
}
