package incremental

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/albertocavalcante/grammardist/internal/fsutil"
	"github.com/albertocavalcante/grammardist/internal/log"
)

// CacheFile is the cache file name inside the work directory.
const CacheFile = "cache.json"

// Store persists the cache index between runs.
type Store interface {
	Load() (*Index, error)
	Save(idx *Index) error
}

// JSONStore keeps the index as indented JSON in <workDir>/cache.json.
type JSONStore struct {
	path string
}

func NewJSONStore(workDir string) *JSONStore {
	return &JSONStore{path: filepath.Join(workDir, CacheFile)}
}

func (s *JSONStore) Path() string { return s.path }

// Load returns the stored index. A cache that is missing, unreadable as JSON
// or written by a newer format version loads as an empty index so the next
// run rebuilds everything. Only I/O failures are errors.
func (s *JSONStore) Load() (*Index, error) {
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return NewIndex(), nil
	case err != nil:
		return nil, fmt.Errorf("failed to read cache %s: %w", s.path, err)
	}

	idx := new(Index)
	if err := json.Unmarshal(data, idx); err != nil {
		log.Warn("discarding unreadable build cache", "path", s.path, "error", err)
		return NewIndex(), nil
	}
	if idx.Version > IndexVersion {
		log.Warn("discarding build cache written by a newer grammardist",
			"path", s.path, "version", idx.Version, "supported", IndexVersion)
		return NewIndex(), nil
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*Entry)
	}
	return idx, nil
}

// Save replaces the cache file atomically.
func (s *JSONStore) Save(idx *Index) error {
	if idx == nil {
		return errors.New("cannot save a nil cache index")
	}
	idx.Version = IndexVersion
	idx.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("failed to write cache %s: %w", s.path, err)
	}
	return nil
}
