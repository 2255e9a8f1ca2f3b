// Package detect reports which grammar components exist in a dist tree.
//
// # Detection Algorithm
//
// Component detection is DETERMINISTIC: given the same directory contents,
// it always produces the same result. For one grammar:
//
//  1. List <dist>/<BaseDir> (a missing directory means nothing was produced)
//  2. For each component, check for the regular file <component><ext>
//  3. Return the presence set
//
// Detection is based purely on file names, not file contents. The naming
// rule is langs.Component.FileName, shared with the build step.
package detect

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/langs"
)

// Presence records which components have an artifact on disk.
type Presence map[langs.Component]bool

// Has reports whether component c is present.
func (p Presence) Has(c langs.Component) bool {
	return p[c]
}

// List returns the present components in table order.
func (p Presence) List() []langs.Component {
	var out []langs.Component
	for _, c := range langs.Components {
		if p[c] {
			out = append(out, c)
		}
	}
	return out
}

// Components detects the artifacts of the grammar at baseDir (slash-separated,
// relative to distRoot). ext is the bundled artifact extension.
func Components(distRoot, baseDir, ext string) (Presence, error) {
	dir := filepath.Join(distRoot, filepath.FromSlash(baseDir))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return Presence{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	files := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			files[e.Name()] = true
		}
	}

	found := make(Presence)
	for _, c := range langs.Components {
		if files[c.FileName()+ext] {
			found[c] = true
		}
	}
	return found, nil
}
