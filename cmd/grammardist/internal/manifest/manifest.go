// Package manifest produces the ordered list of grammars to build for a target.
//
// Two strategies are supported:
//
//   - scan: walk the mirror for per-grammar desc.xml files and read the
//     sibling pom.xml for the source list (the grammars-v4 layout).
//   - central: read one YAML file listing grammars with source URLs.
//
// Both strategies return grammars whose sources are slash-separated paths
// relative to the mirror root.
package manifest

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/langs"
	"github.com/albertocavalcante/grammardist/pkg/config"
	"github.com/albertocavalcante/grammardist/pkg/registry"
)

// Source is one grammar definition file.
type Source struct {
	Path string     // mirror-relative, slash-separated
	Kind langs.Kind // lexer, parser or combined
}

// Grammar is one buildable grammar.
type Grammar struct {
	// Name is the display name.
	Name string

	// Key identifies the grammar in the build cache. It equals BaseDir.
	Key string

	// BaseDir is the common parent of Sources, relative to the mirror root.
	BaseDir string

	Sources []Source
}

// Manifest is the ordered grammar list for one run.
type Manifest struct {
	Grammars []Grammar
}

// Len returns the number of grammars.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Grammars)
}

// Options selects and configures a strategy.
type Options struct {
	// Strategy is config.ManifestScan or config.ManifestCentral.
	Strategy string

	// File is the central manifest path, relative to the mirror unless absolute.
	File string

	// Target filters grammars by supported output binding.
	Target registry.Target
}

// Load reads the manifest for the mirror at root.
func Load(root string, opts Options) (*Manifest, error) {
	var (
		grammars []Grammar
		err      error
	)
	switch opts.Strategy {
	case config.ManifestScan, "":
		grammars, err = Scan(root, opts.Target)
	case config.ManifestCentral:
		file := opts.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(root, file)
		}
		grammars, err = LoadCentral(file, opts.Target)
	default:
		return nil, fmt.Errorf("unknown manifest strategy %q", opts.Strategy)
	}
	if err != nil {
		return nil, err
	}
	return &Manifest{Grammars: grammars}, nil
}

// NewGrammar builds a grammar from its sources, classifying each by name and
// deriving BaseDir and Key.
func NewGrammar(name string, paths []string) (Grammar, error) {
	if len(paths) == 0 {
		return Grammar{}, fmt.Errorf("grammar %q has no sources", name)
	}

	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		p = path.Clean(filepath.ToSlash(p))
		if path.IsAbs(p) || p == ".." || strings.HasPrefix(p, "../") {
			return Grammar{}, fmt.Errorf("grammar %q source %q escapes the mirror", name, p)
		}
		sources = append(sources, Source{Path: p, Kind: langs.Classify(p)})
	}

	base := commonDir(sources)
	return Grammar{
		Name:    name,
		Key:     base,
		BaseDir: base,
		Sources: sources,
	}, nil
}

// commonDir returns the deepest directory containing every source.
func commonDir(sources []Source) string {
	dir := path.Dir(sources[0].Path)
	for _, s := range sources[1:] {
		for !isWithin(path.Dir(s.Path), dir) {
			dir = path.Dir(dir)
		}
	}
	return dir
}

func isWithin(p, dir string) bool {
	return dir == "." || p == dir || strings.HasPrefix(p, dir+"/")
}

// SourcePaths returns the mirror-relative source paths in declaration order.
func (g Grammar) SourcePaths() []string {
	paths := make([]string, len(g.Sources))
	for i, s := range g.Sources {
		paths[i] = s.Path
	}
	return paths
}

// Components returns the components the sources declare, in table order.
// Listener and visitor accompany a parser.
func (g Grammar) Components() []langs.Component {
	var comps []langs.Component
	for _, c := range langs.Components {
		if g.Declares(c) {
			comps = append(comps, c)
		}
	}
	return comps
}

// Declares reports whether the sources declare component c.
func (g Grammar) Declares(c langs.Component) bool {
	_, ok := g.EntryStem(c)
	return ok
}

// EntryStem returns the generated entry file stem for component c, e.g.
// "JSONLexer" for a combined JSON.g4 or "JavaParserVisitor" for JavaParser.g4.
func (g Grammar) EntryStem(c langs.Component) (string, bool) {
	want := langs.KindParser
	if c == langs.Lexer {
		want = langs.KindLexer
	}

	var combined string
	for _, s := range g.Sources {
		switch s.Kind {
		case want:
			return langs.EntryName(langs.Stem(s.Path), c), true
		case langs.KindCombined:
			if combined == "" {
				combined = langs.Stem(s.Path)
			}
		}
	}
	if combined != "" {
		return langs.EntryName(combined, c), true
	}
	return "", false
}

// OutputPath returns the dist-relative artifact path for component c.
func (g Grammar) OutputPath(c langs.Component, ext string) string {
	return path.Join(g.BaseDir, c.FileName()+ext)
}

// RequiredOutputs returns the dist-relative artifacts that must exist for a
// cached build to be reused.
func (g Grammar) RequiredOutputs(ext string) []string {
	var outs []string
	for _, c := range g.Components() {
		if c.Required() {
			outs = append(outs, g.OutputPath(c, ext))
		}
	}
	return outs
}

// ResolveSources returns absolute paths of a grammar's sources under root.
func ResolveSources(root string, g Grammar) []string {
	abs := make([]string, len(g.Sources))
	for i, s := range g.Sources {
		abs[i] = filepath.Join(root, filepath.FromSlash(s.Path))
	}
	return abs
}
