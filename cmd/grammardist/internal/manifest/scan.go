package manifest

import (
	"encoding/xml"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/langs"
	"github.com/albertocavalcante/grammardist/internal/log"
	"github.com/albertocavalcante/grammardist/pkg/registry"
)

const (
	// DescFile declares a grammar's supported generator targets.
	DescFile = "desc.xml"

	// PomFile is the companion build descriptor listing grammar sources.
	PomFile = "pom.xml"
)

// descXML is the subset of desc.xml that is read.
type descXML struct {
	Targets string `xml:"targets"`
}

// pomXML is the subset of a grammar's pom.xml that is read.
type pomXML struct {
	Plugins []pomPlugin `xml:"build>plugins>plugin"`
}

type pomPlugin struct {
	Configuration pomConfiguration `xml:"configuration"`
}

type pomConfiguration struct {
	SourceDirectory string   `xml:"sourceDirectory"`
	Grammars        string   `xml:"grammars"`
	Includes        []string `xml:"includes>include"`
	GrammarName     string   `xml:"grammarName"`
}

// Scan finds every desc.xml under root and returns the grammars that declare
// target and have a pom.xml listing at least one source, sorted by key.
func Scan(root string, target registry.Target) ([]Grammar, error) {
	fsys := os.DirFS(root)
	descs, err := doublestar.Glob(fsys, "**/"+DescFile)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s for %s: %w", root, DescFile, err)
	}
	slices.Sort(descs)

	var grammars []Grammar
	for _, desc := range descs {
		dir := path.Dir(desc)
		if isIgnored(dir) {
			continue
		}

		g, ok, err := scanDir(fsys, dir, target)
		if err != nil {
			return nil, err
		}
		if ok {
			grammars = append(grammars, g)
		}
	}

	slices.SortFunc(grammars, func(a, b Grammar) int {
		return strings.Compare(a.Key, b.Key)
	})
	log.Component("manifest").Debug("scanned grammar metadata", "root", root, "descriptors", len(descs), "grammars", len(grammars))
	return grammars, nil
}

// scanDir reads one grammar directory. Missing target support, a missing pom
// or an empty source list exclude the grammar without error.
func scanDir(fsys fs.FS, dir string, target registry.Target) (Grammar, bool, error) {
	var desc descXML
	if err := decodeXML(fsys, path.Join(dir, DescFile), &desc); err != nil {
		return Grammar{}, false, err
	}
	if !target.Supports(splitList(desc.Targets)) {
		log.Trace("grammar does not support target", "dir", dir, "target", target.GeneratorName)
		return Grammar{}, false, nil
	}

	pomPath := path.Join(dir, PomFile)
	if _, err := fs.Stat(fsys, pomPath); err != nil {
		log.Component("manifest").Debug("skipping grammar without build descriptor", "dir", dir)
		return Grammar{}, false, nil
	}

	var pom pomXML
	if err := decodeXML(fsys, pomPath, &pom); err != nil {
		return Grammar{}, false, err
	}

	cfg := pom.generatorConfig()
	srcDir := path.Join(dir, strings.TrimPrefix(strings.TrimPrefix(cfg.SourceDirectory, "${basedir}"), "/"))

	var paths []string
	for _, name := range splitList(cfg.Grammars) {
		paths = appendUnique(paths, path.Join(srcDir, name))
	}
	for _, inc := range cfg.Includes {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		if !strings.ContainsAny(inc, "*?[{") {
			paths = appendUnique(paths, path.Join(srcDir, inc))
			continue
		}
		matches, err := doublestar.Glob(fsys, path.Join(srcDir, inc))
		if err != nil {
			return Grammar{}, false, fmt.Errorf("failed to expand include %q in %s: %w", inc, pomPath, err)
		}
		slices.Sort(matches)
		for _, m := range matches {
			if langs.IsGrammarFile(m) {
				paths = appendUnique(paths, m)
			}
		}
	}

	if len(paths) == 0 {
		log.Component("manifest").Debug("skipping grammar without sources", "dir", dir)
		return Grammar{}, false, nil
	}

	name := cfg.GrammarName
	if name == "" {
		name = path.Base(dir)
	}

	g, err := NewGrammar(name, paths)
	if err != nil {
		return Grammar{}, false, err
	}

	// Sources may live in a subdirectory; the grammar is still keyed by its
	// metadata directory so output paths follow the repository layout.
	g.Key, g.BaseDir = dir, dir
	return g, true, nil
}

// generatorConfig merges the configuration of every plugin. The antlr4
// plugin carries the sources and the test plugin carries grammarName.
func (p pomXML) generatorConfig() pomConfiguration {
	var merged pomConfiguration
	for _, plugin := range p.Plugins {
		c := plugin.Configuration
		if merged.SourceDirectory == "" {
			merged.SourceDirectory = c.SourceDirectory
		}
		if merged.Grammars == "" {
			merged.Grammars = c.Grammars
		}
		merged.Includes = append(merged.Includes, c.Includes...)
		if merged.GrammarName == "" {
			merged.GrammarName = strings.TrimSpace(c.GrammarName)
		}
	}
	return merged
}

func decodeXML(fsys fs.FS, name string, v any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// splitList splits on semicolons, commas and whitespace.
func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ',' || unicode.IsSpace(r)
	})
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}

// isIgnored reports whether any element of a slash-separated dir is ignored.
func isIgnored(dir string) bool {
	if dir == "." {
		return false
	}
	for _, part := range strings.Split(dir, "/") {
		if langs.IsIgnoredDir(part) {
			return true
		}
	}
	return false
}
