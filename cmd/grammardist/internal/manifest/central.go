package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/langs"
	"github.com/albertocavalcante/grammardist/internal/log"
	"github.com/albertocavalcante/grammardist/pkg/registry"
)

// centralFile is the YAML layout of a central manifest.
type centralFile struct {
	Grammars []centralEntry `yaml:"grammars"`
}

type centralEntry struct {
	Name    string   `yaml:"name"`
	Lexer   string   `yaml:"lexer"`
	Parser  string   `yaml:"parser"`
	Targets []string `yaml:"targets"`
}

// URLError reports a source URL that does not point into the upstream repository.
type URLError struct {
	URL    string
	Reason string
}

func (e *URLError) Error() string {
	return fmt.Sprintf("malformed source URL %q: %s", e.URL, e.Reason)
}

// LoadCentral reads a central manifest file. Grammars are returned in file
// order. Entries without any source are skipped with a warning; a malformed
// source URL fails the whole load.
func LoadCentral(file string, target registry.Target) ([]Grammar, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", file, err)
	}
	return ParseCentral(data, target)
}

// ParseCentral parses central manifest bytes.
func ParseCentral(data []byte, target registry.Target) ([]Grammar, error) {
	var mf centralFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&mf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	var grammars []Grammar
	seen := make(map[string]string)
	for i, e := range mf.Grammars {
		if len(e.Targets) > 0 && !target.Supports(e.Targets) {
			log.Trace("manifest entry does not support target", "name", e.Name, "target", target.GeneratorName)
			continue
		}

		var paths []string
		for _, raw := range []string{e.Lexer, e.Parser} {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			p, err := ParseSourceURL(raw)
			if err != nil {
				return nil, fmt.Errorf("manifest entry %d (%s): %w", i+1, e.Name, err)
			}
			paths = appendUnique(paths, p)
		}

		if len(paths) == 0 {
			log.Component("manifest").Warn("skipping manifest entry without sources", "index", i+1, "name", e.Name)
			continue
		}

		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = langs.Stem(paths[0])
		}

		g, err := NewGrammar(name, paths)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[g.Key]; ok {
			return nil, fmt.Errorf("manifest entries %q and %q share directory %s", prev, g.Name, g.Key)
		}
		seen[g.Key] = g.Name
		grammars = append(grammars, g)
	}
	return grammars, nil
}

// ParseSourceURL maps a GitHub URL of a grammar file to its path inside the
// mirrored repository. Accepted forms:
//
//	https://github.com/<owner>/<repo>/(blob|raw|tree)/<ref>/<path>
//	https://raw.githubusercontent.com/<owner>/<repo>/<ref>/<path>
func ParseSourceURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", &URLError{URL: raw, Reason: err.Error()}
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", &URLError{URL: raw, Reason: "scheme must be http or https"}
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	var rest []string
	switch strings.ToLower(u.Host) {
	case "github.com", "www.github.com":
		if len(parts) < 5 {
			return "", &URLError{URL: raw, Reason: "want /<owner>/<repo>/blob/<ref>/<path>"}
		}
		switch parts[2] {
		case "blob", "raw", "tree":
		default:
			return "", &URLError{URL: raw, Reason: fmt.Sprintf("unexpected path segment %q", parts[2])}
		}
		rest = parts[4:]
	case "raw.githubusercontent.com":
		if len(parts) < 4 {
			return "", &URLError{URL: raw, Reason: "want /<owner>/<repo>/<ref>/<path>"}
		}
		rest = parts[3:]
	default:
		return "", &URLError{URL: raw, Reason: fmt.Sprintf("unsupported host %q", u.Host)}
	}

	p := path.Clean(strings.Join(rest, "/"))
	if p == "." || strings.HasPrefix(p, "..") {
		return "", &URLError{URL: raw, Reason: "empty file path"}
	}
	if !langs.IsGrammarFile(p) {
		return "", &URLError{URL: raw, Reason: fmt.Sprintf("%s is not a %s file", p, langs.GrammarExt)}
	}
	return p, nil
}
