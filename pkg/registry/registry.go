// Package registry lists the output targets grammardist can build.
// A target tells the generator which language binding to emit and the
// bundler what to do with the result.
package registry

import (
	"fmt"
	"slices"
	"strings"

	"github.com/albertocavalcante/grammardist/pkg/util"
)

// Target is one output language binding.
type Target struct {
	// Name is the registry key (e.g. "javascript").
	Name string

	// GeneratorName is the value passed to -Dlanguage and matched against
	// the <targets> list of a grammar's desc.xml.
	GeneratorName string

	// Ext is the source extension of generated files.
	Ext string

	// BundleExt is the extension of bundled artifacts.
	BundleExt string

	// Runtime is the runtime support package left external by the bundler.
	Runtime string
}

var targets = map[string]Target{
	"javascript": {
		Name:          "javascript",
		GeneratorName: "JavaScript",
		Ext:           ".js",
		BundleExt:     ".js",
		Runtime:       "antlr4",
	},
	"typescript": {
		Name:          "typescript",
		GeneratorName: "TypeScript",
		Ext:           ".ts",
		BundleExt:     ".js",
		Runtime:       "antlr4",
	},
}

// Lookup returns the target registered under name, ignoring case.
func Lookup(name string) (Target, error) {
	t, ok := targets[strings.ToLower(name)]
	if !ok {
		return Target{}, fmt.Errorf("unknown target %q (available: %s)", name, strings.Join(AvailableTargets(), ", "))
	}
	return t, nil
}

// AvailableTargets returns the target names in sorted order.
func AvailableTargets() []string {
	return util.SortedKeys(targets)
}

// IsTargetAvailable reports whether name is a known target.
func IsTargetAvailable(name string) bool {
	_, ok := targets[strings.ToLower(name)]
	return ok
}

// Supports reports whether a grammar's declared generator targets include t.
func (t Target) Supports(declared []string) bool {
	return slices.ContainsFunc(declared, func(d string) bool {
		return strings.EqualFold(strings.TrimSpace(d), t.GeneratorName)
	})
}
