// Package config provides configuration management for grammardist.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Project config (grammardist.toml or .grammardist/config.toml)
//  3. Environment variables (GRAMMARDIST_*)
//  4. CLI flags (highest priority)
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/albertocavalcante/grammardist/pkg/registry"
)

// Manifest strategies.
const (
	ManifestScan    = "scan"
	ManifestCentral = "central"
)

// Documentation presence modes.
const (
	PresenceObserved = "observed"
	PresenceDeclared = "declared"
)

// Config is the main configuration struct for grammardist.
type Config struct {
	// Source configures the upstream grammar repository mirror.
	Source SourceConfig `toml:"source"`

	// Generator configures the external parser generator.
	Generator GeneratorConfig `toml:"generator"`

	// Build configures output locations and the bundling step.
	Build BuildConfig `toml:"build"`

	// Docs configures README generation.
	Docs DocsConfig `toml:"docs"`

	// Package configures the packaging metadata copied into the dist root.
	Package PackageConfig `toml:"package"`

	// Network configures downloads.
	Network NetworkConfig `toml:"network"`

	// Publish configures uploading the dist tree.
	Publish PublishConfig `toml:"publish"`
}

// SourceConfig describes where grammars come from.
type SourceConfig struct {
	// Repository is the clone URL of the grammar repository.
	Repository string `toml:"repository"`

	// Branch is the branch to mirror.
	Branch string `toml:"branch"`

	// Depth is the clone depth (0 = full history).
	Depth int `toml:"depth"`

	// Dir is the mirror location, relative to the work dir unless absolute.
	Dir string `toml:"dir"`

	// Local uses Dir as-is without cloning or fetching.
	Local *bool `toml:"local"`

	// Manifest is the manifest strategy ("scan" or "central").
	Manifest string `toml:"manifest"`

	// ManifestFile is the central manifest path, relative to the mirror.
	ManifestFile string `toml:"manifest_file"`
}

// GeneratorConfig holds the generator tool settings.
type GeneratorConfig struct {
	// Version is the generator tool version, used in the jar file name.
	Version string `toml:"version"`

	// JarURL is where the generator jar is downloaded from.
	JarURL string `toml:"jar_url"`

	// Jar overrides the jar location (skips download when set and present).
	Jar string `toml:"jar"`

	// Java is the java executable (looked up on PATH when empty).
	Java string `toml:"java"`

	// MaxHeap is the JVM heap cap passed as -Xmx.
	MaxHeap string `toml:"max_heap"`

	// Timeout bounds one generator invocation.
	Timeout Duration `toml:"timeout"`
}

// BuildConfig holds output and bundling settings.
type BuildConfig struct {
	// Target is the output language binding ("javascript", "typescript").
	Target string `toml:"target"`

	// OutDir is the distribution root.
	OutDir string `toml:"out_dir"`

	// WorkDir holds the mirror, generated sources, generator jar and cache.
	WorkDir string `toml:"work_dir"`

	// BundleConcurrency caps parallel component bundles within one grammar.
	BundleConcurrency int `toml:"bundle_concurrency"`

	// Minify toggles minification of bundled artifacts.
	Minify *bool `toml:"minify"`
}

// DocsConfig holds README generation settings.
type DocsConfig struct {
	// Template is the README template path.
	Template string `toml:"template"`

	// Placeholder is the token replaced by the grammar table.
	Placeholder string `toml:"placeholder"`

	// Output is the README file name written into the dist root.
	Output string `toml:"output"`

	// Presence selects "observed" (artifacts on disk) or "declared" (sources).
	Presence string `toml:"presence"`
}

// PackageConfig holds packaging metadata settings.
type PackageConfig struct {
	// Metadata is the package.json copied into the dist root.
	Metadata string `toml:"metadata"`
}

// NetworkConfig holds download settings.
type NetworkConfig struct {
	// Timeout bounds one download including redirects.
	Timeout Duration `toml:"timeout"`

	// MaxRedirects caps redirect hops.
	MaxRedirects int `toml:"max_redirects"`
}

// PublishConfig holds S3 publishing settings.
type PublishConfig struct {
	Bucket string `toml:"bucket"`
	Prefix string `toml:"prefix"`
	Region string `toml:"region"`
}

// Duration is a time.Duration that decodes from TOML strings like "10m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// NewConfig creates a new Config with built-in defaults.
func NewConfig() *Config {
	falseVal := false
	trueVal := true
	return &Config{
		Source: SourceConfig{
			Repository:   "https://github.com/antlr/grammars-v4.git",
			Branch:       "master",
			Depth:        1,
			Dir:          "grammars-v4",
			Local:        &falseVal,
			Manifest:     ManifestScan,
			ManifestFile: "grammars.yaml",
		},
		Generator: GeneratorConfig{
			Version: "4.13.2",
			JarURL:  "https://www.antlr.org/download/antlr-4.13.2-complete.jar",
			MaxHeap: "2g",
			Timeout: Duration{10 * time.Minute},
		},
		Build: BuildConfig{
			Target:            "javascript",
			OutDir:            "dist",
			WorkDir:           ".grammardist",
			BundleConcurrency: 4,
			Minify:            &trueVal,
		},
		Docs: DocsConfig{
			Template:    "README.template.md",
			Placeholder: "{{GRAMMARS}}",
			Output:      "README.md",
			Presence:    PresenceObserved,
		},
		Package: PackageConfig{
			Metadata: "package.json",
		},
		Network: NetworkConfig{
			Timeout:      Duration{2 * time.Minute},
			MaxRedirects: 5,
		},
	}
}

// IsLocal reports whether the mirror is used without clone/fetch.
func (c *Config) IsLocal() bool {
	return c.Source.Local != nil && *c.Source.Local
}

// MinifyEnabled reports whether bundles are minified.
func (c *Config) MinifyEnabled() bool {
	return c.Build.Minify == nil || *c.Build.Minify
}

// Validate checks values that have a closed set of options.
func (c *Config) Validate() error {
	if !slices.Contains([]string{ManifestScan, ManifestCentral}, c.Source.Manifest) {
		return fmt.Errorf("invalid source.manifest %q (want %q or %q)", c.Source.Manifest, ManifestScan, ManifestCentral)
	}
	if !slices.Contains([]string{PresenceObserved, PresenceDeclared}, c.Docs.Presence) {
		return fmt.Errorf("invalid docs.presence %q (want %q or %q)", c.Docs.Presence, PresenceObserved, PresenceDeclared)
	}
	if c.Docs.Placeholder == "" {
		return fmt.Errorf("docs.placeholder must not be empty")
	}
	if c.Build.Target == "" {
		return fmt.Errorf("build.target must not be empty")
	}
	if !registry.IsTargetAvailable(c.Build.Target) {
		return fmt.Errorf("invalid build.target %q (available: %s)", c.Build.Target, strings.Join(registry.AvailableTargets(), ", "))
	}
	if c.Build.BundleConcurrency < 1 {
		return fmt.Errorf("build.bundle_concurrency must be at least 1, got %d", c.Build.BundleConcurrency)
	}
	if c.Network.MaxRedirects < 0 {
		return fmt.Errorf("network.max_redirects must not be negative, got %d", c.Network.MaxRedirects)
	}
	if c.Generator.Timeout.Duration < 0 || c.Network.Timeout.Duration < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Merge merges another config into this one (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Merge source config
	if other.Source.Repository != "" {
		c.Source.Repository = other.Source.Repository
	}
	if other.Source.Branch != "" {
		c.Source.Branch = other.Source.Branch
	}
	if other.Source.Depth != 0 {
		c.Source.Depth = other.Source.Depth
	}
	if other.Source.Dir != "" {
		c.Source.Dir = other.Source.Dir
	}
	if other.Source.Local != nil {
		c.Source.Local = other.Source.Local
	}
	if other.Source.Manifest != "" {
		c.Source.Manifest = other.Source.Manifest
	}
	if other.Source.ManifestFile != "" {
		c.Source.ManifestFile = other.Source.ManifestFile
	}

	// Merge generator config
	if other.Generator.Version != "" {
		c.Generator.Version = other.Generator.Version
	}
	if other.Generator.JarURL != "" {
		c.Generator.JarURL = other.Generator.JarURL
	}
	if other.Generator.Jar != "" {
		c.Generator.Jar = other.Generator.Jar
	}
	if other.Generator.Java != "" {
		c.Generator.Java = other.Generator.Java
	}
	if other.Generator.MaxHeap != "" {
		c.Generator.MaxHeap = other.Generator.MaxHeap
	}
	if other.Generator.Timeout.Duration != 0 {
		c.Generator.Timeout = other.Generator.Timeout
	}

	// Merge build config
	if other.Build.Target != "" {
		c.Build.Target = other.Build.Target
	}
	if other.Build.OutDir != "" {
		c.Build.OutDir = other.Build.OutDir
	}
	if other.Build.WorkDir != "" {
		c.Build.WorkDir = other.Build.WorkDir
	}
	if other.Build.BundleConcurrency != 0 {
		c.Build.BundleConcurrency = other.Build.BundleConcurrency
	}
	if other.Build.Minify != nil {
		c.Build.Minify = other.Build.Minify
	}

	// Merge docs config
	if other.Docs.Template != "" {
		c.Docs.Template = other.Docs.Template
	}
	if other.Docs.Placeholder != "" {
		c.Docs.Placeholder = other.Docs.Placeholder
	}
	if other.Docs.Output != "" {
		c.Docs.Output = other.Docs.Output
	}
	if other.Docs.Presence != "" {
		c.Docs.Presence = other.Docs.Presence
	}

	if other.Package.Metadata != "" {
		c.Package.Metadata = other.Package.Metadata
	}

	// Merge network config
	if other.Network.Timeout.Duration != 0 {
		c.Network.Timeout = other.Network.Timeout
	}
	if other.Network.MaxRedirects != 0 {
		c.Network.MaxRedirects = other.Network.MaxRedirects
	}

	// Merge publish config
	if other.Publish.Bucket != "" {
		c.Publish.Bucket = other.Publish.Bucket
	}
	if other.Publish.Prefix != "" {
		c.Publish.Prefix = other.Publish.Prefix
	}
	if other.Publish.Region != "" {
		c.Publish.Region = other.Publish.Region
	}
}
