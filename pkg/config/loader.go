package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// ProjectFile is the project config file name at the workspace root.
	ProjectFile = "grammardist.toml"

	// StateConfigFile is the alternative location inside the state directory.
	StateConfigFile = ".grammardist/config.toml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "GRAMMARDIST_"
)

// LoadOptions controls config discovery.
type LoadOptions struct {
	// Root is the workspace root used to discover project config.
	Root string

	// File is an explicit config path; it must exist when set.
	File string

	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds the effective config: defaults, then the project file, then
// environment overrides. It returns the config file used ("" if none).
func Load(opts LoadOptions) (*Config, string, error) {
	cfg := NewConfig()

	path, err := findConfigFile(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, "", err
		}
		cfg.Merge(fileCfg)
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	envCfg, err := fromEnv(lookup)
	if err != nil {
		return nil, "", err
	}
	cfg.Merge(envCfg)

	return cfg, path, nil
}

// LoadFile decodes a single TOML config file without applying defaults.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
	}
	return &cfg, nil
}

func findConfigFile(opts LoadOptions) (string, error) {
	if opts.File != "" {
		if _, err := os.Stat(opts.File); err != nil {
			return "", fmt.Errorf("config file not found: %w", err)
		}
		return opts.File, nil
	}

	for _, name := range []string{ProjectFile, StateConfigFile} {
		candidate := filepath.Join(opts.Root, name)
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
	}
	return "", nil
}

// FindWorkspaceRoot walks up from start to the first directory that holds a
// project config or a VCS marker. It returns start when none is found.
func FindWorkspaceRoot(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return start
	}
	for {
		if isWorkspaceRoot(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

func isWorkspaceRoot(dir string) bool {
	for _, marker := range []string{ProjectFile, ".grammardist", ".git"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// envBinding applies one environment variable to a config.
type envBinding struct {
	name  string
	apply func(c *Config, v string) error
}

var envBindings = []envBinding{
	{"REPOSITORY", func(c *Config, v string) error { c.Source.Repository = v; return nil }},
	{"BRANCH", func(c *Config, v string) error { c.Source.Branch = v; return nil }},
	{"MIRROR_DIR", func(c *Config, v string) error { c.Source.Dir = v; return nil }},
	{"MANIFEST", func(c *Config, v string) error { c.Source.Manifest = v; return nil }},
	{"LOCAL", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Source.Local = &b
		return nil
	}},
	{"TARGET", func(c *Config, v string) error { c.Build.Target = v; return nil }},
	{"OUT_DIR", func(c *Config, v string) error { c.Build.OutDir = v; return nil }},
	{"WORK_DIR", func(c *Config, v string) error { c.Build.WorkDir = v; return nil }},
	{"JAVA", func(c *Config, v string) error { c.Generator.Java = v; return nil }},
	{"JAR", func(c *Config, v string) error { c.Generator.Jar = v; return nil }},
	{"GENERATOR_TIMEOUT", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.Generator.Timeout = Duration{d}
		return nil
	}},
	{"NETWORK_TIMEOUT", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.Network.Timeout = Duration{d}
		return nil
	}},
	{"PUBLISH_BUCKET", func(c *Config, v string) error { c.Publish.Bucket = v; return nil }},
	{"PUBLISH_REGION", func(c *Config, v string) error { c.Publish.Region = v; return nil }},
}

func fromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return nil, fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, b.name, v, err)
		}
	}
	return cfg, nil
}
