package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Build.Target != "javascript" {
		t.Errorf("default target should be 'javascript', got %q", cfg.Build.Target)
	}
	if cfg.Source.Manifest != ManifestScan {
		t.Errorf("default manifest strategy should be %q, got %q", ManifestScan, cfg.Source.Manifest)
	}
	if cfg.Network.MaxRedirects != 5 {
		t.Errorf("default max redirects should be 5, got %d", cfg.Network.MaxRedirects)
	}
	if cfg.IsLocal() {
		t.Error("mirror should not be local by default")
	}
	if !cfg.MinifyEnabled() {
		t.Error("minify should be enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad manifest", func(c *Config) { c.Source.Manifest = "index" }, "source.manifest"},
		{"bad presence", func(c *Config) { c.Docs.Presence = "maybe" }, "docs.presence"},
		{"empty placeholder", func(c *Config) { c.Docs.Placeholder = "" }, "docs.placeholder"},
		{"empty target", func(c *Config) { c.Build.Target = "" }, "build.target"},
		{"unknown target", func(c *Config) { c.Build.Target = "cobol" }, "available: javascript, typescript"},
		{"zero concurrency", func(c *Config) { c.Build.BundleConcurrency = 0 }, "bundle_concurrency"},
		{"negative redirects", func(c *Config) { c.Network.MaxRedirects = -1 }, "max_redirects"},
		{"negative timeout", func(c *Config) { c.Generator.Timeout = Duration{-time.Second} }, "timeouts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := NewConfig()
	trueVal := true
	other := &Config{
		Source: SourceConfig{
			Branch: "main",
			Local:  &trueVal,
		},
		Build: BuildConfig{
			Target: "typescript",
		},
		Generator: GeneratorConfig{
			Timeout: Duration{time.Minute},
		},
	}

	base.Merge(other)

	if base.Source.Branch != "main" {
		t.Errorf("branch should be 'main', got %q", base.Source.Branch)
	}
	if !base.IsLocal() {
		t.Error("mirror should be local after merge")
	}
	if base.Build.Target != "typescript" {
		t.Errorf("target should be 'typescript', got %q", base.Build.Target)
	}
	if base.Generator.Timeout.Duration != time.Minute {
		t.Errorf("generator timeout should be 1m, got %v", base.Generator.Timeout)
	}
	// Untouched fields keep their defaults
	if base.Source.Repository != NewConfig().Source.Repository {
		t.Errorf("repository should keep its default, got %q", base.Source.Repository)
	}
}

func TestMergeNil(t *testing.T) {
	cfg := NewConfig()
	cfg.Merge(nil)
	if cfg.Build.OutDir != "dist" {
		t.Errorf("Merge(nil) should be a no-op, out dir = %q", cfg.Build.OutDir)
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
[source]
repository = "https://example.com/grammars.git"
manifest = "central"
local = true

[generator]
timeout = "90s"
max_heap = "1g"

[build]
target = "typescript"
bundle_concurrency = 2
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Source.Repository != "https://example.com/grammars.git" {
		t.Errorf("repository = %q", cfg.Source.Repository)
	}
	if cfg.Source.Manifest != ManifestCentral {
		t.Errorf("manifest = %q, want %q", cfg.Source.Manifest, ManifestCentral)
	}
	if cfg.Source.Local == nil || !*cfg.Source.Local {
		t.Error("local should be true")
	}
	if cfg.Generator.Timeout.Duration != 90*time.Second {
		t.Errorf("generator timeout = %v, want 90s", cfg.Generator.Timeout)
	}
	if cfg.Build.BundleConcurrency != 2 {
		t.Errorf("bundle concurrency = %d, want 2", cfg.Build.BundleConcurrency)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[build]\ntargett = \"js\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile(configPath)
	if err == nil || !strings.Contains(err.Error(), "targett") {
		t.Errorf("LoadFile() error = %v, want unknown key error", err)
	}
}

func TestLoadFileBadDuration(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[network]\ntimeout = \"soon\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(configPath); err == nil {
		t.Error("LoadFile() expected error for invalid duration")
	}
}

func TestLoadLayering(t *testing.T) {
	root := t.TempDir()
	projectConfig := `
[build]
target = "typescript"
out_dir = "public"
`
	if err := os.WriteFile(filepath.Join(root, ProjectFile), []byte(projectConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{
		"GRAMMARDIST_OUT_DIR": "out",
		"GRAMMARDIST_LOCAL":   "true",
	}
	cfg, path, err := Load(LoadOptions{
		Root: root,
		LookupEnv: func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		},
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if path != filepath.Join(root, ProjectFile) {
		t.Errorf("config path = %q", path)
	}
	if cfg.Build.Target != "typescript" {
		t.Errorf("target from project file = %q, want typescript", cfg.Build.Target)
	}
	if cfg.Build.OutDir != "out" {
		t.Errorf("env should override file, out dir = %q", cfg.Build.OutDir)
	}
	if !cfg.IsLocal() {
		t.Error("GRAMMARDIST_LOCAL=true should make the mirror local")
	}
	if cfg.Build.WorkDir != ".grammardist" {
		t.Errorf("work dir should keep its default, got %q", cfg.Build.WorkDir)
	}
}

func TestLoadNoFile(t *testing.T) {
	cfg, path, err := Load(LoadOptions{
		Root:      t.TempDir(),
		LookupEnv: func(string) (string, bool) { return "", false },
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path != "" {
		t.Errorf("expected no config file, got %q", path)
	}
	if cfg.Build.Target != "javascript" {
		t.Errorf("target = %q, want default", cfg.Build.Target)
	}
}

func TestLoadExplicitFileMissing(t *testing.T) {
	_, _, err := Load(LoadOptions{File: filepath.Join(t.TempDir(), "nope.toml")})
	if err == nil {
		t.Error("Load() expected error for missing explicit config")
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	_, _, err := Load(LoadOptions{
		Root: t.TempDir(),
		LookupEnv: func(k string) (string, bool) {
			if k == "GRAMMARDIST_GENERATOR_TIMEOUT" {
				return "forever", true
			}
			return "", false
		},
	})
	if err == nil || !strings.Contains(err.Error(), "GRAMMARDIST_GENERATOR_TIMEOUT") {
		t.Errorf("Load() error = %v, want env var error", err)
	}
}

func TestFindWorkspaceRoot(t *testing.T) {
	tmpDir := t.TempDir()
	projectDir := filepath.Join(tmpDir, "project")
	subDir := filepath.Join(projectDir, "grammars", "json")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(projectDir, ProjectFile), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if got := FindWorkspaceRoot(subDir); got != projectDir {
		t.Errorf("FindWorkspaceRoot() = %q, want %q", got, projectDir)
	}
}

func TestIsWorkspaceRoot(t *testing.T) {
	tmpDir := t.TempDir()
	if isWorkspaceRoot(tmpDir) {
		t.Error("empty directory should not be a workspace root")
	}

	if err := os.MkdirAll(filepath.Join(tmpDir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	if !isWorkspaceRoot(tmpDir) {
		t.Error("directory with .git should be a workspace root")
	}
}
