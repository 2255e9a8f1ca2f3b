// Package pipeline sequences mirror sync, generator setup, manifest loading,
// grammar builds and README rendering for each CLI mode.
//
// All run state lives in an Env passed to every step: resolved paths, the
// loaded config and the external collaborators. Tests replace collaborators
// through EnvOptions.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/build"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/bundle"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/fetch"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/incremental"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/manifest"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/mirror"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/publish"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/runner"
	"github.com/albertocavalcante/grammardist/internal/fsutil"
	"github.com/albertocavalcante/grammardist/internal/log"
	"github.com/albertocavalcante/grammardist/pkg/config"
	"github.com/albertocavalcante/grammardist/pkg/registry"
)

// GenDirName is the generated-source directory inside the work dir.
const GenDirName = "gen"

// Mirror keeps the grammar repository checkout current.
type Mirror interface {
	Sync(ctx context.Context) (mirror.Result, error)
	Ensure(ctx context.Context) (mirror.Result, error)
	Dir() string
}

// Fetcher downloads one file.
type Fetcher interface {
	Download(ctx context.Context, url, dest string) error
}

// Publisher uploads the dist tree.
type Publisher interface {
	Publish(ctx context.Context, root string) (publish.Summary, error)
}

// Env is the explicit context of one run.
type Env struct {
	Config *config.Config
	Target registry.Target
	RunID  string
	Logger *slog.Logger

	// Resolved paths.
	Root      string
	DistDir   string
	WorkDir   string
	MirrorDir string
	GenDir    string
	JarPath   string
	Template  string
	Metadata  string

	// BuildID identifies the target and generator in cache entries.
	BuildID string

	Store     incremental.Store
	Mirror    Mirror
	Fetcher   Fetcher
	Generator build.Generator
	Bundler   bundle.Bundler

	// Publisher is created on first use from the publish config when nil.
	Publisher Publisher
}

// EnvOption overrides a collaborator.
type EnvOption func(*Env)

// WithMirror sets the mirror.
func WithMirror(m Mirror) EnvOption {
	return func(e *Env) { e.Mirror = m }
}

// WithFetcher sets the downloader.
func WithFetcher(f Fetcher) EnvOption {
	return func(e *Env) { e.Fetcher = f }
}

// WithGenerator sets the parser generator.
func WithGenerator(g build.Generator) EnvOption {
	return func(e *Env) { e.Generator = g }
}

// WithBundler sets the bundler.
func WithBundler(b bundle.Bundler) EnvOption {
	return func(e *Env) { e.Bundler = b }
}

// WithPublisher sets the publisher.
func WithPublisher(p Publisher) EnvOption {
	return func(e *Env) { e.Publisher = p }
}

// NewEnv resolves cfg against the workspace root and wires the default
// collaborators.
func NewEnv(cfg *config.Config, root string, opts ...EnvOption) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	target, err := registry.Lookup(cfg.Build.Target)
	if err != nil {
		return nil, err
	}

	root, err = filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	runID := uuid.NewString()
	e := &Env{
		Config:   cfg,
		Target:   target,
		RunID:    runID,
		Logger:   log.With("run_id", runID),
		Root:     root,
		DistDir:  resolve(root, cfg.Build.OutDir),
		WorkDir:  resolve(root, cfg.Build.WorkDir),
		Template: resolve(root, cfg.Docs.Template),
		Metadata: resolve(root, cfg.Package.Metadata),
	}
	e.MirrorDir = resolve(e.WorkDir, cfg.Source.Dir)
	e.GenDir = filepath.Join(e.WorkDir, GenDirName)
	e.JarPath = filepath.Join(e.WorkDir, fmt.Sprintf("antlr-%s-complete.jar", cfg.Generator.Version))
	e.BuildID = target.Name + "+antlr-" + cfg.Generator.Version
	if cfg.Generator.Jar != "" {
		e.JarPath = resolve(root, cfg.Generator.Jar)
		e.BuildID = target.Name + "+" + filepath.Base(e.JarPath)
	}

	e.Store = incremental.NewJSONStore(e.WorkDir)
	e.Mirror = mirror.New(e.MirrorDir, mirror.Options{
		URL:    cfg.Source.Repository,
		Branch: cfg.Source.Branch,
		Depth:  cfg.Source.Depth,
		Local:  cfg.IsLocal(),
	})
	e.Fetcher = fetch.New(
		fetch.WithTimeout(cfg.Network.Timeout.Duration),
		fetch.WithMaxRedirects(cfg.Network.MaxRedirects),
	)
	e.Generator = runner.New(
		runner.WithJava(cfg.Generator.Java),
		runner.WithMaxHeap(cfg.Generator.MaxHeap),
		runner.WithTimeout(cfg.Generator.Timeout.Duration),
	)
	e.Bundler = bundle.NewESBuild(
		bundle.WithExternal(target.Runtime),
		bundle.WithMinify(cfg.MinifyEnabled()),
	)

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Setup creates the dist and work directories. They share no state, so they
// are created concurrently.
func (e *Env) Setup(ctx context.Context) error {
	eg, _ := errgroup.WithContext(ctx)
	for _, dir := range []string{e.DistDir, e.WorkDir} {
		eg.Go(func() error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// EnsureGenerator downloads the generator jar unless it is already present.
func (e *Env) EnsureGenerator(ctx context.Context) error {
	if fsutil.FileExists(e.JarPath) {
		e.Logger.Debug("generator jar present", "path", e.JarPath)
		return nil
	}
	if e.Config.Generator.JarURL == "" {
		return fmt.Errorf("generator jar %s is missing and generator.jar_url is empty", e.JarPath)
	}

	e.Logger.Info("downloading generator", "url", e.Config.Generator.JarURL)
	if err := e.Fetcher.Download(ctx, e.Config.Generator.JarURL, e.JarPath); err != nil {
		return fmt.Errorf("failed to download generator: %w", err)
	}
	return nil
}

// LoadManifest reads the grammar list from the mirror.
func (e *Env) LoadManifest() (*manifest.Manifest, error) {
	m, err := manifest.Load(e.Mirror.Dir(), manifest.Options{
		Strategy: e.Config.Source.Manifest,
		File:     e.Config.Source.ManifestFile,
		Target:   e.Target,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	e.Logger.Info("loaded manifest", "strategy", e.Config.Source.Manifest, "grammars", m.Len(), "target", e.Target.Name)
	return m, nil
}

// builder creates a Builder recording into index.
func (e *Env) builder(index *incremental.Index, force bool) *build.Builder {
	return build.New(build.Options{
		MirrorRoot:  e.Mirror.Dir(),
		GenRoot:     e.GenDir,
		DistRoot:    e.DistDir,
		Jar:         e.JarPath,
		Target:      e.Target,
		Identity:    e.BuildID,
		Concurrency: e.Config.Build.BundleConcurrency,
		Force:       force,
	}, e.Generator, e.Bundler, index)
}

// publisher returns the configured publisher, creating the S3 one on demand.
func (e *Env) publisher(ctx context.Context) (Publisher, error) {
	if e.Publisher != nil {
		return e.Publisher, nil
	}
	p := e.Config.Publish
	s3, err := publish.NewS3FromConfig(ctx, p.Region, p.Bucket, p.Prefix, e.RunID)
	if err != nil {
		return nil, err
	}
	e.Publisher = s3
	return s3, nil
}
