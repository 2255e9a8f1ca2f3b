// Package build runs the generate-relocate-bundle step for one grammar.
//
// # Cache Contract
//
// A grammar is skipped, with zero generator and bundler calls, when its cache
// entry records the current target and generator identity, exactly the
// current source digests AND every expected artifact exists in the dist tree. Otherwise the generator runs once and the
// bundler runs once per generated component. Artifacts of components the
// grammar no longer produces are removed from the dist tree. The caller
// persists the index after each Build.
package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/bundle"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/incremental"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/langs"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/manifest"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/runner"
	"github.com/albertocavalcante/grammardist/internal/fsutil"
	"github.com/albertocavalcante/grammardist/internal/log"
	"github.com/albertocavalcante/grammardist/pkg/registry"
	"github.com/albertocavalcante/grammardist/pkg/util"
)

// Generator runs the parser generator for one grammar.
type Generator interface {
	Generate(ctx context.Context, req runner.Request) error
}

// MissingOutputError is returned when the generator did not emit the entry
// file of a required component.
type MissingOutputError struct {
	Grammar   string
	Component langs.Component
	Path      string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("grammar %s: generator did not produce %s entry %s", e.Grammar, e.Component, e.Path)
}

// Options holds the directories and settings shared by every build.
type Options struct {
	// MirrorRoot is the grammar repository checkout.
	MirrorRoot string

	// GenRoot receives raw generator output under <GenRoot>/<BaseDir>.
	GenRoot string

	// DistRoot receives bundled artifacts under <DistRoot>/<BaseDir>.
	DistRoot string

	// Jar is the generator jar.
	Jar string

	Target registry.Target

	// Identity names the target and generator in cache entries. A change
	// invalidates every entry built under the old identity.
	Identity string

	// Concurrency caps parallel bundles within one grammar.
	Concurrency int

	// Force ignores cache hits.
	Force bool
}

// Result describes one Build.
type Result struct {
	Key       string
	Cached    bool
	Artifacts []string // dist-relative, sorted
	Duration  time.Duration
}

// Builder builds grammars against a shared cache index.
type Builder struct {
	opts    Options
	gen     Generator
	bundler bundle.Bundler
	index   *incremental.Index
	now     func() time.Time
}

// New creates a Builder. index is updated in place by successful builds.
func New(opts Options, gen Generator, bundler bundle.Bundler, index *incremental.Index) *Builder {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if index == nil {
		index = incremental.NewIndex()
	}
	return &Builder{
		opts:    opts,
		gen:     gen,
		bundler: bundler,
		index:   index,
		now:     time.Now,
	}
}

// Index returns the cache index the builder records into.
func (b *Builder) Index() *incremental.Index {
	return b.index
}

// Build generates and bundles one grammar unless its cache entry is valid.
func (b *Builder) Build(ctx context.Context, g manifest.Grammar) (Result, error) {
	start := time.Now()
	logger := log.FromContext(ctx).With("component", "build", "grammar", g.Key)

	digests, err := incremental.DigestSources(ctx, b.opts.MirrorRoot, g.SourcePaths())
	if err != nil {
		return Result{}, fmt.Errorf("grammar %s: %w", g.Key, err)
	}

	if !b.opts.Force {
		outputs := b.expectedOutputs(g)
		if b.index.IsValid(g.Key, b.opts.Identity, digests, outputs) {
			logger.Debug("cache hit, skipping")
			entry, _ := b.index.Get(g.Key)
			return Result{Key: g.Key, Cached: true, Artifacts: util.SortedKeys(entry.Artifacts), Duration: time.Since(start)}, nil
		}
		logger.Debug("cache miss", "state", b.index.Check(g.Key, b.opts.Identity, digests, outputs))
	}

	genDir := filepath.Join(b.opts.GenRoot, filepath.FromSlash(g.BaseDir))
	if err := os.RemoveAll(genDir); err != nil {
		return Result{}, fmt.Errorf("failed to clean %s: %w", genDir, err)
	}
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create %s: %w", genDir, err)
	}

	logger.Info("generating", "sources", len(g.Sources))
	err = b.gen.Generate(ctx, runner.Request{
		Jar:      b.opts.Jar,
		Language: b.opts.Target.GeneratorName,
		OutDir:   genDir,
		Sources:  manifest.ResolveSources(b.opts.MirrorRoot, g),
	})
	if err != nil {
		return Result{}, fmt.Errorf("grammar %s: %w", g.Key, err)
	}

	if err := relocate(genDir, logger); err != nil {
		return Result{}, fmt.Errorf("grammar %s: %w", g.Key, err)
	}

	jobs, err := b.bundleJobs(g, genDir, logger)
	if err != nil {
		return Result{}, err
	}
	if err := b.removeStale(g, jobs, logger); err != nil {
		return Result{}, err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.opts.Concurrency)
	for _, job := range jobs {
		eg.Go(func() error {
			logger.Debug("bundling", "component", job.component, "entry", filepath.Base(job.req.Entry))
			if err := b.bundler.Bundle(egCtx, job.req); err != nil {
				return fmt.Errorf("grammar %s %s: %w", g.Key, job.component, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Result{}, err
	}

	artifacts := make([]string, len(jobs))
	for i, job := range jobs {
		artifacts[i] = job.output
	}
	prints, err := incremental.FingerprintArtifacts(b.opts.DistRoot, artifacts)
	if err != nil {
		return Result{}, err
	}

	b.index.Record(g.Key, b.opts.Identity, digests, prints, b.now())

	slices.Sort(artifacts)
	res := Result{Key: g.Key, Artifacts: artifacts, Duration: time.Since(start)}
	logger.Info("built", "artifacts", len(artifacts), "duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

type bundleJob struct {
	component langs.Component
	output    string // dist-relative
	req       bundle.Request
}

// bundleJobs resolves the entry file of every declared component. A missing
// lexer or parser entry is fatal; missing listener and visitor entries are
// skipped.
func (b *Builder) bundleJobs(g manifest.Grammar, genDir string, logger *slog.Logger) ([]bundleJob, error) {
	var jobs []bundleJob
	for _, c := range g.Components() {
		stem, _ := g.EntryStem(c)
		entry := filepath.Join(genDir, stem+b.opts.Target.Ext)

		if !fsutil.FileExists(entry) {
			if c.Required() {
				return nil, &MissingOutputError{Grammar: g.Key, Component: c, Path: entry}
			}
			logger.Debug("optional component not generated", "component", c)
			continue
		}

		output := g.OutputPath(c, b.opts.Target.BundleExt)
		jobs = append(jobs, bundleJob{
			component: c,
			output:    output,
			req: bundle.Request{
				Entry:   entry,
				Outfile: filepath.Join(b.opts.DistRoot, filepath.FromSlash(output)),
			},
		})
	}
	return jobs, nil
}

// removeStale deletes artifacts of components this build no longer produces,
// e.g. the parser of a grammar reduced to a lexer.
func (b *Builder) removeStale(g manifest.Grammar, jobs []bundleJob, logger *slog.Logger) error {
	for _, c := range langs.Components {
		if slices.ContainsFunc(jobs, func(j bundleJob) bool { return j.component == c }) {
			continue
		}
		rel := g.OutputPath(c, b.opts.Target.BundleExt)
		err := os.Remove(filepath.Join(b.opts.DistRoot, filepath.FromSlash(rel)))
		switch {
		case err == nil:
			logger.Debug("removed stale artifact", "path", rel)
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("grammar %s: failed to remove stale %s: %w", g.Key, rel, err)
		}
	}
	return nil
}

// expectedOutputs returns absolute paths of the artifacts a cache hit
// requires: the required components plus anything the last build produced.
func (b *Builder) expectedOutputs(g manifest.Grammar) []string {
	rels := g.RequiredOutputs(b.opts.Target.BundleExt)
	if entry, ok := b.index.Get(g.Key); ok {
		for rel := range entry.Artifacts {
			if !slices.Contains(rels, rel) {
				rels = append(rels, rel)
			}
		}
	}

	abs := make([]string, len(rels))
	for i, rel := range rels {
		abs[i] = filepath.Join(b.opts.DistRoot, filepath.FromSlash(rel))
	}
	return abs
}

// relocate copies files the generator emitted into nested directories (it
// mirrors input paths, and some targets use a fixed subdirectory) up into
// genDir. Files already present at the top level win.
func relocate(genDir string, logger *slog.Logger) error {
	var moved int
	err := filepath.WalkDir(genDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Dir(path) == genDir {
			return nil
		}

		dst := filepath.Join(genDir, d.Name())
		if fsutil.FileExists(dst) {
			return nil
		}
		if err := fsutil.CopyFile(path, dst); err != nil {
			return err
		}
		moved++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to relocate generated files: %w", err)
	}
	if moved > 0 {
		logger.Debug("relocated generated files", "count", moved)
	}
	return nil
}
