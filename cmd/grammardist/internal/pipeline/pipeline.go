package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/docs"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/incremental"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/manifest"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/publish"
	"github.com/albertocavalcante/grammardist/internal/fsutil"
	"github.com/albertocavalcante/grammardist/internal/log"
	"github.com/albertocavalcante/grammardist/pkg/util"
)

// ErrInvalidMetadata is returned when the packaging metadata is not a JSON
// object with a non-empty "name".
var ErrInvalidMetadata = errors.New("invalid package metadata")

// DistOptions controls a dist run.
type DistOptions struct {
	// Force rebuilds every grammar regardless of the cache.
	Force bool

	// Publish uploads the dist tree after a successful build.
	Publish bool
}

// Report summarises a build run.
type Report struct {
	RunID     string
	Built     []string
	Cached    []string
	Artifacts int
	Pruned    []string // cache entries dropped for grammars gone from the manifest
	Published *publish.Summary
	Duration  time.Duration
}

// RunDist syncs the mirror, builds every grammar in manifest order, copies
// the packaging metadata and renders the README into the dist root.
//
// The first grammar failure aborts the run. The cache is saved after every
// successful grammar, so grammars built before the failure are reused by the
// next run.
func RunDist(ctx context.Context, e *Env, opts DistOptions) (*Report, error) {
	start := time.Now()
	ctx = log.NewContext(ctx, e.Logger)
	if err := e.Setup(ctx); err != nil {
		return nil, err
	}

	res, err := e.Mirror.Sync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sync mirror: %w", err)
	}
	e.Logger.Info("mirror ready", "action", res.Action, "commit", res.Commit, "dir", e.Mirror.Dir())

	if err := e.EnsureGenerator(ctx); err != nil {
		return nil, err
	}

	m, err := e.LoadManifest()
	if err != nil {
		return nil, err
	}

	report, err := e.build(ctx, m.Grammars, opts.Force)
	if err != nil {
		return report, err
	}
	if report.Pruned, err = e.prune(m); err != nil {
		return report, err
	}

	if err := e.CopyMetadata(); err != nil {
		return report, err
	}
	if err := e.RenderDocs(m); err != nil {
		return report, err
	}

	if opts.Publish {
		p, err := e.publisher(ctx)
		if err != nil {
			return report, err
		}
		sum, err := p.Publish(ctx, e.DistDir)
		if err != nil {
			return report, fmt.Errorf("failed to publish: %w", err)
		}
		report.Published = &sum
	}

	report.Duration = time.Since(start)
	e.Logger.Info("dist complete",
		"built", len(report.Built),
		"cached", len(report.Cached),
		"artifacts", report.Artifacts,
		"duration", report.Duration.Round(time.Millisecond))
	return report, nil
}

// build runs the builder over grammars sequentially, persisting the cache
// after each success.
func (e *Env) build(ctx context.Context, grammars []manifest.Grammar, force bool) (*Report, error) {
	index, err := e.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}

	b := e.builder(index, force)
	report := &Report{RunID: e.RunID}
	for i, g := range grammars {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		e.Logger.Info("building grammar", "grammar", g.Name, "key", g.Key, "progress", fmt.Sprintf("%d/%d", i+1, len(grammars)))

		res, err := b.Build(ctx, g)
		if err != nil {
			return report, err
		}
		if res.Cached {
			report.Cached = append(report.Cached, res.Key)
		} else {
			report.Built = append(report.Built, res.Key)
		}
		report.Artifacts += len(res.Artifacts)

		if err := e.Store.Save(b.Index()); err != nil {
			return report, fmt.Errorf("failed to save cache: %w", err)
		}
	}
	return report, nil
}

// prune drops cache entries whose grammar is no longer in m, along with the
// artifacts they recorded.
func (e *Env) prune(m *manifest.Manifest) ([]string, error) {
	index, err := e.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	keep := make(map[string]bool, m.Len())
	for _, g := range m.Grammars {
		keep[g.Key] = true
	}

	var pruned []string
	for _, key := range index.Keys() {
		if keep[key] {
			continue
		}
		if err := e.removeArtifacts(index, key); err != nil {
			return pruned, err
		}
		index.Remove(key)
		pruned = append(pruned, key)
	}
	if len(pruned) == 0 {
		return nil, nil
	}
	e.Logger.Info("pruned cache entries", "grammars", pruned)
	if err := e.Store.Save(index); err != nil {
		return pruned, fmt.Errorf("failed to save cache: %w", err)
	}
	return pruned, nil
}

// removeArtifacts deletes the dist files recorded for key. Directories are
// left in place.
func (e *Env) removeArtifacts(index *incremental.Index, key string) error {
	entry, ok := index.Get(key)
	if !ok {
		return nil
	}
	for _, rel := range util.SortedKeys(entry.Artifacts) {
		err := os.Remove(filepath.Join(e.DistDir, filepath.FromSlash(rel)))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s of pruned grammar %s: %w", rel, key, err)
		}
	}
	return nil
}

// CopyMetadata validates the packaging metadata and copies it into the dist
// root under its own file name.
func (e *Env) CopyMetadata() error {
	data, err := os.ReadFile(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to read package metadata: %w", err)
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return fmt.Errorf("%w: %s is not a JSON object", ErrInvalidMetadata, e.Metadata)
	}
	if name := gjson.GetBytes(data, "name"); name.String() == "" {
		return fmt.Errorf("%w: %s has no name", ErrInvalidMetadata, e.Metadata)
	}

	dst := filepath.Join(e.DistDir, filepath.Base(e.Metadata))
	if err := fsutil.CopyFile(e.Metadata, dst); err != nil {
		return err
	}
	e.Logger.Debug("copied package metadata", "dest", dst)
	return nil
}

// RenderDocs writes the README for m into the dist root.
func (e *Env) RenderDocs(m *manifest.Manifest) error {
	rows, err := docs.Rows(m.Grammars, e.Config.Docs.Presence, e.DistDir, e.Target.BundleExt)
	if err != nil {
		return fmt.Errorf("failed to collect grammar table: %w", err)
	}
	for _, r := range rows {
		if len(r.Components.List()) == 0 {
			e.Logger.Debug("grammar has no components", "grammar", r.Path, "presence", e.Config.Docs.Presence)
		}
	}
	out := filepath.Join(e.DistDir, e.Config.Docs.Output)
	if err := docs.Render(e.Template, out, e.Config.Docs.Placeholder, rows); err != nil {
		return err
	}
	e.Logger.Info("rendered readme", "path", out, "rows", len(rows))
	return nil
}

// RunReadme renders the README without building. The mirror is cloned only
// if absent.
func RunReadme(ctx context.Context, e *Env) error {
	ctx = log.NewContext(ctx, e.Logger)
	if err := e.Setup(ctx); err != nil {
		return err
	}
	if _, err := e.Mirror.Ensure(ctx); err != nil {
		return fmt.Errorf("failed to prepare mirror: %w", err)
	}
	m, err := e.LoadManifest()
	if err != nil {
		return err
	}
	return e.RenderDocs(m)
}

// Status classifies every manifest grammar against the cache without
// building or touching the network.
func Status(ctx context.Context, e *Env) (*incremental.ChangeSet, error) {
	ctx = log.NewContext(ctx, e.Logger)
	if !fsutil.DirExists(e.Mirror.Dir()) {
		return nil, fmt.Errorf("mirror %s does not exist; run dist first", e.Mirror.Dir())
	}
	m, err := e.LoadManifest()
	if err != nil {
		return nil, err
	}

	grammars := make([]incremental.Snapshot, len(m.Grammars))
	for i, g := range m.Grammars {
		grammars[i] = incremental.Snapshot{
			Key:     g.Key,
			Sources: g.SourcePaths(),
			Outputs: g.RequiredOutputs(e.Target.BundleExt),
		}
	}
	return incremental.NewTracker(e.Store, e.BuildID, e.Mirror.Dir(), e.DistDir).Status(ctx, grammars)
}

// Rebuild builds the grammars owning any of dirs (absolute paths inside the
// mirror) and refreshes the README. It reloads the manifest so grammars
// added since the last run are picked up.
func Rebuild(ctx context.Context, e *Env, dirs []string) (*Report, error) {
	ctx = log.NewContext(ctx, e.Logger)
	m, err := e.LoadManifest()
	if err != nil {
		return nil, err
	}

	affected := Affected(m, e.Mirror.Dir(), dirs)
	if len(affected) == 0 {
		e.Logger.Debug("no grammars affected", "dirs", len(dirs))
		return &Report{RunID: e.RunID}, nil
	}

	report, err := e.build(ctx, affected, false)
	if err != nil {
		return report, err
	}
	return report, e.RenderDocs(m)
}

// Affected returns the grammars of m whose base directory contains, or is
// contained in, one of dirs. Order follows the manifest.
func Affected(m *manifest.Manifest, root string, dirs []string) []manifest.Grammar {
	rels := make([]string, 0, len(dirs))
	for _, d := range dirs {
		rel, err := filepath.Rel(root, d)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		rels = append(rels, filepath.ToSlash(rel))
	}

	var out []manifest.Grammar
	for _, g := range m.Grammars {
		for _, rel := range rels {
			if within(rel, g.BaseDir) || within(g.BaseDir, rel) {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

func within(p, dir string) bool {
	if dir == "." || dir == "" {
		return true
	}
	p = path.Clean(p)
	return p == dir || strings.HasPrefix(p, dir+"/")
}
