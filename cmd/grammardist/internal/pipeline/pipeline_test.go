package pipeline_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/bundle"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/incremental"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/langs"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/manifest"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/pipeline"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/publish"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/runner"
	"github.com/albertocavalcante/grammardist/internal/log"
	"github.com/albertocavalcante/grammardist/pkg/config"
)

const template = "# Grammars\n\n{{GRAMMARS}}\n"

// fakeGenerator writes one entry file per generated class, embedding the
// source text.
type fakeGenerator struct {
	calls atomic.Int32
}

func (g *fakeGenerator) Generate(_ context.Context, req runner.Request) error {
	g.calls.Add(1)
	ext := ".js"
	if req.Language == "TypeScript" {
		ext = ".ts"
	}
	for _, src := range req.Sources {
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		stem := langs.Stem(src)

		var names []string
		switch langs.Classify(src) {
		case langs.KindLexer:
			names = []string{stem}
		case langs.KindParser:
			names = []string{stem, stem + "Listener", stem + "Visitor"}
		default:
			names = []string{stem + "Lexer", stem + "Parser", stem + "Listener", stem + "Visitor"}
		}
		for _, name := range names {
			content := "// " + name + "\n" + string(data)
			if err := os.WriteFile(filepath.Join(req.OutDir, name+ext), []byte(content), 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

type fakeBundler struct {
	calls atomic.Int32
}

func (b *fakeBundler) Bundle(_ context.Context, req bundle.Request) error {
	b.calls.Add(1)
	data, err := os.ReadFile(req.Entry)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(req.Outfile), 0o755); err != nil {
		return err
	}
	return os.WriteFile(req.Outfile, append([]byte("bundled:"), data...), 0o644)
}

type fakeFetcher struct {
	calls atomic.Int32
}

func (f *fakeFetcher) Download(_ context.Context, _, dest string) error {
	f.calls.Add(1)
	return os.WriteFile(dest, []byte("jar"), 0o644)
}

type fakePublisher struct {
	root string
}

func (p *fakePublisher) Publish(_ context.Context, root string) (publish.Summary, error) {
	p.root = root
	return publish.Summary{Files: 1, Bytes: 3}, nil
}

type fixture struct {
	t       *testing.T
	root    string
	mirror  string
	target  string // build.target override
	gen     *fakeGenerator
	bundler *fakeBundler
	fetcher *fakeFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		t:       t,
		root:    root,
		mirror:  filepath.Join(root, "grammars"),
		gen:     &fakeGenerator{},
		bundler: &fakeBundler{},
		fetcher: &fakeFetcher{},
	}
	f.write(filepath.Join(root, "README.template.md"), template)
	f.write(filepath.Join(root, "package.json"), `{"name":"grammars","version":"1.0.0"}`)
	return f
}

func (f *fixture) write(path, content string) {
	f.t.Helper()
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(f.t, os.WriteFile(path, []byte(content), 0o644))
}

// grammar adds a grammar directory with its metadata and the given sources.
// Names listed in sources but absent from files are declared but not written.
func (f *fixture) grammar(dir, name, sources string, files map[string]string) {
	f.t.Helper()
	base := filepath.Join(f.mirror, dir)
	f.write(filepath.Join(base, manifest.DescFile), `<desc><targets>Java;JavaScript;TypeScript</targets></desc>`)
	f.write(filepath.Join(base, manifest.PomFile), `<project><build><plugins><plugin><configuration>
<grammars>`+sources+`</grammars>
<grammarName>`+name+`</grammarName>
</configuration></plugin></plugins></build></project>`)
	for file, content := range files {
		f.write(filepath.Join(base, file), content)
	}
}

func (f *fixture) env(opts ...pipeline.EnvOption) *pipeline.Env {
	f.t.Helper()
	cfg := config.NewConfig()
	local := true
	cfg.Source.Local = &local
	cfg.Source.Dir = f.mirror
	cfg.Generator.JarURL = "https://downloads.invalid/antlr-complete.jar"
	if f.target != "" {
		cfg.Build.Target = f.target
	}

	opts = append([]pipeline.EnvOption{
		pipeline.WithGenerator(f.gen),
		pipeline.WithBundler(f.bundler),
		pipeline.WithFetcher(f.fetcher),
	}, opts...)
	env, err := pipeline.NewEnv(cfg, f.root, opts...)
	require.NoError(f.t, err)
	return env
}

func (f *fixture) read(rel string) string {
	f.t.Helper()
	data, err := os.ReadFile(filepath.Join(f.root, "dist", filepath.FromSlash(rel)))
	require.NoError(f.t, err)
	return string(data)
}

func (f *fixture) standard() {
	f.grammar("alpha", "Alpha", "Alpha.g4", map[string]string{"Alpha.g4": "grammar Alpha;"})
	f.grammar("beta", "Beta", "BetaLexer.g4 BetaParser.g4", map[string]string{
		"BetaLexer.g4":  "lexer grammar BetaLexer;",
		"BetaParser.g4": "parser grammar BetaParser;",
	})
}

func TestNewEnvPaths(t *testing.T) {
	f := newFixture(t)
	env := f.env()

	assert.Equal(t, filepath.Join(f.root, "dist"), env.DistDir)
	assert.Equal(t, filepath.Join(f.root, ".grammardist"), env.WorkDir)
	assert.Equal(t, f.mirror, env.MirrorDir)
	assert.Equal(t, filepath.Join(env.WorkDir, pipeline.GenDirName), env.GenDir)
	assert.Equal(t, filepath.Join(env.WorkDir, "antlr-4.13.2-complete.jar"), env.JarPath)
	assert.Equal(t, ".js", env.Target.BundleExt)
	assert.NotEmpty(t, env.RunID)
}

func TestNewEnvInvalidConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Build.Target = "cobol"
	_, err := pipeline.NewEnv(cfg, t.TempDir())
	assert.Error(t, err)
}

func TestRunDist(t *testing.T) {
	f := newFixture(t)
	f.standard()
	env := f.env()

	report, err := pipeline.RunDist(context.Background(), env, pipeline.DistOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, report.Built)
	assert.Empty(t, report.Cached)
	assert.Equal(t, 8, report.Artifacts)
	assert.Nil(t, report.Published)
	assert.EqualValues(t, 1, f.fetcher.calls.Load(), "jar should be downloaded once")
	assert.FileExists(t, env.JarPath)

	assert.Equal(t, "bundled:// AlphaLexer\ngrammar Alpha;", f.read("alpha/lexer.js"))
	assert.Equal(t, "bundled:// BetaParserVisitor\nparser grammar BetaParser;", f.read("beta/visitor.js"))
	assert.JSONEq(t, `{"name":"grammars","version":"1.0.0"}`, f.read("package.json"))

	readme := f.read("README.md")
	assert.Contains(t, readme, "| Alpha | alpha | ✓ | ✓ | ✓ | ✓ |\n")
	assert.Contains(t, readme, "| Beta | beta | ✓ | ✓ | ✓ | ✓ |\n")
	assert.True(t, strings.HasPrefix(readme, "# Grammars\n\n| Grammar | Path |"))
}

func TestRunDistLogsCarryRunID(t *testing.T) {
	var buf bytes.Buffer
	log.InitWriter(log.VerbosityInfo, "text", &buf)
	t.Cleanup(func() { log.Init(log.VerbosityWarn, "text") })

	f := newFixture(t)
	f.grammar("alpha", "Alpha", "Alpha.g4", map[string]string{"Alpha.g4": "grammar Alpha;"})
	env := f.env()

	_, err := pipeline.RunDist(context.Background(), env, pipeline.DistOptions{})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "component=build")
	assert.Contains(t, out, "run_id="+env.RunID)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.Contains(line, "component=build") {
			assert.Contains(t, line, "run_id="+env.RunID)
		}
	}
}

func TestRunDistRerunIsCached(t *testing.T) {
	f := newFixture(t)
	f.standard()
	ctx := context.Background()

	_, err := pipeline.RunDist(ctx, f.env(), pipeline.DistOptions{})
	require.NoError(t, err)
	lexer := f.read("beta/lexer.js")
	genCalls, bundleCalls := f.gen.calls.Load(), f.bundler.calls.Load()

	report, err := pipeline.RunDist(ctx, f.env(), pipeline.DistOptions{})
	require.NoError(t, err)

	assert.Empty(t, report.Built)
	assert.Equal(t, []string{"alpha", "beta"}, report.Cached)
	assert.Equal(t, genCalls, f.gen.calls.Load(), "generator should not run")
	assert.Equal(t, bundleCalls, f.bundler.calls.Load(), "bundler should not run")
	assert.Equal(t, lexer, f.read("beta/lexer.js"))
	assert.EqualValues(t, 1, f.fetcher.calls.Load(), "jar should not be downloaded again")
}

func TestRunDistPrunesRemovedGrammars(t *testing.T) {
	f := newFixture(t)
	f.standard()
	env := f.env()

	_, err := pipeline.RunDist(context.Background(), env, pipeline.DistOptions{})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(env.MirrorDir, "beta")))

	report, err := pipeline.RunDist(context.Background(), env, pipeline.DistOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, report.Cached)
	assert.Equal(t, []string{"beta"}, report.Pruned)

	index, err := env.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, index.Keys())
	assert.NotContains(t, f.read("README.md"), "| Beta |")
	for _, c := range langs.Components {
		assert.NoFileExists(t, filepath.Join(env.DistDir, "beta", c.FileName()+".js"))
	}
	assert.FileExists(t, filepath.Join(env.DistDir, "alpha", "lexer.js"))
}

func TestRunDistTargetChangeRebuilds(t *testing.T) {
	f := newFixture(t)
	f.grammar("alpha", "Alpha", "Alpha.g4", map[string]string{"Alpha.g4": "grammar Alpha;"})
	ctx := context.Background()

	_, err := pipeline.RunDist(ctx, f.env(), pipeline.DistOptions{})
	require.NoError(t, err)
	genCalls := f.gen.calls.Load()

	f.target = "typescript"
	env := f.env()
	cs, err := pipeline.Status(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, cs.BuildChanged)

	report, err := pipeline.RunDist(ctx, env, pipeline.DistOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, report.Built)
	assert.Equal(t, genCalls+1, f.gen.calls.Load(), "generator should run once for the new target")

	entry, ok := mustLoad(t, env).Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "typescript+antlr-4.13.2", entry.Build)

	report, err = pipeline.RunDist(ctx, f.env(), pipeline.DistOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, report.Cached)
}

func TestRunDistGrammarReducedToLexer(t *testing.T) {
	f := newFixture(t)
	f.grammar("alpha", "Alpha", "Alpha.g4", map[string]string{"Alpha.g4": "grammar Alpha;"})
	ctx := context.Background()
	env := f.env()

	_, err := pipeline.RunDist(ctx, env, pipeline.DistOptions{})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(env.DistDir, "alpha", "parser.js"))

	f.grammar("alpha", "Alpha", "AlphaLexer.g4", map[string]string{"AlphaLexer.g4": "lexer grammar AlphaLexer;"})
	report, err := pipeline.RunDist(ctx, env, pipeline.DistOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, report.Built)

	entries, err := os.ReadDir(filepath.Join(env.DistDir, "alpha"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"lexer.js"}, names)
	assert.Contains(t, f.read("README.md"), "| Alpha | alpha | ✓ |  |  |  |\n")
}

func mustLoad(t *testing.T, env *pipeline.Env) *incremental.Index {
	t.Helper()
	idx, err := env.Store.Load()
	require.NoError(t, err)
	return idx
}

func TestRunDistForce(t *testing.T) {
	f := newFixture(t)
	f.standard()
	ctx := context.Background()

	_, err := pipeline.RunDist(ctx, f.env(), pipeline.DistOptions{})
	require.NoError(t, err)
	report, err := pipeline.RunDist(ctx, f.env(), pipeline.DistOptions{Force: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, report.Built)
	assert.EqualValues(t, 4, f.gen.calls.Load())
}

func TestRunDistAbortKeepsEarlierGrammars(t *testing.T) {
	f := newFixture(t)
	f.grammar("alpha", "Alpha", "Alpha.g4", map[string]string{"Alpha.g4": "grammar Alpha;"})
	// BetaParser.g4 is declared but missing.
	f.grammar("beta", "Beta", "BetaLexer.g4 BetaParser.g4", map[string]string{
		"BetaLexer.g4": "lexer grammar BetaLexer;",
	})
	env := f.env()

	report, err := pipeline.RunDist(context.Background(), env, pipeline.DistOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "beta")
	require.NotNil(t, report)
	assert.Equal(t, []string{"alpha"}, report.Built)

	assert.FileExists(t, filepath.Join(env.DistDir, "alpha", "lexer.js"))
	assert.NoDirExists(t, filepath.Join(env.DistDir, "beta"))
	assert.NoFileExists(t, filepath.Join(env.DistDir, "README.md"), "readme is rendered only after a full build")
	assert.NoFileExists(t, filepath.Join(env.DistDir, "package.json"))

	idx, err := incremental.NewJSONStore(env.WorkDir).Load()
	require.NoError(t, err)
	_, ok := idx.Get("alpha")
	assert.True(t, ok, "alpha should be cached")
	_, ok = idx.Get("beta")
	assert.False(t, ok, "beta should not be cached")
}

func TestRunDistInvalidMetadata(t *testing.T) {
	tests := map[string]string{
		"not json":   `{"name":`,
		"array":      `["grammars"]`,
		"no name":    `{"version":"1.0.0"}`,
		"empty name": `{"name":""}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.standard()
			f.write(filepath.Join(f.root, "package.json"), content)

			_, err := pipeline.RunDist(context.Background(), f.env(), pipeline.DistOptions{})
			assert.ErrorIs(t, err, pipeline.ErrInvalidMetadata)
		})
	}
}

func TestRunDistPublish(t *testing.T) {
	f := newFixture(t)
	f.standard()
	pub := &fakePublisher{}
	env := f.env(pipeline.WithPublisher(pub))

	report, err := pipeline.RunDist(context.Background(), env, pipeline.DistOptions{Publish: true})
	require.NoError(t, err)

	assert.Equal(t, env.DistDir, pub.root)
	require.NotNil(t, report.Published)
	assert.Equal(t, 1, report.Published.Files)
}

func TestRunDistExistingJar(t *testing.T) {
	f := newFixture(t)
	f.standard()
	env := f.env()
	f.write(env.JarPath, "jar")

	_, err := pipeline.RunDist(context.Background(), env, pipeline.DistOptions{})
	require.NoError(t, err)
	assert.Zero(t, f.fetcher.calls.Load())
}

func TestRunReadme(t *testing.T) {
	f := newFixture(t)
	f.standard()
	f.grammar("aardvark", "Aardvark", "Aardvark.g4", map[string]string{"Aardvark.g4": "grammar Aardvark;"})

	require.NoError(t, pipeline.RunReadme(context.Background(), f.env()))

	assert.Zero(t, f.gen.calls.Load())
	assert.Zero(t, f.bundler.calls.Load())
	assert.Zero(t, f.fetcher.calls.Load())

	readme := f.read("README.md")
	var rows []string
	for _, line := range strings.Split(readme, "\n") {
		if strings.HasPrefix(line, "| ") && !strings.HasPrefix(line, "| Grammar ") {
			rows = append(rows, line)
		}
	}
	assert.Equal(t, []string{
		"| Aardvark | aardvark |  |  |  |  |",
		"| Alpha | alpha |  |  |  |  |",
		"| Beta | beta |  |  |  |  |",
	}, rows)
}

func TestRunReadmeMissingPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.standard()
	f.write(filepath.Join(f.root, "README.template.md"), "# Grammars\n")

	err := pipeline.RunReadme(context.Background(), f.env())
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.standard()
	ctx := context.Background()

	cs, err := pipeline.Status(ctx, f.env())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, cs.New)

	_, err = pipeline.RunDist(ctx, f.env(), pipeline.DistOptions{})
	require.NoError(t, err)
	f.write(filepath.Join(f.mirror, "alpha", "Alpha.g4"), "grammar Alpha; // edited")

	cs, err = pipeline.Status(ctx, f.env())
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, cs.Fresh)
	assert.Equal(t, []string{"alpha"}, cs.SourcesChanged)
	assert.Equal(t, []string{"alpha"}, cs.StaleKeys())
}

func TestStatusWithoutMirror(t *testing.T) {
	f := newFixture(t)
	_, err := pipeline.Status(context.Background(), f.env())
	assert.Error(t, err)
}

func TestRebuild(t *testing.T) {
	f := newFixture(t)
	f.standard()
	ctx := context.Background()
	env := f.env()

	_, err := pipeline.RunDist(ctx, env, pipeline.DistOptions{})
	require.NoError(t, err)
	betaBefore := f.read("beta/lexer.js")

	f.write(filepath.Join(f.mirror, "alpha", "Alpha.g4"), "grammar Alpha; // edited")
	report, err := pipeline.Rebuild(ctx, env, []string{filepath.Join(f.mirror, "alpha")})
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha"}, report.Built)
	assert.Empty(t, report.Cached)
	assert.Equal(t, "bundled:// AlphaLexer\ngrammar Alpha; // edited", f.read("alpha/lexer.js"))
	assert.Equal(t, betaBefore, f.read("beta/lexer.js"))
}

func TestRebuildUnrelatedDir(t *testing.T) {
	f := newFixture(t)
	f.standard()
	env := f.env()

	report, err := pipeline.Rebuild(context.Background(), env, []string{filepath.Join(f.root, "elsewhere")})
	require.NoError(t, err)
	assert.Empty(t, report.Built)
	assert.Zero(t, f.gen.calls.Load())
}

func TestAffected(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "mirror")
	m := &manifest.Manifest{Grammars: []manifest.Grammar{
		{Name: "json", Key: "json", BaseDir: "json"},
		{Name: "java", Key: "java/java", BaseDir: "java/java"},
		{Name: "java8", Key: "java/java8", BaseDir: "java/java8"},
	}}

	tests := []struct {
		name string
		dirs []string
		want []string
	}{
		{"grammar dir", []string{"json"}, []string{"json"}},
		{"nested source dir", []string{"java/java/src"}, []string{"java"}},
		{"parent dir", []string{"java"}, []string{"java", "java8"}},
		{"sibling prefix", []string{"jso"}, nil},
		{"mirror root", []string{"."}, []string{"json", "java", "java8"}},
		{"no dirs", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dirs []string
			for _, d := range tt.dirs {
				dirs = append(dirs, filepath.Join(root, filepath.FromSlash(d)))
			}
			dirs = append(dirs, filepath.Join(string(filepath.Separator), "outside"))

			var got []string
			for _, g := range pipeline.Affected(m, root, dirs) {
				got = append(got, g.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
