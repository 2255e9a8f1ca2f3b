// Package bundle turns one generated entry file into a standalone module.
package bundle

import (
	"context"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/albertocavalcante/grammardist/internal/log"
)

// Request describes one bundle.
type Request struct {
	// Entry is the generated entry file.
	Entry string

	// Outfile is the bundled artifact path.
	Outfile string
}

// Bundler produces one artifact per request.
type Bundler interface {
	Bundle(ctx context.Context, req Request) error
}

// Error carries the bundler diagnostics for one entry.
type Error struct {
	Entry    string
	Messages []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to bundle %s: %s", e.Entry, strings.Join(e.Messages, "; "))
}

// ESBuild bundles with esbuild's Go API. It is safe for concurrent use.
type ESBuild struct {
	external []string
	minify   bool
}

// Option configures an ESBuild bundler.
type Option func(*ESBuild)

// WithExternal leaves the named packages as imports instead of inlining them.
func WithExternal(pkgs ...string) Option {
	return func(b *ESBuild) {
		b.external = append(b.external, pkgs...)
	}
}

// WithMinify toggles minification.
func WithMinify(minify bool) Option {
	return func(b *ESBuild) {
		b.minify = minify
	}
}

// NewESBuild creates a minifying ESM bundler.
func NewESBuild(opts ...Option) *ESBuild {
	b := &ESBuild{minify: true}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bundle writes req.Entry and everything it imports, except external
// packages, to req.Outfile as a tree-shaken ES module.
func (b *ESBuild) Bundle(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result := api.Build(api.BuildOptions{
		EntryPoints:       []string{req.Entry},
		Outfile:           req.Outfile,
		Bundle:            true,
		Write:             true,
		Format:            api.FormatESModule,
		Platform:          api.PlatformNeutral,
		TreeShaking:       api.TreeShakingTrue,
		MinifyWhitespace:  b.minify,
		MinifyIdentifiers: b.minify,
		MinifySyntax:      b.minify,
		External:          b.external,
		LogLevel:          api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return &Error{Entry: req.Entry, Messages: formatMessages(result.Errors)}
	}
	for _, w := range formatMessages(result.Warnings) {
		log.V(log.VerbosityDebug).Info("bundler warning", "entry", req.Entry, "message", w)
	}
	return nil
}

func formatMessages(msgs []api.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			out = append(out, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		out = append(out, m.Text)
	}
	return out
}
