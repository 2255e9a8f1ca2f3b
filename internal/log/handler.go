package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// HandlerOptions configures NewHandler.
type HandlerOptions struct {
	Level  slog.Leveler
	Format string    // "text" or "json"
	Output io.Writer // defaults to stderr

	// AddSource records file:line. Init enables it at trace verbosity.
	AddSource bool
}

// NewHandler returns a JSON handler for format "json", a colorized handler
// for a terminal, and a plain key=value handler otherwise. Log output never
// goes to stdout, which carries command results.
func NewHandler(opts HandlerOptions) slog.Handler {
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}

	std := &slog.HandlerOptions{
		Level:       opts.Level,
		AddSource:   opts.AddSource,
		ReplaceAttr: levelNames,
	}
	switch {
	case opts.Format == "json":
		return slog.NewJSONHandler(w, std)
	case attachedToTerminal(w):
		return tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			AddSource:  opts.AddSource,
			TimeFormat: time.TimeOnly,
		})
	default:
		return slog.NewTextHandler(w, std)
	}
}

func attachedToTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func levelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if l, ok := a.Value.Any().(slog.Level); ok {
		a.Value = slog.StringValue(LevelName(l))
	}
	return a
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }
