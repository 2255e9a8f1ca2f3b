package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// global is the process logger. Level is shared by every handler built by
// Init so SetVerbosity takes effect on loggers already handed out.
var global struct {
	logger    atomic.Pointer[slog.Logger]
	level     slog.LevelVar
	verbosity atomic.Int32
}

func init() {
	InitWriter(VerbosityWarn, "text", os.Stderr)
}

// Init configures the process logger to write to stderr.
func Init(v int, format string) {
	InitWriter(v, format, os.Stderr)
}

// InitWriter configures the process logger to write to w.
func InitWriter(v int, format string, w io.Writer) {
	SetVerbosity(v)
	l := slog.New(NewHandler(HandlerOptions{
		Level:     &global.level,
		Format:    format,
		Output:    w,
		AddSource: v >= VerbosityTrace,
	}))
	global.logger.Store(l)
	slog.SetDefault(l)
}

// SetVerbosity changes verbosity at runtime.
func SetVerbosity(v int) {
	global.verbosity.Store(int32(v))
	global.level.Set(VerbosityToLevel(v))
}

// Verbosity returns the current -v value.
func Verbosity() int {
	return int(global.verbosity.Load())
}

// Logger returns the process logger.
func Logger() *slog.Logger {
	return global.logger.Load()
}

// Nop returns a logger that drops everything.
func Nop() *slog.Logger {
	return slog.New(discardHandler{})
}

// Error logs at error level (v=0).
func Error(msg string, args ...any) { Logger().Error(msg, args...) }

// Warn logs at warn level (v=1).
func Warn(msg string, args ...any) { Logger().Warn(msg, args...) }

// Info logs at info level (v=2).
func Info(msg string, args ...any) { Logger().Info(msg, args...) }

// Debug logs at debug level (v=3).
func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }

// Trace logs at trace level (v=4).
func Trace(msg string, args ...any) {
	Logger().Log(context.Background(), LevelTrace, msg, args...)
}

// V returns the process logger when verbosity is at least v, else Nop.
//
//	log.V(3).Info("generator stdout", "out", out)
func V(v int) *slog.Logger {
	if Verbosity() >= v {
		return Logger()
	}
	return Nop()
}

// With returns the process logger with extra attributes.
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Component returns the process logger tagged with a component name.
func Component(name string) *slog.Logger {
	return Logger().With("component", name)
}

type ctxKey struct{}

// NewContext returns ctx carrying l. Steps of one run log through the run's
// logger so every line carries its run id.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by NewContext, or the process logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return Logger()
}
