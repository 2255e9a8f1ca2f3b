// Package log is grammardist's structured logger, a thin layer over log/slog.
//
// Verbosity follows the -v=N convention: 0 prints errors only and each step
// up adds one level, ending at trace. A run-scoped logger can travel in a
// context via NewContext and FromContext.
package log

import "log/slog"

// LevelTrace sits below slog.LevelDebug.
const LevelTrace = slog.Level(-8)

const (
	VerbosityError = 0
	VerbosityWarn  = 1 // default
	VerbosityInfo  = 2 // mirror sync, grammars built, run summary
	VerbosityDebug = 3 // cache decisions, generator commands
	VerbosityTrace = 4 // per-file digests, source locations
)

var verbosityLevels = [...]slog.Level{
	VerbosityError: slog.LevelError,
	VerbosityWarn:  slog.LevelWarn,
	VerbosityInfo:  slog.LevelInfo,
	VerbosityDebug: slog.LevelDebug,
	VerbosityTrace: LevelTrace,
}

// VerbosityToLevel maps -v=N to a slog level, clamping out-of-range values.
func VerbosityToLevel(v int) slog.Level {
	v = max(VerbosityError, min(v, VerbosityTrace))
	return verbosityLevels[v]
}

// LevelToVerbosity returns the lowest -v=N at which l is printed.
func LevelToVerbosity(l slog.Level) int {
	for v, lv := range verbosityLevels {
		if l >= lv {
			return v
		}
	}
	return VerbosityTrace
}

// LevelName is slog.Level.String with TRACE for LevelTrace.
func LevelName(l slog.Level) string {
	if l == LevelTrace {
		return "TRACE"
	}
	return l.String()
}
