package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// ChangeType is the marker printed for a file event.
type ChangeType string

const (
	ChangeAdded    ChangeType = "+"
	ChangeModified ChangeType = "~"
	ChangeDeleted  ChangeType = "-"
)

const (
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiReset  = "\033[0m"
)

var changeColors = map[ChangeType]string{
	ChangeAdded:    ansiGreen,
	ChangeModified: ansiYellow,
	ChangeDeleted:  ansiRed,
}

// WatchStats counts what happened during a watch session.
type WatchStats struct {
	RebuildCount int
	ErrorCount   int
	StartTime    time.Time
}

// LoggerConfig configures NewLogger.
type LoggerConfig struct {
	Writer  io.Writer // defaults to stdout
	Verbose bool      // print individual file events
	NoColor bool
	JSON    bool // one JSON object per line
}

// Logger reports watch events to the user, either as short timestamped
// lines or as newline-delimited JSON for tooling.
type Logger struct {
	cfg   LoggerConfig
	color bool

	mu    sync.Mutex // guards stats and writes
	stats WatchStats
}

// NewLogger creates a Logger. Color is used only when writing to a terminal.
func NewLogger(cfg LoggerConfig) *Logger {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	color := false
	if f, ok := cfg.Writer.(*os.File); ok && !cfg.NoColor {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Logger{
		cfg:   cfg,
		color: color,
		stats: WatchStats{StartTime: time.Now()},
	}
}

// fields are the JSON attributes of one event.
type fields map[string]any

// emit writes one event. In text mode line is printed as is, and an empty
// line prints nothing.
func (l *Logger) emit(name string, f fields, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.write(name, f, line)
}

func (l *Logger) write(name string, f fields, line string) {
	if !l.cfg.JSON {
		if line != "" {
			_, _ = io.WriteString(l.cfg.Writer, line)
		}
		return
	}

	if f == nil {
		f = fields{}
	}
	f["event"] = name
	data, err := json.Marshal(f)
	if err != nil {
		data = []byte(`{"event":"internal_error","error":"json marshal failed"}`)
	}
	_, _ = l.cfg.Writer.Write(append(data, '\n'))
}

func (l *Logger) stamped(format string, args ...any) string {
	return "[" + time.Now().Format(time.TimeOnly) + "] " + fmt.Sprintf(format, args...) + "\n"
}

func now() string {
	return time.Now().Format(time.RFC3339)
}

func (l *Logger) paint(s, color string) string {
	if !l.color || color == "" {
		return s
	}
	return color + s + ansiReset
}

// Ready reports that the initial watch set is registered.
func (l *Logger) Ready(grammarFiles int, path string) {
	l.emit("ready",
		fields{"grammar_files": grammarFiles, "path": path},
		fmt.Sprintf("grammardist: watching %d grammar files in %s\ngrammardist: ready\n\n", grammarFiles, path))
}

// FileChanged reports one relevant file event. Text output shows it only in
// verbose mode.
func (l *Logger) FileChanged(path string, change ChangeType) {
	var line string
	if l.cfg.Verbose {
		line = l.stamped("%s %s", l.paint(string(change), changeColors[change]), path)
	}
	l.emit("file_changed", fields{"path": path, "change": string(change), "time": now()}, line)
}

// Rebuilding reports the start of a rebuild for dirs.
func (l *Logger) Rebuilding(dirs []string) {
	what := fmt.Sprintf("%d directories", len(dirs))
	if len(dirs) == 1 {
		what = dirs[0]
	}
	l.emit("rebuilding", fields{"dirs": dirs, "time": now()}, l.stamped("rebuilding %s...", what))
}

// Rebuilt reports a regenerated grammar.
func (l *Logger) Rebuilt(grammar string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.RebuildCount++
	l.write("rebuilt", fields{"grammar": grammar, "time": now()},
		l.stamped("%s %s rebuilt", l.paint("✓", ansiGreen), grammar))
}

// UpToDate reports a rebuild that regenerated nothing.
func (l *Logger) UpToDate() {
	l.emit("up_to_date", fields{"time": now()}, l.stamped("up to date"))
}

// Error reports a failure. Watching continues.
func (l *Logger) Error(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.ErrorCount++
	l.write("error", fields{"error": err.Error(), "time": now()},
		l.stamped("%s error: %v", l.paint("✗", ansiRed), err))
}

// Shutdown reports the session totals.
func (l *Logger) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	l.write("shutdown",
		fields{"rebuilds": s.RebuildCount, "errors": s.ErrorCount, "duration": time.Since(s.StartTime).String()},
		fmt.Sprintf("\ngrammardist: shutting down (%d rebuilds, %d errors)\n", s.RebuildCount, s.ErrorCount))
}

// Stats returns a snapshot of the session counters.
func (l *Logger) Stats() WatchStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
