// Package watch rebuilds grammars when their sources change in a local
// mirror.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/langs"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/manifest"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 500 * time.Millisecond

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")

// RebuildFunc rebuilds the grammars owning dirs (absolute paths) and returns
// the keys that were regenerated.
type RebuildFunc func(ctx context.Context, dirs []string) ([]string, error)

// Config configures the watcher.
type Config struct {
	// Root is the mirror directory.
	Root     string
	Debounce time.Duration
	Rebuild  RebuildFunc

	// Output receives watch events (stdout when nil).
	Output  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// Watcher watches grammar sources and triggers rebuilds.
type Watcher struct {
	config    Config
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	logger    *Logger
	ctx       context.Context

	// rebuildMu serializes rebuilds.
	rebuildMu sync.Mutex
}

// New creates a watcher. Root must exist and Rebuild must be set.
func New(cfg Config) (*Watcher, error) {
	if cfg.Rebuild == nil {
		return nil, errors.New("watch: rebuild function is required")
	}
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", cfg.Root)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		config:    cfg,
		fsWatcher: fsWatcher,
		logger: NewLogger(LoggerConfig{
			Writer:  cfg.Output,
			Verbose: cfg.Verbose,
			NoColor: cfg.NoColor,
			JSON:    cfg.JSON,
		}),
		ctx: context.Background(),
	}, nil
}

// Run starts the watch loop. It blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.ctx = ctx
	w.debouncer = NewDebouncer(w.config.Debounce, w.handleChangedDirs)
	defer w.debouncer.Stop()

	files, err := w.addRecursive(w.config.Root)
	if err != nil {
		return fmt.Errorf("failed to watch mirror: %w", err)
	}
	w.logger.Ready(files, w.config.Root)

	for {
		select {
		case <-ctx.Done():
			w.logger.Shutdown()
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err)
		}
	}
}

// addRecursive watches root and every non-ignored subdirectory and returns
// the number of grammar files found.
func (w *Watcher) addRecursive(root string) (int, error) {
	files := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				if w.config.Verbose {
					w.logger.Error(fmt.Errorf("permission denied: %s", path))
				}
				return nil
			}
			w.logger.Error(fmt.Errorf("walk error at %s: %w", path, err))
			return nil
		}

		if !d.IsDir() {
			if langs.IsGrammarFile(path) {
				files++
			}
			return nil
		}
		if path != root && langs.IsIgnoredDir(d.Name()) {
			return filepath.SkipDir
		}

		if err := w.fsWatcher.Add(path); err != nil {
			if isWatchLimitError(err) {
				return fmt.Errorf("%w at %s: %v\n"+
					"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288", ErrWatchLimitReached, path, err)
			}
			if w.config.Verbose {
				w.logger.Error(fmt.Errorf("failed to watch %s: %w", path, err))
			}
		}
		return nil
	})
	return files, err
}

// isWatchLimitError checks if an error is due to inotify watch limits.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "too many open files")
}

// isRelevant reports whether a change to path can alter a build: grammar
// sources and the per-grammar metadata files.
func isRelevant(path string) bool {
	if langs.IsGrammarFile(path) {
		return true
	}
	base := filepath.Base(path)
	return base == manifest.DescFile || base == manifest.PomFile
}

// handleEvent processes a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if langs.IsIgnoredDir(filepath.Base(path)) {
				return
			}
			files, err := w.addRecursive(path)
			if err != nil {
				w.logger.Error(fmt.Errorf("failed to watch new directory %s: %w", path, err))
				return
			}
			// Files copied in with the directory produce no events of their own.
			if files > 0 {
				w.debouncer.Add(path)
			}
			return
		}
	}

	if !isRelevant(path) {
		return
	}

	var change ChangeType
	switch {
	case event.Has(fsnotify.Create):
		change = ChangeAdded
	case event.Has(fsnotify.Write):
		change = ChangeModified
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		change = ChangeDeleted
	default:
		return
	}

	w.logger.FileChanged(w.rel(path), change)
	w.debouncer.Add(filepath.Dir(path))
}

// handleChangedDirs is called when the debouncer flushes.
func (w *Watcher) handleChangedDirs(dirs []string) {
	if len(dirs) == 0 {
		return
	}

	w.rebuildMu.Lock()
	defer w.rebuildMu.Unlock()

	if w.ctx.Err() != nil {
		return
	}

	slices.Sort(dirs)
	rels := make([]string, len(dirs))
	for i, d := range dirs {
		rels[i] = w.rel(d)
	}
	w.logger.Rebuilding(rels)

	keys, err := w.config.Rebuild(w.ctx, dirs)
	if err != nil {
		w.logger.Error(fmt.Errorf("rebuild failed: %w", err))
		return
	}
	if len(keys) == 0 {
		w.logger.UpToDate()
		return
	}
	for _, key := range keys {
		w.logger.Rebuilt(key)
	}
}

// rel returns path relative to the mirror for display.
func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.config.Root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// Stats returns the watch session statistics.
func (w *Watcher) Stats() WatchStats {
	return w.logger.Stats()
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}
