package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/pipeline"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/watch"
	"github.com/albertocavalcante/grammardist/internal/log"
)

var watchFlags struct {
	debounce time.Duration
	verbose  bool
	json     bool
	noColor  bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild grammars when their sources change",
	Long: `Builds once, then watches a local grammar mirror (source.local = true)
and rebuilds the affected grammars whenever a grammar source or its metadata
changes. The README is refreshed after every rebuild.

Example output:

  $ grammardist watch

  grammardist: watching 1,247 grammar files in /work/grammars-v4
  grammardist: ready

  [14:32:15] rebuilding json...
  [14:32:16] ✓ json rebuilt

Press Ctrl+C to stop watching.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchFlags.debounce, "debounce", watch.DefaultDebounce,
		"Quiet period before a batch of changes is rebuilt")
	watchCmd.Flags().BoolVar(&watchFlags.verbose, "verbose", false,
		"Show file-level changes")
	watchCmd.Flags().BoolVar(&watchFlags.json, "json", false,
		"Stream JSON events (for tooling integration)")
	watchCmd.Flags().BoolVar(&watchFlags.noColor, "no-color", false,
		"Disable colored output")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	env, err := newEnv()
	if err != nil {
		return err
	}
	if !env.Config.IsLocal() {
		return errors.New("watch requires a local mirror (set source.local = true)")
	}

	ctx, cancel := signalContext()
	defer cancel()

	// A failed initial build is reported but does not stop watching; fixing
	// the grammar triggers the rebuild.
	if _, err := pipeline.RunDist(ctx, env, pipeline.DistOptions{}); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.Error("initial build failed", "error", err)
	}

	w, err := watch.New(watch.Config{
		Root:     env.MirrorDir,
		Debounce: watchFlags.debounce,
		Output:   cmd.OutOrStdout(),
		Verbose:  watchFlags.verbose,
		NoColor:  watchFlags.noColor,
		JSON:     watchFlags.json,
		Rebuild: func(ctx context.Context, dirs []string) ([]string, error) {
			report, err := pipeline.Rebuild(ctx, env, dirs)
			if err != nil {
				return nil, err
			}
			return report.Built, nil
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	return w.Run(ctx)
}
