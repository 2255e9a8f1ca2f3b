package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/incremental"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/pipeline"
)

var statusFlags struct {
	json bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which grammars a dist run would rebuild",
	Long: `Compares the current grammar sources and dist artifacts against the
build cache without building or touching the network.

Grammars are reported as fresh, new, sources changed, outputs missing,
drifted (an artifact differs from the bytes recorded at build time) or
orphaned (cached but no longer in the manifest).

The --json flag outputs the result as JSON for scripting.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.json, "json", false,
		"Output as JSON")

	rootCmd.AddCommand(statusCmd)
}

// StatusOutput is the JSON output format for grammardist status.
type StatusOutput struct {
	Stale    bool                   `json:"stale"`
	Rebuild  []string               `json:"rebuild"`
	Grammars *incremental.ChangeSet `json:"grammars"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	env, err := newEnv()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	cs, err := pipeline.Status(ctx, env)
	if err != nil {
		return fmt.Errorf("failed to detect staleness: %w", err)
	}

	out := cmd.OutOrStdout()
	if statusFlags.json {
		rebuild := cs.StaleKeys()
		if rebuild == nil {
			rebuild = []string{}
		}
		return outputJSON(out, StatusOutput{
			Stale:    !cs.IsEmpty(),
			Rebuild:  rebuild,
			Grammars: cs,
		})
	}

	if cs.IsEmpty() {
		_, _ = fmt.Fprintf(out, "All %d grammars are up to date\n", len(cs.Fresh))
		printKeys(out, "Orphaned", "?", cs.Orphaned)
		return nil
	}

	printKeys(out, "New", "+", cs.New)
	printKeys(out, "Target or generator changed", "*", cs.BuildChanged)
	printKeys(out, "Sources changed", "~", cs.SourcesChanged)
	printKeys(out, "Outputs missing", "-", cs.OutputsMissing)
	printKeys(out, "Drifted", "!", cs.Drifted)
	printKeys(out, "Orphaned", "?", cs.Orphaned)
	_, _ = fmt.Fprintf(out, "\n%d fresh, %d to rebuild\n", len(cs.Fresh), cs.Stale())

	if len(cs.Drifted) > 0 {
		_, _ = fmt.Fprintln(out, "Run 'grammardist dist --force' to rebuild drifted artifacts")
	} else {
		_, _ = fmt.Fprintln(out, "Run 'grammardist dist' to rebuild")
	}
	return nil
}

func printKeys(w io.Writer, title, mark string, keys []string) {
	if len(keys) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "%s (%d):\n", title, len(keys))
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "  %s %s\n", mark, k)
	}
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
