package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/pipeline"
)

var distFlags struct {
	force   bool
	publish bool
}

var distCmd = &cobra.Command{
	Use:   "dist",
	Short: "Build every grammar and write the distribution",
	Long: `Syncs the grammar mirror, downloads the generator if needed and builds
every grammar that supports the target, in manifest order. Grammars whose
sources and artifacts are unchanged since the last run are skipped.

The first failing grammar aborts the run. Grammars finished before it keep
their artifacts and cache entries.

After a full build the package metadata and README are written into the
dist directory. --publish then uploads the dist tree to S3.`,
	Args: cobra.NoArgs,
	RunE: runDist,
}

func init() {
	distCmd.Flags().BoolVar(&distFlags.force, "force", false,
		"Rebuild every grammar, ignoring the cache")
	distCmd.Flags().BoolVar(&distFlags.publish, "publish", false,
		"Upload the dist tree after building")

	rootCmd.AddCommand(distCmd)
}

func runDist(cmd *cobra.Command, _ []string) error {
	env, err := newEnv()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	report, err := pipeline.RunDist(ctx, env, pipeline.DistOptions{
		Force:   distFlags.force,
		Publish: distFlags.publish,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Built %d, cached %d grammars (%d artifacts) in %s\n",
		len(report.Built), len(report.Cached), report.Artifacts, report.Duration.Round(time.Millisecond))
	if report.Published != nil {
		_, _ = fmt.Fprintf(out, "Published %d files (%d bytes)\n", report.Published.Files, report.Published.Bytes)
	}
	_, _ = fmt.Fprintf(out, "Output: %s\n", env.DistDir)
	return nil
}
