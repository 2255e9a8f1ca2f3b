package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/pipeline"
)

var readmeCmd = &cobra.Command{
	Use:   "readme",
	Short: "Render the README grammar table without building",
	Long: `Loads the manifest and renders the README into the dist directory.
The mirror is cloned only if it does not exist yet; artifacts are not
touched.`,
	Args: cobra.NoArgs,
	RunE: runReadme,
}

func init() {
	rootCmd.AddCommand(readmeCmd)
}

func runReadme(cmd *cobra.Command, _ []string) error {
	env, err := newEnv()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := pipeline.RunReadme(ctx, env); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", filepath.Join(env.DistDir, env.Config.Docs.Output))
	return nil
}
