package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/albertocavalcante/grammardist/internal/fsutil"
	"github.com/albertocavalcante/grammardist/pkg/config"
)

var initFlags struct {
	check  bool
	dryRun bool
	name   string
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create grammardist.toml and the files a dist run needs",
	Long: `Initializes a workspace for grammardist.

This command will create, when absent:
1. grammardist.toml with the default configuration
2. the README template containing the grammar table placeholder
3. the package metadata copied into the dist directory

Existing files are never modified.
Use --check to verify the workspace without making changes (useful for CI).
Use --dry-run to preview the files without writing them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initFlags.check, "check", false,
		"Check that the workspace is initialized (exit 1 if not)")
	initCmd.Flags().BoolVar(&initFlags.dryRun, "dry-run", false,
		"Show what would be created without writing")
	initCmd.Flags().StringVar(&initFlags.name, "name", "",
		"Package name (defaults to directory name)")

	rootCmd.AddCommand(initCmd)
}

// scaffoldFile is one file created by init.
type scaffoldFile struct {
	path    string
	content []byte
}

func runInit(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	name := initFlags.name
	if name == "" {
		name = filepath.Base(absPath)
	}

	files, err := scaffold(absPath, name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case initFlags.check:
		return runInitCheck(out, files)
	case initFlags.dryRun:
		runInitDryRun(out, files)
		return nil
	default:
		return runInitApply(out, files)
	}
}

// scaffold returns the files init manages for the workspace at root.
func scaffold(root, name string) ([]scaffoldFile, error) {
	cfg := config.NewConfig()

	var buf bytes.Buffer
	buf.WriteString("# grammardist configuration. Relative paths resolve against this file.\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode default config: %w", err)
	}

	template := fmt.Sprintf("# %s\n\nParsers generated from the grammars below.\n\n%s\n", name, cfg.Docs.Placeholder)
	metadata := fmt.Sprintf(`{
  "name": %q,
  "version": "0.1.0",
  "type": "module",
  "peerDependencies": {
    "antlr4": "^%s"
  }
}
`, name, cfg.Generator.Version)

	return []scaffoldFile{
		{path: filepath.Join(root, config.ProjectFile), content: buf.Bytes()},
		{path: filepath.Join(root, cfg.Docs.Template), content: []byte(template)},
		{path: filepath.Join(root, cfg.Package.Metadata), content: []byte(metadata)},
	}, nil
}

func runInitCheck(w io.Writer, files []scaffoldFile) error {
	var missing []string
	for _, f := range files {
		if !fsutil.FileExists(f.path) {
			missing = append(missing, f.path)
		}
	}
	if len(missing) > 0 {
		_, _ = fmt.Fprintln(w, "Workspace is not initialized:")
		for _, m := range missing {
			_, _ = fmt.Fprintf(w, "  - %s not found\n", m)
		}
		_, _ = fmt.Fprintln(w, "\nRun 'grammardist init' to fix")
		return fmt.Errorf("%d workspace files missing", len(missing))
	}

	_, _ = fmt.Fprintln(w, "Workspace is initialized")
	return nil
}

func runInitDryRun(w io.Writer, files []scaffoldFile) {
	for i, f := range files {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		if fsutil.FileExists(f.path) {
			_, _ = fmt.Fprintf(w, "%s exists (would not modify)\n", f.path)
			continue
		}
		_, _ = fmt.Fprintf(w, "Would create %s:\n%s", f.path, f.content)
	}
}

func runInitApply(w io.Writer, files []scaffoldFile) error {
	for _, f := range files {
		if fsutil.FileExists(f.path) {
			_, _ = fmt.Fprintf(w, "%s already exists (skipping)\n", filepath.Base(f.path))
			continue
		}
		if err := os.WriteFile(f.path, f.content, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.path, err)
		}
		_, _ = fmt.Fprintf(w, "Created %s\n", f.path)
	}

	_, _ = fmt.Fprintln(w, "\nNext steps:")
	_, _ = fmt.Fprintln(w, "  1. Review grammardist.toml (source, target, publish)")
	_, _ = fmt.Fprintln(w, "  2. Run 'grammardist dist' to build every grammar")
	return nil
}
