// Package cli implements the grammardist command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/pipeline"
	"github.com/albertocavalcante/grammardist/internal/log"
	"github.com/albertocavalcante/grammardist/pkg/config"
	"github.com/albertocavalcante/grammardist/pkg/registry"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// errNoMode is returned when no subcommand is given.
var errNoMode = errors.New("missing mode")

// globalFlags holds persistent flags that apply to all commands
var globalFlags struct {
	config    string
	verbosity int
	logFormat string
	target    string
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "grammardist",
	Short: "Build bundled parsers from a grammar repository",
	Long: `grammardist mirrors a grammar repository, runs the parser generator for
every grammar that supports the selected target, bundles the generated
sources into one module per component and renders a README table.

Configuration is read from grammardist.toml at the workspace root (or
--config), then GRAMMARDIST_* environment variables, then flags.`,
	SilenceUsage: true,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return nil
		}
		cmd.PrintErrln(cmd.UsageString())
		return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.PrintErrln(cmd.UsageString())
		return errNoMode
	},
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "grammardist %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVar(&globalFlags.config, "config", "",
		"Config file (default: grammardist.toml at the workspace root)")
	rootCmd.PersistentFlags().IntVarP(&globalFlags.verbosity, "verbosity", "v", 1,
		"Verbosity level (0=error, 1=warn, 2=info, 3=debug, 4=trace)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.logFormat, "log-format", "text",
		"Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.target, "target", "",
		"Output target ("+strings.Join(registry.AvailableTargets(), ", ")+"); overrides build.target")

	cobra.OnInitialize(initLogging)
}

// initLogging applies CLI flags to the logger.
// This runs after flags are parsed but before command execution.
func initLogging() {
	log.Init(globalFlags.verbosity, globalFlags.logFormat)
}

// workspaceRoot is the directory relative config paths resolve against: the
// directory of --config when given, else the nearest workspace marker above
// the working directory.
func workspaceRoot() (string, error) {
	if globalFlags.config != "" {
		abs, err := filepath.Abs(globalFlags.config)
		if err != nil {
			return "", fmt.Errorf("failed to resolve config path: %w", err)
		}
		return filepath.Dir(abs), nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to determine working directory: %w", err)
	}
	return config.FindWorkspaceRoot(wd), nil
}

// loadConfig resolves the effective config for the workspace.
func loadConfig() (*config.Config, string, error) {
	root, err := workspaceRoot()
	if err != nil {
		return nil, "", err
	}
	cfg, path, err := config.Load(config.LoadOptions{Root: root, File: globalFlags.config})
	if err != nil {
		return nil, "", err
	}
	if globalFlags.target != "" {
		cfg.Build.Target = globalFlags.target
	}
	if path != "" {
		log.Debug("loaded config", "path", path)
	}
	return cfg, root, nil
}

// newEnv loads config and builds the run environment.
func newEnv() (*pipeline.Env, error) {
	cfg, root, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return pipeline.NewEnv(cfg, root)
}

// signalContext is cancelled on SIGINT, SIGTERM or SIGHUP.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// RootCmd returns the root command for testing.
func RootCmd() *cobra.Command {
	return rootCmd
}
