package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/openfroyo/strata/pkg/config"
)

// app holds the state shared by all commands of one process.
type app struct {
	fs      afero.Fs
	out     io.Writer
	version string

	// Global flags
	settingsPath string
	environment  string
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	a := &app{fs: afero.NewOsFs(), out: os.Stdout, version: version}
	return newRootCommand(a, commit, buildDate).ExecuteContext(ctx)
}

func newRootCommand(a *app, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "strata",
		Short: "Strata - hierarchical configuration lookup",
		Long: `Strata resolves configuration keys through layered hierarchies of data
sources: a global layer, the active environment and per-module layers.

Features:
  - Hiera compatible hierarchy configurations (versions 3, 4 and 5)
  - YAML, JSON, HCL, CUE, Rego, SQLite and environment backends
  - User backend functions written in Starlark
  - Merge strategies, lookup_options and explanations`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", a.version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.settingsPath, "config", "c", config.DefaultPath, "settings file path")
	rootCmd.PersistentFlags().StringVarP(&a.environment, "environment", "e", "", "environment to use instead of the configured one")

	rootCmd.AddCommand(newLookupCommand(a))
	rootCmd.AddCommand(newValidateCommand(a))
	rootCmd.AddCommand(newWatchCommand(a))
	rootCmd.AddCommand(newDataCommand(a))

	return rootCmd
}
