package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "webpilot",
		Short: "webpilot - Browser Workflow Automation Engine",
		Long: `webpilot executes declarative browser workflows: navigate pages,
interact with elements, extract data, and branch or loop on page state.

Features:
  - Workflow definitions in YAML or CUE
  - Pluggable browser backends (Chrome DevTools Protocol, WebDriver)
  - Conditionals, loops, sub-workflow templates, and retry blocks
  - Named credential references resolved at the point of use
  - Policy enforcement via OPA/rego
  - Run history and event log in SQLite`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newSaveCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newPolicyCommand())
	rootCmd.AddCommand(newDevCommand())

	return rootCmd
}
