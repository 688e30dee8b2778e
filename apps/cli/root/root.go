package root

import (
	"github.com/spf13/cobra"

	migratecmd "github.com/spaceboi21/ai-professor-backend-sub006/apps/cli/cmd/migrate"
)

// rootCmd is the base command for the admin CLI. Subcommands are attached here.
var rootCmd = &cobra.Command{
	Use:           "aiprof",
	Short:         "AI Professor admin CLI",
	Long:          "Administrative utilities for the AI Professor backend (migrations, operational helpers).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.AddCommand(migratecmd.Command())
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
