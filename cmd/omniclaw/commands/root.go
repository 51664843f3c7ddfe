// Package commands implements the omniclaw CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "omniclaw",
		Short: "OmniClaw - autonomous personal assistant",
		Long: `OmniClaw is an autonomous personal assistant: a chat pipeline, an
orchestrator that dispatches specialized workers, scheduled automations,
and an autonomous life engine.

Examples:
  omniclaw serve
  omniclaw chat
  omniclaw setup
  omniclaw automations`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newSetupCmd(),
		newAutomationsCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
