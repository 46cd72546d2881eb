// Package main implements the ledgerd daemon: the HTTP API, the channel
// worker and the Temporal worker for the conversational accounting pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is an optional YAML config file layered under LEDGERD_* env vars
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerd",
	Short: "Conversational orchestration for multi-tenant accounting",
	Long: `ledgerd turns chat messages into permission-checked accounting operations.

It classifies each message, asks a decision model which functions to run,
executes the ones the user is allowed to, and replies on the user's channel.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ledgerd version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ledgerd %s\n", version)
	},
}
