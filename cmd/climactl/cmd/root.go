// Package cmd contains the CLI commands for climalert.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Used for flags
	verbose bool
	output  string
	addr    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "climactl",
	Short: "climactl - control a running climalert agent",
	Long: `climactl talks to the local control API of a climalert agent.

Examples:
  # Show the stream connection state
  climactl state

  # List stored alerts as JSON
  climactl history list -o json

  # Pause a notification
  climactl status set 42 PAUSED

  # Follow live alerts
  climactl watch

  # Store a new bearer token for the agent
  climactl token set`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultAddr := "http://127.0.0.1:8787"
	if env := os.Getenv("CLIMALERT_ADDR"); env != "" {
		defaultAddr = env
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json, plain)")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", defaultAddr, "agent control API address (env CLIMALERT_ADDR)")
}

// GetOutput returns the output format.
func GetOutput() string {
	return output
}

// PrintVerbose prints a message to stderr only if verbose mode is enabled.
func PrintVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
