package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/climalert/internal/agent"
	"github.com/good-yellow-bee/climalert/internal/logging"
	"github.com/good-yellow-bee/climalert/pkg/config"
)

var (
	configFile string
	serverURL  string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "climalert-agent",
	Short: "climalert agent - weather alert stream client",
	Long: `climalert agent keeps a live subscription to the weather notification
stream, stores recent alerts, forwards them to chat sinks and applies
notification status changes.`,
	RunE: runAgent,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("climalert-agent %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "agent.yaml", "config file path (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "notification API base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, closeLog, err := logging.New(level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer closeLog()

	a, err := agent.New(cfg.AgentConfig(verbose), logger)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("version", config.Version).
		Str("server", cfg.Server.BaseURL).
		Str("storage", cfg.Storage.Driver).
		Msg("starting climalert-agent")

	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("run agent: %w", err)
	}

	logger.Info().Msg("agent stopped")
	return nil
}
