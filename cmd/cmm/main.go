package main

import (
	"fmt"
	"os"

	"cmm/internal/config"
	"cmm/internal/utils"
	"cmm/internal/version"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "cmm",
	Short:         "Cloud Maintenance Manager: server telemetry ingestion and alerting",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cmm %s (commit %s, built %s)\n", version.String(), orUnknown(version.Commit), orUnknown(version.Date))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, agentCmd, userCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadRuntime reads configuration and builds the process logger.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := utils.NewLogger(utils.LogOptions{
		Level:       cfg.LogLevel,
		Development: cfg.LogDevelopment,
		File:        cfg.LogFile,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
