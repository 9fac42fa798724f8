package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/botflow/internal/cli"
	"github.com/aretw0/botflow/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "botflow",
	Short: "botflow runs multi-tenant chat-bot flows and scheduled campaigns",
	Long: `botflow interprets blueprint-driven conversations for Telegram and Discord bots
and delivers scheduled outbound messages through a durable per-tenant scheduler.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a botflow.yaml configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Override the configured log format (text, json)")
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := cli.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
