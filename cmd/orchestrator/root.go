// Command orchestrator is the CLI for the multi-agent orchestration engine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paperforge/orchestrator/internal/config"
	"github.com/paperforge/orchestrator/pkg/logger"
)

// Version is the current version number.
const Version = "0.1.0"

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:     "orchestrator",
	Short:   "Multi-agent task orchestration engine",
	Long:    `orchestrator coordinates specialized worker agents: it schedules tasks, resolves dependency plans, routes inter-agent messages and synthesizes the collected results.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the configuration and initializes the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader().WithConfigPath(cfgFile).Load()
	if err != nil {
		return nil, err
	}

	if debug {
		cfg.Logging.Level = "debug"
	}
	logger.Init(&logger.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Output:   cfg.Logging.Output,
		FilePath: cfg.Logging.FilePath,
	})

	return cfg, nil
}
