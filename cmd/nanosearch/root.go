package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/coffersTech/nanosearch/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// globalFlags are shared by all subcommands.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "nanosearch",
		Short:         "nanosearch - a small full-text search server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default ./"+config.DefaultPath+" if present)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newParseCmd())
	rootCmd.AddCommand(newGrepCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newInitCmd(flags))
	return rootCmd
}

// loadConfig reads the --config file, falling back to ./nanosearch.yaml when
// it exists and to the defaults otherwise.
func (f *globalFlags) loadConfig() (config.Config, error) {
	path := f.configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		} else if !errors.Is(err, os.ErrNotExist) {
			return config.Config{}, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	return cfg, nil
}

// newLogger builds the zap logger described by cfg.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
