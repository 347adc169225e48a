// Package cli implements the threadrunner command line.
package cli

import (
	"fmt"

	"github.com/Swind/go-thread-runner/internal/config"
	"github.com/Swind/go-thread-runner/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagConfig      string
	flagLogLevel    string
	flagLogFormat   string
	flagDuration    string
	flagMetricsAddr string

	cfg    config.Config
	logger zerolog.Logger
)

// NewRootCmd creates the root cobra command for the threadrunner CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "threadrunner",
		Short: "Fixed-cadence and draining worker threads",
		Long:  "threadrunner runs a simulation thread and task threads under a synthetic cross-thread load.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, &loaded); err != nil {
				return err
			}
			cfg = loaded
			logger = logging.NewWithWriter(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (console, json)")
	root.PersistentFlags().StringVar(&flagDuration, "duration", "", "How long to run, e.g. 10s (0 runs until interrupted)")
	root.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Address for the /metrics endpoint")

	root.AddCommand(
		newRunCmd(),
		newConfigCmd(),
	)

	return root
}

// applyFlags overlays explicitly set flags on the loaded config.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		c.LogFormat = flagLogFormat
	}
	if flags.Changed("metrics-addr") {
		c.MetricsAddr = flagMetricsAddr
	}
	if flags.Changed("duration") {
		d, err := parseDuration(flagDuration)
		if err != nil {
			return fmt.Errorf("--duration: %w", err)
		}
		c.Load.Duration = d
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
