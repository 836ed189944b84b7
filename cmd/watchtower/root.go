package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"watchtower-sim/internal/config"
	"watchtower-sim/internal/logging"
)

var (
	configPath string
	schemaPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "watchtower",
	Short: "Soldier telemetry simulation and anomaly detection",
	Long: "watchtower simulates soldier vital-sign telemetry, publishes it to a message bus " +
		"and classifies it with a rule-based anomaly detector.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to simulation configuration YAML (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "Path to a CUE schema overriding the embedded one")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
}

// loadConfig reads the configuration and applies the persistent flags.
func loadConfig() (*config.SimulationConfig, error) {
	cfg, err := config.Load(configPath, schemaPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr so stdout stays
// clean for verdict output; a TUI owns the terminal, so logging is muted.
func newLogger(cfg *config.SimulationConfig, output string) *slog.Logger {
	var w io.Writer = os.Stderr
	if output == outputTUI {
		w = io.Discard
	}
	return logging.New(cfg.Log.Level, cfg.Log.Format, w)
}
