package main

import (
	"fmt"
	"os"

	"github.com/NotCoffee418/pulse_bridge/pkg/config"
	"github.com/NotCoffee418/pulse_bridge/pkg/pathing"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "bridge_api",
	Short: "Smart meter bridge telemetry daemon",
	Long: `Reads meter telemetry from a smart meter bridge (HTTP polling or the
websocket stream) or a local optical reading head, decodes SML, plaintext and
impressions payloads into OBIS readings and republishes them.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/pulse_bridge/bridge_api.toml)")
}

// setup loads and validates the config and builds the logger from it.
func setup() (*config.BridgeAPIConfig, *zap.Logger, error) {
	if cfgFile == "" {
		if err := pathing.EnsureDirs(); err != nil {
			return nil, nil, fmt.Errorf("failed to create directories: %w", err)
		}
	}
	if err := config.LoadBridgeAPIConfig(cfgFile); err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := config.ActiveBridgeAPIConfig
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := CreateLoggerFromConfig(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

func CreateLoggerFromConfig(logCfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(logCfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if logCfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	// A log file replaces stdout and stderr
	if logCfg.File != "" {
		zapConfig.OutputPaths = []string{logCfg.File}
		zapConfig.ErrorOutputPaths = []string{logCfg.File}
	}

	return zapConfig.Build()
}
