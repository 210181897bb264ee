package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/NotCoffee418/pulse_bridge/pkg/bridge"
	"github.com/NotCoffee418/pulse_bridge/pkg/netcheck"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var detectRead bool

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect the meter communication mode of the configured node",
	RunE:  runDetect,
}

func init() {
	detectCmd.Flags().BoolVar(&detectRead, "read", false, "fetch and print one set of readings after detection")
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Unprivileged ping may be refused by the kernel; that is not fatal.
	if rtt, err := netcheck.Ping(ctx, cfg.Host, 3); err != nil {
		logger.Warn("bridge did not answer ping", zap.String("host", cfg.Host), zap.Error(err))
	} else {
		logger.Info("bridge reachable", zap.String("host", cfg.Host), zap.Duration("rtt", rtt))
	}

	opts := cfg.BridgeOptions()
	opts.Mode = bridge.ModeUnknown
	opts.Logger = logger
	b := bridge.NewBridge(opts)
	defer b.Close()

	mode, err := b.DetectComMode(ctx)
	w := cmd.OutOrStdout()
	if err != nil {
		fmt.Fprintf(w, "mode: %s (%d), not supported\n", mode, int(mode))
		return err
	}
	fmt.Fprintf(w, "mode: %s (%d)\n", mode, int(mode))

	if !detectRead {
		return nil
	}
	if err := b.UpdateAndLog(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "serial: %s\n", b.Serial())
	readings := b.Readings()
	names := make([]string, 0, len(readings))
	for name := range readings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s: %v\n", name, readings[name])
	}
	return nil
}
