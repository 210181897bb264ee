package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NotCoffee418/pulse_bridge/pkg/bridge"
	"github.com/NotCoffee418/pulse_bridge/pkg/port_reader"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serialCmd = &cobra.Command{
	Use:   "serial",
	Short: "Read a local optical reading head instead of the bridge",
	Long: `Reads SML or plaintext payloads from the serial device in the config,
decodes them with the same decoders as the bridge and serves the API.
Plaintext framing is used when the configured mode is plaintext or IEC 62056.`,
	RunE: runSerial,
}

func init() {
	rootCmd.AddCommand(serialCmd)
}

func framingFor(mode bridge.CommunicationMode) (port_reader.Framing, bridge.CommunicationMode) {
	switch mode {
	case bridge.ModePlaintext, bridge.ModeIEC62056:
		return port_reader.FramingPlaintext, bridge.ModePlaintext
	}
	return port_reader.FramingSML, bridge.ModeSML
}

func runSerial(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer startTracer(cfg.Datadog, logger)()

	metrics := bridge.NewMetrics()
	registry, err := newRegistry(metrics)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	out, err := newSinks(cfg, logger)
	if err != nil {
		return err
	}
	defer out.Close()

	framing, mode := framingFor(bridge.CommunicationMode(cfg.Mode))
	opts := cfg.BridgeOptions()
	opts.Mode = mode
	opts.Logger = logger
	opts.Metrics = metrics
	opts.Notify = out.publish
	b := bridge.NewBridge(opts)
	defer b.Close()
	out.attach(b.Store(), func() string { return b.Mode().String() })

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader := port_reader.NewSerialReader(cfg.SerialDevice, cfg.Baudrate, framing, logger)
	g, gctx := errgroup.WithContext(ctx)
	serveHTTP(gctx, g, cfg.ListenAddr(), newMux(b, out, registry), logger)
	g.Go(func() error {
		defer stop()
		return reader.Run(gctx, b.Ingest)
	})
	return g.Wait()
}
