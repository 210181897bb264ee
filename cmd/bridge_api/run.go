package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/pulse_bridge/pkg/aggregator"
	"github.com/NotCoffee418/pulse_bridge/pkg/bridge"
	"github.com/NotCoffee418/pulse_bridge/pkg/config"
	"github.com/NotCoffee418/pulse_bridge/pkg/obis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge API daemon",
	Long: `Connects to the bridge, detects the meter mode when not configured and
keeps the readings current through the websocket stream, falling back to
polling when the bridge has no stream.`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func startTracer(cfg config.DatadogConfig, logger *zap.Logger) func() {
	if !cfg.Enabled {
		return func() {}
	}
	tracer.Start(
		tracer.WithService(cfg.ServiceName),
		tracer.WithEnv(cfg.Environment),
		tracer.WithAgentAddr(fmt.Sprintf("%s:%d", cfg.AgentHost, cfg.AgentPort)),
	)
	logger.Info("Datadog tracing initialized",
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment))
	return tracer.Stop
}

func newRegistry(metrics *bridge.Metrics) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	return registry, nil
}

func runService(cmd *cobra.Command, args []string) error {
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

	opts := cfg.BridgeOptions()
	opts.Logger = logger
	opts.Metrics = metrics
	opts.Notify = out.publish
	b := bridge.NewBridge(opts)
	defer b.Close()
	out.attach(b.Store(), func() string { return b.Mode().String() })

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if b.Mode() == bridge.ModeUnknown {
		if _, err := b.DetectComMode(ctx); err != nil {
			return fmt.Errorf("failed to detect communication mode: %w", err)
		}
	}
	logger.Info("Starting Pulse Bridge API",
		zap.String("host", cfg.Host),
		zap.Int("node", cfg.NodeNumber),
		zap.String("mode", b.Mode().String()),
		zap.Bool("polling", cfg.UsePolling))

	g, gctx := errgroup.WithContext(ctx)
	serveHTTP(gctx, g, cfg.ListenAddr(), newMux(b, out, registry), logger)
	g.Go(func() error {
		return acquire(gctx, b, cfg, metrics, out, logger)
	})
	if out.recorder != nil {
		g.Go(func() error {
			return aggregator.RunCleanup(gctx, out.recorder, aggregator.DefaultRetention, time.Hour, logger)
		})
	}

	err = g.Wait()
	logger.Info("Pulse Bridge API stopped")
	return err
}

// acquire keeps the store current until ctx ends: through the stream when the
// bridge has one, by polling otherwise.
func acquire(ctx context.Context, b *bridge.Bridge, cfg *config.BridgeAPIConfig, metrics *bridge.Metrics, out *sinks, logger *zap.Logger) error {
	if !cfg.UsePolling {
		if _, err := b.ResolveNodeDeviceID(ctx); err != nil {
			logger.Warn("node device id unknown, accepting every device on the stream", zap.Error(err))
		}
		err := bridge.NewWatchdog(b, bridge.DefaultWatchdogPeriod, logger, metrics).Run(ctx)
		if !errors.Is(err, bridge.ErrStreamUnsupported) {
			return err
		}
		logger.Info("bridge has no stream, polling instead")
	}
	return pollLoop(ctx, b, cfg.ScanInterval(), out.publish, logger)
}

func pollLoop(ctx context.Context, b *bridge.Bridge, interval time.Duration, publish func(*obis.Snapshot), logger *zap.Logger) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := b.Update(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !errors.Is(err, bridge.ErrPollInFlight) {
				logger.Warn("update failed", zap.Error(err))
			}
		} else {
			publish(b.Store().Snapshot())
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
