package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultWatchdogPeriod = 64 * time.Second

// StreamClient is the stream lifecycle the watchdog supervises.
type StreamClient interface {
	WsConnect(ctx context.Context) error
	WsConnected() bool
	WsSupported() bool
	WsCheckLastUpdate() bool
}

// Watchdog keeps one stream task alive. Each tick it reconnects a dropped
// stream and cancels one that is connected but no longer delivering data.
type Watchdog struct {
	client  StreamClient
	period  time.Duration
	log     *zap.Logger
	metrics *Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWatchdog(client StreamClient, period time.Duration, logger *zap.Logger, metrics *Metrics) *Watchdog {
	if period <= 0 {
		period = DefaultWatchdogPeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchdog{client: client, period: period, log: logger, metrics: metrics}
}

// Run checks immediately and then every period until ctx ends or the bridge
// turns out not to support streaming.
func (w *Watchdog) Run(ctx context.Context) error {
	defer w.stopTask()

	if !w.Check(ctx) {
		return ErrStreamUnsupported
	}
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !w.Check(ctx) {
				return ErrStreamUnsupported
			}
		}
	}
}

// Check runs one watchdog tick. It returns false when the watchdog should stop.
func (w *Watchdog) Check(ctx context.Context) bool {
	if !w.client.WsSupported() {
		w.log.Info("watchdog stopped, bridge does not support streaming")
		w.stopTask()
		return false
	}
	if !w.client.WsConnected() {
		w.stopTask()
		w.log.Info("watchdog: websocket connect required")
		w.startTask(ctx)
		return true
	}
	if !w.client.WsCheckLastUpdate() {
		w.metrics.stall()
		w.stopTask()
	}
	return true
}

// Running reports whether a stream task is in flight.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *Watchdog) startTask(ctx context.Context) {
	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	w.mu.Lock()
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	go func() {
		defer close(done)
		err := w.client.WsConnect(taskCtx)
		switch {
		case err == nil:
			w.log.Debug("websocket task ended")
		case errors.Is(err, ErrStreamUnsupported):
			w.log.Info("websocket not supported by bridge")
		default:
			w.log.Warn("websocket task failed", zap.Error(err))
		}
	}()
}

// stopTask cancels the running task and waits for it, so at most one task
// exists at any time.
func (w *Watchdog) stopTask() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
