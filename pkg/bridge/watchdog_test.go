package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStream struct {
	mu        sync.Mutex
	supported bool
	connected bool
	fresh     bool
	connects  int
	cancels   int
	active    int
	maxActive int
}

func (f *fakeStream) WsConnect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.connected = true
	f.mu.Unlock()

	<-ctx.Done()

	f.mu.Lock()
	f.cancels++
	f.active--
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) WsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeStream) WsSupported() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supported
}

func (f *fakeStream) WsCheckLastUpdate() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fresh
}

func (f *fakeStream) snapshot() (connects, cancels, maxActive int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.cancels, f.maxActive
}

func TestWatchdogReconnectsStalledStream(t *testing.T) {
	stream := &fakeStream{supported: true, fresh: true}
	w := NewWatchdog(stream, time.Hour, zap.NewNop(), nil)
	ctx := context.Background()

	require.True(t, w.Check(ctx))
	require.Eventually(t, stream.WsConnected, time.Second, 5*time.Millisecond)
	assert.True(t, w.Running())

	// healthy tick leaves the task alone
	require.True(t, w.Check(ctx))
	connects, cancels, _ := stream.snapshot()
	assert.Equal(t, 1, connects)
	assert.Zero(t, cancels)

	// connected but silent: cancel, the next tick reconnects
	stream.mu.Lock()
	stream.fresh = false
	stream.mu.Unlock()
	require.True(t, w.Check(ctx))
	connects, cancels, _ = stream.snapshot()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, cancels)
	assert.False(t, stream.WsConnected())
	assert.False(t, w.Running())

	stream.mu.Lock()
	stream.fresh = true
	stream.mu.Unlock()
	require.True(t, w.Check(ctx))
	require.Eventually(t, stream.WsConnected, time.Second, 5*time.Millisecond)

	w.stopTask()
	connects, cancels, maxActive := stream.snapshot()
	assert.Equal(t, 2, connects)
	assert.Equal(t, 2, cancels)
	assert.Equal(t, 1, maxActive)
}

func TestWatchdogNeverRunsTwoTasks(t *testing.T) {
	stream := &fakeStream{supported: true, fresh: true}
	w := NewWatchdog(stream, time.Hour, zap.NewNop(), nil)

	// the task has not reported connected yet on every tick
	for i := 0; i < 5; i++ {
		stream.mu.Lock()
		stream.connected = false
		stream.mu.Unlock()
		w.Check(context.Background())
	}
	w.stopTask()
	_, _, maxActive := stream.snapshot()
	assert.Equal(t, 1, maxActive)
}

func TestWatchdogStopsWhenUnsupported(t *testing.T) {
	stream := &fakeStream{supported: false}
	w := NewWatchdog(stream, 10*time.Millisecond, zap.NewNop(), nil)

	err := w.Run(context.Background())
	assert.ErrorIs(t, err, ErrStreamUnsupported)
	connects, _, _ := stream.snapshot()
	assert.Zero(t, connects)
}

func TestWatchdogRunUntilCancelled(t *testing.T) {
	stream := &fakeStream{supported: true, fresh: true}
	w := NewWatchdog(stream, 10*time.Millisecond, zap.NewNop(), NewMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, stream.WsConnected, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.False(t, stream.WsConnected())
	assert.False(t, w.Running())
}
