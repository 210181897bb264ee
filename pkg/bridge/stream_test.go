package bridge

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotCoffee418/pulse_bridge/pkg/obis"
)

func TestParseStreamHeader(t *testing.T) {
	tests := []struct {
		head   string
		want   streamHeader
		wantOk bool
	}{
		{`<device:ABCDEF0123 topic:"sml/raw">`, streamHeader{device: "abcdef0123", topic: "sml/raw"}, true},
		{`<topic:plain device:a1>`, streamHeader{device: "a1", topic: "plain"}, true},
		{`<device:a1>`, streamHeader{}, false},
		{`<>`, streamHeader{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.head, func(t *testing.T) {
			got, ok := parseStreamHeader(tt.head)
			assert.Equal(t, tt.wantOk, ok)
			if tt.wantOk {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSplitStreamFrame(t *testing.T) {
	header, body, ok := splitStreamFrame(append([]byte(`<device:AA topic:"sml">`), 0x1b, 0x3e))
	require.True(t, ok)
	assert.Equal(t, "aa", header.device)
	assert.Equal(t, []byte{0x1b, 0x3e}, body)

	_, _, ok = splitStreamFrame([]byte(">no header"))
	assert.False(t, ok)
	_, _, ok = splitStreamFrame([]byte("no delimiter"))
	assert.False(t, ok)
}

func streamFrame(device, topic string, body []byte) []byte {
	return append([]byte(`<device:`+device+` topic:"`+topic+`">`), body...)
}

type notifications struct {
	mu    sync.Mutex
	snaps []*obis.Snapshot
}

func (n *notifications) record(s *obis.Snapshot) {
	n.mu.Lock()
	n.snaps = append(n.snaps, s)
	n.mu.Unlock()
}

func (n *notifications) all() []*obis.Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*obis.Snapshot{}, n.snaps...)
}

func TestWsConnectDecodesAndFilters(t *testing.T) {
	fb := newFakeBridge(t)
	fb.nodes = `[{"node_id":1,"eui":"AABBCC"}]`
	other := []byte("1-0:16.7.0*255(999*W)")
	fb.wsFrames = []wsFrame{
		{websocket.BinaryMessage, streamFrame("DDEEFF", "sml", meterFrame)},
		{websocket.TextMessage, streamFrame("AABBCC", "plain", other)},
		{websocket.BinaryMessage, streamFrame("AABBCC", "SML", meterFrame)},
	}
	got := &notifications{}
	b, _ := newTestBridge(t, fb, ModeSML, func(o *Options) {
		o.Debounce = 20 * time.Millisecond
		o.Notify = got.record
	})
	_, err := b.ResolveNodeDeviceID(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.WsConnect(ctx) }()

	require.Eventually(t, func() bool { return len(got.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, b.WsConnected())
	assert.Equal(t, "XYZ-123a4567", b.Serial())
	power, _ := b.Power()
	assert.InDelta(t, -49, power, 1e-9)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WsConnect did not return after cancel")
	}
	assert.False(t, b.WsConnected())
	b.WsClose()
}

func TestWsConnectNotFoundIsTerminal(t *testing.T) {
	fb := newFakeBridge(t)
	fb.wsStatus = http.StatusNotFound
	b, _ := newTestBridge(t, fb, ModeSML)

	assert.ErrorIs(t, b.WsConnect(context.Background()), ErrStreamUnsupported)
	assert.False(t, b.WsSupported())
	assert.ErrorIs(t, b.WsConnect(context.Background()), ErrStreamUnsupported)
}

func TestWsConnectOtherFailureRetryable(t *testing.T) {
	fb := newFakeBridge(t)
	fb.wsStatus = http.StatusServiceUnavailable
	b, _ := newTestBridge(t, fb, ModeSML)

	assert.ErrorIs(t, b.WsConnect(context.Background()), ErrTransport)
	assert.True(t, b.WsSupported())
	assert.False(t, b.WsConnected())
}

func TestWsCloseIdempotent(t *testing.T) {
	fb := newFakeBridge(t)
	b, _ := newTestBridge(t, fb, ModeSML)
	b.WsClose()
	b.WsClose()
	assert.False(t, b.WsConnected())
}

func TestDebounceCoalescesBurst(t *testing.T) {
	fb := newFakeBridge(t)
	got := &notifications{}
	b, _ := newTestBridge(t, fb, ModePlaintext, func(o *Options) {
		o.Debounce = 50 * time.Millisecond
		o.Notify = got.record
	})

	for _, watts := range []string{"100", "200", "300"} {
		b.onStreamFrame(websocket.TextMessage, streamFrame("aa", "plain", []byte("1-0:16.7.0*255("+watts+"*W)")))
	}
	third := b.Store().Snapshot()

	require.Eventually(t, func() bool { return len(got.all()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	snaps := got.all()
	require.Len(t, snaps, 1)
	assert.Same(t, third, snaps[0])
	entry, ok := snaps[0].Get(obis.PowerActual)
	require.True(t, ok)
	v, _ := entry.Scaled(1)
	assert.InDelta(t, 300, v, 1e-9)
}

func TestStreamFrameRouting(t *testing.T) {
	tests := []struct {
		name    string
		mode    CommunicationMode
		msgType int
		frame   []byte
		want    bool
	}{
		{"sml binary", ModeSML, websocket.BinaryMessage, streamFrame("aa", "sml", meterFrame), true},
		{"sml needs sml topic", ModeSML, websocket.BinaryMessage, streamFrame("aa", "raw", meterFrame), false},
		{"sml ignores text", ModeSML, websocket.TextMessage, streamFrame("aa", "sml", []byte("x")), false},
		{"plaintext binary", ModePlaintext, websocket.BinaryMessage, streamFrame("aa", "p", []byte("1-0:1.8.0*255(1*kWh)")), true},
		{"impressions text", ModeImpressionsAmbient, websocket.TextMessage, streamFrame("aa", "imp", []byte(`{"$type":"imp_data","kw":1}`)), true},
		{"no header", ModePlaintext, websocket.TextMessage, []byte("1-0:1.8.0*255(1*kWh)"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBridge(t)
			b, _ := newTestBridge(t, fb, tt.mode)
			assert.Equal(t, tt.want, b.handleStreamMessage(tt.msgType, tt.frame))
		})
	}
}

func TestWsCheckLastUpdate(t *testing.T) {
	fb := newFakeBridge(t)
	b, _ := newTestBridge(t, fb, ModeSML)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	b.markUpdate()
	now = now.Add(49 * time.Second)
	assert.True(t, b.WsCheckLastUpdate())
	now = now.Add(2 * time.Second)
	assert.False(t, b.WsCheckLastUpdate())
}

func TestWsCheckLastUpdateCountsFromConnect(t *testing.T) {
	fb := newFakeBridge(t)
	b, _ := newTestBridge(t, fb, ModeSML)
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var offset atomic.Int64
	b.now = func() time.Time { return start.Add(time.Duration(offset.Load())) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.WsConnect(ctx) }()
	require.Eventually(t, b.WsConnected, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, start, b.LastUpdate().UTC())
	offset.Store(int64(49 * time.Second))
	assert.True(t, b.WsCheckLastUpdate())
	offset.Store(int64(51 * time.Second))
	assert.False(t, b.WsCheckLastUpdate())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WsConnect did not return after cancel")
	}
}
