package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NotCoffee418/pulse_bridge/pkg/bridge"
	"github.com/NotCoffee418/pulse_bridge/pkg/config"
	"github.com/NotCoffee418/pulse_bridge/pkg/obis"
	"github.com/NotCoffee418/pulse_bridge/pkg/port_reader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const telegram = "/EBZ5DD3BZ06ETA_107\r\n1-0:1.8.0*255(00123.4*kWh)\r\n1-0:16.7.0*255(000412*W)\r\n!\r\n"

func newTestAPI(t *testing.T) (*bridge.Bridge, *httptest.Server) {
	t.Helper()
	out, err := newSinks(config.DefaultBridgeAPIConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(out.Close)

	b := bridge.NewBridge(bridge.Options{Host: "127.0.0.1:1", Mode: bridge.ModePlaintext, Notify: out.publish})
	t.Cleanup(b.Close)
	out.attach(b.Store(), func() string { return b.Mode().String() })

	metrics := bridge.NewMetrics()
	registry, err := newRegistry(metrics)
	require.NoError(t, err)

	srv := httptest.NewServer(newMux(b, out, registry))
	t.Cleanup(srv.Close)
	return b, srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestStatusEndpoint(t *testing.T) {
	_, srv := newTestAPI(t)

	status, body := get(t, srv.URL+"/")
	require.Equal(t, http.StatusOK, status)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "plaintext", got["mode"])
	assert.Equal(t, "UNKNOWN_SERIAL", got["serial"])
	assert.Equal(t, false, got["stream_connected"])
	assert.NotContains(t, got, "last_update")
}

func TestLatestAndReadings(t *testing.T) {
	b, srv := newTestAPI(t)

	status, _ := get(t, srv.URL+"/latest")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = get(t, srv.URL+"/readings")
	assert.Equal(t, http.StatusNotFound, status)

	require.NoError(t, b.Ingest([]byte(telegram)))

	status, body := get(t, srv.URL+"/latest")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"0100010800ff"`)

	status, body = get(t, srv.URL+"/readings")
	require.Equal(t, http.StatusOK, status)
	var readings map[string]float64
	require.NoError(t, json.Unmarshal([]byte(body), &readings))
	assert.Equal(t, 123400.0, readings["energy_import_wh"])
	assert.InDelta(t, 123.4, readings["energy_import_kwh"], 1e-9)
	assert.Equal(t, 412.0, readings["power_w"])
}

func TestHistoryDisabled(t *testing.T) {
	_, srv := newTestAPI(t)

	status, body := get(t, srv.URL+"/history/0100010800ff")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, "Recording is disabled")
}

func TestMetricsEndpoint(t *testing.T) {
	b, srv := newTestAPI(t)
	require.NoError(t, b.Ingest([]byte(telegram)))

	status, body := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "pulse_bridge_decodes_total")
}

func TestFramingFor(t *testing.T) {
	tests := []struct {
		mode        bridge.CommunicationMode
		wantFraming port_reader.Framing
		wantMode    bridge.CommunicationMode
	}{
		{bridge.ModePlaintext, port_reader.FramingPlaintext, bridge.ModePlaintext},
		{bridge.ModeIEC62056, port_reader.FramingPlaintext, bridge.ModePlaintext},
		{bridge.ModeSML, port_reader.FramingSML, bridge.ModeSML},
		{bridge.ModeUnknown, port_reader.FramingSML, bridge.ModeSML},
	}
	for _, tt := range tests {
		framing, mode := framingFor(tt.mode)
		assert.Equal(t, tt.wantFraming, framing, tt.mode.String())
		assert.Equal(t, tt.wantMode, mode, tt.mode.String())
	}
}

func TestPollLoopPublishes(t *testing.T) {
	meter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data.json" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, telegram)
	}))
	defer meter.Close()

	b := bridge.NewBridge(bridge.Options{
		Host: strings.TrimPrefix(meter.URL, "http://"),
		Mode: bridge.ModePlaintext,
	})
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var mu sync.Mutex
	var published []*obis.Snapshot
	publish := func(snap *obis.Snapshot) {
		mu.Lock()
		published = append(published, snap)
		mu.Unlock()
		cancel()
	}

	err := pollLoop(ctx, b, time.Hour, publish, zap.NewNop())

	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, 2, published[0].Len())
}

func TestAggregateRejectsUnknownTimeframe(t *testing.T) {
	_, srv := newTestAPI(t)

	status, _ := get(t, srv.URL+"/aggregate/0100010800ff?timeframe=weekly")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = get(t, srv.URL+"/aggregate/0100010800ff?timeframe=daily")
	assert.Equal(t, http.StatusNotFound, status)
}
