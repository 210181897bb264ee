package broadcast

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestHubSendsLatestThenBroadcasts(t *testing.T) {
	hub := NewHub(func() []byte { return []byte(`{"entries":{}}`) }, zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	first := dial(t, srv)
	second := dial(t, srv)
	assert.Equal(t, `{"entries":{}}`, read(t, first))
	assert.Equal(t, `{"entries":{}}`, read(t, second))
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 10*time.Millisecond)

	hub.Broadcast([]byte(`{"n":1}`))
	assert.Equal(t, `{"n":1}`, read(t, first))
	assert.Equal(t, `{"n":1}`, read(t, second))
}

func TestHubSkipsMissingLatest(t *testing.T) {
	hub := NewHub(func() []byte { return nil }, zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast([]byte("update"))
	assert.Equal(t, "update", read(t, conn))
}

func TestHubRemovesClosedClients(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
