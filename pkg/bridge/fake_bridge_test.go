package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const testPassword = "secret"

type wsFrame struct {
	msgType int
	data    []byte
}

// fakeBridge serves the bridge endpoints from canned answers.
type fakeBridge struct {
	mu        sync.Mutex
	data      func(call int) (int, []byte)
	dataCalls int
	params    string
	nodes     string
	wsStatus  int
	wsFrames  []wsFrame

	srv *httptest.Server
}

func newFakeBridge(t *testing.T) *fakeBridge {
	t.Helper()
	fb := &fakeBridge{}
	mux := http.NewServeMux()
	mux.HandleFunc("/data.json", fb.handleData)
	mux.HandleFunc("/node_params.json", fb.handleStatic(func() string { return fb.params }))
	mux.HandleFunc("/nodes.json", fb.handleStatic(func() string { return fb.nodes }))
	mux.HandleFunc("/ws", fb.handleWs)
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBridge) host() string {
	return strings.TrimPrefix(fb.srv.URL, "http://")
}

func (fb *fakeBridge) calls() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.dataCalls
}

func authorized(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	return ok && user == "admin" && pass == testPassword
}

func (fb *fakeBridge) handleData(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) || r.URL.Query().Get("node_id") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	fb.mu.Lock()
	call := fb.dataCalls
	fb.dataCalls++
	data := fb.data
	fb.mu.Unlock()

	if data == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	status, body := data(call)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (fb *fakeBridge) handleStatic(body func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fb.mu.Lock()
		b := body()
		fb.mu.Unlock()
		if b == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(b))
	}
}

func (fb *fakeBridge) handleWs(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	status := fb.wsStatus
	frames := fb.wsFrames
	fb.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !authorized(r) || r.Header.Get("Accept-Language") != "en" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for _, f := range frames {
		if err := conn.WriteMessage(f.msgType, f.data); err != nil {
			return
		}
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func always(status int, body []byte) func(int) (int, []byte) {
	return func(int) (int, []byte) { return status, body }
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestBridge(t *testing.T, fb *fakeBridge, mode CommunicationMode, mutate ...func(*Options)) (*Bridge, *sleepRecorder) {
	t.Helper()
	opts := Options{
		Host:       fb.host(),
		Password:   testPassword,
		NodeNumber: 1,
		Mode:       mode,
		Logger:     zap.NewNop(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	b := NewBridge(opts)
	rec := &sleepRecorder{}
	b.retry.sleep = rec.sleep
	t.Cleanup(b.Close)
	return b, rec
}
