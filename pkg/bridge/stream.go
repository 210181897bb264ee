package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// streamHeader is the <device:... topic:"..."> prefix of every streamed frame.
type streamHeader struct {
	device string
	topic  string
}

func parseStreamHeader(head string) (streamHeader, bool) {
	var h streamHeader
	var hasDevice, hasTopic bool
	for _, part := range strings.Fields(strings.Trim(head, "<>")) {
		switch {
		case strings.HasPrefix(part, "device:"):
			h.device = strings.ToLower(strings.TrimPrefix(part, "device:"))
			hasDevice = true
		case strings.HasPrefix(part, "topic:"):
			h.topic = strings.Trim(strings.TrimPrefix(part, "topic:"), `"`)
			hasTopic = true
		}
	}
	return h, hasDevice && hasTopic
}

// splitStreamFrame cuts a frame at the first '>'.
func splitStreamFrame(data []byte) (streamHeader, []byte, bool) {
	pos := bytes.IndexByte(data, '>')
	if pos <= 0 {
		return streamHeader{}, nil, false
	}
	h, ok := parseStreamHeader(string(data[:pos+1]))
	return h, data[pos+1:], ok
}

func (b *Bridge) streamURL() string {
	u := url.URL{Scheme: "ws", Host: b.opts.Host, Path: "/ws"}
	return u.String()
}

func (b *Bridge) streamHeaders() http.Header {
	auth := base64.StdEncoding.EncodeToString([]byte(bridgeUser + ":" + b.opts.Password))
	h := http.Header{}
	h.Set("Authorization", "Basic "+auth)
	h.Set("Accept-Language", "en")
	return h
}

// WsConnected reports whether a stream is currently open.
func (b *Bridge) WsConnected() bool {
	return b.wsConnected.Load()
}

// WsSupported is false once the bridge answered the handshake with 404.
func (b *Bridge) WsSupported() bool {
	return !b.wsUnsupported.Load()
}

// WsConnect opens the stream and runs the receive loop until the connection
// drops or ctx is cancelled. Cancellation returns nil.
func (b *Bridge) WsConnect(ctx context.Context) error {
	if !b.WsSupported() {
		return ErrStreamUnsupported
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: b.opts.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, b.streamURL(), b.streamHeaders())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			b.wsUnsupported.Store(true)
			b.metrics.connect("unsupported")
			b.log.Info("bridge has no websocket endpoint, firmware update required", zap.String("url", b.streamURL()))
			return ErrStreamUnsupported
		}
		if ctx.Err() != nil {
			return nil
		}
		b.metrics.connect("error")
		b.log.Error("could not connect to websocket", zap.String("url", b.streamURL()), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	b.metrics.connect("ok")

	b.wsMu.Lock()
	b.wsConn = conn
	b.wsMu.Unlock()
	b.markUpdate()
	b.wsConnected.Store(true)
	b.log.Info("connected to websocket", zap.String("url", b.streamURL()), zap.String("mode", b.Mode().String()))

	// closing the socket is what unblocks ReadMessage
	stop := context.AfterFunc(ctx, b.WsClose)
	defer stop()

	err = b.receive(conn)
	b.WsClose()

	if ctx.Err() != nil {
		b.log.Debug("websocket task cancelled")
		return nil
	}
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			b.log.Debug("websocket closed", zap.Error(err))
			return nil
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (b *Bridge) receive(conn *websocket.Conn) error {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(b.opts.StreamReadTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		b.onStreamFrame(msgType, data)
	}
}

// onStreamFrame decodes one frame and schedules the debounced notification.
func (b *Bridge) onStreamFrame(msgType int, data []byte) {
	if b.handleStreamMessage(msgType, data) {
		b.notifier.trigger()
	}
}

// handleStreamMessage routes one frame to the decoder of the configured mode
// and reports whether it decoded.
func (b *Bridge) handleStreamMessage(msgType int, data []byte) bool {
	header, body, ok := splitStreamFrame(data)
	if !ok {
		b.log.Debug("stream frame without header", zap.Int("len", len(data)))
		return false
	}
	if target := b.NodeDeviceID(); target != "" && target != header.device {
		b.log.Debug("stream frame for another device",
			zap.String("device", header.device), zap.String("want", target))
		return false
	}

	mode := b.Mode()
	switch msgType {
	case websocket.BinaryMessage:
		switch {
		case mode == ModeSML && strings.Contains(strings.ToLower(header.topic), "sml"):
		case mode == ModePlaintext, mode.impressions():
			body = asciiOnly(body)
		default:
			b.log.Warn("unhandled binary stream frame", zap.String("topic", header.topic), zap.String("mode", mode.String()))
			return false
		}
	case websocket.TextMessage:
		if mode != ModePlaintext && !mode.impressions() {
			b.log.Warn("unhandled text stream frame", zap.String("topic", header.topic), zap.String("mode", mode.String()))
			return false
		}
		body = asciiOnly(body)
	default:
		return false
	}

	// streamed frames are not refetched, a failure waits for the next frame
	if err := b.decode(mode, body); err != nil {
		if !b.opts.IgnoreParseErrors {
			b.log.Debug("stream frame not decoded", zap.String("topic", header.topic), zap.Error(err))
		}
		return false
	}
	return true
}

func asciiOnly(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c < 0x80 {
			out = append(out, c)
		}
	}
	return out
}

// WsClose closes the current stream. It is safe to call at any time, also
// when nothing is connected.
func (b *Bridge) WsClose() {
	b.wsMu.Lock()
	conn := b.wsConn
	b.wsConn = nil
	b.wsMu.Unlock()
	b.wsConnected.Store(false)

	if conn == nil {
		return
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	if err := conn.Close(); err != nil {
		b.log.Debug("closing websocket", zap.Error(err))
	}
}

// WsCheckLastUpdate is false when the stale threshold has passed since the
// stream connected or last delivered a decodable frame.
func (b *Bridge) WsCheckLastUpdate() bool {
	since := b.now().Sub(b.LastUpdate())
	if since < b.opts.StaleAfter {
		b.log.Debug("websocket is fresh", zap.Duration("since", since))
		return true
	}
	b.log.Info("websocket stalled, forcing reconnect", zap.Duration("since", since))
	return false
}
