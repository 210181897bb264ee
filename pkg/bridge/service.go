package bridge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/NotCoffee418/pulse_bridge/pkg/decoder"
	"github.com/NotCoffee418/pulse_bridge/pkg/obis"
)

const (
	bridgeUser      = "admin"
	maxPayloadBytes = 1 << 20
)

// Bridge talks to one node of a smart meter bridge and keeps its latest
// readings in a store.
type Bridge struct {
	opts    Options
	log     *zap.Logger
	client  *http.Client
	metrics *Metrics

	store       *obis.Store
	plaintext   *decoder.Plaintext
	impressions *decoder.Impressions
	sml         *decoder.SmlAdapter

	modeMu       sync.RWMutex
	mode         CommunicationMode
	nodeDeviceID string

	pollMu sync.Mutex
	retry  retryPolicy
	now    func() time.Time

	wsMu          sync.Mutex
	wsConn        *websocket.Conn
	wsConnected   atomic.Bool
	wsUnsupported atomic.Bool
	lastUpdate    atomic.Int64

	notifier *debouncer
}

func NewBridge(opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.StreamReadTimeout <= 0 {
		opts.StreamReadTimeout = DefaultStreamReadTimeout
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.NodeNumber <= 0 {
		opts.NodeNumber = 1
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	store := obis.NewStore()
	decOpts := decoder.Options{Logger: opts.Logger, IgnoreErrors: opts.IgnoreParseErrors}
	b := &Bridge{
		opts:        opts,
		log:         opts.Logger,
		client:      client,
		metrics:     opts.Metrics,
		store:       store,
		plaintext:   decoder.NewPlaintext(store, decOpts),
		impressions: decoder.NewImpressions(store, decOpts),
		sml:         decoder.NewSmlAdapter(store, decOpts),
		mode:        opts.Mode,
		retry:       newRetryPolicy(),
		now:         time.Now,
	}
	b.notifier = newDebouncer(opts.Debounce, b.notify)
	return b
}

func (b *Bridge) Store() *obis.Store {
	return b.store
}

func (b *Bridge) Mode() CommunicationMode {
	b.modeMu.RLock()
	defer b.modeMu.RUnlock()
	return b.mode
}

func (b *Bridge) setMode(mode CommunicationMode) {
	b.modeMu.Lock()
	b.mode = mode
	b.modeMu.Unlock()
}

// NodeDeviceID is the lowercase EUI streamed frames are filtered on, or "".
func (b *Bridge) NodeDeviceID() string {
	b.modeMu.RLock()
	defer b.modeMu.RUnlock()
	return b.nodeDeviceID
}

// SmlFallbackActive reports whether SML frames skip the strict path.
func (b *Bridge) SmlFallbackActive() bool {
	return b.sml.UsesFallback()
}

// Update runs one poll cycle in the configured mode.
func (b *Bridge) Update(ctx context.Context) error {
	return b.poll(ctx, false)
}

// UpdateAndLog is Update with the raw payload written to the debug log.
func (b *Bridge) UpdateAndLog(ctx context.Context) error {
	return b.poll(ctx, true)
}

func (b *Bridge) poll(ctx context.Context, logPayload bool) (err error) {
	if !b.pollMu.TryLock() {
		return ErrPollInFlight
	}
	defer b.pollMu.Unlock()

	mode := b.Mode()
	span, ctx := tracer.StartSpanFromContext(ctx, "bridge.poll", tracer.Tag("mode", mode.String()))
	defer func() { span.Finish(tracer.WithError(err)) }()

	return b.readWithRetry(ctx, decodeAttempt{mode: mode, logPayload: logPayload}, mode.MaxRetries())
}

func (b *Bridge) endpoint(path string, query url.Values) string {
	u := url.URL{Scheme: "http", Host: b.opts.Host, Path: path}
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (b *Bridge) nodeQuery() url.Values {
	return url.Values{"node_id": []string{strconv.Itoa(b.opts.NodeNumber)}}
}

// get fetches one bridge resource with basic auth and the request timeout.
func (b *Bridge) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint(path, query), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.SetBasicAuth(bridgeUser, b.opts.Password)

	res, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrTransport, path, res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrTransport, path, err)
	}
	return body, nil
}

// fetchAndDecode is one transport round trip plus one decode.
func (b *Bridge) fetchAndDecode(ctx context.Context, attempt decodeAttempt) error {
	b.log.Debug("reading bridge",
		zap.String("mode", attempt.mode.String()),
		zap.Int("attempt", attempt.retryCount),
		zap.String("host", b.opts.Host))

	payload, err := b.get(ctx, "/data.json", b.nodeQuery())
	if err != nil {
		b.log.Warn("access to bridge failed", zap.Error(err))
		return err
	}
	if attempt.logPayload {
		b.log.Debug("bridge payload", zap.String("mode", attempt.mode.String()), zap.ByteString("payload", payload))
	}
	return b.decode(attempt.mode, payload)
}

func (b *Bridge) decoderFor(mode CommunicationMode) decoder.Decoder {
	switch {
	case mode == ModeSML:
		return b.sml
	case mode == ModePlaintext:
		return b.plaintext
	case mode.impressions():
		return b.impressions
	}
	return nil
}

func (b *Bridge) decode(mode CommunicationMode, payload []byte) error {
	dec := b.decoderFor(mode)
	if dec == nil {
		return fmt.Errorf("%w: %s", ErrModeNotImplemented, mode)
	}

	failuresBefore := b.sml.FastPathFailures()
	n, err := dec.Decode(payload)
	b.metrics.fastPathFailed(b.sml.FastPathFailures() - failuresBefore)
	if err != nil {
		b.metrics.decode(mode, "error")
		return err
	}
	b.metrics.decode(mode, "ok")
	b.markUpdate()
	if ce := b.log.Check(zap.DebugLevel, "decoded obis entries"); ce != nil {
		ce.Write(zap.Int("count", n), zap.Strings("entries", b.store.Snapshot().ShortList()))
	}
	return nil
}

// Ingest decodes a payload that arrived outside the poll path, e.g. from a
// local reading head, and notifies like a streamed frame.
func (b *Bridge) Ingest(payload []byte) error {
	if err := b.decode(b.Mode(), payload); err != nil {
		return err
	}
	b.notifier.trigger()
	return nil
}

func (b *Bridge) markUpdate() {
	now := b.now()
	b.lastUpdate.Store(now.UnixNano())
	b.metrics.updated(float64(now.Unix()), b.store.Len())
}

// LastUpdate is the time of the last successful decode or stream connect.
func (b *Bridge) LastUpdate() time.Time {
	ns := b.lastUpdate.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (b *Bridge) notify() {
	if b.opts.Notify == nil {
		return
	}
	snap := b.store.Snapshot()
	if ce := b.log.Check(zap.DebugLevel, "stream update"); ce != nil {
		ce.Write(zap.Strings("entries", snap.ShortList()))
	}
	b.opts.Notify(snap)
}

// Close stops pending notifications and the stream connection.
func (b *Bridge) Close() {
	b.notifier.stop()
	b.WsClose()
}
