package decoder

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/NotCoffee418/pulse_bridge/pkg/obis"
	"github.com/NotCoffee418/pulse_bridge/pkg/sml"
)

// FastPathFailureLimit is how many strict extraction failures a bridge
// tolerates before it stops trying the strict path.
const FastPathFailureLimit = 20

// Frame is what the adapter needs from a decoded SML frame.
type Frame interface {
	GetObis() ([]sml.ListEntry, error)
	ParseFrame() ([]sml.Message, error)
}

// FrameDecoder recovers at most one frame from a payload.
type FrameDecoder interface {
	DecodeFrame(payload []byte) (Frame, error)
}

type codec struct{}

func (codec) DecodeFrame(payload []byte) (Frame, error) {
	frame, err := sml.DecodeFrame(payload)
	if frame == nil {
		return nil, err
	}
	return frame, err
}

// valueLister is implemented by message bodies that carry a value list.
type valueLister interface {
	Values() []sml.ListEntry
}

// SmlAdapter decodes SML binary payloads into the store. One adapter belongs
// to one bridge; its fallback preference is not shared.
type SmlAdapter struct {
	store  *obis.Store
	diag   diagnostics
	frames FrameDecoder

	mu               sync.Mutex
	fastPathFailures int
	useFallback      bool
}

func NewSmlAdapter(store *obis.Store, opts Options) *SmlAdapter {
	return NewSmlAdapterWithDecoder(store, codec{}, opts)
}

func NewSmlAdapterWithDecoder(store *obis.Store, frames FrameDecoder, opts Options) *SmlAdapter {
	return &SmlAdapter{store: store, diag: newDiagnostics(opts), frames: frames}
}

// UsesFallback reports whether the strict path has been given up on.
func (a *SmlAdapter) UsesFallback() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.useFallback
}

func (a *SmlAdapter) FastPathFailures() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fastPathFailures
}

func (a *SmlAdapter) Decode(payload []byte) (int, error) {
	frame, err := a.frames.DecodeFrame(payload)
	if err != nil {
		var crcErr *sml.CrcError
		if errors.As(err, &crcErr) {
			a.diag.info("sml checksum mismatch",
				zap.Uint16("expected", crcErr.Expected), zap.Uint16("actual", crcErr.Actual))
		} else {
			a.diag.info("sml bytes missing", zap.Int("payload_len", len(payload)), zap.Error(err))
		}
		return 0, fmt.Errorf("sml: %w: %w", ErrFrameIntegrity, err)
	}
	if frame == nil {
		return 0, fmt.Errorf("sml: %w: %w", ErrFrameIntegrity, sml.ErrIncompleteFrame)
	}

	var listEntries []sml.ListEntry
	var fastErr error
	if !a.UsesFallback() {
		listEntries, fastErr = frame.GetObis()
		if fastErr != nil {
			a.recordFastPathFailure()
		}
	}
	if a.UsesFallback() || fastErr != nil {
		listEntries = collectValueLists(frame)
		if fastErr != nil && len(listEntries) == 0 {
			a.diag.debug("sml fast path failed and frame walk found nothing", zap.Error(fastErr))
		}
	}

	entries := make([]obis.Entry, 0, len(listEntries))
	for _, le := range listEntries {
		entry, err := entryFromList(le)
		if err != nil {
			a.diag.debug("skipping sml list entry", zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}

	if !a.store.ReplaceAll(entries) {
		if fastErr != nil {
			return 0, fmt.Errorf("sml: %w: %w: %w", ErrNoEntries, ErrStructural, fastErr)
		}
		return 0, fmt.Errorf("sml: %w", ErrNoEntries)
	}
	return len(entries), nil
}

func (a *SmlAdapter) recordFastPathFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fastPathFailures++
	if a.fastPathFailures > FastPathFailureLimit && !a.useFallback {
		a.useFallback = true
		a.diag.log.Info("sml fast path disabled for this bridge", zap.Int("failures", a.fastPathFailures))
	}
}

func collectValueLists(frame Frame) []sml.ListEntry {
	messages, err := frame.ParseFrame()
	if err != nil {
		return nil
	}
	var out []sml.ListEntry
	for _, msg := range messages {
		if body, ok := msg.Body.(valueLister); ok {
			out = append(out, body.Values()...)
		}
	}
	return out
}

func entryFromList(le sml.ListEntry) (obis.Entry, error) {
	code, err := obis.FromBytes(le.ObjName)
	if err != nil {
		return obis.Entry{}, fmt.Errorf("%w: %v", ErrSemanticParse, err)
	}
	entry := obis.Entry{Code: code, Status: le.Status}
	if le.Unit != nil {
		entry.Unit = obis.Unit(*le.Unit)
	}
	if le.Scaler != nil {
		entry.Scaler = *le.Scaler
	}

	switch v := le.Value.(type) {
	case int64:
		entry.Value = obis.Number(float64(v))
	case uint64:
		entry.Value = obis.Number(float64(v))
	case bool:
		if v {
			entry.Value = obis.Number(1)
		} else {
			entry.Value = obis.Number(0)
		}
	case []byte:
		entry.Value = obis.Text(octetText(v))
	default:
		return obis.Entry{}, fmt.Errorf("%w: %s has no value", ErrSemanticParse, code)
	}
	return entry, nil
}

// octetText renders printable octet strings as text and anything else as hex.
func octetText(b []byte) string {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return hex.EncodeToString(b)
		}
	}
	return string(b)
}
