package bridge

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/NotCoffee418/pulse_bridge/pkg/obis"
)

var (
	ErrTransport          = errors.New("bridge transport failed")
	ErrModeNotImplemented = errors.New("communication mode not implemented")
	ErrStreamUnsupported  = errors.New("bridge firmware does not support streaming")
	ErrPollInFlight       = errors.New("a poll is already in flight")
)

// CommunicationMode is the meter_mode a bridge node reports.
type CommunicationMode int

const (
	ModeUnknown            CommunicationMode = -1
	ModeAutoScan           CommunicationMode = 0
	ModeIEC62056           CommunicationMode = 1
	ModeLogarex            CommunicationMode = 2
	ModeSML                CommunicationMode = 3
	ModeImpressionsAmbient CommunicationMode = 10
	ModeImpressionsIR      CommunicationMode = 11
	ModePlaintext          CommunicationMode = 99
)

func (m CommunicationMode) String() string {
	switch m {
	case ModeUnknown:
		return "unknown"
	case ModeAutoScan:
		return "auto_scan"
	case ModeIEC62056:
		return "iec_62056_21"
	case ModeLogarex:
		return "logarex"
	case ModeSML:
		return "sml_1_04"
	case ModeImpressionsAmbient:
		return "impressions_ambient"
	case ModeImpressionsIR:
		return "impressions_ir"
	case ModePlaintext:
		return "plaintext"
	}
	return fmt.Sprintf("mode_%d", int(m))
}

// MaxRetries is how many times a failed decode is refetched.
func (m CommunicationMode) MaxRetries() int {
	if m == ModeSML {
		return 5
	}
	return 1
}

// Implemented reports whether detection may settle on m.
func (m CommunicationMode) Implemented() bool {
	return m == ModeSML || m == ModePlaintext
}

func (m CommunicationMode) impressions() bool {
	return m == ModeImpressionsAmbient || m == ModeImpressionsIR
}

// modeFromHint maps a meter_mode parameter. Only values a node can report
// are accepted.
func modeFromHint(v int) CommunicationMode {
	switch m := CommunicationMode(v); m {
	case ModeAutoScan, ModeIEC62056, ModeLogarex, ModeSML, ModeImpressionsAmbient, ModeImpressionsIR:
		return m
	}
	return ModeUnknown
}

// ValidMode reports whether v names a configurable mode.
func ValidMode(v int) bool {
	return modeFromHint(v) != ModeUnknown || CommunicationMode(v) == ModePlaintext || CommunicationMode(v) == ModeUnknown
}

const (
	DefaultRequestTimeout    = 10 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultStreamReadTimeout = 64 * time.Second
	DefaultStaleAfter        = 50 * time.Second
	DefaultDebounce          = 250 * time.Millisecond
)

// Options configures a Bridge. Zero values fall back to the defaults above.
type Options struct {
	Host              string
	Password          string
	NodeNumber        int
	Mode              CommunicationMode
	IgnoreParseErrors bool

	Logger     *zap.Logger
	HTTPClient *http.Client
	Metrics    *Metrics

	RequestTimeout    time.Duration
	HandshakeTimeout  time.Duration
	StreamReadTimeout time.Duration
	StaleAfter        time.Duration
	Debounce          time.Duration

	// Notify receives the store snapshot after a burst of stream decodes.
	Notify func(*obis.Snapshot)
}
