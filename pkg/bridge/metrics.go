package bridge

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bridge collectors. A nil *Metrics records nothing.
type Metrics struct {
	decodes          *prometheus.CounterVec
	retries          *prometheus.CounterVec
	fastPathFailures prometheus.Counter
	streamConnects   *prometheus.CounterVec
	streamStalls     prometheus.Counter
	lastUpdate       prometheus.Gauge
	entries          prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		decodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_bridge_decodes_total",
				Help: "Payload decode attempts by mode and result",
			},
			[]string{"mode", "result"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_bridge_decode_retries_total",
				Help: "Refetches after a retryable decode failure",
			},
			[]string{"mode"},
		),
		fastPathFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pulse_bridge_sml_fast_path_failures_total",
				Help: "SML frames the strict extraction rejected",
			},
		),
		streamConnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_bridge_stream_connects_total",
				Help: "Websocket connect attempts by result",
			},
			[]string{"result"},
		),
		streamStalls: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pulse_bridge_stream_stalls_total",
				Help: "Connected streams dropped for not delivering data",
			},
		),
		lastUpdate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulse_bridge_last_update_timestamp_seconds",
				Help: "Unix time of the last successful decode",
			},
		),
		entries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulse_bridge_obis_entries",
				Help: "Entries in the current snapshot",
			},
		),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	var errs []error
	for _, c := range []prometheus.Collector{
		m.decodes, m.retries, m.fastPathFailures, m.streamConnects,
		m.streamStalls, m.lastUpdate, m.entries,
	} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Metrics) decode(mode CommunicationMode, result string) {
	if m != nil {
		m.decodes.WithLabelValues(mode.String(), result).Inc()
	}
}

func (m *Metrics) retry(mode CommunicationMode) {
	if m != nil {
		m.retries.WithLabelValues(mode.String()).Inc()
	}
}

func (m *Metrics) fastPathFailed(n int) {
	if m != nil && n > 0 {
		m.fastPathFailures.Add(float64(n))
	}
}

func (m *Metrics) connect(result string) {
	if m != nil {
		m.streamConnects.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) stall() {
	if m != nil {
		m.streamStalls.Inc()
	}
}

func (m *Metrics) updated(unix float64, entries int) {
	if m != nil {
		m.lastUpdate.Set(unix)
		m.entries.Set(float64(entries))
	}
}
