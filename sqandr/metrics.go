package sqandr

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the modem's Prometheus collectors. Each instance owns its
// registry so several modems can run in one process.
type Metrics struct {
	registry *prometheus.Registry

	cycles        prometheus.Counter
	samples       prometheus.Counter
	headers       *prometheus.CounterVec // by polarity
	bytesDecoded  prometheus.Counter
	bytesDropped  prometheus.Counter
	preambles     prometheus.Counter
	cyclesEmitted prometheus.Counter
	cyclesGated   prometheus.Counter
	heartbeats    prometheus.Counter
	txBuffers     prometheus.Counter
	txBytes       prometheus.Counter
	txRejected    prometheus.Counter
	cycleDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "sqandr_cycles_total",
			Help: "Receive buffers processed",
		}),
		samples: f.NewCounter(prometheus.CounterOpts{
			Name: "sqandr_samples_total",
			Help: "I/Q samples decoded",
		}),
		headers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sqandr_headers_total",
			Help: "Sync headers detected",
		}, []string{"polarity"}),
		bytesDecoded: f.NewCounter(prometheus.CounterOpts{
			Name: "sqandr_bytes_decoded_total",
			Help: "Bytes recovered from the air",
		}),
		bytesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "sqandr_bytes_dropped_total",
			Help: "Bytes decoded after the cycle output was full",
		}),
		preambles: f.NewCounter(prometheus.CounterOpts{
			Name: "sqandr_preambles_total",
			Help: "Cycles in which the SqAN preamble was seen",
		}),
		cyclesEmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "sqandr_cycles_emitted_total",
			Help: "Cycles whose bytes were written to the host",
		}),
		cyclesGated: f.NewCounter(prometheus.CounterOpts{
			Name: "sqandr_cycles_suppressed_total",
			Help: "Cycles with bytes withheld because no preamble was seen",
		}),
		heartbeats: f.NewCounter(prometheus.CounterOpts{
			Name: "sqandr_heartbeats_total",
			Help: "Heartbeats written to the host",
		}),
		txBuffers: f.NewCounter(prometheus.CounterOpts{
			Name: "sqandr_tx_buffers_total",
			Help: "Transmit buffers submitted",
		}),
		txBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "sqandr_tx_bytes_total",
			Help: "Payload bytes transmitted, before repetition",
		}),
		txRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "sqandr_tx_rejected_total",
			Help: "Transmit jobs rejected for not fitting the transmit buffer",
		}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sqandr_cycle_duration_seconds",
			Help:    "Time spent on one receive/transmit cycle",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
}

func (m *Metrics) observeCycle(r CycleResult) {
	m.cycles.Inc()
	m.samples.Add(float64(r.Stats.Samples))
	m.headers.WithLabelValues(Normal.String()).Add(float64(r.Stats.NormalHeaders))
	m.headers.WithLabelValues(Inverted.String()).Add(float64(r.Stats.InvertedHeaders))
	m.bytesDecoded.Add(float64(r.Stats.Decoded))
	m.bytesDropped.Add(float64(r.Stats.Dropped))
	if r.PreambleFound {
		m.preambles.Inc()
	}
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
