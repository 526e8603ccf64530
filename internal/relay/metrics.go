package relay

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeOK             = "ok"
	outcomeConfigError    = "config_error"
	outcomeClientError    = "client_error"
	outcomeTransportError = "transport_error"
	outcomeUpstreamError  = "upstream_error"
	outcomeCancelled      = "cancelled"
)

// Metrics owns a private registry so several servers can coexist in one
// process (and in tests). A nil *Metrics records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	streamedChars    *prometheus.CounterVec
	inFlight         prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptmachine",
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Relay requests by action and outcome.",
		}, []string{"action", "outcome"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "promptmachine",
			Subsystem: "relay",
			Name:      "upstream_duration_seconds",
			Help:      "Wall time of upstream streaming requests.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		}, []string{"action"}),
		streamedChars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptmachine",
			Subsystem: "relay",
			Name:      "streamed_chars_total",
			Help:      "Content characters forwarded to clients.",
		}, []string{"action"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "promptmachine",
			Subsystem: "relay",
			Name:      "in_flight_streams",
			Help:      "Streams currently open.",
		}),
	}
	registry.MustRegister(
		m.requests,
		m.upstreamDuration,
		m.streamedChars,
		m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) streamStarted() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

func (m *Metrics) observeRequest(action, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) observeUpstream(action string, d time.Duration, chars int) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(action).Observe(d.Seconds())
	m.streamedChars.WithLabelValues(action).Add(float64(chars))
}
