package signal

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the relay's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	events       *prometheus.CounterVec
	errors       *prometheus.CounterVec
	keyExchanges *prometheus.CounterVec
	onlineUsers  prometheus.Gauge
	sessionKeys  prometheus.Gauge
	connections  prometheus.Gauge
	dropped      prometheus.Counter
}

// NewMetrics constructs the collectors and registers them on reg (if non-nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigrelay",
			Name:      "events_total",
			Help:      "Inbound events handled, by type.",
		}, []string{"type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigrelay",
			Name:      "event_errors_total",
			Help:      "Error events sent to clients, by code.",
		}, []string{"code"}),
		keyExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigrelay",
			Name:      "key_exchanges_total",
			Help:      "Key exchange outcomes.",
		}, []string{"result"}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sigrelay",
			Name:      "online_users",
			Help:      "Currently joined users.",
		}),
		sessionKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sigrelay",
			Name:      "session_keys",
			Help:      "Cached pairwise session keys.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sigrelay",
			Name:      "ws_connections",
			Help:      "Attached websocket connections.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sigrelay",
			Name:      "ws_dropped_total",
			Help:      "Outbound envelopes dropped on a full or closed send queue.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.events,
			m.errors,
			m.keyExchanges,
			m.onlineUsers,
			m.sessionKeys,
			m.connections,
			m.dropped,
		)
	}
	return m
}

// Key exchange results.
const (
	KeyExchangeDelivered = "delivered"
	KeyExchangePartial   = "partial"
	KeyExchangeFailed    = "failed"
)

func (m *Metrics) event(typ string) {
	if m != nil {
		m.events.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) errorSent(code string) {
	if m != nil {
		m.errors.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) keyExchange(result string) {
	if m != nil {
		m.keyExchanges.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) setOnline(n int) {
	if m != nil {
		m.onlineUsers.Set(float64(n))
	}
}

func (m *Metrics) setSessionKeys(n int) {
	if m != nil {
		m.sessionKeys.Set(float64(n))
	}
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) droppedSend() {
	if m != nil {
		m.dropped.Inc()
	}
}
