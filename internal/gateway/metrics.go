package gateway

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the gateway's connection-lifecycle counters. Kept internal to
// this package because Session and Hub call its methods directly; register it
// with the process registry once at construction time.
type metrics struct {
	connections      prometheus.Gauge
	connectsTotal    prometheus.Counter
	disconnectsTotal prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_connections",
			Help: "Currently connected gateway sessions.",
		}),
		connectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_connects_total",
			Help: "Total sessions that completed identification.",
		}),
		disconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_disconnects_total",
			Help: "Total sessions torn down.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.connectsTotal, m.disconnectsTotal)
	}
	return m
}

func (m *metrics) onConnect() {
	m.connections.Inc()
	m.connectsTotal.Inc()
}

func (m *metrics) onDisconnect() {
	m.connections.Dec()
	m.disconnectsTotal.Inc()
}
