package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports bus activity as Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Broadcasts *prometheus.CounterVec
	Deliveries prometheus.Counter
	Dropped    prometheus.Counter
	LiveNodes  prometheus.Gauge
}

// NewMetrics creates the bus collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bgproces",
			Subsystem: "bus",
			Name:      "broadcasts_total",
			Help:      "Broadcast passes started, by notification kind.",
		}, []string{"kind"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bgproces",
			Subsystem: "bus",
			Name:      "deliveries_total",
			Help:      "Notifications delivered to nodes.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bgproces",
			Subsystem: "bus",
			Name:      "dropped_total",
			Help:      "Broadcasts dropped at the depth cap.",
		}),
		LiveNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bgproces",
			Subsystem: "bus",
			Name:      "live_nodes",
			Help:      "Nodes currently attached.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Broadcasts, m.Deliveries, m.Dropped, m.LiveNodes)
	}
	return m
}

func (m *Metrics) broadcast(kind Kind) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) delivery() {
	if m == nil {
		return
	}
	m.Deliveries.Inc()
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

func (m *Metrics) setLive(n int) {
	if m == nil {
		return
	}
	m.LiveNodes.Set(float64(n))
}
