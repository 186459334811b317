package capture

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes correlator activity. Each Metrics owns its registry so several
// instances (one per test, for example) never collide.
type Metrics struct {
	registry  *prometheus.Registry
	Fragments *prometheus.CounterVec
	Anomalies *prometheus.CounterVec
	Records   prometheus.Gauge
	Pending   prometheus.Gauge
}

func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		Fragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devya",
			Subsystem: "capture",
			Name:      "fragments_total",
			Help:      "Total fragments applied by kind",
		}, []string{"kind"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devya",
			Subsystem: "capture",
			Name:      "anomalies_total",
			Help:      "Total protocol anomalies by kind",
		}, []string{"kind"}),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "devya",
			Subsystem: "capture",
			Name:      "records",
			Help:      "Number of records in the current collection",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "devya",
			Subsystem: "capture",
			Name:      "pending_orphans",
			Help:      "Number of buffered orphan responses",
		}),
	}
	r.MustRegister(m.Fragments, m.Anomalies, m.Records, m.Pending)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
