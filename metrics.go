package firefx

import (
	"net/http"

	"github.com/gekko3d/firefx/fxrt/rt/particle"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports per-system tick statistics. It owns its registry so
// several runtimes can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	population *prometheus.GaugeVec
	written    *prometheus.GaugeVec
	dropped    *prometheus.CounterVec
	timeouts   *prometheus.CounterVec
	ticks      *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "firefx"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		population: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "particles_alive",
				Help:      "Particles counted by the last population readback",
			},
			[]string{"system", "population"},
		),
		written: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stream_written_records",
				Help:      "Records written by the last simulate pass",
			},
			[]string{"system"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_dropped_records_total",
				Help:      "Records discarded because the stream target was full",
			},
			[]string{"system"},
		),
		timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_timeouts_total",
				Help:      "Population queries that did not finish within the poll policy",
			},
			[]string{"system"},
		),
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_total",
				Help:      "Draw calls by system and driver state",
			},
			[]string{"system", "state"},
		),
	}
	m.registry.MustRegister(m.population, m.written, m.dropped, m.timeouts, m.ticks)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTick implements particle.Observer.
func (m *Metrics) ObserveTick(t particle.TickStats) {
	m.ticks.WithLabelValues(t.System, t.State.String()).Inc()
	if t.TimedOut {
		m.timeouts.WithLabelValues(t.System).Inc()
	}
	if !t.Composite || t.TimedOut {
		return
	}
	m.population.WithLabelValues(t.System, "primary").Set(float64(t.Population.Primary))
	m.population.WithLabelValues(t.System, "smoke").Set(float64(t.Population.Smoke))
	m.written.WithLabelValues(t.System).Set(float64(t.Written))
	if t.Dropped > 0 {
		m.dropped.WithLabelValues(t.System).Add(float64(t.Dropped))
	}
}

// Forget drops every series of a released system.
func (m *Metrics) Forget(system string) {
	m.population.DeletePartialMatch(prometheus.Labels{"system": system})
	m.written.DeleteLabelValues(system)
	m.dropped.DeleteLabelValues(system)
	m.timeouts.DeleteLabelValues(system)
	m.ticks.DeletePartialMatch(prometheus.Labels{"system": system})
}
