// Package metrics exposes sweep counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tailbeacon/pkg/discovery"
)

// Metrics holds the collectors on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	sweeps        *prometheus.CounterVec
	chains        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	beacons       prometheus.Gauge
	candidates    prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tailbeacon",
			Name:      "sweeps_total",
			Help:      "Discovery sweeps by overlay status result.",
		}, []string{"status"}),
		chains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tailbeacon",
			Name:      "chains_total",
			Help:      "PTR/SRV/TXT chains by outcome.",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tailbeacon",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one discovery sweep.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		}),
		beacons: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tailbeacon",
			Name:      "beacons",
			Help:      "Beacons found by the last sweep.",
		}),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tailbeacon",
			Name:      "candidate_peers",
			Help:      "Overlay peers queried by the last sweep.",
		}),
	}
	reg.MustRegister(m.sweeps, m.chains, m.sweepDuration, m.beacons, m.candidates)
	return m
}

// Observe records one sweep report.
func (m *Metrics) Observe(rep discovery.Report) {
	if m == nil {
		return
	}
	status := "ok"
	if rep.StatusErr != nil {
		status = "unavailable"
	}
	m.sweeps.WithLabelValues(status).Inc()
	for outcome, n := range rep.Outcomes {
		m.chains.WithLabelValues(string(outcome)).Add(float64(n))
	}
	m.sweepDuration.Observe(rep.Elapsed.Seconds())
	m.beacons.Set(float64(len(rep.Beacons)))
	m.candidates.Set(float64(rep.Candidates))
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
