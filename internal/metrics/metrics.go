// Package metrics exposes scan counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry     *prometheus.Registry
	scans        *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
}

// New registers the gateway collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scan_gateway_scans_total",
			Help: "Scan requests by outcome and failure kind.",
		}, []string{"outcome", "failure"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scan_gateway_scan_duration_seconds",
			Help:    "Time spent deciding and running a scan.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.scans, m.scanDuration)
	return m
}

// ObserveScan counts one finished scan request.
func (m *Metrics) ObserveScan(outcome, failure string, elapsed time.Duration) {
	m.scans.WithLabelValues(outcome, failure).Inc()
	m.scanDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
