// Package metrics provides Prometheus metrics for tinker invocations.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the invocation collectors and the registry they live in.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    *prometheus.GaugeVec
}

// New creates a Metrics instance with its own registry, so tests and
// multiple servers in one process do not collide on the default registry.
func New(version string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinker_invocations_total",
				Help: "Invocations by operation and outcome kind",
			},
			[]string{"operation", "kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tinker_invocation_duration_seconds",
				Help:    "Wall time of invocations that spawned a process",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"operation"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tinker_invocations_in_flight",
				Help: "Child processes currently running",
			},
			[]string{"operation"},
		),
	}

	info := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tinker_info",
			Help: "Build information (value always 1)",
		},
		[]string{"version"},
	)
	info.WithLabelValues(version).Set(1)

	m.registry.MustRegister(m.invocations, m.duration, m.inFlight, info)
	return m
}

// Begin marks an invocation as running and returns a function that
// records its outcome.
func (m *Metrics) Begin(operation string) func(kind string, elapsed time.Duration) {
	if m == nil {
		return func(string, time.Duration) {}
	}
	g := m.inFlight.WithLabelValues(operation)
	g.Inc()
	return func(kind string, elapsed time.Duration) {
		g.Dec()
		m.invocations.WithLabelValues(operation, kind).Inc()
		if elapsed > 0 {
			m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
		}
	}
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Register mounts /metrics and /healthz on mux.
func (m *Metrics) Register(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", healthHandler)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}
