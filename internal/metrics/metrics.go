// Package metrics exposes Prometheus metrics for pipeline runs and live
// sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/estatepost/internal/workflow"
)

// Metrics collects step, run and session metrics on its own registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	stepTotal    *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runTotal     *prometheus.CounterVec
	sessions     prometheus.Gauge
}

// New creates and registers the metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stepTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estatepost_step_total",
				Help: "Total number of pipeline step executions by outcome.",
			},
			[]string{"step", "outcome"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "estatepost_step_duration_seconds",
				Help:    "Pipeline step duration in seconds.",
				Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"step"},
		),
		runTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estatepost_run_total",
				Help: "Total number of pipeline runs by final status.",
			},
			[]string{"status"},
		),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "estatepost_sessions_active",
			Help: "Number of open live sessions.",
		}),
	}
	m.registry.MustRegister(m.stepTotal, m.stepDuration, m.runTotal, m.sessions)
	return m
}

// StepCompleted records one step execution.
func (m *Metrics) StepCompleted(step string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.stepTotal.WithLabelValues(step, outcome).Inc()
	m.stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// RunCompleted records a finished run.
func (m *Metrics) RunCompleted(status workflow.Status) {
	if m == nil {
		return
	}
	m.runTotal.WithLabelValues(string(status)).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
