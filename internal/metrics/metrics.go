// Package metrics provides Prometheus collectors for identity rotations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricRotationsTotal        = "ipchanger_rotations_total"
	MetricRotationAttemptsTotal = "ipchanger_rotation_attempts_total"
	MetricRotationDuration      = "ipchanger_rotation_duration_seconds"
)

// Metrics contains Prometheus collectors for the rotation engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	rotationsTotal *prometheus.CounterVec
	attemptsTotal  *prometheus.CounterVec
	duration       prometheus.Histogram
}

// NewMetrics creates the collectors. They are not registered; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		rotationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRotationsTotal,
				Help: "Total number of rotation calls by final status",
			},
			[]string{"status"},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRotationAttemptsTotal,
				Help: "Total number of rotation attempts by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: MetricRotationDuration,
			Help: "Duration of rotation calls in seconds, from the first observation to the result",
			// A NEWNYM round trip plus an echo query through Tor takes seconds, not milliseconds.
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns every collector owned by m.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.rotationsTotal, m.attemptsTotal, m.duration}
}

// IncRotation records a finished rotation call with the given status label.
func (m *Metrics) IncRotation(status string) {
	if m == nil {
		return
	}
	m.rotationsTotal.WithLabelValues(status).Inc()
}

// IncAttempt records one attempt with the given outcome label.
func (m *Metrics) IncAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records the duration of a rotation call started at start.
func (m *Metrics) ObserveDuration(start, end time.Time) {
	if m == nil {
		return
	}
	m.duration.Observe(end.Sub(start).Seconds())
}

// WriteTextfile writes all metrics gathered from g to path in the text
// exposition format, for the node_exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
