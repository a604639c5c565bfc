// Package metrics exposes Prometheus collectors for the attendance service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"classattend/internal/attendance"
)

// Metrics holds the service collectors.
type Metrics struct {
	verifications *prometheus.CounterVec
	distance      *prometheus.HistogramVec
	events        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classattend",
			Name:      "verifications_total",
			Help:      "Face verification attempts by outcome.",
		}, []string{"outcome"}),
		distance: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "classattend",
			Name:      "match_distance",
			Help:      "Nearest-neighbour distance of verifications that reached the matcher.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 1.0, 1.5},
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classattend",
			Name:      "worker_events_total",
			Help:      "Queue events handled by the worker by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.verifications, m.distance, m.events)
	return m
}

// ObserveVerification implements attendance.Observer.
func (m *Metrics) ObserveVerification(outcome string, distance float64) {
	m.verifications.WithLabelValues(outcome).Inc()
	if outcome == attendance.OutcomeMarked || outcome == attendance.OutcomeNotRecognized {
		m.distance.WithLabelValues(outcome).Observe(distance)
	}
}

// ObserveEvent counts a worker result such as "stored" or "failed".
func (m *Metrics) ObserveEvent(result string) {
	m.events.WithLabelValues(result).Inc()
}
