// Package http provides shared HTTP middleware, health checking, metrics
// and tracing for the admin API server.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for Deskguard.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal         *prometheus.CounterVec
	RequestDuration       *prometheus.HistogramVec
	OperationsTotal       *prometheus.CounterVec
	PublishConflictsTotal prometheus.Counter
	SimulationDuration    prometheus.Histogram
	AuditAppendsTotal     prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deskguard",
				Name:      "requests_total",
				Help:      "Total number of admin API requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "deskguard",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets, // 5ms to 10s
			},
			[]string{"method"},
		),
		OperationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deskguard",
				Name:      "operations_total",
				Help:      "Total policy operations by outcome",
			},
			[]string{"operation", "status"}, // operation=publish/simulate/..., status=ok/error
		),
		PublishConflictsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "deskguard",
				Name:      "publish_conflicts_total",
				Help:      "Total publish attempts lost to a concurrent publish",
			},
		),
		SimulationDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "deskguard",
				Name:      "simulation_duration_seconds",
				Help:      "Simulation run duration in seconds, including sample fetch",
				Buckets:   prometheus.DefBuckets,
			},
		),
		AuditAppendsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "deskguard",
				Name:      "audit_appends_total",
				Help:      "Total audit entries written",
			},
		),
	}
}
