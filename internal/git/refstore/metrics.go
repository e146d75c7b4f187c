package refstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	transactionsTotal *prometheus.CounterVec
	editsTotal        *prometheus.CounterVec
	lockLatency       *prometheus.HistogramVec
}

func newMetrics() *metrics {
	return &metrics{
		transactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitaly_refs_transactions_total",
				Help: "Total number of reference transaction stages by outcome",
			},
			[]string{"stage", "result"},
		),
		editsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitaly_refs_edits_total",
				Help: "Total number of reference edits applied by committed transactions",
			},
			[]string{"change"},
		),
		lockLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gitaly_refs_lock_acquire_seconds",
				Help:    "Time spent acquiring reference locks",
				Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 5},
			},
			[]string{"lock"},
		),
	}
}

func (m *metrics) observeStage(stage string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.transactionsTotal.WithLabelValues(stage, result).Inc()
}

func (m *metrics) observeLock(kind string, start time.Time) {
	m.lockLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// Describe is used to describe Prometheus metrics.
func (s *Store) Describe(descs chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(s, descs)
}

// Collect is used to collect Prometheus metrics.
func (s *Store) Collect(metrics chan<- prometheus.Metric) {
	s.metrics.transactionsTotal.Collect(metrics)
	s.metrics.editsTotal.Collect(metrics)
	s.metrics.lockLatency.Collect(metrics)
}
