package housekeeping

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Manager is a housekeeping manager. It removes data that crashed or
// interrupted reference transactions have left behind in a store.
type Manager struct {
	tasksTotal   *prometheus.CounterVec
	tasksLatency *prometheus.HistogramVec
}

// NewManager creates a new Manager.
func NewManager() *Manager {
	return &Manager{
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitaly_refs_housekeeping_removed_total",
				Help: "Total number of stale files and directories removed by housekeeping",
			},
			[]string{"housekeeping_task"},
		),
		tasksLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "gitaly_refs_housekeeping_tasks_latency",
				Help: "Latency of the housekeeping tasks performed",
			},
			[]string{"housekeeping_task"},
		),
	}
}

// Describe is used to describe Prometheus metrics.
func (m *Manager) Describe(descs chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(m, descs)
}

// Collect is used to collect Prometheus metrics.
func (m *Manager) Collect(metrics chan<- prometheus.Metric) {
	m.tasksTotal.Collect(metrics)
	m.tasksLatency.Collect(metrics)
}
