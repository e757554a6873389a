// Package metrics records executor task metrics on a private Prometheus
// registry and can dump them in the node-exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/workflow-cli/workflow/internal/concurrent"
)

// Metrics implements concurrent.Observer.
type Metrics struct {
	registry     *prometheus.Registry
	tasksStarted prometheus.Counter
	tasksSkipped prometheus.Counter
	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	inFlight     prometheus.Gauge
}

var _ concurrent.Observer = (*Metrics)(nil)

// New creates metrics for one component, e.g. "attachment_download".
func New(component string) *Metrics {
	labels := prometheus.Labels{"component": component}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "workflow",
			Name:        "tasks_started_total",
			Help:        "Number of tasks handed to a worker.",
			ConstLabels: labels,
		}),
		tasksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "workflow",
			Name:        "tasks_skipped_total",
			Help:        "Number of tasks never started because the batch was cancelled.",
			ConstLabels: labels,
		}),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "workflow",
			Name:        "tasks_finished_total",
			Help:        "Number of finished tasks by outcome.",
			ConstLabels: labels,
		}, []string{"status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "workflow",
			Name:        "task_duration_seconds",
			Help:        "Task run time by outcome.",
			ConstLabels: labels,
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "workflow",
			Name:        "tasks_in_flight",
			Help:        "Tasks currently running.",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(m.tasksStarted, m.tasksSkipped, m.tasksTotal, m.taskDuration, m.inFlight)
	return m
}

func (m *Metrics) TaskStarted(string) {
	m.tasksStarted.Inc()
	m.inFlight.Inc()
}

func (m *Metrics) TaskFinished(_ string, status concurrent.ResultStatusType, d time.Duration) {
	m.inFlight.Dec()
	m.taskDuration.WithLabelValues(string(status)).Observe(d.Seconds())
	m.tasksTotal.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) TaskSkipped(string) {
	m.tasksSkipped.Inc()
	m.tasksTotal.WithLabelValues(string(concurrent.ResultStatusFailure)).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile atomically writes all metrics to path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
