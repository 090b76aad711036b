// Package metrics provides Prometheus metrics export for volsnap.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Task kinds reported by the snapshot engine.
const (
	KindCreate = "create"
	KindDelete = "delete"
)

// Task results.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultCanceled = "canceled"
)

// Registry holds all volsnap metrics.
type Registry struct {
	reg *prometheus.Registry

	tasksTotal    *prometheus.CounterVec
	tasksInflight *prometheus.GaugeVec
	taskDuration  *prometheus.HistogramVec
}

// NewRegistry creates a new metrics registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volsnap_snapshot_tasks_total",
			Help: "Finished snapshot tasks by kind and result.",
		}, []string{"kind", "result"}),
		tasksInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "volsnap_snapshot_tasks_inflight",
			Help: "Snapshot tasks currently running.",
		}, []string{"kind"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "volsnap_snapshot_task_duration_seconds",
			Help:    "Wall-clock duration of finished snapshot tasks.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"kind"}),
	}
	r.reg.MustRegister(r.tasksTotal, r.tasksInflight, r.taskDuration)
	return r
}

// TaskStarted records a task entering the worker pool.
func (r *Registry) TaskStarted(kind string) {
	r.tasksInflight.WithLabelValues(kind).Inc()
}

// TaskFinished records a finished task.
func (r *Registry) TaskFinished(kind, result string, duration time.Duration) {
	r.tasksInflight.WithLabelValues(kind).Dec()
	r.tasksTotal.WithLabelValues(kind, result).Inc()
	r.taskDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// Handler returns the /metrics HTTP handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
