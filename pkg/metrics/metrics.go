// Package metrics provides Prometheus instrumentation for worker pools.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances published by a pool. Every metric
// carries a pool_name label so several pools can share one registry.
type Registry struct {
	// Current pool state
	PoolSize     *prometheus.GaugeVec
	IdleWorkers  *prometheus.GaugeVec
	RunningTasks *prometheus.GaugeVec
	QueuedTasks  *prometheus.GaugeVec

	// Task outcome counters
	TasksSubmitted *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec
	TasksAborted   *prometheus.CounterVec

	// Worker lifecycle counters
	WorkerCrashes      *prometheus.CounterVec
	WorkerReplacements *prometheus.CounterVec

	// TaskDuration observes dispatch-to-result latency.
	TaskDuration *prometheus.HistogramVec
}

// DefaultRegistry is registered with the Prometheus default registerer.
// A pool publishes to it only when its Config.Metrics points at it; a
// pool with no registry records no metrics.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a metrics registry with the given Prometheus
// registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		PoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "workerpool",
				Subsystem: "pool",
				Name:      "size",
				Help:      "Current number of live workers",
			},
			[]string{"pool_name"},
		),

		IdleWorkers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "workerpool",
				Subsystem: "pool",
				Name:      "idle_workers",
				Help:      "Number of idle workers",
			},
			[]string{"pool_name"},
		),

		RunningTasks: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "workerpool",
				Subsystem: "pool",
				Name:      "running_tasks",
				Help:      "Number of tasks currently dispatched to workers",
			},
			[]string{"pool_name"},
		),

		QueuedTasks: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "workerpool",
				Subsystem: "pool",
				Name:      "queued_tasks",
				Help:      "Number of tasks waiting for a worker",
			},
			[]string{"pool_name"},
		),

		TasksSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "workerpool",
				Subsystem: "tasks",
				Name:      "submitted_total",
				Help:      "Total number of tasks accepted by the pool",
			},
			[]string{"pool_name"},
		),

		TasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "workerpool",
				Subsystem: "tasks",
				Name:      "completed_total",
				Help:      "Total number of tasks resolved successfully",
			},
			[]string{"pool_name"},
		),

		TasksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "workerpool",
				Subsystem: "tasks",
				Name:      "failed_total",
				Help:      "Total number of tasks that failed",
			},
			[]string{"pool_name"},
		),

		TasksAborted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "workerpool",
				Subsystem: "tasks",
				Name:      "aborted_total",
				Help:      "Total number of tasks aborted by their callers",
			},
			[]string{"pool_name"},
		),

		WorkerCrashes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "workerpool",
				Subsystem: "workers",
				Name:      "crashes_total",
				Help:      "Total number of worker-level faults",
			},
			[]string{"pool_name"},
		),

		WorkerReplacements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "workerpool",
				Subsystem: "workers",
				Name:      "replacements_total",
				Help:      "Total number of workers respawned after a crash",
			},
			[]string{"pool_name"},
		),

		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "workerpool",
				Subsystem: "tasks",
				Name:      "duration_seconds",
				Help:      "Time from dispatch to terminal result",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pool_name"},
		),
	}
}
