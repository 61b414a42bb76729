package prometheus

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fluxorio/poold/pkg/core/concurrency"
	"github.com/fluxorio/poold/pkg/tcp"
)

var (
	// DefaultRegistry is the default Prometheus registry
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer is the default Prometheus registerer
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "poold"}, DefaultRegistry)

	// Metrics collection
	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Pool metrics, labelled by pool name
	TasksSubmitted *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec
	TasksRejected  *prometheus.CounterVec // reason: closed, dispatch
	TaskDuration   *prometheus.HistogramVec
	QueueDepth     *prometheus.GaugeVec
	WorkersAlive   *prometheus.GaugeVec
	WorkersBusy    *prometheus.GaugeVec
	PoolRunning    *prometheus.GaugeVec

	// Connection metrics
	ConnectionsTotal    *prometheus.CounterVec // result: ok, error, panic
	ConnectionDuration  *prometheus.HistogramVec
	ConnectionsInFlight prometheus.Gauge
	ConnectionsRejected *prometheus.CounterVec // reason: closed, dispatch, limit
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics creates a new metrics collection
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		TasksSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poold_pool_tasks_submitted_total",
				Help: "Total number of tasks accepted by the pool",
			},
			[]string{"pool"},
		),
		TasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poold_pool_tasks_completed_total",
				Help: "Total number of tasks that returned normally",
			},
			[]string{"pool"},
		),
		TasksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poold_pool_tasks_failed_total",
				Help: "Total number of tasks that panicked or called runtime.Goexit",
			},
			[]string{"pool"},
		),
		TasksRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poold_pool_tasks_rejected_total",
				Help: "Total number of submissions the pool refused",
			},
			[]string{"pool", "reason"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poold_pool_task_duration_seconds",
				Help:    "Task run time in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"pool", "outcome"}, // outcome: completed, failed
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "poold_pool_queue_depth",
				Help: "Tasks accepted but not yet picked up by a worker",
			},
			[]string{"pool"},
		),
		WorkersAlive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "poold_pool_workers_alive",
				Help: "Workers that have not consumed a stop signal",
			},
			[]string{"pool"},
		),
		WorkersBusy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "poold_pool_workers_busy",
				Help: "Workers currently running a task",
			},
			[]string{"pool"},
		),
		PoolRunning: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "poold_pool_running",
				Help: "1 while the pool accepts submissions, 0 once shutdown has begun",
			},
			[]string{"pool"},
		),

		ConnectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poold_tcp_connections_total",
				Help: "Total number of connections handled, by result",
			},
			[]string{"result"},
		),
		ConnectionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poold_tcp_connection_duration_seconds",
				Help:    "Connection handling duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		ConnectionsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "poold_tcp_connections_in_flight",
				Help: "Connections currently inside a handler",
			},
		),
		ConnectionsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poold_tcp_connections_rejected_total",
				Help: "Total number of connections refused before reaching a worker",
			},
			[]string{"reason"},
		),
	}
}

// Observe implements concurrency.Observer.
func (m *Metrics) Observe(e concurrency.Event) {
	pool := e.Pool
	switch e.Kind {
	case concurrency.EventWorkerStarted:
		m.WorkersAlive.WithLabelValues(pool).Inc()
		m.PoolRunning.WithLabelValues(pool).Set(1)
	case concurrency.EventWorkerStopped:
		m.WorkersAlive.WithLabelValues(pool).Dec()
	case concurrency.EventTaskSubmitted:
		m.TasksSubmitted.WithLabelValues(pool).Inc()
		m.QueueDepth.WithLabelValues(pool).Inc()
	case concurrency.EventTaskRejected:
		m.TasksRejected.WithLabelValues(pool, rejectReason(e.Err)).Inc()
	case concurrency.EventTaskDispatched:
		m.QueueDepth.WithLabelValues(pool).Dec()
		m.WorkersBusy.WithLabelValues(pool).Inc()
	case concurrency.EventTaskCompleted:
		m.WorkersBusy.WithLabelValues(pool).Dec()
		m.TasksCompleted.WithLabelValues(pool).Inc()
		m.TaskDuration.WithLabelValues(pool, "completed").Observe(e.Duration.Seconds())
	case concurrency.EventTaskFailed:
		m.WorkersBusy.WithLabelValues(pool).Dec()
		m.TasksFailed.WithLabelValues(pool).Inc()
		m.TaskDuration.WithLabelValues(pool, "failed").Observe(e.Duration.Seconds())
	case concurrency.EventPoolClosing:
		m.PoolRunning.WithLabelValues(pool).Set(0)
	}
}

// rejectReason maps a submit or admission error to a metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, concurrency.ErrRejected):
		return "closed"
	case errors.Is(err, concurrency.ErrDispatch):
		return "dispatch"
	case errors.Is(err, tcp.ErrTooManyConnections):
		return "limit"
	default:
		return "unknown"
	}
}
