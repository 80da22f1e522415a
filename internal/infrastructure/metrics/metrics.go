package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics instruments the task store. A nil *StoreMetrics is valid
// and records nothing.
type StoreMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	tasks      *prometheus.GaugeVec
}

// NewStoreMetrics creates the store collectors and registers them
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskflow",
				Name:      "store_operations_total",
				Help:      "Total number of task store operations",
			},
			[]string{"operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "taskflow",
				Name:      "store_operation_duration_seconds",
				Help:      "Task store operation duration in seconds, including simulated latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		tasks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "taskflow",
				Name:      "tasks",
				Help:      "Number of persisted tasks by completion state",
			},
			[]string{"state"},
		),
	}

	reg.MustRegister(m.operations, m.duration, m.tasks)
	return m
}

// ObserveOperation records one store call
func (m *StoreMetrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(op, status).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// SetTaskCounts publishes the size of the persisted collection
func (m *StoreMetrics) SetTaskCounts(active, completed int) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues("active").Set(float64(active))
	m.tasks.WithLabelValues("completed").Set(float64(completed))
}
