package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects operation counters and latencies for the pool engine.
type Metrics struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	lendingOnce sync.Once
	lending     *Metrics
)

// Lending returns the process-wide engine metrics, registering the collectors
// on the default registry exactly once.
func Lending() *Metrics {
	lendingOnce.Do(func() {
		lending = NewMetrics(prometheus.DefaultRegisterer)
	})
	return lending
}

// NewMetrics builds a metrics set registered against reg. Tests pass their
// own registry to avoid duplicate-registration panics across cases.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lendingpool",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations partitioned by operation and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lendingpool",
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.ops, m.duration)
	}
	return m
}

// ObserveOp records one completed operation. Safe on a nil receiver so
// callers can leave metrics unconfigured.
func (m *Metrics) ObserveOp(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}
