package leaseinstrument

import (
	"time"

	"github.com/hackborn/lease"
	"github.com/prometheus/client_golang/prometheus"
)

// ------------------------------------------------------------
// METRICS

// Metrics collects storage and acquisition metrics. It is a lease.Observer.
type Metrics struct {
	storageOps     *prometheus.CounterVec
	storageSeconds *prometheus.HistogramVec
	acquires       *prometheus.CounterVec
	acquireSeconds prometheus.Histogram
}

// NewMetrics constructs metrics registered on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		storageOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lease_storage_ops_total",
				Help: "Total number of lock storage reads and writes",
			},
			[]string{"op", "step", "status"},
		),
		storageSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lease_storage_op_seconds",
				Help:    "Lock storage read and write time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		acquires: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lease_acquire_total",
				Help: "Total number of lock acquisition attempts",
			},
			[]string{"result", "kind"},
		),
		acquireSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lease_acquire_seconds",
				Help:    "Lock acquisition time in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	for _, c := range []prometheus.Collector{m.storageOps, m.storageSeconds, m.acquires, m.acquireSeconds} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveAcquire records one acquisition attempt.
func (m *Metrics) ObserveAcquire(o lease.Outcome, elapsed time.Duration) {
	m.acquires.WithLabelValues(o.Result.String(), o.Kind.String()).Inc()
	m.acquireSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) observeStorage(op string, step lease.Step, err error, elapsed time.Duration) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}
	m.storageOps.WithLabelValues(op, step.String(), status).Inc()
	m.storageSeconds.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ------------------------------------------------------------
// CONST and VAR

const (
	statusSuccess = "success"
	statusError   = "error"
)
