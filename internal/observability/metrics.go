package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics registers and records the per-arrow and per-worker counters
// that back the performance snapshot: messages completed, latency, queue
// visits/overhead per arrow, and busy/retry/idle time per worker.
type EngineMetrics struct {
	arrowFireTotal     *prometheus.CounterVec
	arrowFireLatency   *prometheus.HistogramVec
	arrowQueueVisits   *prometheus.CounterVec
	arrowQueueOverhead *prometheus.HistogramVec
	workerBusySeconds  *prometheus.CounterVec
	workerRetrySeconds *prometheus.CounterVec
	workerIdleSeconds  *prometheus.CounterVec
	eventsCompleted    prometheus.Counter
}

// NewEngineMetrics constructs and registers engine metrics against reg.
// A nil registerer falls back to the default Prometheus registry.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &EngineMetrics{ //nolint:exhaustruct
		arrowFireTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{ //nolint:exhaustruct
				Namespace: "janaflow",
				Subsystem: "arrow",
				Name:      "fire_total",
				Help:      "Number of times an arrow was fired, by arrow name and resulting status.",
			},
			[]string{"arrow", "status"},
		),
		arrowFireLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{ //nolint:exhaustruct
				Namespace: "janaflow",
				Subsystem: "arrow",
				Name:      "fire_latency_seconds",
				Help:      "Latency of a single arrow fire call.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"arrow"},
		),
		arrowQueueVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{ //nolint:exhaustruct
				Namespace: "janaflow",
				Subsystem: "arrow",
				Name:      "queue_visits_total",
				Help:      "Number of mailbox reserve/pop round-trips performed by an arrow.",
			},
			[]string{"arrow"},
		),
		arrowQueueOverhead: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{ //nolint:exhaustruct
				Namespace: "janaflow",
				Subsystem: "arrow",
				Name:      "queue_overhead_seconds",
				Help:      "Time an arrow fire spent blocked on mailbox reservation/pop.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"arrow"},
		),
		workerBusySeconds: prometheus.NewCounterVec(
			prometheus.CounterOpts{ //nolint:exhaustruct
				Namespace: "janaflow",
				Subsystem: "worker",
				Name:      "busy_seconds_total",
				Help:      "Cumulative time a worker spent executing KeepGoing fires.",
			},
			[]string{"worker"},
		),
		workerRetrySeconds: prometheus.NewCounterVec(
			prometheus.CounterOpts{ //nolint:exhaustruct
				Namespace: "janaflow",
				Subsystem: "worker",
				Name:      "retry_seconds_total",
				Help:      "Cumulative time a worker spent backed off after ComeBackLater.",
			},
			[]string{"worker"},
		),
		workerIdleSeconds: prometheus.NewCounterVec(
			prometheus.CounterOpts{ //nolint:exhaustruct
				Namespace: "janaflow",
				Subsystem: "worker",
				Name:      "idle_seconds_total",
				Help:      "Cumulative time a worker spent with no assignment from the scheduler.",
			},
			[]string{"worker"},
		),
		eventsCompleted: prometheus.NewCounter(
			prometheus.CounterOpts{ //nolint:exhaustruct
				Namespace: "janaflow",
				Name:      "events_completed_total",
				Help:      "Total events that reached a sink and were recycled.",
			},
		),
	}
	reg.MustRegister(
		m.arrowFireTotal, m.arrowFireLatency, m.arrowQueueVisits, m.arrowQueueOverhead,
		m.workerBusySeconds, m.workerRetrySeconds, m.workerIdleSeconds, m.eventsCompleted,
	)
	return m
}

// RecordFire records one arrow fire outcome and its latency/queue overhead.
func (m *EngineMetrics) RecordFire(arrow, status string, latency, queueOverhead time.Duration) {
	if m == nil {
		return
	}
	m.arrowFireTotal.WithLabelValues(arrow, status).Inc()
	m.arrowFireLatency.WithLabelValues(arrow).Observe(latency.Seconds())
	m.arrowQueueVisits.WithLabelValues(arrow).Inc()
	m.arrowQueueOverhead.WithLabelValues(arrow).Observe(queueOverhead.Seconds())
}

// RecordWorkerBusy accumulates time a worker spent making forward progress.
func (m *EngineMetrics) RecordWorkerBusy(workerID string, d time.Duration) {
	if m == nil {
		return
	}
	m.workerBusySeconds.WithLabelValues(workerID).Add(d.Seconds())
}

// RecordWorkerRetry accumulates time a worker spent backed off.
func (m *EngineMetrics) RecordWorkerRetry(workerID string, d time.Duration) {
	if m == nil {
		return
	}
	m.workerRetrySeconds.WithLabelValues(workerID).Add(d.Seconds())
}

// RecordWorkerIdle accumulates time a worker spent with no assignment.
func (m *EngineMetrics) RecordWorkerIdle(workerID string, d time.Duration) {
	if m == nil {
		return
	}
	m.workerIdleSeconds.WithLabelValues(workerID).Add(d.Seconds())
}

// RecordEventCompleted increments the total events-completed counter.
func (m *EngineMetrics) RecordEventCompleted() {
	if m == nil {
		return
	}
	m.eventsCompleted.Inc()
}
