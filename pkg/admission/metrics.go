package admission

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mercator-hq/ganymede/pkg/admission/circuit"
	"mercator-hq/ganymede/pkg/admission/ratelimit"
)

// Metrics exposes admission, queue and breaker activity as Prometheus
// collectors. It implements Events and queue.Events, and provides a breaker
// state-change hook, so one instance can observe the whole pipeline.
type Metrics struct {
	// Admission decisions
	admissionAllowed  *prometheus.CounterVec
	admissionRejected *prometheus.CounterVec

	// Queue activity
	queueEvents  *prometheus.CounterVec
	queueWait    prometheus.Histogram
	queueProcess prometheus.Histogram

	// Breaker transitions
	breakerTransitions *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered against reg. Passing nil
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		admissionAllowed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ganymede_admission_allowed_total",
				Help: "Total number of admitted requests",
			},
			[]string{"provider"},
		),

		admissionRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ganymede_admission_rejected_total",
				Help: "Total number of rejected requests",
			},
			[]string{"provider", "scope", "dimension"},
		),

		queueEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ganymede_queue_events_total",
				Help: "Total queue lifecycle events by kind",
			},
			[]string{"event"},
		),

		queueWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ganymede_queue_wait_seconds",
				Help:    "Time requests spend queued before dispatch",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
		),

		queueProcess: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ganymede_queue_processing_seconds",
				Help:    "Time between dispatch and release",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
		),

		breakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ganymede_breaker_transitions_total",
				Help: "Total circuit breaker state transitions",
			},
			[]string{"from", "to"},
		),
	}
}

// AdmissionAllowed implements Events.
func (m *Metrics) AdmissionAllowed(provider string, info RequestInfo) {
	m.admissionAllowed.WithLabelValues(provider).Inc()
}

// AdmissionRejected implements Events.
func (m *Metrics) AdmissionRejected(provider string, info RequestInfo, scope string, dimension ratelimit.Dimension) {
	m.admissionRejected.WithLabelValues(provider, scope, string(dimension)).Inc()
}

// RequestEnqueued implements queue.Events.
func (m *Metrics) RequestEnqueued(info RequestInfo, level int) {
	m.queueEvents.WithLabelValues("enqueued").Inc()
}

// RequestDispatched implements queue.Events.
func (m *Metrics) RequestDispatched(info RequestInfo, wait time.Duration) {
	m.queueEvents.WithLabelValues("dispatched").Inc()
	m.queueWait.Observe(wait.Seconds())
}

// RequestCompleted implements queue.Events.
func (m *Metrics) RequestCompleted(info RequestInfo, processing time.Duration) {
	m.queueEvents.WithLabelValues("completed").Inc()
	m.queueProcess.Observe(processing.Seconds())
}

// RequestRetried implements queue.Events.
func (m *Metrics) RequestRetried(info RequestInfo, attempt int, delay time.Duration) {
	m.queueEvents.WithLabelValues("retried").Inc()
}

// RequestFailed implements queue.Events.
func (m *Metrics) RequestFailed(info RequestInfo, err error) {
	m.queueEvents.WithLabelValues("failed").Inc()
}

// RequestTimedOut implements queue.Events.
func (m *Metrics) RequestTimedOut(info RequestInfo) {
	m.queueEvents.WithLabelValues("timed_out").Inc()
}

// RequestDropped implements queue.Events.
func (m *Metrics) RequestDropped(info RequestInfo) {
	m.queueEvents.WithLabelValues("dropped").Inc()
}

// QueueCleared implements queue.Events.
func (m *Metrics) QueueCleared(pending int) {
	m.queueEvents.WithLabelValues("cleared").Add(float64(pending))
}

// QueuePaused implements queue.Events.
func (m *Metrics) QueuePaused() {
	m.queueEvents.WithLabelValues("paused").Inc()
}

// QueueResumed implements queue.Events.
func (m *Metrics) QueueResumed() {
	m.queueEvents.WithLabelValues("resumed").Inc()
}

// BreakerStateChange returns a hook for circuit.Config.OnStateChange.
func (m *Metrics) BreakerStateChange() func(from, to circuit.State) {
	return func(from, to circuit.State) {
		m.breakerTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
}
