package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "exam_runner"

// Recorder groups the runtime's Prometheus collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	examLoads      *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	autoSubmits    prometheus.Counter
	activeSessions prometheus.Gauge
	backendLatency *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer to expose them on /metrics.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		examLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exam_loads_total",
			Help:      "Exam definition loads by result.",
		}, []string{"result"}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Exam submissions by trigger and result.",
		}, []string{"trigger", "result"}),
		autoSubmits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_submits_total",
			Help:      "Sessions whose countdown reached zero.",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held by the gateway.",
		}),
		backendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of backend REST calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
	}
}

func (r *Recorder) ExamLoaded(result string) {
	if r == nil {
		return
	}
	r.examLoads.WithLabelValues(result).Inc()
}

func (r *Recorder) SubmissionDispatched(trigger, result string) {
	if r == nil {
		return
	}
	r.submissions.WithLabelValues(trigger, result).Inc()
}

func (r *Recorder) AutoSubmitted() {
	if r == nil {
		return
	}
	r.autoSubmits.Inc()
}

func (r *Recorder) SessionOpened() {
	if r == nil {
		return
	}
	r.activeSessions.Inc()
}

func (r *Recorder) SessionClosed() {
	if r == nil {
		return
	}
	r.activeSessions.Dec()
}

// ObserveBackend records a backend call. status is 0 when no response was received.
func (r *Recorder) ObserveBackend(op string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	r.backendLatency.WithLabelValues(op, label).Observe(elapsed.Seconds())
}
