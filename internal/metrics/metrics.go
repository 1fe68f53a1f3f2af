// Package metrics provides Prometheus instrumentation for interviews and
// reasoning calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes.
const (
	OutcomeQuestion = "question"
	OutcomeComplete = "complete"
	OutcomeForced   = "forced"
	OutcomeEmpty    = "empty_input"
	OutcomeState    = "invalid_state"
	OutcomeBusy     = "busy"
	OutcomeUpstream = "upstream_error"
	OutcomeInternal = "internal_error"
)

// Recorder owns a registry and the interview metrics registered on it.
type Recorder struct {
	registry          *prometheus.Registry
	interviewsStarted prometheus.Counter
	turnsTotal        *prometheus.CounterVec
	reasoningDuration *prometheus.HistogramVec
	reasoningErrors   *prometheus.CounterVec
	promptTokens      *prometheus.CounterVec
	turnsInFlight     prometheus.Gauge
	sessionsSwept     prometheus.Counter
}

// NewRecorder creates a Recorder with its own registry, so several can
// coexist in tests.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		interviewsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_interviews_started_total",
			Help: "Interviews successfully started.",
		}),
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_turns_total",
			Help: "Interview operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		reasoningDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_reasoning_duration_seconds",
			Help:    "Latency of policy and compiler calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		reasoningErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_reasoning_errors_total",
			Help: "Failed policy and compiler calls.",
		}, []string{"operation"}),
		promptTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_prompt_tokens_total",
			Help: "Approximate prompt tokens sent to the reasoning provider.",
		}, []string{"operation"}),
		turnsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "intake_sessions_in_flight",
			Help: "Interview turns currently being processed.",
		}),
		sessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_sessions_expired_total",
			Help: "Sessions removed by the expiry sweeper.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// InterviewStarted counts a started interview.
func (r *Recorder) InterviewStarted() {
	r.interviewsStarted.Inc()
}

// Turn counts an operation outcome.
func (r *Recorder) Turn(operation, outcome string) {
	r.turnsTotal.WithLabelValues(operation, outcome).Inc()
}

// TurnStarted and TurnFinished track in-flight turns.
func (r *Recorder) TurnStarted()  { r.turnsInFlight.Inc() }
func (r *Recorder) TurnFinished() { r.turnsInFlight.Dec() }

// SessionsExpired counts swept sessions.
func (r *Recorder) SessionsExpired(n int64) {
	if n > 0 {
		r.sessionsSwept.Add(float64(n))
	}
}

// ObserveReasoning records one policy or compiler call.
func (r *Recorder) ObserveReasoning(op string, d time.Duration, promptTokens int, err error) {
	r.reasoningDuration.WithLabelValues(op).Observe(d.Seconds())
	if promptTokens > 0 {
		r.promptTokens.WithLabelValues(op).Add(float64(promptTokens))
	}
	if err != nil {
		r.reasoningErrors.WithLabelValues(op).Inc()
	}
}
