// Package metrics exposes Prometheus instrumentation for outbound API calls
// and the user-facing flows built on them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"triage/internal/request"
)

// Recorder implements request.Observer and carries the flow counters. All
// methods are safe for concurrent use.
type Recorder struct {
	registry *prometheus.Registry

	attempts *prometheus.CounterVec
	duration prometheus.Histogram

	predictions *prometheus.CounterVec
	chats       *prometheus.CounterVec
}

// New constructs a Recorder with its own registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_request_attempts_total",
			Help: "Outbound request attempts by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_request_attempt_seconds",
			Help:    "Duration of individual outbound request attempts.",
			Buckets: prometheus.DefBuckets,
		}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_predictions_total",
			Help: "Prediction requests by result.",
		}, []string{"result"}),
		chats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_chat_messages_total",
			Help: "Chat messages by result.",
		}, []string{"result"}),
	}

	registry.MustRegister(r.attempts, r.duration, r.predictions, r.chats)
	return r
}

// OnAttempt records one outbound request attempt.
func (r *Recorder) OnAttempt(info request.AttemptInfo) {
	outcome := "fatal"
	switch {
	case info.Retryable:
		outcome = "retryable"
	case info.Status >= 200 && info.Status < 300:
		outcome = "success"
	}
	r.attempts.WithLabelValues(outcome).Inc()
	r.duration.Observe(info.Elapsed.Seconds())
}

// RecordPrediction counts one prediction flow result ("ok" or "error").
func (r *Recorder) RecordPrediction(ok bool) {
	r.predictions.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordChat counts one chat flow result ("ok" or "error").
func (r *Recorder) RecordChat(ok bool) {
	r.chats.WithLabelValues(resultLabel(ok)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Handler serves the registry in Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
