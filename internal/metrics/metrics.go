// Package metrics defines the Prometheus collectors of the server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/interviewer/internal/upstream"
)

var (
	// UpstreamRequests counts calls to hosted AI services.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interviewer_upstream_requests_total",
			Help: "Total number of upstream AI service calls",
		},
		[]string{"service", "outcome"}, // service: llm/stt/tts, outcome: ok/rate_limited/...
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "interviewer_upstream_duration_seconds",
			Help:    "Time spent waiting for upstream AI services",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// FallbackEvaluations counts malformed grading replies replaced by the
	// static evaluation.
	FallbackEvaluations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "interviewer_fallback_evaluations_total",
			Help: "Total number of evaluations replaced by the fallback",
		},
	)

	TTSCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interviewer_tts_cache_total",
			Help: "Speech synthesis cache lookups",
		},
		[]string{"result"}, // hit/miss/error
	)

	ActiveRecordings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "interviewer_active_recordings_current",
			Help: "Current number of recordings held in memory",
		},
	)

	SessionsSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "interviewer_sessions_saved_total",
			Help: "Total number of interview sessions persisted",
		},
	)
)

// ObserveUpstream records the outcome and latency of one upstream call.
func ObserveUpstream(service string, start time.Time, err error) {
	UpstreamRequests.WithLabelValues(service, upstream.Outcome(err)).Inc()
	UpstreamDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
