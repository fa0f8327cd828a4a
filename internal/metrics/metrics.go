package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interview_sessions_active",
		Help: "Currently active interview sessions",
	})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_sessions_total",
		Help: "Interview sessions started, by mode",
	}, []string{"mode"})

	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_turns_total",
		Help: "Transcript turns appended, by kind",
	}, []string{"kind"})

	FallbackActivations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_fallback_activations_total",
		Help: "Sessions routed to the local fallback engine",
	})

	TransportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_transport_errors_total",
		Help: "Agent transport failures, by type",
	}, []string{"type"})

	ResponseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_response_duration_seconds",
		Help:    "Length of candidate answers",
		Buckets: []float64{5, 15, 30, 60, 90, 120, 180},
	})

	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_session_duration_seconds",
		Help:    "Total session length from start to finish",
		Buckets: []float64{60, 120, 300, 450, 600, 900},
	})
)
