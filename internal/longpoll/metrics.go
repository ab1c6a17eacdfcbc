package longpoll

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label cardinality is bounded: stream is the endpoint name passed in
// Options.Stream, outcome and result are fixed enums.
var (
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "longpoll_sessions_total",
			Help: "Long-poll sessions by terminal outcome.",
		},
		[]string{"stream", "outcome"},
	)

	checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "longpoll_checks_total",
			Help: "Change-detection rounds by result (new, none, error).",
		},
		[]string{"stream", "result"},
	)

	sessionsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "longpoll_sessions_inflight",
			Help: "Current number of open long-poll sessions.",
		},
	)

	// Most sessions end near their deadline, so buckets extend past 30s.
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "longpoll_session_duration_seconds",
			Help:    "Wall time from session start to terminal outcome.",
			Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 15, 20, 25, 30, 45, 60},
		},
		[]string{"stream"},
	)
)

func init() {
	prometheus.MustRegister(sessionsTotal, checksTotal, sessionsInflight, sessionDuration)
}
