package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reservations counts seat reservation attempts by backend and outcome.
	Reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inventory",
			Name:      "reservations_total",
			Help:      "The total number of seat reservation attempts",
		},
		[]string{"backend", "result"},
	)

	TicketTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tickets",
			Name:      "transitions_total",
			Help:      "The total number of ticket status changes",
		},
		[]string{"status"},
	)

	// AdmissionAttempts counts gate check-ins by outcome. Protocol failures
	// and buyer mismatches are reported separately.
	AdmissionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "attempts_total",
			Help:      "The total number of admission attempts",
		},
		[]string{"result"},
	)

	EventsPublishFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "events",
			Name:      "publish_failed_total",
			Help:      "The total number of ticket events that failed to publish",
		},
		[]string{"topic"},
	)

	HTTPRequestDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "http",
			Name:       "request_duration_seconds",
			Help:       "Time spent serving HTTP requests",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"method", "route", "status"},
	)
)
