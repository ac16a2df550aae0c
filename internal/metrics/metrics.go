// Package metrics holds the prometheus collectors of the publishing engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PublishAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publishflow_publish_attempts_total",
			Help: "Adapter publish calls by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "publishflow_publish_duration_seconds",
			Help:    "Histogram of adapter publish call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"platform"},
	)

	PlatformAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "publishflow_platform_request_latency",
			Help:    "Histogram of platform API request latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"platform", "method", "status_code"},
	)

	StaleDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publishflow_stale_deliveries_total",
			Help: "Deliveries failed after being stuck in publishing",
		},
		[]string{"kind"},
	)

	ScheduledClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publishflow_scheduled_claims_total",
			Help: "Scheduled posts and threads picked up by the scheduler tick",
		},
		[]string{"kind"},
	)
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
