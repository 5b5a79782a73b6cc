package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal tracks completed optimization cycles per tenant
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costwatch_cycles_total",
			Help: "Total number of completed optimization cycles",
		},
		[]string{"tenant"},
	)

	// CyclesSkipped tracks cycles skipped because the previous one was still running
	CyclesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costwatch_cycles_skipped_total",
			Help: "Total number of cycles skipped due to an in-flight cycle",
		},
		[]string{"tenant"},
	)

	// CycleDuration tracks how long a full cycle takes
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "costwatch_cycle_duration_seconds",
			Help:    "Optimization cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant"},
	)

	// ResourcesScanned tracks resources inspected per cycle
	ResourcesScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costwatch_resources_scanned_total",
			Help: "Total number of resources inspected",
		},
		[]string{"tenant"},
	)

	// WastefulDetected tracks resources flagged as wasteful
	WastefulDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costwatch_wasteful_detected_total",
			Help: "Total number of resources flagged as wasteful",
		},
		[]string{"tenant", "resource_type"},
	)

	// RecommendationsCreated tracks recommendations created by execution mode
	RecommendationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costwatch_recommendations_created_total",
			Help: "Total number of recommendations created",
		},
		[]string{"tenant", "mode"},
	)

	// ExecutionsTotal tracks remediation executions by outcome
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costwatch_executions_total",
			Help: "Total number of remediation executions",
		},
		[]string{"tenant", "result"},
	)

	// PendingExpired tracks stale pending recommendations auto-rejected
	PendingExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costwatch_pending_expired_total",
			Help: "Total number of stale pending recommendations auto-rejected",
		},
		[]string{"tenant"},
	)

	// BreakerState tracks the vector-store circuit breaker state (0 closed, 1 open, 2 half-open)
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "costwatch_breaker_state",
			Help: "Vector store circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)

	// ProjectedSavings tracks the projected monthly savings of created recommendations
	ProjectedSavings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costwatch_projected_savings_dollars_total",
			Help: "Cumulative projected monthly savings of created recommendations",
		},
		[]string{"tenant"},
	)
)
