package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActionsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helios_lifecycle_actions_processed_total",
			Help: "Total number of executed actions by type and outcome",
		},
		[]string{"action_type", "outcome"},
	)

	StepOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helios_lifecycle_step_outcomes_total",
			Help: "Total number of workflow step outcomes",
		},
		[]string{"action_type", "step", "outcome"},
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helios_lifecycle_action_duration_seconds",
			Help:    "Workflow execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"action_type"},
	)

	RetryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helios_lifecycle_action_retries_total",
			Help: "Total number of action retries scheduled",
		},
		[]string{"action_type"},
	)

	RecurrencesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helios_lifecycle_recurrences_created_total",
			Help: "Total number of recurring successors inserted",
		},
		[]string{"action_type"},
	)

	ClaimConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helios_lifecycle_claim_conflicts_total",
			Help: "Claims lost to another scheduler instance",
		},
	)

	StaleReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helios_lifecycle_stale_reclaimed_total",
			Help: "In-progress actions reclaimed after their lease expired",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helios_lifecycle_tick_duration_seconds",
			Help:    "Duration of one scheduler tick",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		},
	)

	OutboxEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helios_lifecycle_outbox_events_total",
			Help: "Outbox events handled by the relay by result",
		},
		[]string{"result"},
	)

	LogSinkFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helios_lifecycle_log_sink_failures_total",
			Help: "Lifecycle log writes that failed and were dropped",
		},
	)
)
