// Package metrics provides Prometheus metrics for jasmine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal tracks duplicate scans by outcome
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jasmine",
			Subsystem: "duplicates",
			Name:      "scans_total",
			Help:      "Total number of duplicate scans by outcome",
		},
		[]string{"outcome"},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "jasmine",
			Subsystem: "duplicates",
			Name:      "scan_duration_seconds",
			Help:      "Duration of duplicate scans in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// GroupsDetected counts candidate groups found, before set-equality suppression
	GroupsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jasmine",
			Subsystem: "duplicates",
			Name:      "groups_detected_total",
			Help:      "Total number of duplicate groups detected by type and criteria",
		},
		[]string{"type", "criteria"},
	)

	GroupsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jasmine",
			Subsystem: "duplicates",
			Name:      "groups_inserted_total",
			Help:      "Total number of duplicate groups persisted for review",
		},
		[]string{"type"},
	)

	GroupInsertFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jasmine",
			Subsystem: "duplicates",
			Name:      "group_insert_failures_total",
			Help:      "Total number of duplicate groups that failed to persist",
		},
	)

	// EnrichmentFailures counts dependent-count queries that failed and were zeroed
	EnrichmentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jasmine",
			Subsystem: "duplicates",
			Name:      "enrichment_failures_total",
			Help:      "Total number of failed dependent-count queries by count",
		},
		[]string{"count"},
	)

	// CascadeRunsTotal tracks cascade executions by outcome
	CascadeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jasmine",
			Subsystem: "cascade",
			Name:      "runs_total",
			Help:      "Total number of cascade executions by outcome",
		},
		[]string{"outcome", "mode"},
	)

	CascadeStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jasmine",
			Subsystem: "cascade",
			Name:      "step_duration_seconds",
			Help:      "Duration of cascade steps in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"step"},
	)

	// CascadeGateRejections counts execute calls blocked by the confirmation gate
	CascadeGateRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jasmine",
			Subsystem: "cascade",
			Name:      "gate_rejections_total",
			Help:      "Total number of cascade executions rejected by the confirmation gate",
		},
		[]string{"reason"},
	)
)
