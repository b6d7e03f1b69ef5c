// Package metrics holds the Prometheus instruments exposed on the metrics port.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FunnelRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funnel_runs_total",
		Help: "Funnel executions by terminal outcome.",
	}, []string{"outcome"})

	StageExclusions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funnel_stage_exclusions_total",
		Help: "Candidates excluded per stage and reason.",
	}, []string{"stage", "reason"})

	DistanceFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funnel_distance_fallbacks_total",
		Help: "Distance lookups that fell back to Haversine.",
	})

	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assignment_accept_conflicts_total",
		Help: "Broadcast accepts that lost the first-accept-wins race.",
	})

	AssignmentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assignments_created_total",
		Help: "Assignments created by decision mode.",
	}, []string{"mode"})
)
