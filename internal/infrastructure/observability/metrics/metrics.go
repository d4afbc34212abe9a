// Package metrics exposes Prometheus collectors for split test assignment
// and the active set cache.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Assignment outcomes.
const (
	OutcomeExisting   = "existing"
	OutcomeAssigned   = "assigned"
	OutcomeAnonymous  = "anonymous"
	OutcomeIneligible = "ineligible"
	OutcomeCookie     = "cookie"
	OutcomeUnrecorded = "unrecorded"
)

// Rebuild triggers.
const (
	TriggerWrite  = "write"
	TriggerMiss   = "miss"
	TriggerManual = "manual"
	TriggerWarm   = "warm"
)

var (
	// AssignmentsTotal counts cohort resolutions by outcome.
	AssignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splittest_assignments_total",
		Help: "Cohort resolutions by tenant and outcome",
	}, []string{"tenant", "outcome"})

	// RebuildsTotal counts active set rebuilds by trigger and result.
	RebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splittest_active_set_rebuilds_total",
		Help: "Active set rebuilds by tenant, trigger and result",
	}, []string{"tenant", "trigger", "result"})

	// RebuildDuration tracks how long a full rebuild takes.
	RebuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "splittest_active_set_rebuild_duration_seconds",
		Help:    "Active set rebuild duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	}, []string{"tenant"})

	// CacheLookupsTotal counts active set part lookups by hit or miss.
	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splittest_active_set_lookups_total",
		Help: "Active set part lookups by tenant, part and result",
	}, []string{"tenant", "part", "result"})

	// SessionsExpiredTotal counts sessions removed by the cleanup worker.
	SessionsExpiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splittest_sessions_expired_total",
		Help: "Idle sessions removed by the cleanup worker",
	}, []string{"tenant"})
)

// ObserveRebuild records one rebuild attempt.
func ObserveRebuild(tenantID, trigger string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	RebuildsTotal.WithLabelValues(tenantID, trigger, result).Inc()
	if err == nil {
		RebuildDuration.WithLabelValues(tenantID).Observe(time.Since(start).Seconds())
	}
}

// ObserveLookup records a cache lookup for one snapshot part.
func ObserveLookup(tenantID, part string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(tenantID, part, result).Inc()
}

// ObserveAssignment records how a cohort was resolved.
func ObserveAssignment(tenantID, outcome string) {
	AssignmentsTotal.WithLabelValues(tenantID, outcome).Inc()
}
