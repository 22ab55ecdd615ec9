package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolver tiers, used as the "tier" label value.
const (
	TierSessionCache = "session_cache"
	TierSessionStore = "session_store"
	TierShopCache    = "shop_cache"
	TierShopStore    = "shop_store"
)

var (
	// ResolverLookups counts fallback-chain lookups per tier and outcome
	// (hit, miss, error).
	ResolverLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_resolver_lookups_total",
		Help: "Token resolution lookups by fallback tier and outcome",
	}, []string{"tier", "outcome"})

	// ResolverResults counts completed resolutions by final result
	// (resolved, not_found, unavailable).
	ResolverResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_resolver_results_total",
		Help: "Completed token resolutions by final result",
	}, []string{"result"})

	// CacheWriteBackFailures counts best-effort cache write-backs that
	// failed and were swallowed.
	CacheWriteBackFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_cache_writeback_failures_total",
		Help: "Best-effort cache write-backs that failed",
	})

	// SessionUpserts counts lifecycle upserts by identifier provenance
	// (organic, fallback, recovery, emergency).
	SessionUpserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_upserts_total",
		Help: "Session create-or-update operations by identifier provenance",
	}, []string{"provenance"})

	// SweepRuns counts cleanup sweep executions by sweep name.
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_cleanup_sweeps_total",
		Help: "Cleanup sweep executions by sweep",
	}, []string{"sweep"})

	// SweepAffected counts sessions touched by cleanup sweeps.
	SweepAffected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_cleanup_affected_total",
		Help: "Sessions deactivated or deleted by cleanup sweeps",
	}, []string{"sweep"})

	// RecoveryAttempts counts recovery passes by outcome (recovered,
	// reauth_required).
	RecoveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_recovery_attempts_total",
		Help: "Recovery coordinator passes by outcome",
	}, []string{"outcome"})
)
