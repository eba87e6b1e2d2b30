// Package metrics registers the engine's Prometheus counters and
// histograms, exposed the way the teacher service exposes its own metrics
// endpoint via promhttp.Handler().
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ValidationOutcomes counts validate_claim results partitioned by the
	// claimerr.Kind string (or "ok").
	ValidationOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimengine_validation_outcomes_total",
			Help: "Count of validate_claim outcomes, partitioned by result kind.",
		},
		[]string{"outcome"},
	)

	// ReconcileOutcomes counts estimate/exact reconciliation results.
	ReconcileOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimengine_reconcile_outcomes_total",
			Help: "Count of reconciler operation outcomes, partitioned by operation and result kind.",
		},
		[]string{"operation", "outcome"},
	)

	// ConsolidationRuns counts scheduler-driven consolidation sweeps.
	ConsolidationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimengine_consolidation_runs_total",
			Help: "Count of consolidation sweep outcomes, partitioned by result kind.",
		},
		[]string{"outcome"},
	)

	// ConsolidatedSources counts the per-channel source documents folded
	// away by a single consolidation.
	ConsolidatedSources = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "claimengine_consolidated_sources",
			Help:    "Number of per-request source documents folded into a channel record by one consolidation.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// LedgerRPCDuration measures how long a ledger RPC call takes.
	LedgerRPCDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "claimengine_ledger_rpc_duration_seconds",
			Help:    "Duration of ledger RPC calls, partitioned by method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// StoreTransactionRetries counts optimistic-concurrency retries
	// observed by the store's RunTransaction implementations.
	StoreTransactionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "claimengine_store_transaction_retries_total",
			Help: "Count of store transaction attempts that were retried after a commit conflict.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ValidationOutcomes,
		ReconcileOutcomes,
		ConsolidationRuns,
		ConsolidatedSources,
		LedgerRPCDuration,
		StoreTransactionRetries,
	)
}

// ObserveLedgerRPC records the duration of a single ledger RPC call.
func ObserveLedgerRPC(method string, start time.Time) {
	LedgerRPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
