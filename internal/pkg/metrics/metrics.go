package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LifecycleOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultcore_lifecycle_ops_total",
		Help: "Leverage lifecycle operations processed",
	}, []string{"op", "status"})

	PositionEdits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultcore_position_edits_total",
		Help: "Ledger position edits by position kind",
	}, []string{"kind"})

	SlippageRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaultcore_slippage_rejects_total",
		Help: "Lifecycle operations aborted by the slippage guard",
	})

	SyncDrift = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultcore_sync_drift_total",
		Help: "Sync reconciliations that found a drifted balance",
	}, []string{"side"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaultcore_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
