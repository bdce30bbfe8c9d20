package semtree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// builds counts builds and reconciliations by outcome.
	builds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bonsai_semtree_runs_total",
		Help: "Total tree builds and reconciliations by operation and result",
	}, []string{"operation", "result"})

	// reconciles counts reconciliations turned away before running.
	reconciles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bonsai_semtree_reconcile_rejections_total",
		Help: "Total reconciliations rejected before running",
	}, []string{"reason"})

	// buildDuration tracks full build latency.
	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bonsai_semtree_build_duration_seconds",
		Help:    "Full tree build duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	// reconcileOps tracks how many family operations a reconciliation applied.
	reconcileOps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bonsai_semtree_reconcile_ops",
		Help:    "Family operations applied per reconciliation",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})
)
