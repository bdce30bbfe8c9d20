package workspace

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bonsai_workspace_documents",
		Help: "Number of documents known to the workspace",
	})

	// loadDuration is labelled warm when the snapshot cache was used.
	loadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bonsai_workspace_load_duration_seconds",
		Help:    "Time spent loading the vault at startup",
		Buckets: prometheus.DefBuckets,
	}, []string{"start"})

	lifecycle = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bonsai_workspace_lifecycle_events_total",
		Help: "Document lifecycle events applied, by operation",
	}, []string{"op"})

	reconcileRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bonsai_workspace_reconcile_retries_total",
		Help: "Reconciliations parked because a rebuild was running",
	})
)
