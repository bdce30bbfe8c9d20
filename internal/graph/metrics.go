package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// mutations counts structural changes by operation.
	mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bonsai_graph_mutations_total",
		Help: "Total graph mutations by operation",
	}, []string{"op"})

	// zombiesCollected counts zombies removed for having no edges left.
	zombiesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bonsai_graph_zombies_collected_total",
		Help: "Total zombie nodes garbage-collected",
	})
)
