package routing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_router_decisions_total",
			Help: "Total number of routing decisions",
		},
		[]string{"complexity", "specialty"},
	)

	classifierFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cortex_router_classifier_fallbacks_total",
			Help: "Queries classified by local rules after a remote classifier failure",
		},
	)

	plannedEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cortex_router_planned_evictions_total",
			Help: "Decisions that nominated a hot slot occupant for eviction",
		},
	)

	routeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "cortex_router_route_duration_seconds",
			Help: "End-to-end routing decision latency in seconds",
		},
	)
)
