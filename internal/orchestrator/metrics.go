package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saasid",
			Subsystem: "lifecycle",
			Name:      "workflows_total",
			Help:      "Tenant lifecycle workflows by outcome",
		},
		[]string{"workflow", "outcome"},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "saasid",
			Subsystem: "lifecycle",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual workflow steps",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"workflow", "step"},
	)

	rollbackStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saasid",
			Subsystem: "lifecycle",
			Name:      "rollback_steps_total",
			Help:      "Compensating cleanup steps by outcome",
		},
		[]string{"step", "outcome"},
	)
)
