package intakeapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dialoguesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentbus",
		Subsystem: "intake",
		Name:      "dialogues_started_total",
		Help:      "Clarification dialogues opened.",
	})

	finalizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentbus",
		Subsystem: "intake",
		Name:      "finalizations_total",
		Help:      "Background finalisation outcomes.",
	}, []string{"outcome"})

	finalizationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "agentbus",
		Subsystem: "intake",
		Name:      "finalization_duration_seconds",
		Help:      "End-to-end background finalisation latency.",
		Buckets:   prometheus.DefBuckets,
	})
)
