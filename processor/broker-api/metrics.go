package brokerapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentbus",
		Subsystem: "broker",
		Name:      "messages_enqueued_total",
		Help:      "Broker messages accepted for delivery, by sender role.",
	}, []string{"sender_role"})

	messagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentbus",
		Subsystem: "broker",
		Name:      "messages_rejected_total",
		Help:      "Broker messages rejected before enqueue, by reason.",
	}, []string{"reason"})
)
