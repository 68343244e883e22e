package event

import "github.com/c360studio/semstreams/natsclient"

// Typed subject definitions for type-safe publish/subscribe on the
// default topics.
var (
	TaskPendingMatch = natsclient.NewSubject[TaskPendingMatchEvent](TaskPendingMatchSubject)
	BrokerMessage    = natsclient.NewSubject[BrokerQueueMessage](BrokerMessageSubject)
)
