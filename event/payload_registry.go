package event

import (
	"errors"
	"fmt"

	"github.com/c360studio/semstreams/payloadregistry"
)

// RegisterPayloads registers the event payload types with the supplied
// registry. Called from the agentbus binary during process bootstrap,
// after the registry is constructed but before components start.
// Aggregates errors via errors.Join so a misconfigured deployment sees
// every collision on a single boot.
func RegisterPayloads(reg *payloadregistry.Registry) error {
	registrations := []*payloadregistry.Registration{
		{
			Domain:      "task",
			Category:    "pending_match",
			Version:     "v1",
			Description: "Task registered and awaiting matching",
			Factory:     func() any { return &TaskPendingMatchEvent{} },
		},
		{
			Domain:      "broker",
			Category:    "message",
			Version:     "v1",
			Description: "Outbound broker message for external delivery",
			Factory:     func() any { return &BrokerQueueMessage{} },
		},
	}

	var errs []error
	for _, r := range registrations {
		if err := reg.Register(r); err != nil {
			errs = append(errs, fmt.Errorf("register %s.%s.%s: %w", r.Domain, r.Category, r.Version, err))
		}
	}
	return errors.Join(errs...)
}
