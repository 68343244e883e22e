package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
)

// Publisher enqueues bus events over JetStream. Delivery is
// at-least-once; consumers deduplicate by task id.
type Publisher struct {
	nc           *natsclient.Client
	taskSubject  string
	brokerSubjct string
	logger       *slog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithTaskEventSubject overrides the TaskPendingMatch topic.
func WithTaskEventSubject(subject string) PublisherOption {
	return func(p *Publisher) { p.taskSubject = subject }
}

// WithBrokerSubject overrides the broker message topic.
func WithBrokerSubject(subject string) PublisherOption {
	return func(p *Publisher) { p.brokerSubjct = subject }
}

// WithLogger sets the publisher's logger.
func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// NewPublisher creates a Publisher on the default subjects.
func NewPublisher(nc *natsclient.Client, opts ...PublisherOption) (*Publisher, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats client is required")
	}
	p := &Publisher{
		nc:           nc,
		taskSubject:  TaskPendingMatchSubject,
		brokerSubjct: BrokerMessageSubject,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "event-publisher")
	return p, nil
}

// PublishTaskPendingMatch enqueues a TaskPendingMatch event for the
// matching consumer.
func (p *Publisher) PublishTaskPendingMatch(ctx context.Context, taskID, specificationURI, requesterID string) error {
	evt := &TaskPendingMatchEvent{
		TaskID:           taskID,
		SpecificationURI: specificationURI,
		RequesterID:      requesterID,
		Timestamp:        time.Now().UTC(),
	}
	if err := p.publish(ctx, p.taskSubject, evt.Schema(), evt); err != nil {
		return err
	}
	p.logger.Info("published task pending match",
		"task_id", taskID, "subject", p.taskSubject)
	return nil
}

// EnqueueBrokerMessage enqueues an outbound broker message.
func (p *Publisher) EnqueueBrokerMessage(ctx context.Context, msg *BrokerQueueMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if err := p.publish(ctx, p.brokerSubjct, msg.Schema(), msg); err != nil {
		return err
	}
	p.logger.Info("enqueued broker message",
		"task_id", msg.TaskID, "target", msg.Target, "target_id", msg.TargetID)
	return nil
}

func (p *Publisher) publish(ctx context.Context, subject string, schema message.Type, payload message.Payload) error {
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid %s.%s payload: %w", schema.Domain, schema.Category, err)
	}

	msg := message.NewBaseMessage(schema, payload, "agentbus")
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s.%s: %w", schema.Domain, schema.Category, err)
	}

	js, err := p.nc.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}
	if _, err := js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}
