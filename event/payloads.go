// Package event defines the bus's wire payloads and the publisher that
// enqueues them: TaskPendingMatch lifecycle events for the matching
// consumer and broker messages bound for external delivery.
package event

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/c360studio/semstreams/message"
)

// Default subjects. The configured topics override these at wiring time.
const (
	// TaskPendingMatchSubject carries TaskPendingMatchEvent.
	TaskPendingMatchSubject = "agentbus.task.pending_match"
	// BrokerMessageSubject carries BrokerQueueMessage.
	BrokerMessageSubject = "agentbus.broker.message"
)

// Message types for the payload registry.
var (
	TaskPendingMatchType = message.Type{Domain: "task", Category: "pending_match", Version: "v1"}
	BrokerMessageType    = message.Type{Domain: "broker", Category: "message", Version: "v1"}
)

// TaskPendingMatchEvent announces a registered task awaiting matching.
// Delivery is at-least-once; the matching consumer is idempotent per
// TaskID.
type TaskPendingMatchEvent struct {
	TaskID           string    `json:"task_id"`
	SpecificationURI string    `json:"specification_uri"`
	RequesterID      string    `json:"requester_id"`
	Timestamp        time.Time `json:"timestamp"`
}

// Schema implements message.Payload.
func (e *TaskPendingMatchEvent) Schema() message.Type {
	return TaskPendingMatchType
}

// Validate implements message.Payload.
func (e *TaskPendingMatchEvent) Validate() error {
	if e.TaskID == "" {
		return errors.New("task_id is required")
	}
	if e.SpecificationURI == "" {
		return errors.New("specification_uri is required")
	}
	if e.RequesterID == "" {
		return errors.New("requester_id is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler for the Payload interface.
func (e *TaskPendingMatchEvent) MarshalJSON() ([]byte, error) {
	type Alias TaskPendingMatchEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON implements json.Unmarshaler for the Payload interface.
func (e *TaskPendingMatchEvent) UnmarshalJSON(data []byte) error {
	type Alias TaskPendingMatchEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// MessageTarget is the recipient class of a broker message.
type MessageTarget string

// Broker message targets.
const (
	TargetProcessor MessageTarget = "processor"
	TargetRequester MessageTarget = "requester"
)

// SenderRole identifies who sent a broker message.
type SenderRole string

// Broker sender roles.
const (
	RoleRequester SenderRole = "requester"
	RoleProcessor SenderRole = "processor"
)

// BrokerQueueMessage is an outbound message between a requester and
// the processor assigned to their task.
type BrokerQueueMessage struct {
	Target      MessageTarget   `json:"target"`
	TargetID    string          `json:"target_id"`
	TaskID      string          `json:"task_id"`
	SenderRole  SenderRole      `json:"sender_role"`
	ContentType string          `json:"content_type"`
	Content     json.RawMessage `json:"content"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Schema implements message.Payload.
func (m *BrokerQueueMessage) Schema() message.Type {
	return BrokerMessageType
}

// Validate implements message.Payload.
func (m *BrokerQueueMessage) Validate() error {
	switch m.Target {
	case TargetProcessor, TargetRequester:
	default:
		return errors.New("target must be processor or requester")
	}
	switch m.SenderRole {
	case RoleRequester, RoleProcessor:
	default:
		return errors.New("sender_role must be requester or processor")
	}
	if m.TargetID == "" {
		return errors.New("target_id is required")
	}
	if m.TaskID == "" {
		return errors.New("task_id is required")
	}
	if m.ContentType != "text" && m.ContentType != "json" {
		return errors.New("content_type must be text or json")
	}
	if len(m.Content) == 0 {
		return errors.New("content is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler for the Payload interface.
func (m *BrokerQueueMessage) MarshalJSON() ([]byte, error) {
	type Alias BrokerQueueMessage
	return json.Marshal((*Alias)(m))
}

// UnmarshalJSON implements json.Unmarshaler for the Payload interface.
func (m *BrokerQueueMessage) UnmarshalJSON(data []byte) error {
	type Alias BrokerQueueMessage
	return json.Unmarshal(data, (*Alias)(m))
}

// CandidateSubmission is the matching outcome sent to the backend:
// either a workflow plan URI or a parallel candidate-id/price listing.
type CandidateSubmission struct {
	TaskID                string    `json:"task_id"`
	WorkflowPlanURI       string    `json:"workflow_plan_uri,omitempty"`
	CandidateProcessorIDs []string  `json:"candidate_processor_ids,omitempty"`
	CandidatePrices       []float64 `json:"candidate_prices,omitempty"`
}

// Validate checks the submission carries exactly one of the two forms.
func (s *CandidateSubmission) Validate() error {
	if s.TaskID == "" {
		return errors.New("task_id is required")
	}
	hasPlan := s.WorkflowPlanURI != ""
	hasCandidates := len(s.CandidateProcessorIDs) > 0
	if hasPlan == hasCandidates {
		return errors.New("exactly one of workflow_plan_uri or candidate_processor_ids is required")
	}
	if hasCandidates && len(s.CandidateProcessorIDs) != len(s.CandidatePrices) {
		return errors.New("candidate_processor_ids and candidate_prices must align")
	}
	return nil
}
