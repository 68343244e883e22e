// Package task defines the bus's task domain: the durable task record,
// its lifecycle state machine, the canonical specification produced by
// clarification, the processor catalog entry, and the matching outputs
// (candidate scores, ranked candidates, workflow plans).
package task

import (
	"fmt"
	"time"
)

// Status enumerates the task lifecycle states.
type Status string

// Task lifecycle states.
const (
	StatusInitial              Status = "Initial"
	StatusPendingClarification Status = "PendingClarification"
	StatusClarified            Status = "Clarified"
	StatusPendingRegistration  Status = "PendingRegistration"
	StatusPendingMatch         Status = "PendingMatch"
	StatusMatching             Status = "Matching"
	StatusProcessorAssigned    Status = "ProcessorAssigned"
	StatusWorkflowAssigned     Status = "WorkflowAssigned"
	StatusPendingConfirmation  Status = "PendingConfirmation"
	StatusConfirmed            Status = "Confirmed"
	StatusExecuting            Status = "Executing"
	StatusCompleted            Status = "Completed"
	StatusFailed               Status = "Failed"
	StatusCancelled            Status = "Cancelled"
	StatusNoMatchFound         Status = "NoMatchFound"
	StatusMatchingFailed       Status = "MatchingFailed"
	StatusClarificationFailed  Status = "ClarificationFailed"
	StatusRegistrationFailed   Status = "RegistrationFailed"
	StatusRejected             Status = "Rejected"
)

// allStatuses is the closed set of recognised statuses.
var allStatuses = map[Status]struct{}{
	StatusInitial: {}, StatusPendingClarification: {}, StatusClarified: {},
	StatusPendingRegistration: {}, StatusPendingMatch: {}, StatusMatching: {},
	StatusProcessorAssigned: {}, StatusWorkflowAssigned: {},
	StatusPendingConfirmation: {}, StatusConfirmed: {}, StatusExecuting: {},
	StatusCompleted: {}, StatusFailed: {}, StatusCancelled: {},
	StatusNoMatchFound: {}, StatusMatchingFailed: {}, StatusClarificationFailed: {},
	StatusRegistrationFailed: {}, StatusRejected: {},
}

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	_, ok := allStatuses[s]
	return ok
}

// transitions is the legal edge set of the lifecycle graph. A status
// absent from the map has no outbound edges.
var transitions = map[Status][]Status{
	StatusInitial:              {StatusPendingClarification},
	StatusPendingClarification: {StatusClarified, StatusClarificationFailed, StatusCancelled},
	StatusClarified:            {StatusPendingRegistration},
	StatusPendingRegistration:  {StatusPendingMatch, StatusRegistrationFailed},
	StatusPendingMatch:         {StatusMatching},
	StatusMatching:             {StatusPendingConfirmation, StatusNoMatchFound, StatusMatchingFailed},
	StatusMatchingFailed:       {StatusMatching},
	StatusNoMatchFound:         {StatusMatching},
	StatusPendingConfirmation:  {StatusConfirmed, StatusRejected},
	StatusConfirmed:            {StatusExecuting},
	StatusExecuting:            {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from → to is a legal lifecycle edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates a lifecycle edge, returning a descriptive error
// for illegal moves so callers can reject and log them.
func Transition(from, to Status) error {
	if !from.IsValid() {
		return fmt.Errorf("unknown status %q", from)
	}
	if !to.IsValid() {
		return fmt.Errorf("unknown status %q", to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	return nil
}

// IsTerminal reports whether s admits no further transitions.
// Completed is the terminal success; Failed, Cancelled, Rejected and
// ClarificationFailed, RegistrationFailed are terminal failures.
// NoMatchFound and MatchingFailed remain retry-eligible and are not
// terminal.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRejected,
		StatusClarificationFailed, StatusRegistrationFailed:
		return true
	}
	return false
}

// Task is the durable task record. The task store exclusively owns it;
// TaskID is immutable and UpdatedAt refreshes on every mutation.
type Task struct {
	TaskID              string    `json:"task_id" db:"task_id"`
	RequesterID         string    `json:"requester_id" db:"requester_id"`
	SpecificationURI    string    `json:"specification_uri" db:"specification_uri"`
	Status              Status    `json:"status" db:"status"`
	AssignedProcessorID string    `json:"assigned_processor_id,omitempty" db:"assigned_processor_id"`
	WorkflowPlanURI     string    `json:"workflow_plan_uri,omitempty" db:"workflow_plan_uri"`
	ResultURI           string    `json:"result_uri,omitempty" db:"result_uri"`
	Error               string    `json:"error,omitempty" db:"error"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}
