package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskPendingMatchEventValidate(t *testing.T) {
	valid := TaskPendingMatchEvent{
		TaskID:           "task-1",
		SpecificationURI: "blob://task-specs/dlg-1-42.json",
		RequesterID:      "u1",
		Timestamp:        time.Now(),
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*TaskPendingMatchEvent)
	}{
		{"missing task id", func(e *TaskPendingMatchEvent) { e.TaskID = "" }},
		{"missing spec uri", func(e *TaskPendingMatchEvent) { e.SpecificationURI = "" }},
		{"missing requester", func(e *TaskPendingMatchEvent) { e.RequesterID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := valid
			tt.mutate(&evt)
			assert.Error(t, evt.Validate())
		})
	}
}

func TestTaskPendingMatchEventSchema(t *testing.T) {
	evt := &TaskPendingMatchEvent{}
	schema := evt.Schema()
	assert.Equal(t, "task", schema.Domain)
	assert.Equal(t, "pending_match", schema.Category)
	assert.Equal(t, "v1", schema.Version)
}

func TestBrokerQueueMessageValidate(t *testing.T) {
	valid := BrokerQueueMessage{
		Target:      TargetProcessor,
		TargetID:    "proc-1",
		TaskID:      "task-1",
		SenderRole:  RoleRequester,
		ContentType: "text",
		Content:     json.RawMessage(`"status update please"`),
		Timestamp:   time.Now(),
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*BrokerQueueMessage)
	}{
		{"bad target", func(m *BrokerQueueMessage) { m.Target = "nobody" }},
		{"bad role", func(m *BrokerQueueMessage) { m.SenderRole = "admin" }},
		{"missing target id", func(m *BrokerQueueMessage) { m.TargetID = "" }},
		{"missing task id", func(m *BrokerQueueMessage) { m.TaskID = "" }},
		{"bad content type", func(m *BrokerQueueMessage) { m.ContentType = "xml" }},
		{"empty content", func(m *BrokerQueueMessage) { m.Content = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := valid
			tt.mutate(&msg)
			assert.Error(t, msg.Validate())
		})
	}
}

func TestCandidateSubmissionValidate(t *testing.T) {
	tests := []struct {
		name    string
		sub     CandidateSubmission
		wantErr bool
	}{
		{
			name: "candidate list",
			sub: CandidateSubmission{
				TaskID:                "task-1",
				CandidateProcessorIDs: []string{"p1", "p2"},
				CandidatePrices:       []float64{1.5, 2},
			},
		},
		{
			name: "workflow plan",
			sub:  CandidateSubmission{TaskID: "task-1", WorkflowPlanURI: "blob://workflow-plans/task-1-1.json"},
		},
		{
			name:    "both forms",
			sub:     CandidateSubmission{TaskID: "task-1", WorkflowPlanURI: "u", CandidateProcessorIDs: []string{"p1"}, CandidatePrices: []float64{1}},
			wantErr: true,
		},
		{
			name:    "neither form",
			sub:     CandidateSubmission{TaskID: "task-1"},
			wantErr: true,
		},
		{
			name:    "misaligned prices",
			sub:     CandidateSubmission{TaskID: "task-1", CandidateProcessorIDs: []string{"p1", "p2"}, CandidatePrices: []float64{1}},
			wantErr: true,
		},
		{
			name:    "missing task id",
			sub:     CandidateSubmission{CandidateProcessorIDs: []string{"p1"}, CandidatePrices: []float64{1}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTaskPendingMatchEventRoundTrip(t *testing.T) {
	evt := TaskPendingMatchEvent{
		TaskID:           "task-1",
		SpecificationURI: "blob://task-specs/dlg-1-42.json",
		RequesterID:      "u1",
		Timestamp:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(&evt)
	require.NoError(t, err)

	var decoded TaskPendingMatchEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, evt, decoded)
}
