// Package dialogue implements the LM-driven clarification dialogue: a
// staged conversation that turns a vague task request into a canonical
// specification through tool-calling completions.
package dialogue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/agentbus/llm"
)

// Stage enumerates the dialogue lifecycle.
type Stage string

// Dialogue stages, in gathering order.
const (
	StageGatheringCompetitors Stage = "GATHERING_COMPETITORS"
	StageGatheringTimeframe   Stage = "GATHERING_TIMEFRAME"
	StageGatheringPlatforms   Stage = "GATHERING_PLATFORMS"
	StageFinalizing           Stage = "FINALIZING"
	StageCompleted            Stage = "COMPLETED"
	StageFailed               Stage = "FAILED"
	StageCancelled            Stage = "CANCELLED"
)

// IsValid reports whether s is a recognised stage.
func (s Stage) IsValid() bool {
	switch s {
	case StageGatheringCompetitors, StageGatheringTimeframe, StageGatheringPlatforms,
		StageFinalizing, StageCompleted, StageFailed, StageCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the dialogue accepts no further input.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageCancelled:
		return true
	}
	return false
}

// Turn is one entry in the dialogue history.
type Turn struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	ToolCalls []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolID    string         `json:"tool_call_id,omitempty"`
}

// State is the ephemeral dialogue record. It lives in the cache under
// its TTL; the statestore owns persistence.
type State struct {
	DialogueID      string         `json:"dialogue_id"`
	RequesterID     string         `json:"requester_id"`
	History         []Turn         `json:"history"`
	Stage           Stage          `json:"stage"`
	ExtractedParams map[string]any `json:"extracted_params"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// UserTurns counts the user entries in the history.
func (s *State) UserTurns() int {
	n := 0
	for _, turn := range s.History {
		if turn.Role == llm.RoleUser {
			n++
		}
	}
	return n
}

// LastAssistantContent returns the content of the most recent assistant
// turn, or empty.
func (s *State) LastAssistantContent() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == llm.RoleAssistant && s.History[i].Content != "" {
			return s.History[i].Content
		}
	}
	return ""
}

// append adds a turn stamped with the current time.
func (s *State) append(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content, Timestamp: time.Now().UTC()})
}

// Messages converts the history into the LM chat form.
func (s *State) Messages() []llm.Message {
	msgs := make([]llm.Message, 0, len(s.History))
	for _, turn := range s.History {
		msgs = append(msgs, llm.Message{
			Role:       turn.Role,
			Content:    turn.Content,
			ToolCalls:  turn.ToolCalls,
			ToolCallID: turn.ToolID,
			ToolName:   turn.ToolName,
		})
	}
	return msgs
}

// Marshal serialises the state for the cache.
func (s *State) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal dialogue %s: %w", s.DialogueID, err)
	}
	return data, nil
}

// Unmarshal deserialises cached state.
func Unmarshal(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode dialogue state: %w", err)
	}
	return &s, nil
}

// cancellationKeywords end a dialogue immediately when present in a
// user response.
var cancellationKeywords = []string{"cancel", "stop", "abort", "nevermind", "forget it"}

// isCancellation reports whether the case-folded response contains a
// cancellation keyword.
func isCancellation(response string) bool {
	folded := strings.ToLower(response)
	for _, kw := range cancellationKeywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}
