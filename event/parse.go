package event

import (
	"encoding/json"
	"fmt"
)

// ParseEventMessage parses an inbound queue message into a typed
// payload. Messages published through the bus arrive wrapped in a
// BaseMessage envelope; webhook re-dispatches may carry the bare
// payload, so raw JSON is accepted as a fallback.
func ParseEventMessage[T any](data []byte) (*T, error) {
	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Payload) > 0 {
		var payload T
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &payload, nil
	}

	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &payload, nil
}
