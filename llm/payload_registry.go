package llm

import (
	"encoding/json"
	"errors"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/payloadregistry"
)

// RegisterPayloads registers the LLM call record payload with the
// supplied registry. Called from the agentbus binary during process
// bootstrap.
func RegisterPayloads(reg *payloadregistry.Registry) error {
	return reg.Register(&payloadregistry.Registration{
		Domain:      "llm",
		Category:    "call",
		Version:     "v1",
		Description: "LLM call record for audit and cost accounting",
		Factory:     func() any { return &CallRecord{} },
	})
}

// CallRecordType is the message type for LLM call records.
var CallRecordType = message.Type{Domain: "llm", Category: "call", Version: "v1"}

// Schema implements message.Payload.
func (r *CallRecord) Schema() message.Type {
	return CallRecordType
}

// Validate implements message.Payload.
func (r *CallRecord) Validate() error {
	if r.RequestID == "" {
		return errors.New("request_id is required")
	}
	if r.Capability == "" {
		return errors.New("capability is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler for the Payload interface.
func (r *CallRecord) MarshalJSON() ([]byte, error) {
	type Alias CallRecord
	return json.Marshal((*Alias)(r))
}

// UnmarshalJSON implements json.Unmarshaler for the Payload interface.
func (r *CallRecord) UnmarshalJSON(data []byte) error {
	type Alias CallRecord
	aux := (*Alias)(r)
	return json.Unmarshal(data, aux)
}
