package llm

import "encoding/json"

// Tool choice modes understood by all providers. An empty ToolChoice omits
// the field and lets the provider default apply; any other value is treated
// as the name of a specific tool to force.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceRequired = "required"
	ToolChoiceNone     = "none"
)

// ToolDefinition declares a function the model may invoke during a completion.
type ToolDefinition struct {
	// Name is the identifier the model uses when calling the tool.
	Name string `json:"name"`

	// Description tells the model what the tool does and when to use it.
	Description string `json:"description"`

	// InputSchema is a JSON Schema object describing the tool's arguments.
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolCall is a structured tool invocation returned by the model.
type ToolCall struct {
	// ID correlates this call with its result message on the next turn.
	// Providers that don't issue IDs leave it empty.
	ID string `json:"id,omitempty"`

	// Name is the tool the model wants to invoke.
	Name string `json:"name"`

	// Arguments is the JSON-encoded argument object produced by the model.
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResultMessage builds the tool-role message that reports a tool's
// output back to the model on the following turn.
func ToolResultMessage(call ToolCall, result string) Message {
	return Message{
		Role:       RoleTool,
		Content:    result,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}
