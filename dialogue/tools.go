package dialogue

import (
	"encoding/json"
	"fmt"

	"github.com/c360studio/agentbus/llm"
)

// Tool names the clarification model may call.
const (
	ToolUpdateParams = "update_dialogue_parameters"
	ToolDetermine    = "determine_next_question_or_finalize"
)

// clarificationTools declares the two dialogue tools sent on every
// completion.
var clarificationTools = []llm.ToolDefinition{
	{
		Name: ToolUpdateParams,
		Description: "Merge parameters extracted from the user's latest answer into the " +
			"dialogue state. Call with every field you can extract, even partial ones.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"competitors": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Comparable products or competitors the requester mentioned"
				},
				"platforms": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Target platforms (web, ios, android, desktop, api)"
				},
				"budget": {
					"type": "number",
					"description": "Maximum spend the requester stated"
				},
				"timeframe": {
					"type": "string",
					"description": "Deadline or timeframe expectation, verbatim"
				},
				"key_features": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Features the requester called out as essential"
				},
				"target_audience": {
					"type": "string",
					"description": "Who the result is for"
				},
				"quality": {
					"type": "string",
					"description": "Quality expectation (prototype, production, ...)"
				},
				"refined_description": {
					"type": "string",
					"description": "Improved one-paragraph task description"
				},
				"is_complex": {
					"type": "boolean",
					"description": "Whether the task likely needs multiple processors"
				}
			},
			"additionalProperties": true
		}`),
	},
	{
		Name: ToolDetermine,
		Description: "Advance the dialogue to the next stage, or finalize when enough " +
			"information has been gathered.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"next_stage": {
					"type": "string",
					"enum": ["GATHERING_COMPETITORS", "GATHERING_TIMEFRAME", "GATHERING_PLATFORMS", "FINALIZING", "COMPLETED"],
					"description": "The stage to move to"
				},
				"reasoning": {
					"type": "string",
					"description": "One sentence on why this stage is next"
				},
				"is_ready_to_finalize": {
					"type": "boolean",
					"description": "True once the gathered parameters suffice for a specification"
				}
			},
			"required": ["next_stage", "is_ready_to_finalize"]
		}`),
	},
}

// updateParamsArgs is the decoded argument shape of ToolUpdateParams.
// Unknown keys are preserved through the raw map.
type updateParamsArgs map[string]any

// determineArgs is the decoded argument shape of ToolDetermine.
type determineArgs struct {
	NextStage         Stage  `json:"next_stage"`
	Reasoning         string `json:"reasoning,omitempty"`
	IsReadyToFinalize bool   `json:"is_ready_to_finalize"`
}

// decodeUpdateParams validates and decodes an update_dialogue_parameters
// call. Non-object arguments are rejected.
func decodeUpdateParams(args json.RawMessage) (updateParamsArgs, error) {
	var parsed updateParamsArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("invalid %s arguments: %w", ToolUpdateParams, err)
	}
	return parsed, nil
}

// decodeDetermine validates and decodes a
// determine_next_question_or_finalize call.
func decodeDetermine(args json.RawMessage) (*determineArgs, error) {
	var parsed determineArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("invalid %s arguments: %w", ToolDetermine, err)
	}
	if !parsed.NextStage.IsValid() || parsed.NextStage.IsTerminal() && parsed.NextStage != StageCompleted {
		return nil, fmt.Errorf("invalid next_stage %q", parsed.NextStage)
	}
	return &parsed, nil
}
