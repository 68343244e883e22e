package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/agentbus/llm"
	"github.com/c360studio/agentbus/model"
	"github.com/c360studio/agentbus/task"
)

// planDraft is the LM's plan output before validation and estimation.
type planDraft struct {
	Steps         []task.WorkflowStep `json:"steps"`
	ExecutionMode task.ExecutionMode  `json:"execution_mode"`
}

// synthesizePlan asks the LM to decompose a complex task into a
// workflow over the healthy processor pool. A nil return means no plan:
// the caller falls back to the plain candidate-list submission. A plan
// that fails validation is discarded the same way.
func (c *Component) synthesizePlan(ctx context.Context, taskID string, spec *task.Specification, pool []*task.Processor) *task.WorkflowPlan {
	if c.deps.LLM == nil {
		return nil
	}
	logger := c.logger.With("task_id", taskID)

	promptText, err := c.planPrompt(spec, pool)
	if err != nil {
		logger.Warn("Build plan prompt failed", "error", err)
		return nil
	}

	resp, err := c.deps.LLM.Complete(ctx, llm.Request{
		Capability: string(model.CapabilityWorkflow),
		Messages:   []llm.Message{{Role: llm.RoleUser, Content: promptText}},
		MaxTokens:  2048,
	})
	if err != nil {
		logger.Warn("Plan synthesis failed, falling back to candidate list", "error", err)
		return nil
	}

	draft, err := parsePlanResponse(resp.Content)
	if err != nil {
		logger.Warn("Plan output rejected", "error", err)
		return nil
	}

	plan := &task.WorkflowPlan{
		WorkflowID:    "wf-" + uuid.NewString(),
		TaskID:        taskID,
		Steps:         draft.Steps,
		ExecutionMode: draft.ExecutionMode,
		GeneratedAt:   time.Now().UTC(),
	}
	if plan.ExecutionMode == "" {
		plan.ExecutionMode = task.ExecutionSequential
	}

	if err := task.ValidatePlan(plan, pool); err != nil {
		logger.Warn("Plan failed validation, falling back to candidate list", "error", err)
		return nil
	}
	task.FinalisePlan(plan, pool)

	logger.Info("Workflow plan synthesised",
		"workflow_id", plan.WorkflowID,
		"steps", len(plan.Steps),
		"mode", plan.ExecutionMode,
		"total_cost", plan.TotalEstimatedCost,
		"total_duration_ms", plan.TotalEstimatedDurationMs)
	return plan
}

// planPrompt renders the workflow prompt with the spec and an abridged
// view of the pool: enough for assignment decisions without blowing the
// context window.
func (c *Component) planPrompt(spec *task.Specification, pool []*task.Processor) (string, error) {
	views := make([]map[string]any, 0, len(pool))
	for _, p := range pool {
		views = append(views, map[string]any{
			"id":          p.ProcessorID,
			"name":        p.Name,
			"description": truncate(p.Description, 200),
			"input_keys":  schemaKeys(p.InputSchema),
			"output_keys": schemaKeys(p.OutputSchema),
		})
	}
	return c.deps.Prompts.Format("workflow_plan", map[string]any{
		"task_json":       spec,
		"processors_json": views,
	})
}

// schemaKeys lists the top-level property names of a JSON schema, or
// the object's own keys when it is not schema-shaped.
func schemaKeys(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	source := doc
	if props, ok := doc["properties"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(props, &inner); err == nil {
			source = inner
		}
	}
	keys := make([]string, 0, len(source))
	for k := range source {
		keys = append(keys, k)
	}
	return keys
}

// parsePlanResponse extracts and decodes the plan object from the LM
// response, tolerating surrounding prose.
func parsePlanResponse(content string) (*planDraft, error) {
	raw := extractJSONObject(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var draft planDraft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if len(draft.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	return &draft, nil
}

// extractJSONObject returns the first top-level JSON object in s.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
