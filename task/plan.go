package task

import (
	"fmt"
	"time"
)

// ExecutionMode selects how workflow steps are scheduled.
type ExecutionMode string

// Workflow execution modes.
const (
	ExecutionSequential ExecutionMode = "sequential"
	ExecutionParallel   ExecutionMode = "parallel"
)

// WorkflowStep is one unit of a workflow plan, assigned to a specific
// processor. Dependencies name step IDs within the same plan.
type WorkflowStep struct {
	StepID              string         `json:"step_id"`
	Description         string         `json:"description"`
	AssignedProcessorID string         `json:"assigned_processor_id"`
	Dependencies        []string       `json:"dependencies,omitempty"`
	InputMapping        map[string]any `json:"input_mapping,omitempty"`
	OutputMapping       map[string]any `json:"output_mapping,omitempty"`
	EstimatedCost       float64        `json:"estimated_cost"`
	EstimatedDurationMs int64          `json:"estimated_duration_ms"`
}

// WorkflowPlan is an acyclic, per-task graph assigning steps to
// processors that were healthy candidates for the task.
type WorkflowPlan struct {
	WorkflowID              string         `json:"workflow_id"`
	TaskID                  string         `json:"task_id"`
	Steps                   []WorkflowStep `json:"steps"`
	ExecutionMode           ExecutionMode  `json:"execution_mode"`
	TotalEstimatedCost      float64        `json:"total_estimated_cost"`
	TotalEstimatedDurationMs int64         `json:"total_estimated_duration_ms"`
	GeneratedAt             time.Time      `json:"generated_at"`
}

// ValidatePlan checks the structural invariants of a plan against the
// healthy candidate pool: at least one step, unique step IDs, every
// assigned processor in the pool, every dependency in-plan, and an
// acyclic dependency graph.
func ValidatePlan(plan *WorkflowPlan, pool []*Processor) error {
	if plan == nil {
		return fmt.Errorf("plan is nil")
	}
	if len(plan.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	if plan.ExecutionMode != ExecutionSequential && plan.ExecutionMode != ExecutionParallel {
		return fmt.Errorf("unknown execution mode %q", plan.ExecutionMode)
	}

	allowed := make(map[string]struct{}, len(pool))
	for _, p := range pool {
		allowed[p.ProcessorID] = struct{}{}
	}

	stepIDs := make(map[string]struct{}, len(plan.Steps))
	for _, step := range plan.Steps {
		if step.StepID == "" {
			return fmt.Errorf("step with empty step_id")
		}
		if _, dup := stepIDs[step.StepID]; dup {
			return fmt.Errorf("duplicate step_id %q", step.StepID)
		}
		stepIDs[step.StepID] = struct{}{}

		if _, ok := allowed[step.AssignedProcessorID]; !ok {
			return fmt.Errorf("step %q assigns unknown processor %q", step.StepID, step.AssignedProcessorID)
		}
	}

	for _, step := range plan.Steps {
		for _, dep := range step.Dependencies {
			if _, ok := stepIDs[dep]; !ok {
				return fmt.Errorf("step %q depends on unknown step %q", step.StepID, dep)
			}
			if dep == step.StepID {
				return fmt.Errorf("step %q depends on itself", step.StepID)
			}
		}
	}

	if cycle := detectCycle(plan.Steps); len(cycle) > 0 {
		return fmt.Errorf("dependency cycle involving steps %v", cycle)
	}
	return nil
}

// detectCycle runs Kahn's algorithm over the step graph; any steps left
// with unresolved dependencies form a cycle.
func detectCycle(steps []WorkflowStep) []string {
	inDegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))

	for _, step := range steps {
		inDegree[step.StepID] = len(step.Dependencies)
		for _, dep := range step.Dependencies {
			dependents[dep] = append(dependents[dep], step.StepID)
		}
	}

	queue := make([]string, 0, len(steps))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range dependents[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if processed == len(steps) {
		return nil
	}
	var cycle []string
	for _, step := range steps {
		if inDegree[step.StepID] > 0 {
			cycle = append(cycle, step.StepID)
		}
	}
	return cycle
}

// FinalisePlan fills per-step cost and duration estimates from the
// assigned processor's metadata and computes plan totals: cost is
// summed; duration sums in sequential mode and takes the maximum step
// duration in parallel mode. Call only after ValidatePlan.
func FinalisePlan(plan *WorkflowPlan, pool []*Processor) {
	byID := make(map[string]*Processor, len(pool))
	for _, p := range pool {
		byID[p.ProcessorID] = p
	}

	var totalCost float64
	var totalDuration int64
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if proc, ok := byID[step.AssignedProcessorID]; ok {
			if step.EstimatedCost == 0 {
				step.EstimatedCost = proc.Pricing.Price
			}
			if step.EstimatedDurationMs == 0 {
				step.EstimatedDurationMs = proc.AverageExecutionTimeMs
			}
		}
		totalCost += step.EstimatedCost
		switch plan.ExecutionMode {
		case ExecutionParallel:
			if step.EstimatedDurationMs > totalDuration {
				totalDuration = step.EstimatedDurationMs
			}
		default:
			totalDuration += step.EstimatedDurationMs
		}
	}

	plan.TotalEstimatedCost = totalCost
	plan.TotalEstimatedDurationMs = totalDuration
	if plan.GeneratedAt.IsZero() {
		plan.GeneratedAt = time.Now().UTC()
	}
}
