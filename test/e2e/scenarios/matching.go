package scenarios

import (
	"context"
	"fmt"
	"time"

	"github.com/c360studio/agentbus/dialogue"
	"github.com/c360studio/agentbus/task"
	"github.com/c360studio/agentbus/test/e2e/client"
	"github.com/c360studio/agentbus/test/e2e/config"
)

// MatchingScenario exercises the processor registry and the matching
// pipeline: register two processors, run a task through intake, and
// verify matching lands on pending confirmation rather than no-match.
//
// The registered processors point their endpoint at the mock LLM
// server, whose /health route doubles as a processor health endpoint,
// so the health-check stage sees them as available.
type MatchingScenario struct {
	name        string
	description string
	config      *config.Config
	api         *client.APIClient

	state *client.DialogueState
}

// NewMatchingScenario creates a new matching scenario.
func NewMatchingScenario(cfg *config.Config) *MatchingScenario {
	return &MatchingScenario{
		name:        "matching",
		description: "Tests processor registration, discovery, and candidate matching",
		config:      cfg,
	}
}

// Name returns the scenario name.
func (s *MatchingScenario) Name() string {
	return s.name
}

// Description returns the scenario description.
func (s *MatchingScenario) Description() string {
	return s.description
}

// Setup waits for agentbus to become reachable.
func (s *MatchingScenario) Setup(ctx context.Context) error {
	s.api = client.NewAPIClient(s.config.BaseURL)

	setupCtx, cancel := context.WithTimeout(ctx, s.config.SetupTimeout)
	defer cancel()

	if err := s.api.WaitForHealthy(setupCtx); err != nil {
		return fmt.Errorf("agentbus not healthy: %w", err)
	}
	return nil
}

// Execute runs the matching scenario.
func (s *MatchingScenario) Execute(ctx context.Context) (*Result, error) {
	result := NewResult(s.name)
	defer result.Complete()

	runStages(ctx, result, s.config.StageTimeout, []stage{
		{"register-processors", s.stageRegisterProcessors},
		{"verify-listed", s.stageVerifyListed},
		{"submit-task", s.stageSubmitTask},
		{"await-confirmation", s.stageAwaitConfirmation},
	})
	return result, nil
}

// Teardown cleans up after the scenario.
func (s *MatchingScenario) Teardown(ctx context.Context) error {
	return nil
}

// uniqueSuffix keeps repeated runs from colliding on processor ids.
func uniqueSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

func (s *MatchingScenario) stageRegisterProcessors(ctx context.Context, result *Result) error {
	suffix := uniqueSuffix()
	processors := []*task.Processor{
		{
			ProcessorID:    "e2e-analyst-" + suffix,
			Name:           "E2E Market Analyst",
			Description:    "Analyses competitor positioning across public web properties",
			EndpointURL:    s.config.MockLLMURL,
			CapabilityTags: []string{"competitor-analysis", "research"},
			Pricing:        task.Pricing{Model: "fixed", Price: 2.5, Unit: "task"},
		},
		{
			ProcessorID:    "e2e-researcher-" + suffix,
			Name:           "E2E Web Researcher",
			Description:    "Collects competitor pricing and product data from the web",
			EndpointURL:    s.config.MockLLMURL,
			CapabilityTags: []string{"competitor-analysis", "scraping"},
			Pricing:        task.Pricing{Model: "fixed", Price: 1.0, Unit: "task"},
		},
	}

	for _, p := range processors {
		registered, err := s.api.RegisterProcessor(ctx, p)
		if err != nil {
			return fmt.Errorf("register %s: %w", p.ProcessorID, err)
		}
		if registered.Status != task.ProcessorActive {
			return fmt.Errorf("processor %s registered with status %s", p.ProcessorID, registered.Status)
		}
	}

	result.SetDetail("processor_suffix", suffix)
	return nil
}

func (s *MatchingScenario) stageVerifyListed(ctx context.Context, result *Result) error {
	suffix, _ := result.GetDetailString("processor_suffix")

	found := 0
	for _, id := range []string{"e2e-analyst-" + suffix, "e2e-researcher-" + suffix} {
		if _, err := s.api.GetProcessor(ctx, id); err != nil {
			return fmt.Errorf("processor %s not retrievable: %w", id, err)
		}
		found++
	}

	result.SetMetric("processors_registered", found)
	return nil
}

func (s *MatchingScenario) stageSubmitTask(ctx context.Context, result *Result) error {
	state, err := s.api.StartDialogue(ctx, config.E2ERequesterID,
		"Compare competitor pricing pages and summarise their positioning",
		[]string{"competitor-analysis"})
	if err != nil {
		return fmt.Errorf("start dialogue: %w", err)
	}

	for turn := 0; turn < maxClarificationTurns; turn++ {
		switch state.Stage {
		case dialogue.StageCompleted:
			s.state = state
			result.SetDetail("dialogue_id", state.DialogueID)
			return nil
		case dialogue.StageFailed, dialogue.StageCancelled:
			return fmt.Errorf("dialogue ended in stage %s: %s", state.Stage, state.Message)
		}

		state, err = s.api.ContinueDialogue(ctx, state.DialogueID, "Whatever you think is best")
		if err != nil {
			return fmt.Errorf("continue dialogue (turn %d): %w", turn+1, err)
		}
	}
	return fmt.Errorf("dialogue did not complete within %d turns", maxClarificationTurns)
}

func (s *MatchingScenario) stageAwaitConfirmation(ctx context.Context, result *Result) error {
	dialogueID, _ := result.GetDetailString("dialogue_id")

	status, err := s.api.WaitForStatus(ctx, dialogueID, task.StatusPendingConfirmation, task.StatusNoMatchFound)
	if err != nil {
		return err
	}
	if status.Status == string(task.StatusNoMatchFound) {
		return fmt.Errorf("matching found no candidates despite registered processors")
	}

	result.SetDetail("final_status", status.Status)
	return nil
}
