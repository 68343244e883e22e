package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/agentbus/buserr"
	"github.com/c360studio/agentbus/llm"
	"github.com/c360studio/agentbus/model"
	"github.com/c360studio/agentbus/prompt"
	"github.com/c360studio/agentbus/storage"
)

const (
	// DefaultMaxTurns bounds how many user responses a dialogue accepts
	// before it is failed rather than sent to the model again.
	DefaultMaxTurns = 10

	completionMaxTokens = 1024
)

var clarificationTemperature = 0.5

// Completer is the slice of the LM client the engine needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Engine drives clarification dialogues: it owns the LM interaction,
// the tool-call handling and state persistence. Callers (the intake
// API) hold no dialogue state of their own.
type Engine struct {
	llm      Completer
	states   storage.StateStore
	prompts  *prompt.Store
	maxTurns int
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxTurns overrides the user-turn ceiling.
func WithMaxTurns(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTurns = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine builds a dialogue engine over the given LM client, state
// store and prompt store.
func NewEngine(completer Completer, states storage.StateStore, prompts *prompt.Store, opts ...Option) *Engine {
	e := &Engine{
		llm:      completer,
		states:   states,
		prompts:  prompts,
		maxTurns: DefaultMaxTurns,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartDialogue opens a new dialogue for the requester's description
// and runs the first LM round, so the returned state already carries
// the assistant's opening question.
func (e *Engine) StartDialogue(ctx context.Context, requesterID, description string, details map[string]any) (*State, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, buserr.New(buserr.KindValidation, "requesterId is required")
	}
	if len(strings.TrimSpace(description)) < 10 {
		return nil, buserr.New(buserr.KindValidation, "description must be at least 10 characters")
	}

	system, err := e.prompts.Get("clarification_system")
	if err != nil {
		return nil, buserr.Wrap(buserr.KindConfiguration, "load system prompt", err)
	}
	detailsJSON := "{}"
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return nil, buserr.Wrap(buserr.KindValidation, "encode details", err)
		}
		detailsJSON = string(raw)
	}
	initial, err := e.prompts.Format("clarification_initial", map[string]any{
		"description":  description,
		"details_json": detailsJSON,
	})
	if err != nil {
		return nil, buserr.Wrap(buserr.KindConfiguration, "render initial prompt", err)
	}

	now := time.Now().UTC()
	st := &State{
		DialogueID:      "dlg-" + uuid.NewString(),
		RequesterID:     requesterID,
		Stage:           StageGatheringCompetitors,
		ExtractedParams: map[string]any{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for k, v := range details {
		st.ExtractedParams[k] = v
	}
	// The raw request text anchors spec formatting until the dialogue
	// extracts a refined description.
	st.ExtractedParams["initial_description"] = description
	st.append(llm.RoleSystem, system)
	st.append(llm.RoleUser, initial)

	if err := e.runCompletion(ctx, st); err != nil {
		// Completion failure is terminal; persist what we have so the
		// requester sees the failure when polling.
		if perr := e.persist(ctx, st); perr != nil {
			e.logger.Error("persist failed dialogue", "dialogue_id", st.DialogueID, "error", perr)
		}
		return st, err
	}
	if err := e.persist(ctx, st); err != nil {
		return st, err
	}
	e.logger.Info("dialogue started",
		"dialogue_id", st.DialogueID,
		"requester_id", requesterID,
		"stage", st.Stage)
	return st, nil
}

// ProcessUserResponse appends the user's answer to the dialogue and
// advances it by one LM round. Turns on the same dialogue are
// serialised through the state store lock.
func (e *Engine) ProcessUserResponse(ctx context.Context, dialogueID, response string) (*State, error) {
	if strings.TrimSpace(response) == "" {
		return nil, buserr.New(buserr.KindValidation, "response is required")
	}

	release, err := e.states.LockDialogue(ctx, dialogueID)
	if err != nil {
		return nil, buserr.Wrap(buserr.KindConflict, "dialogue busy", err)
	}
	defer release()

	st, err := e.load(ctx, dialogueID)
	if err != nil {
		return nil, err
	}
	if st.Stage.IsTerminal() {
		return nil, buserr.Newf(buserr.KindConflict, "dialogue %s is already %s", dialogueID, st.Stage)
	}

	st.append(llm.RoleUser, response)

	if isCancellation(response) {
		st.Stage = StageCancelled
		st.append(llm.RoleAssistant, "Understood - I've cancelled this request. Start a new dialogue whenever you're ready.")
		if err := e.persist(ctx, st); err != nil {
			return st, err
		}
		e.logger.Info("dialogue cancelled", "dialogue_id", dialogueID)
		return st, nil
	}

	if st.UserTurns() > e.maxTurns {
		st.Stage = StageFailed
		st.append(llm.RoleAssistant, "We've gone back and forth quite a few times without converging, so I'm closing this dialogue. Please start again with a more detailed description.")
		if err := e.persist(ctx, st); err != nil {
			return st, err
		}
		e.logger.Warn("dialogue exceeded turn limit",
			"dialogue_id", dialogueID,
			"max_turns", e.maxTurns)
		return st, nil
	}

	if err := e.runCompletion(ctx, st); err != nil {
		// Completion failure is terminal; persist what we have so the
		// requester sees the failure when polling.
		if perr := e.persist(ctx, st); perr != nil {
			e.logger.Error("persist failed dialogue", "dialogue_id", dialogueID, "error", perr)
		}
		return st, err
	}
	if err := e.persist(ctx, st); err != nil {
		return st, err
	}
	return st, nil
}

// GetState loads and decodes dialogue state.
func (e *Engine) GetState(ctx context.Context, dialogueID string) (*State, error) {
	return e.load(ctx, dialogueID)
}

func (e *Engine) load(ctx context.Context, dialogueID string) (*State, error) {
	raw, err := e.states.GetDialogue(ctx, dialogueID)
	if errors.Is(err, storage.ErrStateNotFound) {
		return nil, buserr.Newf(buserr.KindNotFound, "dialogue %s not found", dialogueID)
	}
	if err != nil {
		return nil, buserr.Wrap(buserr.KindStorage, "load dialogue", err)
	}
	return Unmarshal(raw)
}

func (e *Engine) persist(ctx context.Context, st *State) error {
	st.UpdatedAt = time.Now().UTC()
	raw, err := st.Marshal()
	if err != nil {
		return err
	}
	if err := e.states.SaveDialogue(ctx, st.DialogueID, raw, string(st.Stage)); err != nil {
		return buserr.Wrap(buserr.KindStorage, "save dialogue", err)
	}
	return nil
}

// runCompletion performs one LM round: send the history with the
// clarification tools, apply any tool calls to the state, and append
// the assistant turn the user will see. Tool-calling responses get a
// deterministic fallback prose turn rather than a second completion.
func (e *Engine) runCompletion(ctx context.Context, st *State) error {
	temp := clarificationTemperature
	resp, err := e.llm.Complete(ctx, llm.Request{
		Capability:  string(model.CapabilityClarification),
		Messages:    st.Messages(),
		Tools:       clarificationTools,
		ToolChoice:  llm.ToolChoiceAuto,
		Temperature: &temp,
		MaxTokens:   completionMaxTokens,
	})
	if err != nil {
		st.Stage = StageFailed
		e.appendApology(st)
		return buserr.Wrap(buserr.KindModel, "clarification completion", err)
	}

	if len(resp.ToolCalls) == 0 {
		// Plain prose turn; the model chose not to call tools.
		st.append(llm.RoleAssistant, resp.Content)
		return nil
	}

	// Record the assistant's tool-calling turn, then the tool results,
	// so the next round sees a well-formed transcript.
	st.History = append(st.History, Turn{
		Role:      llm.RoleAssistant,
		Content:   resp.Content,
		Timestamp: time.Now().UTC(),
		ToolCalls: resp.ToolCalls,
	})

	recoverable := false
	for _, call := range resp.ToolCalls {
		result, err := e.applyToolCall(st, call)
		if err != nil {
			e.logger.Warn("tool call rejected",
				"dialogue_id", st.DialogueID,
				"tool", call.Name,
				"error", err)
			result = fmt.Sprintf(`{"error": %q}`, err.Error())
			recoverable = true
		}
		msg := llm.ToolResultMessage(call, result)
		st.History = append(st.History, Turn{
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: time.Now().UTC(),
			ToolName:  msg.ToolName,
			ToolID:    msg.ToolCallID,
		})
	}

	if recoverable {
		// Malformed tool output is not fatal: keep the dialogue open
		// with a canned progress message and let the next user turn
		// retry.
		st.append(llm.RoleAssistant, e.promptOr("clarification_progress",
			"Thanks - I've noted that. Could you tell me a bit more about your requirements?"))
		return nil
	}

	st.append(llm.RoleAssistant, fallbackResponse(st.Stage, st.ExtractedParams))
	e.logger.Debug("dialogue advanced",
		"dialogue_id", st.DialogueID,
		"stage", st.Stage,
		"missing_params", missingParams(st.ExtractedParams))
	return nil
}

// applyToolCall mutates the state per one tool call and returns the
// tool result payload for the transcript.
func (e *Engine) applyToolCall(st *State, call llm.ToolCall) (string, error) {
	switch call.Name {
	case ToolUpdateParams:
		params, err := decodeUpdateParams(call.Arguments)
		if err != nil {
			return "", err
		}
		for k, v := range params {
			st.ExtractedParams[k] = v
		}
		return `{"status": "parameters_updated"}`, nil

	case ToolDetermine:
		args, err := decodeDetermine(call.Arguments)
		if err != nil {
			return "", err
		}
		next := args.NextStage
		if args.IsReadyToFinalize && next != StageCompleted {
			next = StageFinalizing
		}
		st.Stage = next
		return fmt.Sprintf(`{"status": "stage_set", "stage": %q}`, next), nil

	default:
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
}

// appendApology adds the failure apology turn unless it is already the
// latest assistant message, so repeated failures don't stack apologies.
func (e *Engine) appendApology(st *State) {
	apology := e.promptOr("clarification_apology",
		"I apologise - I ran into a problem processing that. Please try again in a moment.")
	if st.LastAssistantContent() == apology {
		return
	}
	st.append(llm.RoleAssistant, apology)
}

func (e *Engine) promptOr(name, fallback string) string {
	text, err := e.prompts.Get(name)
	if err != nil {
		return fallback
	}
	return text
}
