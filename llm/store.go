package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
)

var (
	globalCallStore   *CallStore
	globalCallStoreMu sync.RWMutex
	initOnce          sync.Once
	initErr           error // Package-level error for sync.Once pattern
)

// callSubject is the NATS subject LLM call records are published on.
const callSubject = "agentbus.llm.call"

// CallRecord represents a single LLM API call with full context for audit
// and debugging. It implements message.Payload so records flow through the
// platform like any other event.
type CallRecord struct {
	// RequestID uniquely identifies this LLM call.
	RequestID string `json:"request_id"`

	// TraceID correlates this call with other messages in the same request flow.
	TraceID string `json:"trace_id,omitempty"`

	// DialogueID is the clarification dialogue that initiated this call (if any).
	DialogueID string `json:"dialogue_id,omitempty"`

	// TaskID is the task being matched when this call was made (if any).
	TaskID string `json:"task_id,omitempty"`

	// Capability is the semantic capability requested (clarification,
	// reasoning, workflow, fast).
	Capability string `json:"capability"`

	// Model is the actual model that was used for this call.
	Model string `json:"model,omitempty"`

	// Provider is the LLM provider (anthropic, ollama, openai).
	Provider string `json:"provider,omitempty"`

	// Messages is the input message history sent to the LLM.
	Messages []Message `json:"messages"`

	// Response is the generated content from the LLM.
	Response string `json:"response,omitempty"`

	// ToolCallCount is the number of tool invocations the model returned.
	ToolCallCount int `json:"tool_call_count,omitempty"`

	// PromptTokens is the number of input tokens consumed.
	PromptTokens int `json:"prompt_tokens,omitempty"`

	// CompletionTokens is the number of output tokens generated.
	CompletionTokens int `json:"completion_tokens,omitempty"`

	// TotalTokens is the total tokens consumed (prompt + completion).
	TotalTokens int `json:"total_tokens,omitempty"`

	// FinishReason indicates why generation stopped (stop, length, tool_calls).
	FinishReason string `json:"finish_reason,omitempty"`

	// StartedAt is when the LLM call began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the LLM call finished.
	CompletedAt time.Time `json:"completed_at"`

	// DurationMs is the call duration in milliseconds.
	DurationMs int64 `json:"duration_ms"`

	// Error contains any error message if the call failed.
	Error string `json:"error,omitempty"`

	// Retries is the number of retry attempts made.
	Retries int `json:"retries"`

	// FallbacksUsed lists models tried before success (if fallback was needed).
	FallbacksUsed []string `json:"fallbacks_used,omitempty"`
}

// CallStore publishes LLM call records to NATS for async consumers
// (audit trail, cost accounting, debugging).
type CallStore struct {
	nc     *natsclient.Client
	logger *slog.Logger
}

// CallStoreOption configures a CallStore.
type CallStoreOption func(*CallStore)

// WithStoreLogger sets the logger for the LLM call store.
func WithStoreLogger(logger *slog.Logger) CallStoreOption {
	return func(s *CallStore) {
		s.logger = logger
	}
}

// NewCallStore creates a new LLM call store.
func NewCallStore(nc *natsclient.Client, opts ...CallStoreOption) (*CallStore, error) {
	if nc == nil {
		return nil, fmt.Errorf("NATS client required")
	}

	s := &CallStore{
		nc:     nc,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// InitGlobalCallStore initializes the global LLM call store.
// This should be called once during application startup after NATS connection.
// It's safe to call multiple times - subsequent calls return the cached result.
// If initialization fails, all callers receive the same error and GlobalCallStore()
// returns nil (which gracefully disables call recording).
func InitGlobalCallStore(nc *natsclient.Client, opts ...CallStoreOption) error {
	initOnce.Do(func() {
		store, err := NewCallStore(nc, opts...)
		if err != nil {
			initErr = err
			return
		}
		globalCallStoreMu.Lock()
		globalCallStore = store
		globalCallStoreMu.Unlock()
	})
	return initErr
}

// GlobalCallStore returns the global LLM call store.
// Returns nil if InitGlobalCallStore hasn't been called.
func GlobalCallStore() *CallStore {
	globalCallStoreMu.RLock()
	defer globalCallStoreMu.RUnlock()
	return globalCallStore
}

// Store publishes an LLM call record.
func (s *CallStore) Store(ctx context.Context, record *CallRecord) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if record.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}

	msg := message.NewBaseMessage(CallRecordType, record, "llm")
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal call record: %w", err)
	}

	// Use JetStream for reliable delivery
	js, err := s.nc.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}

	if _, err := js.Publish(ctx, callSubject, data); err != nil {
		return fmt.Errorf("publish call record: %w", err)
	}

	s.logger.Debug("Published LLM call record",
		"request_id", record.RequestID,
		"trace_id", record.TraceID,
		"capability", record.Capability,
		"duration_ms", record.DurationMs)

	return nil
}

// TraceContext holds correlation identifiers extracted from context.
type TraceContext struct {
	TraceID    string
	DialogueID string
	TaskID     string
}

// traceContextKey is the context key for trace information.
type traceContextKey struct{}

// WithTraceContext adds correlation identifiers to a context.
func WithTraceContext(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// GetTraceContext extracts correlation identifiers from a context.
func GetTraceContext(ctx context.Context) TraceContext {
	if tc, ok := ctx.Value(traceContextKey{}).(TraceContext); ok {
		return tc
	}
	return TraceContext{}
}
