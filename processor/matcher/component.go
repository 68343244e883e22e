// Package matcher consumes task pending-match events and runs the
// matching pipeline: candidate discovery, health filtering, scoring
// with optional LM re-ranking, workflow synthesis for complex tasks,
// and candidate submission to the backend.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/agentbus/backend"
	"github.com/c360studio/agentbus/event"
	"github.com/c360studio/agentbus/llm"
	"github.com/c360studio/agentbus/prompt"
	"github.com/c360studio/agentbus/storage"
)

// LanguageModel is the slice of the LM client the matcher uses: chat
// completions for re-ranking and planning, single embeddings for the
// semantic discovery branch.
type LanguageModel interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	SupportsEmbedding() bool
}

// Deps carries the matcher's collaborators. Vectors and LLM may be nil;
// the semantic branch degrades silently without them.
type Deps struct {
	NATSClient *natsclient.Client
	Tasks      storage.TaskStore
	Processors storage.ProcessorStore
	Vectors    storage.VectorIndex
	Blobs      storage.BlobStore
	States     storage.StateStore
	Backend    backend.Client
	LLM        LanguageModel
	Prompts    *prompt.Store
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (d *Deps) validate() error {
	switch {
	case d.Tasks == nil:
		return fmt.Errorf("task store required")
	case d.Processors == nil:
		return fmt.Errorf("processor store required")
	case d.Blobs == nil:
		return fmt.Errorf("blob store required")
	case d.States == nil:
		return fmt.Errorf("state store required")
	case d.Backend == nil:
		return fmt.Errorf("backend client required")
	case d.Prompts == nil:
		return fmt.Errorf("prompt store required")
	}
	return nil
}

// Component implements the matcher processor.
type Component struct {
	name   string
	config Config
	deps   Deps
	logger *slog.Logger
	probes *http.Client

	// Lifecycle management
	mu        sync.RWMutex
	running   bool
	startTime time.Time
	cancel    context.CancelFunc
	consumer  jetstream.Consumer

	// Metrics
	eventsProcessed int64
	matchesFailed   int64
	lastActivity    time.Time
}

// New constructs a matcher component.
func New(config Config, deps Deps) (*Component, error) {
	defaults := DefaultConfig()
	if config.StreamName == "" {
		config.StreamName = defaults.StreamName
	}
	if config.ConsumerName == "" {
		config.ConsumerName = defaults.ConsumerName
	}
	if config.Subject == "" {
		config.Subject = defaults.Subject
	}
	if config.MaxCandidates == 0 {
		config.MaxCandidates = defaults.MaxCandidates
	}
	if config.HealthCheckTimeoutMs == 0 {
		config.HealthCheckTimeoutMs = defaults.HealthCheckTimeoutMs
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("invalid deps: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	probes := deps.HTTPClient
	if probes == nil {
		probes = &http.Client{}
	}

	return &Component{
		name:   "matcher",
		config: config,
		deps:   deps,
		logger: logger,
		probes: probes,
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized matcher",
		"subject", c.config.Subject,
		"max_candidates", c.config.MaxCandidates)
	return nil
}

// Start begins consuming task pending-match events.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.deps.NATSClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	js, err := c.deps.NATSClient.JetStream()
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get jetstream: %w", err)
	}

	stream, err := js.Stream(subCtx, c.config.StreamName)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get stream %s: %w", c.config.StreamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(subCtx, jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		FilterSubject: c.config.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxDeliver:    3,
	})
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("create consumer: %w", err)
	}

	c.mu.Lock()
	c.consumer = consumer
	c.mu.Unlock()

	go c.consumeLoop(subCtx)

	c.logger.Info("matcher started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"subject", c.config.Subject)
	return nil
}

func (c *Component) rollbackStart(cancel context.CancelFunc) {
	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
	cancel()
}

// Stop stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.logger.Info("matcher stopped")
	return nil
}

// consumeLoop continuously fetches events from the durable consumer.
// Single-threaded consumption keeps per-task status transitions
// linearisable.
func (c *Component) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("Fetch timeout or error", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if msgs.Error() != nil && msgs.Error() != context.DeadlineExceeded {
			c.logger.Warn("Message fetch error", "error", msgs.Error())
		}
	}
}

// handleEvent runs the matching pipeline for one event. The queue sees
// only the ack: matching failures are recorded in task status, not
// re-thrown, so redelivery is driven by a later re-publish rather than
// a poison-message loop.
func (c *Component) handleEvent(ctx context.Context, msg jetstream.Msg) {
	c.mu.Lock()
	c.eventsProcessed++
	c.lastActivity = time.Now()
	c.mu.Unlock()

	evt, err := event.ParseEventMessage[event.TaskPendingMatchEvent](msg.Data())
	if err != nil {
		c.logger.Error("Failed to parse task event", "error", err)
		if err := msg.Ack(); err != nil {
			c.logger.Warn("Failed to ACK malformed message", "error", err)
		}
		return
	}

	if err := c.Match(ctx, evt.TaskID); err != nil {
		c.mu.Lock()
		c.matchesFailed++
		c.mu.Unlock()
		c.logger.Error("Matching run failed",
			"task_id", evt.TaskID,
			"error", err)
	}

	if err := msg.Ack(); err != nil {
		c.logger.Warn("Failed to ACK message", "task_id", evt.TaskID, "error", err)
	}
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "matcher",
		Type:        "processor",
		Description: "Queue-driven task-to-processor matching pipeline",
		Version:     "0.1.0",
	}
}

// InputPorts declares the task event input.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "task-events",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "Task pending-match events",
			Config: component.NATSPort{
				Subject: c.config.Subject,
			},
		},
	}
}

// OutputPorts returns an empty port list; results go to the backend
// over HTTP and to the durable stores.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return matcherSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := "stopped"
	if c.running {
		status = "running"
	}
	return component.HealthStatus{
		Healthy:   c.running,
		LastCheck: time.Now(),
		Uptime:    time.Since(c.startTime),
		Status:    status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.lastActivity,
	}
}
