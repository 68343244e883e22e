// Package intakeapi exposes the requester-facing dialogue endpoints and
// runs the background finalisation that turns a completed dialogue into
// a durable, match-pending task.
package intakeapi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/agentbus/backend"
	"github.com/c360studio/agentbus/dialogue"
	"github.com/c360studio/agentbus/event"
	"github.com/c360studio/agentbus/storage"
)

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// EventPublisher is the slice of the event publisher finalisation uses.
type EventPublisher interface {
	PublishTaskPendingMatch(ctx context.Context, taskID, specificationURI, requesterID string) error
}

// Deps carries the collaborators the intake API needs. All fields are
// required except Logger.
type Deps struct {
	Engine  *dialogue.Engine
	States  storage.StateStore
	Tasks   storage.TaskStore
	Blobs   storage.BlobStore
	Backend backend.Client
	Events  EventPublisher
	Logger  *slog.Logger
}

func (d *Deps) validate() error {
	switch {
	case d.Engine == nil:
		return fmt.Errorf("dialogue engine required")
	case d.States == nil:
		return fmt.Errorf("state store required")
	case d.Tasks == nil:
		return fmt.Errorf("task store required")
	case d.Blobs == nil:
		return fmt.Errorf("blob store required")
	case d.Backend == nil:
		return fmt.Errorf("backend client required")
	case d.Events == nil:
		return fmt.Errorf("event publisher required")
	}
	return nil
}

// Component implements the intake-api processor.
type Component struct {
	name   string
	config Config
	deps   Deps
	logger *slog.Logger

	// Lifecycle state machine
	// States: 0=stopped, 1=starting, 2=running, 3=stopping
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// baseCtx parents background finalisations so they survive the
	// originating HTTP request but not the component.
	baseCtx context.Context

	// finalizing tracks in-flight background finalisations so Stop can
	// drain them.
	finalizing sync.WaitGroup
}

// New constructs an intake-api component.
func New(config Config, deps Deps) (*Component, error) {
	defaults := DefaultConfig()
	if config.MaxTurns == 0 {
		config.MaxTurns = defaults.MaxTurns
	}
	if config.FinalizeTimeoutSeconds == 0 {
		config.FinalizeTimeoutSeconds = defaults.FinalizeTimeoutSeconds
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

	return &Component{
		name:    "intake-api",
		config:  config,
		deps:    deps,
		logger:  logger,
		baseCtx: context.Background(),
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized intake-api", "max_turns", c.config.MaxTurns)
	return nil
}

// Start begins serving the component.
func (c *Component) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateStopped, stateStarting) {
		current := c.state.Load()
		if current == stateRunning || current == stateStarting {
			return fmt.Errorf("component already running or starting")
		}
		return fmt.Errorf("component in invalid state: %d", current)
	}

	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.baseCtx = runCtx
	c.startTime = time.Now()
	c.mu.Unlock()

	c.state.Store(stateRunning)
	c.logger.Info("intake-api started")
	return nil
}

// Stop gracefully stops the component, draining in-flight background
// finalisations up to the timeout.
func (c *Component) Stop(timeout time.Duration) error {
	if !c.state.CompareAndSwap(stateRunning, stateStopping) {
		current := c.state.Load()
		if current == stateStopped || current == stateStopping {
			return nil
		}
		return fmt.Errorf("component in unexpected state: %d", current)
	}

	done := make(chan struct{})
	go func() {
		c.finalizing.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		c.logger.Warn("Stop timeout with finalisations still in flight")
	}

	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.state.Store(stateStopped)
	c.logger.Info("intake-api stopped")
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "intake-api",
		Type:        "processor",
		Description: "Dialogue intake endpoints and background task finalisation",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list; input arrives over HTTP.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts declares the task event output.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "task-events",
			Direction:   component.DirectionOutput,
			Description: "Task pending-match events for the matcher",
			Config: component.NATSPort{
				Subject: event.TaskPendingMatchSubject,
			},
		},
	}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return intakeAPISchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	state := c.state.Load()
	running := state == stateRunning

	c.mu.RLock()
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	switch state {
	case stateStarting:
		status = "starting"
	case stateRunning:
		status = "running"
	case stateStopping:
		status = "stopping"
	}

	return component.HealthStatus{
		Healthy:   running,
		LastCheck: time.Now(),
		Uptime:    time.Since(startTime),
		Status:    status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}

func (c *Component) finalizeTimeout() time.Duration {
	return time.Duration(c.config.FinalizeTimeoutSeconds) * time.Second
}
