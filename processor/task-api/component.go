// Package taskapi exposes task read endpoints and the webhook that
// re-dispatches pending-match events into the matching pipeline.
package taskapi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/agentbus/event"
	"github.com/c360studio/agentbus/storage"
)

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// Matcher is the slice of the matching service the webhook dispatches
// into.
type Matcher interface {
	Match(ctx context.Context, taskID string) error
}

// Deps carries the collaborators the task API needs. Matcher is
// optional; without it the webhook rejects dispatches. Logger is
// optional.
type Deps struct {
	Tasks   storage.TaskStore
	States  storage.StateStore
	Matcher Matcher
	Logger  *slog.Logger
}

func (d *Deps) validate() error {
	switch {
	case d.Tasks == nil:
		return fmt.Errorf("task store required")
	case d.States == nil:
		return fmt.Errorf("state store required")
	}
	return nil
}

// Component implements the task-api processor.
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

	// baseCtx parents webhook-triggered matching runs so they survive
	// the originating HTTP request but not the component.
	baseCtx context.Context

	// dispatching tracks in-flight matching runs so Stop can drain
	// them.
	dispatching sync.WaitGroup
}

// New constructs a task-api component.
func New(config Config, deps Deps) (*Component, error) {
	if config.DispatchTimeoutSeconds == 0 {
		config.DispatchTimeoutSeconds = DefaultConfig().DispatchTimeoutSeconds
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
		name:    "task-api",
		config:  config,
		deps:    deps,
		logger:  logger,
		baseCtx: context.Background(),
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized task-api", "matcher_wired", c.deps.Matcher != nil)
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
	c.logger.Info("task-api started")
	return nil
}

// Stop gracefully stops the component, draining in-flight webhook
// dispatches up to the timeout.
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
		c.dispatching.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		c.logger.Warn("Stop timeout with dispatches still in flight")
	}

	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.state.Store(stateStopped)
	c.logger.Info("task-api stopped")
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "task-api",
		Type:        "processor",
		Description: "Task status reads and pending-match webhook dispatch",
		Version:     "0.1.0",
	}
}

// InputPorts declares the webhook's logical event input.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "task-events",
			Direction:   component.DirectionInput,
			Description: "Task pending-match events re-delivered over HTTP",
			Config: component.NATSPort{
				Subject: event.TaskPendingMatchSubject,
			},
		},
	}
}

// OutputPorts returns an empty port list.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return taskAPISchema
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

func (c *Component) dispatchTimeout() time.Duration {
	return time.Duration(c.config.DispatchTimeoutSeconds) * time.Second
}
