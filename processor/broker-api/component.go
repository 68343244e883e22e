// Package brokerapi relays messages between a requester and the
// processor assigned to their task. Inbound messages are authorised
// against the task's roles and enqueued on the durable broker queue
// for external delivery.
package brokerapi

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

// MessageQueue is the slice of the event publisher the broker uses.
type MessageQueue interface {
	EnqueueBrokerMessage(ctx context.Context, msg *event.BrokerQueueMessage) error
}

// Deps carries the collaborators the broker API needs. All fields are
// required except Logger.
type Deps struct {
	Tasks  storage.TaskStore
	Queue  MessageQueue
	Logger *slog.Logger
}

func (d *Deps) validate() error {
	switch {
	case d.Tasks == nil:
		return fmt.Errorf("task store required")
	case d.Queue == nil:
		return fmt.Errorf("message queue required")
	}
	return nil
}

// Component implements the broker-api processor.
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
}

// New constructs a broker-api component.
func New(config Config, deps Deps) (*Component, error) {
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
		name:   "broker-api",
		config: config,
		deps:   deps,
		logger: logger,
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized broker-api")
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

	_, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.startTime = time.Now()
	c.mu.Unlock()

	c.state.Store(stateRunning)
	c.logger.Info("broker-api started")
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	if !c.state.CompareAndSwap(stateRunning, stateStopping) {
		current := c.state.Load()
		if current == stateStopped || current == stateStopping {
			return nil
		}
		return fmt.Errorf("component in unexpected state: %d", current)
	}

	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.state.Store(stateStopped)
	c.logger.Info("broker-api stopped")
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "broker-api",
		Type:        "processor",
		Description: "Requester-processor message relay with role authorisation",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list; input arrives over HTTP.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts declares the broker queue output.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "broker-messages",
			Direction:   component.DirectionOutput,
			Description: "Outbound requester-processor messages for delivery",
			Config: component.NATSPort{
				Subject: event.BrokerMessageSubject,
			},
		},
	}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return brokerAPISchema
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
