// Package registryapi exposes the processor catalog: registration with
// tag normalisation and description embedding, plus read endpoints.
// Without registrations the discovery stage has nothing to match
// against.
package registryapi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/agentbus/storage"
)

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// Embedder is the slice of the LM client registration uses to embed
// processor descriptions.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	SupportsEmbedding() bool
}

// Deps carries the collaborators the registry API needs. Vectors and
// Embedder are optional as a pair: without both, registered processors
// are discoverable by tags only. Logger is optional.
type Deps struct {
	Processors storage.ProcessorStore
	Vectors    storage.VectorIndex
	Embedder   Embedder
	Logger     *slog.Logger
}

func (d *Deps) validate() error {
	if d.Processors == nil {
		return fmt.Errorf("processor store required")
	}
	return nil
}

// Component implements the registry-api processor.
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

// New constructs a registry-api component.
func New(config Config, deps Deps) (*Component, error) {
	if config.ListLimit == 0 {
		config.ListLimit = DefaultConfig().ListLimit
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
		name:   "registry-api",
		config: config,
		deps:   deps,
		logger: logger,
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized registry-api",
		"embedding_wired", c.deps.Vectors != nil && c.deps.Embedder != nil)
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
	c.logger.Info("registry-api started")
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
	c.logger.Info("registry-api stopped")
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "registry-api",
		Type:        "processor",
		Description: "Processor catalog registration and read endpoints",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list; input arrives over HTTP.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns an empty port list.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return registryAPISchema
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
