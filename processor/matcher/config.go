package matcher

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"
)

// matcherSchema holds the configuration schema generated from Config.
var matcherSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the matcher component.
type Config struct {
	// StreamName is the JetStream stream carrying task events.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream stream name,category:basic,default:AGENTBUS_TASKS"`

	// ConsumerName is the durable consumer name. A single durable
	// consumer gives per-task linearisable status transitions.
	ConsumerName string `json:"consumer_name" schema:"type:string,description:Durable consumer name,category:basic,default:matcher"`

	// Subject filters the consumer to pending-match events.
	Subject string `json:"subject" schema:"type:string,description:Filter subject,category:basic,default:agentbus.task.pending_match"`

	// MaxCandidates bounds the ranked candidate list submitted to the
	// backend. The semantic query fetches 3x this many.
	MaxCandidates int `json:"max_candidates" schema:"type:int,description:Maximum candidates submitted,category:basic,default:5"`

	// DisableFiltering short-circuits discovery to the first page of
	// active processors.
	DisableFiltering bool `json:"disable_filtering" schema:"type:bool,description:Skip tag and semantic filtering,category:advanced,default:false"`

	// DisableWorkflow skips multi-step workflow synthesis entirely.
	DisableWorkflow bool `json:"disable_workflow" schema:"type:bool,description:Skip workflow plan synthesis,category:advanced,default:false"`

	// HealthCheckTimeoutMs bounds each candidate health probe.
	HealthCheckTimeoutMs int `json:"health_check_timeout_ms" schema:"type:int,description:Per-probe timeout in milliseconds,category:advanced,default:5000"`

	// Ports declares optional NATS port configuration.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:           "AGENTBUS_TASKS",
		ConsumerName:         "matcher",
		Subject:              "agentbus.task.pending_match",
		MaxCandidates:        5,
		HealthCheckTimeoutMs: 5000,
	}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	if c.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max_candidates must be positive")
	}
	if c.HealthCheckTimeoutMs <= 0 {
		return fmt.Errorf("health_check_timeout_ms must be positive")
	}
	return nil
}

func (c *Config) healthTimeout() time.Duration {
	return time.Duration(c.HealthCheckTimeoutMs) * time.Millisecond
}
