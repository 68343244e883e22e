package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ProcessorStatus enumerates processor availability states.
type ProcessorStatus string

// Processor availability states.
const (
	ProcessorActive    ProcessorStatus = "Active"
	ProcessorInactive  ProcessorStatus = "Inactive"
	ProcessorBusy      ProcessorStatus = "Busy"
	ProcessorUnhealthy ProcessorStatus = "Unhealthy"
)

// IsValid reports whether s is a recognised processor status.
func (s ProcessorStatus) IsValid() bool {
	switch s {
	case ProcessorActive, ProcessorInactive, ProcessorBusy, ProcessorUnhealthy:
		return true
	}
	return false
}

// Pricing describes how a processor charges for work.
type Pricing struct {
	// Model is the pricing model ("fixed", "per_unit", "hourly").
	Model string `json:"model"`
	// Price is the amount per unit.
	Price float64 `json:"price"`
	// Unit names what a unit is ("task", "page", "hour").
	Unit string `json:"unit,omitempty"`
}

// Processor is a catalog entry for a registered autonomous agent. An
// embedding of Description lives in the vector index keyed by
// ProcessorID.
type Processor struct {
	ProcessorID            string          `json:"processor_id" db:"processor_id"`
	Name                   string          `json:"name" db:"name"`
	Description            string          `json:"description" db:"description"`
	CapabilityTags         []string        `json:"capability_tags" db:"capability_tags"`
	InputSchema            json.RawMessage `json:"input_schema,omitempty" db:"input_schema"`
	OutputSchema           json.RawMessage `json:"output_schema,omitempty" db:"output_schema"`
	EndpointURL            string          `json:"endpoint_url" db:"endpoint_url"`
	Status                 ProcessorStatus `json:"status" db:"status"`
	ReputationScore        float64         `json:"reputation_score" db:"reputation_score"`
	CompletedTasks         int64           `json:"completed_tasks" db:"completed_tasks"`
	SuccessRate            float64         `json:"success_rate" db:"success_rate"`
	AverageExecutionTimeMs int64           `json:"average_execution_time_ms" db:"average_execution_time_ms"`
	Pricing                Pricing         `json:"pricing" db:"-"`
	LastCheckedAt          time.Time       `json:"last_checked_at,omitempty" db:"last_checked_at"`
}

// Validate checks the fields a registration must carry.
func (p *Processor) Validate() error {
	if strings.TrimSpace(p.ProcessorID) == "" {
		return fmt.Errorf("processor_id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if strings.TrimSpace(p.EndpointURL) == "" {
		return fmt.Errorf("endpoint_url is required")
	}
	if p.Status != "" && !p.Status.IsValid() {
		return fmt.Errorf("unknown processor status %q", p.Status)
	}
	if p.ReputationScore < 0 || p.ReputationScore > 5 {
		return fmt.Errorf("reputation_score must be in [0,5]")
	}
	if p.SuccessRate < 0 || p.SuccessRate > 1 {
		return fmt.Errorf("success_rate must be in [0,1]")
	}
	return nil
}

// HealthEndpoint derives the probe URL by appending /health to the
// endpoint URL when it is not already the final path segment.
func (p *Processor) HealthEndpoint() string {
	url := strings.TrimRight(p.EndpointURL, "/")
	if strings.HasSuffix(url, "/health") {
		return url
	}
	return url + "/health"
}
