// Package model provides capability-based model selection for the bus.
// Instead of hardcoding model names, components specify capabilities
// (clarification, reasoning, workflow) and the registry resolves them to
// available models with fallback chains.
package model

// Capability represents a semantic capability for model selection.
// Instead of specifying "claude-sonnet", components specify
// "clarification" or "reasoning".
type Capability string

const (
	// CapabilityClarification drives the guided dialogue that refines a
	// request into a specification. Needs reliable tool calling.
	CapabilityClarification Capability = "clarification"

	// CapabilityReasoning is for candidate re-ranking and justification.
	CapabilityReasoning Capability = "reasoning"

	// CapabilityWorkflow is for multi-step workflow plan synthesis.
	CapabilityWorkflow Capability = "workflow"

	// CapabilityEmbedding converts text into vectors for semantic search.
	CapabilityEmbedding Capability = "embedding"

	// CapabilityFast is for quick responses, simple tasks.
	CapabilityFast Capability = "fast"
)

// RoleCapabilities maps bus component roles to their default capability.
// Used when no explicit capability or model is specified.
var RoleCapabilities = map[string]Capability{
	"dialogue":    CapabilityClarification,
	"evaluator":   CapabilityReasoning,
	"synthesiser": CapabilityWorkflow,
	"embedder":    CapabilityEmbedding,
}

// CapabilityForRole returns the default capability for a given role.
// Returns CapabilityFast as fallback for unknown roles.
func CapabilityForRole(role string) Capability {
	if cap, ok := RoleCapabilities[role]; ok {
		return cap
	}
	return CapabilityFast
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityClarification, CapabilityReasoning, CapabilityWorkflow, CapabilityEmbedding, CapabilityFast:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for invalid values.
func ParseCapability(s string) Capability {
	cap := Capability(s)
	if cap.IsValid() {
		return cap
	}
	return ""
}
