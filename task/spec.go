package task

import (
	"encoding/json"
	"time"
)

// Specification is the canonical structured form of a task after
// clarification. It is stored as an immutable blob; the URI on the task
// record is the sole reference.
type Specification struct {
	// Description is the refined task description. Never empty.
	Description string `json:"description"`

	// Inputs maps input names to shape descriptors.
	Inputs map[string]any `json:"inputs"`

	// Outputs maps output names to shape descriptors.
	Outputs map[string]any `json:"outputs"`

	// Constraints carries the optional negotiated constraints.
	Constraints *Constraints `json:"constraints,omitempty"`

	// Tags is a set of non-empty lowercase strings without duplicates.
	// Platform and competitor entries are absorbed with prefixes
	// ("platform:web", "competitor:notion").
	Tags []string `json:"tags"`

	// IsComplex marks tasks eligible for multi-step workflow synthesis.
	IsComplex bool `json:"is_complex"`
}

// Constraints captures the optional bounds extracted during clarification.
type Constraints struct {
	// Budget is the maximum spend. Present only when strictly positive.
	Budget float64 `json:"budget,omitempty"`

	// Deadline is strictly in the future at formatting time when present.
	Deadline *time.Time `json:"deadline,omitempty"`

	// Quality is a lowercase quality label (e.g. "production").
	Quality string `json:"quality,omitempty"`

	// RequiredPlatforms lists normalised platform names.
	RequiredPlatforms []string `json:"required_platforms,omitempty"`

	// Timeframe is the free-form timeframe phrase from the dialogue.
	Timeframe string `json:"timeframe,omitempty"`

	// Competitors lists normalised competitor names.
	Competitors []string `json:"competitors,omitempty"`
}

// Empty reports whether no constraint field is set.
func (c *Constraints) Empty() bool {
	return c == nil || (c.Budget == 0 && c.Deadline == nil && c.Quality == "" &&
		len(c.RequiredPlatforms) == 0 && c.Timeframe == "" && len(c.Competitors) == 0)
}

// MarshalJSON implements json.Marshaler.
func (s *Specification) MarshalJSON() ([]byte, error) {
	type Alias Specification
	return json.Marshal((*Alias)(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Specification) UnmarshalJSON(data []byte) error {
	type Alias Specification
	return json.Unmarshal(data, (*Alias)(s))
}
