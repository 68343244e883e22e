package task_test

import (
	"testing"
	"time"

	"github.com/c360studio/agentbus/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSpec_DescriptionPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{
			name: "refined wins",
			params: map[string]any{
				"refined_description": "Build a responsive landing page",
				"initial_description": "landing page",
			},
			want: "Build a responsive landing page",
		},
		{
			name:   "initial fallback",
			params: map[string]any{"initial_description": "landing page"},
			want:   "landing page",
		},
		{
			name:   "default when absent",
			params: map[string]any{},
			want:   "No description provided.",
		},
		{
			name:   "blank refined falls through",
			params: map[string]any{"refined_description": "   ", "initial_description": "x"},
			want:   "x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := task.FormatSpec(tt.params)
			assert.Equal(t, tt.want, spec.Description)
		})
	}
}

func TestFormatSpec_Budget(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  float64
	}{
		{"number", 500.0, 500},
		{"int", 500, 500},
		{"currency prefix", "$500", 500},
		{"currency suffix", "1,200.50 USD", 1200.50},
		{"zero dropped", 0.0, 0},
		{"negative dropped", -10.0, 0},
		{"garbage dropped", "free", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := task.FormatSpec(map[string]any{"budget": tt.value})
			if tt.want == 0 {
				if spec.Constraints != nil {
					assert.Zero(t, spec.Constraints.Budget)
				}
				return
			}
			require.NotNil(t, spec.Constraints)
			assert.Equal(t, tt.want, spec.Constraints.Budget)
		})
	}
}

func TestFormatSpec_DeadlineFuturity(t *testing.T) {
	future := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)
	past := time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339)

	spec := task.FormatSpec(map[string]any{"deadline": future})
	require.NotNil(t, spec.Constraints)
	require.NotNil(t, spec.Constraints.Deadline)
	assert.True(t, spec.Constraints.Deadline.After(time.Now()))

	spec = task.FormatSpec(map[string]any{"deadline": past})
	if spec.Constraints != nil {
		assert.Nil(t, spec.Constraints.Deadline)
	}
}

func TestFormatSpec_DeadlineFromEpochMillis(t *testing.T) {
	future := time.Now().Add(24 * time.Hour).UnixMilli()
	spec := task.FormatSpec(map[string]any{"deadline": float64(future)})
	require.NotNil(t, spec.Constraints)
	require.NotNil(t, spec.Constraints.Deadline)
}

func TestFormatSpec_TagNormalisation(t *testing.T) {
	spec := task.FormatSpec(map[string]any{
		"tags":        []any{"  PDF ", "pdf", "", "Summary"},
		"platforms":   []any{"Web", "web", " iOS "},
		"competitors": []any{"Notion", ""},
	})

	assert.Equal(t, []string{"pdf", "summary", "platform:web", "platform:ios", "competitor:notion"}, spec.Tags)
	for _, tag := range spec.Tags {
		assert.NotEmpty(t, tag)
		assert.Equal(t, tag, string([]byte(tag)))
	}

	require.NotNil(t, spec.Constraints)
	assert.Equal(t, []string{"web", "ios"}, spec.Constraints.RequiredPlatforms)
	assert.Equal(t, []string{"notion"}, spec.Constraints.Competitors)
}

func TestFormatSpec_MappingsRejectArrays(t *testing.T) {
	spec := task.FormatSpec(map[string]any{
		"inputs":  []any{"a", "b"},
		"outputs": map[string]any{"report": "pdf"},
	})

	assert.Empty(t, spec.Inputs)
	assert.Equal(t, map[string]any{"report": "pdf"}, spec.Outputs)
}

func TestFormatSpec_ComplexityHeuristic(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   bool
	}{
		{"simple", map[string]any{"initial_description": "one thing"}, false},
		{"multi platform", map[string]any{"platforms": []any{"web", "ios"}}, true},
		{"single platform", map[string]any{"platforms": []any{"web"}}, false},
		{"quality set", map[string]any{"quality": "Production"}, true},
		{"competitors set", map[string]any{"competitors": []any{"notion"}}, true},
		{"multi inputs", map[string]any{"inputs": map[string]any{"a": 1, "b": 2}}, true},
		{"multi outputs", map[string]any{"outputs": map[string]any{"a": 1, "b": 2}}, true},
		{"explicit hint wins", map[string]any{"is_complex": false, "quality": "high"}, false},
		{"explicit true", map[string]any{"is_complex": true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, task.FormatSpec(tt.params).IsComplex)
		})
	}
}

func TestFormatSpec_Deterministic(t *testing.T) {
	params := map[string]any{
		"refined_description": "Summarise PDFs",
		"tags":                []any{"pdf", "summary"},
		"budget":              "$25",
		"quality":             "HIGH",
	}

	first := task.FormatSpec(params)
	second := task.FormatSpec(params)
	assert.Equal(t, first, second)
	assert.Equal(t, "high", first.Constraints.Quality)
}
