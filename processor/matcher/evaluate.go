package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/c360studio/agentbus/llm"
	"github.com/c360studio/agentbus/model"
	"github.com/c360studio/agentbus/storage"
	"github.com/c360studio/agentbus/task"
)

// Score defaults used when processor metadata is missing.
const (
	defaultSemanticScore = 0.5
	defaultReputation    = 3.0 // 3/5 -> 0.6
	defaultSuccessRate   = 0.9
	defaultAvgExecMs     = 30000
	rerankPoolLimit      = 10
)

// Sub-score weights. The overall score normalises over the weights of
// the sub-scores actually present for a candidate.
var scoreWeights = map[string]float64{
	"semantic":    0.35,
	"price":       0.20,
	"reputation":  0.15,
	"reliability": 0.10,
	"speed":       0.10,
	"schema":      0.10,
}

// Candidate is one scored, ranked processor.
type Candidate struct {
	Processor     *task.Processor
	SubScores     map[string]float64
	OverallScore  float64
	Justification string
}

// evaluateAndRank scores all healthy candidates, ranks them by overall
// score descending (stable, so ties keep discovery order), optionally
// re-ranks the head of the list with the LM, and returns the first
// MaxCandidates entries. It never fails: on any LM or validation
// problem the algorithmic ranking stands.
func (c *Component) evaluateAndRank(ctx context.Context, spec *task.Specification, healthy []*task.Processor, taskEmbedding []float32) []*Candidate {
	candidates := make([]*Candidate, len(healthy))

	// Per-candidate scoring is independent; embeddings are the only
	// remote fetch and the vector store copes with concurrent reads.
	done := make(chan struct{})
	for i := range healthy {
		go func(i int) {
			candidates[i] = c.score(ctx, spec, healthy[i], taskEmbedding)
			done <- struct{}{}
		}(i)
	}
	for range healthy {
		<-done
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].OverallScore > candidates[j].OverallScore
	})

	if len(candidates) > 1 && c.deps.LLM != nil {
		candidates = c.rerank(ctx, spec, candidates)
	}

	if len(candidates) > c.config.MaxCandidates {
		candidates = candidates[:c.config.MaxCandidates]
	}
	return candidates
}

// score computes the six sub-scores for one candidate and the weighted
// overall score normalised over the present sub-scores.
func (c *Component) score(ctx context.Context, spec *task.Specification, p *task.Processor, taskEmbedding []float32) *Candidate {
	sub := map[string]float64{
		"semantic":    c.semanticScore(ctx, p, taskEmbedding),
		"reputation":  reputationScore(p),
		"reliability": reliabilityScore(p),
		"speed":       speedScore(p),
		"schema":      schemaCompatibility(p),
	}
	if p.Pricing.Price > 0 {
		sub["price"] = priceScore(p.Pricing.Price)
	}

	var weighted, weightSum float64
	for name, score := range sub {
		weighted += score * scoreWeights[name]
		weightSum += scoreWeights[name]
	}

	overall := 0.0
	if weightSum > 0 {
		overall = weighted / weightSum
	}
	return &Candidate{Processor: p, SubScores: sub, OverallScore: overall}
}

// semanticScore is the cosine similarity between the task embedding and
// the processor's stored description embedding, clamped to [0,1].
// Either embedding missing yields the neutral default.
func (c *Component) semanticScore(ctx context.Context, p *task.Processor, taskEmbedding []float32) float64 {
	if taskEmbedding == nil || c.deps.Vectors == nil {
		return defaultSemanticScore
	}
	procEmbedding, err := c.deps.Vectors.Fetch(ctx, p.ProcessorID)
	if err != nil {
		if !errors.Is(err, storage.ErrProcessorNotFound) {
			c.logger.Warn("Fetch processor embedding failed", "processor_id", p.ProcessorID, "error", err)
		}
		return defaultSemanticScore
	}
	sim := cosine(taskEmbedding, procEmbedding)
	if sim < 0 {
		return 0
	}
	return sim
}

func priceScore(price float64) float64 {
	return 10 / (10 + price)
}

func reputationScore(p *task.Processor) float64 {
	rep := p.ReputationScore
	if rep == 0 {
		rep = defaultReputation
	}
	return rep / 5
}

func reliabilityScore(p *task.Processor) float64 {
	if p.SuccessRate == 0 {
		return defaultSuccessRate
	}
	return p.SuccessRate
}

func speedScore(p *task.Processor) float64 {
	avg := p.AverageExecutionTimeMs
	if avg == 0 {
		avg = defaultAvgExecMs
	}
	return 5000 / (5000 + float64(avg))
}

// schemaCompatibility grades the declared input/output schemas
// structurally: 1.0 both valid, 0.6 exactly one valid, 0.3 both
// present but malformed, 0.2 either missing.
func schemaCompatibility(p *task.Processor) float64 {
	if len(p.InputSchema) == 0 || len(p.OutputSchema) == 0 {
		return 0.2
	}
	inOK := validJSONObject(p.InputSchema)
	outOK := validJSONObject(p.OutputSchema)
	switch {
	case inOK && outOK:
		return 1.0
	case inOK || outOK:
		return 0.6
	default:
		return 0.3
	}
}

func validJSONObject(raw json.RawMessage) bool {
	var m map[string]any
	return json.Unmarshal(raw, &m) == nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rerankResponseSchema validates the LM's re-ranking output: a JSON
// array of {id, justification?} objects.
const rerankResponseSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"justification": {"type": "string"}
		},
		"required": ["id"],
		"additionalProperties": false
	}
}`

type rerankEntry struct {
	ID            string `json:"id"`
	Justification string `json:"justification,omitempty"`
}

// rerank sends the top candidates to the LM for a semantic reordering.
// LM-ordered entries come first with their justifications; candidates
// the LM omitted are appended in algorithmic order. Any failure keeps
// the algorithmic ranking.
func (c *Component) rerank(ctx context.Context, spec *task.Specification, candidates []*Candidate) []*Candidate {
	pool := candidates
	if len(pool) > rerankPoolLimit {
		pool = pool[:rerankPoolLimit]
	}

	promptText, err := c.rerankPrompt(spec, pool)
	if err != nil {
		c.logger.Warn("Build re-rank prompt failed", "error", err)
		return candidates
	}

	resp, err := c.deps.LLM.Complete(ctx, llm.Request{
		Capability: string(model.CapabilityReasoning),
		Messages:   []llm.Message{{Role: llm.RoleUser, Content: promptText}},
		MaxTokens:  1024,
	})
	if err != nil {
		c.logger.Warn("LM re-rank failed, keeping algorithmic order", "error", err)
		return candidates
	}

	entries, err := parseRerankResponse(resp.Content)
	if err != nil {
		c.logger.Warn("LM re-rank output rejected, keeping algorithmic order", "error", err)
		return candidates
	}

	byID := make(map[string]*Candidate, len(pool))
	for _, cand := range pool {
		byID[cand.Processor.ProcessorID] = cand
	}

	reordered := make([]*Candidate, 0, len(candidates))
	placed := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		cand, ok := byID[entry.ID]
		if !ok {
			continue // hallucinated id
		}
		if _, dup := placed[entry.ID]; dup {
			continue
		}
		placed[entry.ID] = struct{}{}
		cand.Justification = entry.Justification
		reordered = append(reordered, cand)
	}
	for _, cand := range candidates {
		if _, ok := placed[cand.Processor.ProcessorID]; !ok {
			reordered = append(reordered, cand)
		}
	}
	return reordered
}

func (c *Component) rerankPrompt(spec *task.Specification, pool []*Candidate) (string, error) {
	summaries := make([]map[string]any, 0, len(pool))
	for _, cand := range pool {
		p := cand.Processor
		summaries = append(summaries, map[string]any{
			"id":              p.ProcessorID,
			"name":            p.Name,
			"description":     truncate(p.Description, 280),
			"capability_tags": p.CapabilityTags,
			"price":           p.Pricing.Price,
			"overall_score":   cand.OverallScore,
			"sub_scores":      cand.SubScores,
		})
	}
	return c.deps.Prompts.Format("rerank_candidates", map[string]any{
		"task_json":       spec,
		"candidates_json": summaries,
	})
}

// parseRerankResponse extracts, schema-validates and decodes the JSON
// array from the LM response. Surrounding prose is tolerated as long as
// a well-formed array is present.
func parseRerankResponse(content string) ([]rerankEntry, error) {
	raw := extractJSONArray(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	var schemaDoc any
	if err := json.Unmarshal([]byte(rerankResponseSchema), &schemaDoc); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := compiler.AddResource("rerank.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("rerank.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("response does not match schema: %w", err)
	}

	var entries []rerankEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	return entries, nil
}

// extractJSONArray returns the first top-level JSON array in s.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '[':
			if !inString {
				depth++
			}
		case ']':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// truncate caps s at n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
