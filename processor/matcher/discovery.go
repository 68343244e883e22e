package matcher

import (
	"context"
	"errors"

	"github.com/c360studio/agentbus/buserr"
	"github.com/c360studio/agentbus/storage"
	"github.com/c360studio/agentbus/task"
)

// discover returns the candidate pool for a spec: the deduplicated
// union of the tag-overlap query and the semantic nearest-neighbour
// query, both filtered to Active processors. The task embedding is
// returned alongside so the evaluator can reuse it. The semantic branch
// degrades silently when no embedder or vector index is wired.
func (c *Component) discover(ctx context.Context, spec *task.Specification) ([]*task.Processor, []float32, error) {
	if c.config.DisableFiltering {
		all, err := c.deps.Processors.ListActive(ctx, c.config.MaxCandidates*3)
		if err != nil {
			return nil, nil, buserr.Wrap(buserr.KindDatabase, "list active processors", err)
		}
		return all, nil, nil
	}

	seen := make(map[string]struct{})
	var pool []*task.Processor

	byTags, err := c.deps.Processors.FindByTags(ctx, spec.Tags)
	if err != nil {
		return nil, nil, buserr.Wrap(buserr.KindDatabase, "tag query", err)
	}
	for _, p := range byTags {
		if _, dup := seen[p.ProcessorID]; !dup {
			seen[p.ProcessorID] = struct{}{}
			pool = append(pool, p)
		}
	}

	taskEmbedding, semantic := c.semanticCandidates(ctx, spec.Description)
	for _, p := range semantic {
		if _, dup := seen[p.ProcessorID]; !dup {
			seen[p.ProcessorID] = struct{}{}
			pool = append(pool, p)
		}
	}

	return pool, taskEmbedding, nil
}

// semanticCandidates embeds the description and hydrates the top-K
// vector hits from the durable store. Any failure disables the branch
// for this run rather than failing discovery.
func (c *Component) semanticCandidates(ctx context.Context, description string) ([]float32, []*task.Processor) {
	if c.deps.Vectors == nil || c.deps.LLM == nil || !c.deps.LLM.SupportsEmbedding() {
		return nil, nil
	}

	embedding, err := c.deps.LLM.EmbedOne(ctx, description)
	if err != nil {
		c.logger.Warn("Embed task description failed, skipping semantic branch", "error", err)
		return nil, nil
	}

	matches, err := c.deps.Vectors.Query(ctx, embedding, c.config.MaxCandidates*3)
	if err != nil {
		c.logger.Warn("Vector query failed, skipping semantic branch", "error", err)
		return embedding, nil
	}

	var hydrated []*task.Processor
	for _, m := range matches {
		p, err := c.deps.Processors.GetProcessor(ctx, m.ProcessorID)
		if errors.Is(err, storage.ErrProcessorNotFound) {
			// Stale vector entry; the index lags deregistration.
			continue
		}
		if err != nil {
			c.logger.Warn("Hydrate semantic candidate failed", "processor_id", m.ProcessorID, "error", err)
			continue
		}
		if p.Status != task.ProcessorActive {
			continue
		}
		hydrated = append(hydrated, p)
	}
	return embedding, hydrated
}
