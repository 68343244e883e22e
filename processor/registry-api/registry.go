package registryapi

import (
	"context"
	"errors"
	"strings"

	"github.com/c360studio/agentbus/buserr"
	"github.com/c360studio/agentbus/storage"
	"github.com/c360studio/agentbus/task"
)

// RegisterProcessor validates and stores a catalog entry, then embeds
// its description into the vector index. Embedding failure degrades the
// entry to tag-only discoverability; it never fails the registration.
func (c *Component) RegisterProcessor(ctx context.Context, p *task.Processor) error {
	if p.Status == "" {
		p.Status = task.ProcessorActive
	}
	p.CapabilityTags = normaliseTags(p.CapabilityTags)
	if err := p.Validate(); err != nil {
		return buserr.Wrap(buserr.KindValidation, "invalid processor", err)
	}

	if err := c.deps.Processors.Register(ctx, p); err != nil {
		return buserr.Wrap(buserr.KindDatabase, "register processor", err)
	}

	c.embedDescription(ctx, p)
	c.logger.Info("Processor registered",
		"processor_id", p.ProcessorID,
		"tags", len(p.CapabilityTags))
	return nil
}

// GetProcessor fetches one catalog entry.
func (c *Component) GetProcessor(ctx context.Context, processorID string) (*task.Processor, error) {
	p, err := c.deps.Processors.GetProcessor(ctx, processorID)
	if err != nil {
		if errors.Is(err, storage.ErrProcessorNotFound) {
			return nil, buserr.Wrap(buserr.KindNotFound, "processor not found", err)
		}
		return nil, buserr.Wrap(buserr.KindDatabase, "load processor", err)
	}
	return p, nil
}

// ListProcessors returns active catalog entries up to the list limit.
func (c *Component) ListProcessors(ctx context.Context) ([]*task.Processor, error) {
	procs, err := c.deps.Processors.ListActive(ctx, c.config.ListLimit)
	if err != nil {
		return nil, buserr.Wrap(buserr.KindDatabase, "list processors", err)
	}
	return procs, nil
}

func (c *Component) embedDescription(ctx context.Context, p *task.Processor) {
	if c.deps.Vectors == nil || c.deps.Embedder == nil || !c.deps.Embedder.SupportsEmbedding() {
		return
	}
	embedding, err := c.deps.Embedder.EmbedOne(ctx, p.Description)
	if err != nil {
		c.logger.Warn("Embed processor description", "processor_id", p.ProcessorID, "error", err)
		return
	}
	if err := c.deps.Vectors.Upsert(ctx, p.ProcessorID, embedding); err != nil {
		c.logger.Warn("Upsert processor embedding", "processor_id", p.ProcessorID, "error", err)
	}
}

// normaliseTags lowercases, trims, and deduplicates capability tags,
// preserving first-seen order.
func normaliseTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
