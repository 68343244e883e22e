package matcher

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"

	"github.com/c360studio/agentbus/task"
)

// probeResult is one candidate's health outcome.
type probeResult struct {
	processor *task.Processor
	healthy   bool
	reason    string
}

// filterHealthy probes all candidates concurrently and returns the
// healthy ones in their original order. Probes settle independently: a
// failing candidate is dropped, never aborting the group. Durable
// status is written back when it changes, and always when the probe
// says Unhealthy so lastCheckedAt keeps moving for flapping
// processors. Write-back failures are logged and swallowed.
func (c *Component) filterHealthy(ctx context.Context, candidates []*task.Processor) []*task.Processor {
	results := make([]probeResult, len(candidates))

	var wg sync.WaitGroup
	for i, candidate := range candidates {
		wg.Add(1)
		go func(i int, p *task.Processor) {
			defer wg.Done()
			results[i] = c.probe(ctx, p)
		}(i, candidate)
	}
	wg.Wait()

	healthy := make([]*task.Processor, 0, len(candidates))
	for _, res := range results {
		if res.healthy {
			healthy = append(healthy, res.processor)
			if res.processor.Status != task.ProcessorActive {
				c.writeProcessorStatus(ctx, res.processor.ProcessorID, task.ProcessorActive)
			}
			continue
		}

		c.logger.Warn("Candidate unhealthy",
			"processor_id", res.processor.ProcessorID,
			"endpoint", res.processor.HealthEndpoint(),
			"reason", res.reason)
		c.writeProcessorStatus(ctx, res.processor.ProcessorID, task.ProcessorUnhealthy)
	}
	return healthy
}

// probe issues a single GET against the candidate's health endpoint.
// Success is any 2xx within the configured timeout; there is no retry.
func (c *Component) probe(ctx context.Context, p *task.Processor) probeResult {
	probeCtx, cancel := context.WithTimeout(ctx, c.config.healthTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.HealthEndpoint(), nil)
	if err != nil {
		return probeResult{processor: p, reason: "bad endpoint: " + err.Error()}
	}

	resp, err := c.probes.Do(req)
	if err != nil {
		reason := "transport: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
			reason = "timeout"
		}
		return probeResult{processor: p, reason: reason}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return probeResult{processor: p, reason: "status " + resp.Status}
	}
	return probeResult{processor: p, healthy: true}
}

func (c *Component) writeProcessorStatus(ctx context.Context, processorID string, status task.ProcessorStatus) {
	if err := c.deps.Processors.UpdateProcessorStatus(ctx, processorID, status); err != nil {
		c.logger.Warn("Processor status write-back failed",
			"processor_id", processorID,
			"status", status,
			"error", err)
	}
}
