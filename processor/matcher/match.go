package matcher

import (
	"context"
	"errors"
	"time"

	"github.com/c360studio/agentbus/buserr"
	"github.com/c360studio/agentbus/event"
	"github.com/c360studio/agentbus/storage"
	"github.com/c360studio/agentbus/storage/blobstore"
	"github.com/c360studio/agentbus/task"
)

// skipStatuses are statuses under which a redelivered event is a
// duplicate: the task is already being (or has been) matched.
var skipStatuses = map[task.Status]struct{}{
	task.StatusMatching:            {},
	task.StatusPendingConfirmation: {},
	task.StatusConfirmed:           {},
	task.StatusExecuting:           {},
	task.StatusCompleted:           {},
}

// eligibleStatuses admit a matching run.
var eligibleStatuses = map[task.Status]struct{}{
	task.StatusPendingMatch:   {},
	task.StatusMatchingFailed: {},
	task.StatusNoMatchFound:   {},
}

// Match runs the full matching pipeline for one task. It is idempotent
// with respect to redelivered events: the durable status guard decides
// whether this delivery does any work. Failures are recorded on the
// task (NoMatchFound or MatchingFailed, both retry-eligible) rather
// than returned to the queue.
func (c *Component) Match(ctx context.Context, taskID string) error {
	logger := c.logger.With("task_id", taskID)
	started := time.Now()

	t, err := c.deps.Tasks.GetTask(ctx, taskID)
	if errors.Is(err, storage.ErrTaskNotFound) {
		logger.Error("Task row missing for event")
		c.cacheStatus(ctx, taskID, task.StatusFailed, "task not found")
		return buserr.Newf(buserr.KindNotFound, "task %s not found", taskID)
	}
	if err != nil {
		return buserr.Wrap(buserr.KindDatabase, "load task", err)
	}

	if _, skip := skipStatuses[t.Status]; skip {
		logger.Info("Duplicate event, task already in flight", "status", t.Status)
		return nil
	}
	if _, ok := eligibleStatuses[t.Status]; !ok {
		logger.Error("Task in unexpected status for matching", "status", t.Status)
		c.cacheStatus(ctx, taskID, task.StatusFailed, "unexpected status "+string(t.Status))
		return buserr.Newf(buserr.KindConflict, "task %s in status %s", taskID, t.Status)
	}

	// Durable first, cache after. The durable write is the idempotency
	// barrier for competing deliveries.
	if err := c.deps.Tasks.UpdateStatus(ctx, taskID, task.StatusMatching); err != nil {
		return buserr.Wrap(buserr.KindDatabase, "enter Matching", err)
	}
	c.cacheStatus(ctx, taskID, task.StatusMatching, "")

	var spec task.Specification
	if err := c.deps.Blobs.GetJSON(ctx, t.SpecificationURI, &spec); err != nil {
		return c.failMatch(ctx, taskID, buserr.Wrap(buserr.KindStorage, "load specification", err))
	}

	candidates, taskEmbedding, err := c.discover(ctx, &spec)
	if err != nil {
		return c.failMatch(ctx, taskID, err)
	}
	if len(candidates) == 0 {
		return c.failMatch(ctx, taskID, buserr.New(buserr.KindNoMatch, "no candidate processors"))
	}
	logger.Info("Candidates discovered", "count", len(candidates))

	healthy := c.filterHealthy(ctx, candidates)
	if len(healthy) == 0 {
		return c.failMatch(ctx, taskID, buserr.New(buserr.KindNoMatch, "no healthy candidates"))
	}
	logger.Info("Healthy candidates", "count", len(healthy))

	ranked := c.evaluateAndRank(ctx, &spec, healthy, taskEmbedding)

	var plan *task.WorkflowPlan
	if spec.IsComplex && !c.config.DisableWorkflow {
		plan = c.synthesizePlan(ctx, taskID, &spec, healthy)
	}

	if plan != nil {
		planURI, err := c.deps.Blobs.PutJSON(ctx, blobstore.PlanPath(taskID), plan)
		if err != nil {
			return c.failMatch(ctx, taskID, buserr.Wrap(buserr.KindStorage, "store plan", err))
		}
		if err := c.deps.Backend.UpdateTaskCandidates(ctx, &event.CandidateSubmission{
			TaskID:          taskID,
			WorkflowPlanURI: planURI,
		}); err != nil {
			return c.failMatch(ctx, taskID, buserr.Wrap(buserr.KindConfiguration, "submit plan", err))
		}
		if err := c.deps.Tasks.SetAssignment(ctx, taskID, "", planURI); err != nil {
			logger.Warn("Record plan URI on task row", "error", err)
		}
	} else {
		ids := make([]string, 0, len(ranked))
		prices := make([]float64, 0, len(ranked))
		for _, cand := range ranked {
			ids = append(ids, cand.Processor.ProcessorID)
			prices = append(prices, cand.Processor.Pricing.Price)
		}
		if err := c.deps.Backend.UpdateTaskCandidates(ctx, &event.CandidateSubmission{
			TaskID:                taskID,
			CandidateProcessorIDs: ids,
			CandidatePrices:       prices,
		}); err != nil {
			return c.failMatch(ctx, taskID, buserr.Wrap(buserr.KindConfiguration, "submit candidates", err))
		}
	}

	if err := c.deps.Tasks.UpdateStatus(ctx, taskID, task.StatusPendingConfirmation); err != nil {
		return buserr.Wrap(buserr.KindDatabase, "enter PendingConfirmation", err)
	}
	c.cacheStatus(ctx, taskID, task.StatusPendingConfirmation, "")

	logger.Info("Matching complete",
		"workflow", plan != nil,
		"candidates", len(ranked),
		"elapsed", time.Since(started))
	return nil
}

// failMatch classifies a pipeline failure: no-match outcomes are
// terminalised as NoMatchFound, everything else as MatchingFailed.
// Both are retry-eligible on a later event for the same task.
func (c *Component) failMatch(ctx context.Context, taskID string, cause error) error {
	to := task.StatusMatchingFailed
	if buserr.Is(cause, buserr.KindNoMatch) {
		to = task.StatusNoMatchFound
	}
	if err := c.deps.Tasks.UpdateStatus(ctx, taskID, to); err != nil {
		c.logger.Error("Record matching failure", "task_id", taskID, "error", err)
	}
	c.cacheStatus(ctx, taskID, to, cause.Error())
	return cause
}

func (c *Component) cacheStatus(ctx context.Context, taskID string, status task.Status, errMsg string) {
	if err := c.deps.States.SetStatus(ctx, taskID, status, errMsg); err != nil {
		c.logger.Warn("Cache status write failed", "task_id", taskID, "error", err)
	}
}
