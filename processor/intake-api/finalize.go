package intakeapi

import (
	"context"
	"time"

	"github.com/c360studio/agentbus/dialogue"
	"github.com/c360studio/agentbus/storage/blobstore"
	"github.com/c360studio/agentbus/task"
)

// scheduleFinalize launches background finalisation for a completed
// dialogue. The HTTP response has already been committed by the time
// this runs; failures are recorded in the cached status only.
func (c *Component) scheduleFinalize(st *dialogue.State) {
	c.mu.RLock()
	base := c.baseCtx
	c.mu.RUnlock()

	c.finalizing.Add(1)
	go func() {
		defer c.finalizing.Done()
		ctx, cancel := context.WithTimeout(base, c.finalizeTimeout())
		defer cancel()
		c.finalize(ctx, st)
	}()
}

// finalize turns a completed dialogue into a durable task:
// format the specification, store it as a blob, register the task with
// the backend, link dialogue and task ids in the cache, create the
// durable row and publish the pending-match event. Failures leave the
// cached status at RegistrationFailed; earlier side effects are not
// rolled back (an orphaned spec blob is harmless).
func (c *Component) finalize(ctx context.Context, st *dialogue.State) {
	started := time.Now()
	logger := c.logger.With("dialogue_id", st.DialogueID, "requester_id", st.RequesterID)

	fail := func(step string, err error) {
		logger.Error("finalisation failed", "step", step, "error", err)
		finalizationsTotal.WithLabelValues("failed").Inc()
		if serr := c.deps.States.SetStatus(ctx, st.DialogueID, task.StatusRegistrationFailed, err.Error()); serr != nil {
			logger.Error("record registration failure", "error", serr)
		}
	}

	params := st.ExtractedParams
	if params == nil {
		params = map[string]any{}
	}
	spec := task.FormatSpec(params)

	if err := c.deps.States.SaveSpec(ctx, st.DialogueID, spec); err != nil {
		logger.Warn("cache spec copy", "error", err)
	}

	specURI, err := c.deps.Blobs.PutJSON(ctx, blobstore.SpecPath(st.DialogueID), spec)
	if err != nil {
		fail("store_spec", err)
		return
	}

	if err := c.deps.States.SetStatus(ctx, st.DialogueID, task.StatusPendingRegistration, ""); err != nil {
		fail("cache_status", err)
		return
	}

	finalTaskID, err := c.deps.Backend.CreateTaskOnContract(ctx, st.RequesterID, specURI)
	if err != nil {
		fail("register_task", err)
		return
	}

	// The backend owns id issuance only; the durable row lives here.
	if err := c.deps.Tasks.CreateTask(ctx, &task.Task{
		TaskID:           finalTaskID,
		RequesterID:      st.RequesterID,
		SpecificationURI: specURI,
		Status:           task.StatusPendingMatch,
	}); err != nil {
		fail("create_task_row", err)
		return
	}

	if err := c.deps.States.LinkTask(ctx, st.DialogueID, finalTaskID, task.StatusPendingMatch); err != nil {
		fail("link_task", err)
		return
	}

	if err := c.deps.Events.PublishTaskPendingMatch(ctx, finalTaskID, specURI, st.RequesterID); err != nil {
		fail("publish_event", err)
		return
	}

	finalizationsTotal.WithLabelValues("succeeded").Inc()
	finalizationDuration.Observe(time.Since(started).Seconds())
	logger.Info("task finalised",
		"task_id", finalTaskID,
		"specification_uri", specURI,
		"elapsed", time.Since(started))
}
