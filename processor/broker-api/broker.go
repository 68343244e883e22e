package brokerapi

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/c360studio/agentbus/buserr"
	"github.com/c360studio/agentbus/event"
	"github.com/c360studio/agentbus/storage"
	"github.com/c360studio/agentbus/task"
)

// SendMessageToProcessor relays a requester's message to the processor
// assigned to the task. The sender must be the task's requester.
func (c *Component) SendMessageToProcessor(ctx context.Context, taskID, requesterID string, content json.RawMessage) (*event.BrokerQueueMessage, error) {
	row, err := c.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if row.RequesterID != requesterID {
		messagesRejected.WithLabelValues("unauthorised").Inc()
		return nil, buserr.New(buserr.KindAuthorization, "sender is not the task requester")
	}
	if row.AssignedProcessorID == "" {
		messagesRejected.WithLabelValues("unassigned").Inc()
		return nil, buserr.New(buserr.KindConflict, "task has no assigned processor")
	}

	msg := &event.BrokerQueueMessage{
		Target:      event.TargetProcessor,
		TargetID:    row.AssignedProcessorID,
		TaskID:      taskID,
		SenderRole:  event.RoleRequester,
		ContentType: contentType(content),
		Content:     content,
		Timestamp:   time.Now().UTC(),
	}
	return msg, c.enqueue(ctx, row, msg)
}

// SendMessageToRequester relays a processor's message back to the
// task's requester. The sender must be the assigned processor.
func (c *Component) SendMessageToRequester(ctx context.Context, taskID, processorID string, content json.RawMessage) (*event.BrokerQueueMessage, error) {
	row, err := c.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if row.AssignedProcessorID == "" || row.AssignedProcessorID != processorID {
		messagesRejected.WithLabelValues("unauthorised").Inc()
		return nil, buserr.New(buserr.KindAuthorization, "sender is not the assigned processor")
	}

	msg := &event.BrokerQueueMessage{
		Target:      event.TargetRequester,
		TargetID:    row.RequesterID,
		TaskID:      taskID,
		SenderRole:  event.RoleProcessor,
		ContentType: contentType(content),
		Content:     content,
		Timestamp:   time.Now().UTC(),
	}
	return msg, c.enqueue(ctx, row, msg)
}

func (c *Component) loadTask(ctx context.Context, taskID string) (*task.Task, error) {
	row, err := c.deps.Tasks.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			messagesRejected.WithLabelValues("not_found").Inc()
			return nil, buserr.Wrap(buserr.KindNotFound, "task not found", err)
		}
		messagesRejected.WithLabelValues("storage").Inc()
		return nil, buserr.Wrap(buserr.KindDatabase, "load task", err)
	}
	return row, nil
}

func (c *Component) enqueue(ctx context.Context, row *task.Task, msg *event.BrokerQueueMessage) error {
	// Messaging normally happens during execution; other statuses are
	// allowed but flagged.
	if row.Status != task.StatusExecuting {
		c.logger.Warn("Message on non-executing task",
			"task_id", row.TaskID,
			"status", row.Status,
			"sender_role", msg.SenderRole)
	}

	if err := c.deps.Queue.EnqueueBrokerMessage(ctx, msg); err != nil {
		messagesRejected.WithLabelValues("queue").Inc()
		return buserr.Wrap(buserr.KindQueue, "enqueue message", err)
	}
	messagesEnqueued.WithLabelValues(string(msg.SenderRole)).Inc()
	return nil
}

// contentType infers the wire content type: a JSON string is relayed
// as text, anything else as structured JSON.
func contentType(content json.RawMessage) string {
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return "text"
	}
	return "json"
}
