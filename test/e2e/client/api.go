// Package client provides test clients for e2e scenarios.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/c360studio/agentbus/dialogue"
	"github.com/c360studio/agentbus/task"
	"github.com/c360studio/agentbus/test/e2e/config"
)

// APIClient drives the agentbus HTTP API for e2e tests.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a new API client for e2e testing.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// DialogueState is the wire shape of an intake dialogue response.
type DialogueState struct {
	DialogueID string         `json:"dialogueId"`
	Stage      dialogue.Stage `json:"stage"`
	Message    string         `json:"message"`
}

// TaskStatus is the wire shape of a task status response.
type TaskStatus struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// StartDialogue opens an intake clarification dialogue.
func (c *APIClient) StartDialogue(ctx context.Context, requesterID, description string, tags []string) (*DialogueState, error) {
	body := map[string]any{
		"requesterId": requesterID,
		"description": description,
	}
	if len(tags) > 0 {
		body["tags"] = tags
	}

	var state DialogueState
	if err := c.postJSON(ctx, "/api/dialogue/start", body, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// ContinueDialogue submits a user answer to an open dialogue.
func (c *APIClient) ContinueDialogue(ctx context.Context, dialogueID, answer string) (*DialogueState, error) {
	var state DialogueState
	path := fmt.Sprintf("/api/dialogue/%s/continue", dialogueID)
	if err := c.postJSON(ctx, path, map[string]string{"userResponse": answer}, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// GetStatus reads the cached or durable status for a dialogue or task id.
func (c *APIClient) GetStatus(ctx context.Context, id string) (*TaskStatus, error) {
	var status TaskStatus
	if err := c.getJSON(ctx, fmt.Sprintf("/api/tasks/%s/status", id), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetTask reads the durable task row.
func (c *APIClient) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	var row task.Task
	if err := c.getJSON(ctx, fmt.Sprintf("/api/tasks/%s", taskID), &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// RegisterProcessor registers a processor and returns the normalised entity.
func (c *APIClient) RegisterProcessor(ctx context.Context, p *task.Processor) (*task.Processor, error) {
	var registered task.Processor
	if err := c.postJSON(ctx, "/api/processors", p, &registered); err != nil {
		return nil, err
	}
	return &registered, nil
}

// GetProcessor reads a registered processor by id.
func (c *APIClient) GetProcessor(ctx context.Context, processorID string) (*task.Processor, error) {
	var p task.Processor
	if err := c.getJSON(ctx, fmt.Sprintf("/api/processors/%s", processorID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SendBrokerMessage relays a message between a requester and a processor.
func (c *APIClient) SendBrokerMessage(ctx context.Context, taskID, senderID, senderRole string, content json.RawMessage) error {
	body := map[string]any{
		"task_id":     taskID,
		"sender_id":   senderID,
		"sender_role": senderRole,
		"content":     content,
	}
	return c.postJSON(ctx, "/api/messages", body, nil)
}

// WaitForHealthy polls the health endpoint until the service responds.
func (c *APIClient) WaitForHealthy(ctx context.Context) error {
	ticker := time.NewTicker(config.DefaultPollInterval)
	defer ticker.Stop()

	for {
		if err := c.getJSON(ctx, "/api/health", nil); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("service did not become healthy: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// WaitForStatus polls the status endpoint until one of the wanted
// statuses is reached. Failure statuses outside the wanted set abort
// the wait early.
func (c *APIClient) WaitForStatus(ctx context.Context, id string, want ...task.Status) (*TaskStatus, error) {
	wanted := make(map[task.Status]bool, len(want))
	for _, s := range want {
		wanted[s] = true
	}

	ticker := time.NewTicker(config.DefaultPollInterval)
	defer ticker.Stop()

	var last *TaskStatus
	for {
		status, err := c.GetStatus(ctx, id)
		if err == nil {
			last = status
			current := task.Status(status.Status)
			if wanted[current] {
				return status, nil
			}
			switch current {
			case task.StatusClarificationFailed, task.StatusRegistrationFailed,
				task.StatusMatchingFailed, task.StatusFailed:
				return status, fmt.Errorf("task %s failed with status %s: %s", id, status.Status, status.Error)
			}
		}

		select {
		case <-ctx.Done():
			if last != nil {
				return last, fmt.Errorf("timed out waiting for %v, last status %s: %w", want, last.Status, ctx.Err())
			}
			return nil, fmt.Errorf("timed out waiting for %v: %w", want, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *APIClient) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *APIClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *APIClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("unmarshal response: %w (body: %s)", err, string(body))
		}
	}
	return nil
}
