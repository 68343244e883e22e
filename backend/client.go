// Package backend talks to the task registration backend. When no
// backend URL is configured the mock-success client is used instead, so
// the bus runs end to end without an external contract.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/agentbus/buserr"
	"github.com/c360studio/agentbus/event"
)

// Client is the backend contract used by intake and matching.
type Client interface {
	// CreateTaskOnContract registers a clarified task and returns the
	// backend-assigned final task id.
	CreateTaskOnContract(ctx context.Context, requesterID, specificationURI string) (string, error)
	// UpdateTaskCandidates submits the matching outcome for a task.
	UpdateTaskCandidates(ctx context.Context, submission *event.CandidateSubmission) error
}

// New returns an HTTP client when a backend URL is configured,
// otherwise the mock-success client.
func New(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		logger.Info("no backend configured; using mock-success registration")
		return &MockClient{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "backend"),
	}
}

// HTTPClient calls a real backend over HTTP with bearer auth.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

type createTaskRequest struct {
	RequesterID      string `json:"requester_id"`
	SpecificationURI string `json:"specification_uri"`
}

type createTaskResponse struct {
	TaskID  string `json:"task_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// CreateTaskOnContract implements Client.
func (c *HTTPClient) CreateTaskOnContract(ctx context.Context, requesterID, specificationURI string) (string, error) {
	body := createTaskRequest{RequesterID: requesterID, SpecificationURI: specificationURI}

	var resp createTaskResponse
	if err := c.post(ctx, "/tasks", body, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.TaskID == "" {
		msg := resp.Error
		if msg == "" {
			msg = "backend rejected task registration"
		}
		return "", buserr.New(buserr.KindConfiguration, msg)
	}

	c.logger.Info("task registered on backend",
		"task_id", resp.TaskID, "requester_id", requesterID)
	return resp.TaskID, nil
}

// UpdateTaskCandidates implements Client.
func (c *HTTPClient) UpdateTaskCandidates(ctx context.Context, submission *event.CandidateSubmission) error {
	if err := submission.Validate(); err != nil {
		return buserr.Wrap(buserr.KindValidation, "invalid candidate submission", err)
	}
	path := fmt.Sprintf("/tasks/%s/candidates", submission.TaskID)
	if err := c.post(ctx, path, submission, nil); err != nil {
		return err
	}
	c.logger.Info("candidates submitted to backend", "task_id", submission.TaskID)
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal backend request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return buserr.Wrap(buserr.KindConfiguration, "backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return buserr.Newf(buserr.KindConfiguration,
			"backend returned %d for %s: %s", resp.StatusCode, path, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode backend response: %w", err)
		}
	}
	return nil
}

// MockClient is the mock-success path: registration returns a synthetic
// task id and candidate submission is a logged no-op.
type MockClient struct{}

// CreateTaskOnContract implements Client.
func (m *MockClient) CreateTaskOnContract(_ context.Context, requesterID, _ string) (string, error) {
	if requesterID == "" {
		return "", buserr.New(buserr.KindValidation, "requester_id is required")
	}
	return "task-" + uuid.New().String(), nil
}

// UpdateTaskCandidates implements Client.
func (m *MockClient) UpdateTaskCandidates(_ context.Context, submission *event.CandidateSubmission) error {
	return submission.Validate()
}
