package taskapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/c360studio/agentbus/buserr"
	"github.com/c360studio/agentbus/event"
	"github.com/c360studio/agentbus/storage"
)

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// statusResponse is the GET /tasks/{id}/status body.
type statusResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// RegisterHTTPHandlers registers the task handlers under the given
// prefix (e.g. "api"):
//
//	GET  <prefix>/tasks/{id}
//	GET  <prefix>/tasks/{id}/status
//	POST <prefix>/webhooks/process-task
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = normalisePrefix(prefix)
	mux.HandleFunc(prefix+"tasks/", c.handleTasks(prefix))
	mux.HandleFunc(prefix+"webhooks/process-task", c.handleProcessTask)
}

func normalisePrefix(prefix string) string {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	return prefix
}

// handleTasks routes GET /tasks/{id} and GET /tasks/{id}/status.
func (c *Component) handleTasks(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, prefix+"tasks/")
		id, action, hasAction := strings.Cut(rest, "/")
		if id == "" {
			http.NotFound(w, r)
			return
		}
		switch {
		case !hasAction:
			c.handleGetTask(w, r, id)
		case action == "status":
			c.handleGetStatus(w, r, id)
		default:
			http.NotFound(w, r)
		}
	}
}

func (c *Component) handleGetTask(w http.ResponseWriter, r *http.Request, taskID string) {
	row, err := c.deps.Tasks.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			err = buserr.Wrap(buserr.KindNotFound, "task not found", err)
		}
		buserr.WriteJSON(w, err, c.config.Development)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleGetStatus reads status cache-first: the cache covers dialogue
// ids and follows the final-task pointer; the durable row is the
// fallback once the cache entry has expired.
func (c *Component) handleGetStatus(w http.ResponseWriter, r *http.Request, taskID string) {
	if entry, err := c.deps.States.GetStatus(r.Context(), taskID); err == nil {
		writeJSON(w, http.StatusOK, statusResponse{
			TaskID: taskID,
			Status: string(entry.Status),
			Error:  entry.Error,
		})
		return
	}

	row, err := c.deps.Tasks.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			err = buserr.Wrap(buserr.KindNotFound, "task not found", err)
		}
		buserr.WriteJSON(w, err, c.config.Development)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		TaskID: row.TaskID,
		Status: string(row.Status),
		Error:  row.Error,
	})
}

// handleProcessTask accepts a re-delivered pending-match event and
// dispatches matching in the background. The webhook acknowledges with
// 202 before the run completes; the matcher's own idempotency guard
// makes duplicate deliveries harmless.
func (c *Component) handleProcessTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if c.deps.Matcher == nil {
		buserr.WriteJSON(w, buserr.New(buserr.KindConfiguration, "matching is not wired"), c.config.Development)
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		buserr.WriteJSON(w, buserr.Wrap(buserr.KindValidation, "read request body", err), c.config.Development)
		return
	}

	evt, err := event.ParseEventMessage[event.TaskPendingMatchEvent](raw)
	if err != nil || evt.TaskID == "" {
		buserr.WriteJSON(w, buserr.New(buserr.KindValidation, "invalid pending-match event"), c.config.Development)
		return
	}

	c.dispatchMatch(evt.TaskID)
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Task dispatched for matching"})
}

func (c *Component) dispatchMatch(taskID string) {
	c.mu.RLock()
	base := c.baseCtx
	c.mu.RUnlock()

	c.dispatching.Add(1)
	go func() {
		defer c.dispatching.Done()
		ctx, cancel := context.WithTimeout(base, c.dispatchTimeout())
		defer cancel()

		if err := c.deps.Matcher.Match(ctx, taskID); err != nil {
			c.logger.Warn("Webhook matching run failed", "task_id", taskID, "error", err)
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
