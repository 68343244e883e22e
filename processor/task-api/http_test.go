package taskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/agentbus/storage"
	"github.com/c360studio/agentbus/task"
)

type fakeTasks struct {
	rows map[string]*task.Task
}

func (f *fakeTasks) CreateTask(context.Context, *task.Task) error { return nil }

func (f *fakeTasks) GetTask(_ context.Context, taskID string) (*task.Task, error) {
	row, ok := f.rows[taskID]
	if !ok {
		return nil, storage.ErrTaskNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeTasks) UpdateStatus(context.Context, string, task.Status) error { return nil }

func (f *fakeTasks) SetAssignment(context.Context, string, string, string) error { return nil }

func (f *fakeTasks) SetError(context.Context, string, string) error { return nil }

type fakeStates struct {
	entries map[string]*storage.StatusEntry
}

func (f *fakeStates) SetStatus(context.Context, string, task.Status, string) error { return nil }

func (f *fakeStates) GetStatus(_ context.Context, id string) (*storage.StatusEntry, error) {
	entry, ok := f.entries[id]
	if !ok {
		return nil, storage.ErrStateNotFound
	}
	return entry, nil
}

func (f *fakeStates) LinkTask(context.Context, string, string, task.Status) error { return nil }

func (f *fakeStates) SaveDialogue(context.Context, string, []byte, string) error { return nil }

func (f *fakeStates) GetDialogue(context.Context, string) ([]byte, error) {
	return nil, storage.ErrStateNotFound
}

func (f *fakeStates) SaveSpec(context.Context, string, *task.Specification) error { return nil }

func (f *fakeStates) GetSpec(context.Context, string) (*task.Specification, error) {
	return nil, storage.ErrStateNotFound
}

func (f *fakeStates) LockDialogue(context.Context, string) (func(), error) {
	return func() {}, nil
}

type fakeMatcher struct {
	mu      sync.Mutex
	matched []string
}

func (f *fakeMatcher) Match(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matched = append(f.matched, taskID)
	return nil
}

func (f *fakeMatcher) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.matched...)
}

type taskAPIFixture struct {
	component *Component
	matcher   *fakeMatcher
	mux       *http.ServeMux
}

func newTaskAPI(t *testing.T, entries map[string]*storage.StatusEntry, rows ...*task.Task) *taskAPIFixture {
	t.Helper()
	tasks := &fakeTasks{rows: map[string]*task.Task{}}
	for _, row := range rows {
		tasks.rows[row.TaskID] = row
	}
	if entries == nil {
		entries = map[string]*storage.StatusEntry{}
	}
	matcher := &fakeMatcher{}

	comp, err := New(Config{}, Deps{
		Tasks:   tasks,
		States:  &fakeStates{entries: entries},
		Matcher: matcher,
	})
	require.NoError(t, err)
	require.NoError(t, comp.Start(context.Background()))
	t.Cleanup(func() { _ = comp.Stop(time.Second) })

	mux := http.NewServeMux()
	comp.RegisterHTTPHandlers("api", mux)
	return &taskAPIFixture{component: comp, matcher: matcher, mux: mux}
}

func (f *taskAPIFixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGetTaskStatusFromCache(t *testing.T) {
	fix := newTaskAPI(t, map[string]*storage.StatusEntry{
		"t1": {Status: task.StatusMatching},
	})

	rec := fix.get("/api/tasks/t1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "t1", resp.TaskID)
	assert.Equal(t, "Matching", resp.Status)
}

func TestGetTaskStatusDurableFallback(t *testing.T) {
	fix := newTaskAPI(t, nil, &task.Task{
		TaskID: "t1",
		Status: task.StatusPendingConfirmation,
	})

	rec := fix.get("/api/tasks/t1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PendingConfirmation", resp.Status)
}

func TestGetTaskStatusNotFound(t *testing.T) {
	fix := newTaskAPI(t, nil)

	rec := fix.get("/api/tasks/t-missing/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "error")
}

func TestGetTask(t *testing.T) {
	fix := newTaskAPI(t, nil, &task.Task{
		TaskID:           "t1",
		RequesterID:      "alice",
		SpecificationURI: "blob://task-specs/t1.json",
		Status:           task.StatusPendingMatch,
	})

	rec := fix.get("/api/tasks/t1")
	require.Equal(t, http.StatusOK, rec.Code)

	var row task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	assert.Equal(t, "alice", row.RequesterID)
	assert.Equal(t, task.StatusPendingMatch, row.Status)

	assert.Equal(t, http.StatusNotFound, fix.get("/api/tasks/t2").Code)
}

func TestProcessTaskWebhook(t *testing.T) {
	fix := newTaskAPI(t, nil)

	body := []byte(`{"task_id": "t1", "specification_uri": "blob://task-specs/t1.json", "requester_id": "alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/process-task", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	fix.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool {
		return len(fix.matcher.all()) == 1 && fix.matcher.all()[0] == "t1"
	}, time.Second, 10*time.Millisecond)
}

func TestProcessTaskWebhookEnvelope(t *testing.T) {
	fix := newTaskAPI(t, nil)

	// Bus deliveries arrive wrapped in the message envelope.
	body := []byte(`{"payload": {"task_id": "t2"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/process-task", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	fix.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool {
		matched := fix.matcher.all()
		return len(matched) == 1 && matched[0] == "t2"
	}, time.Second, 10*time.Millisecond)
}

func TestProcessTaskWebhookRejectsMalformed(t *testing.T) {
	fix := newTaskAPI(t, nil)

	for _, body := range []string{`not json`, `{"payload": {}}`, `{}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/process-task", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		fix.mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, fix.matcher.all())
}

func TestTaskRoutesMethodGuards(t *testing.T) {
	fix := newTaskAPI(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/t1/status", nil)
	rec := httptest.NewRecorder()
	fix.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/webhooks/process-task", nil)
	rec = httptest.NewRecorder()
	fix.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
