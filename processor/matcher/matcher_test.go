package matcher

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360studio/agentbus/event"
	"github.com/c360studio/agentbus/llm/testutil"
	"github.com/c360studio/agentbus/prompt"
	"github.com/c360studio/agentbus/storage"
	"github.com/c360studio/agentbus/task"
)

// ---------------------------------------------------------------------------
// In-memory fakes for the storage ports.
// ---------------------------------------------------------------------------

type memTasks struct {
	mu    sync.Mutex
	rows  map[string]*task.Task
	moves []task.Status
}

func newMemTasks() *memTasks {
	return &memTasks{rows: map[string]*task.Task{}}
}

func (m *memTasks) CreateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[t.TaskID]; !exists {
		cp := *t
		m.rows[t.TaskID] = &cp
	}
	return nil
}

func (m *memTasks) GetTask(_ context.Context, taskID string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[taskID]
	if !ok {
		return nil, storage.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTasks) UpdateStatus(_ context.Context, taskID string, to task.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[taskID]
	if !ok {
		return storage.ErrTaskNotFound
	}
	if t.Status == to {
		return nil
	}
	if err := task.Transition(t.Status, to); err != nil {
		return storage.ErrInvalidTransition
	}
	t.Status = to
	m.moves = append(m.moves, to)
	return nil
}

func (m *memTasks) SetAssignment(_ context.Context, taskID, processorID, planURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[taskID]
	if !ok {
		return storage.ErrTaskNotFound
	}
	if processorID != "" {
		t.AssignedProcessorID = processorID
	}
	if planURI != "" {
		t.WorkflowPlanURI = planURI
	}
	return nil
}

func (m *memTasks) SetError(_ context.Context, taskID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.rows[taskID]; ok {
		t.Error = errMsg
	}
	return nil
}

func (m *memTasks) statusMoves() []task.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]task.Status(nil), m.moves...)
}

type memProcessors struct {
	mu            sync.Mutex
	rows          []*task.Processor
	statusWrites  map[string][]task.ProcessorStatus
	failByTags    error
	failStatusSet error
}

func newMemProcessors(rows ...*task.Processor) *memProcessors {
	return &memProcessors{rows: rows, statusWrites: map[string][]task.ProcessorStatus{}}
}

func (m *memProcessors) Register(_ context.Context, p *task.Processor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, p)
	return nil
}

func (m *memProcessors) GetProcessor(_ context.Context, id string) (*task.Processor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.ProcessorID == id {
			return p, nil
		}
	}
	return nil, storage.ErrProcessorNotFound
}

func (m *memProcessors) ListActive(_ context.Context, limit int) ([]*task.Processor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*task.Processor
	for _, p := range m.rows {
		if p.Status == task.ProcessorActive {
			out = append(out, p)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memProcessors) FindByTags(_ context.Context, tags []string) ([]*task.Processor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failByTags != nil {
		return nil, m.failByTags
	}
	want := map[string]struct{}{}
	for _, t := range tags {
		want[t] = struct{}{}
	}
	var out []*task.Processor
	for _, p := range m.rows {
		if p.Status != task.ProcessorActive {
			continue
		}
		for _, t := range p.CapabilityTags {
			if _, ok := want[t]; ok {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (m *memProcessors) UpdateProcessorStatus(_ context.Context, id string, status task.ProcessorStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStatusSet != nil {
		return m.failStatusSet
	}
	m.statusWrites[id] = append(m.statusWrites[id], status)
	for _, p := range m.rows {
		if p.ProcessorID == id {
			p.Status = status
		}
	}
	return nil
}

func (m *memProcessors) writesFor(id string) []task.ProcessorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]task.ProcessorStatus(nil), m.statusWrites[id]...)
}

type memVectors struct {
	mu         sync.Mutex
	embeddings map[string][]float32
	queryHits  []storage.VectorMatch
}

func (m *memVectors) Upsert(_ context.Context, id string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.embeddings == nil {
		m.embeddings = map[string][]float32{}
	}
	m.embeddings[id] = embedding
	return nil
}

func (m *memVectors) Query(_ context.Context, _ []float32, topK int) ([]storage.VectorMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hits := m.queryHits
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return append([]storage.VectorMatch(nil), hits...), nil
}

func (m *memVectors) Fetch(_ context.Context, id string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	emb, ok := m.embeddings[id]
	if !ok {
		return nil, storage.ErrProcessorNotFound
	}
	return emb, nil
}

type memBlobs struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func (m *memBlobs) PutJSON(_ context.Context, path string, v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		m.docs = map[string][]byte{}
	}
	m.docs[path] = raw
	return "blob://" + path, nil
}

func (m *memBlobs) GetJSON(_ context.Context, uri string, out any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.docs[strings.TrimPrefix(uri, "blob://")]
	if !ok {
		return storage.ErrBlobNotFound
	}
	return json.Unmarshal(raw, out)
}

type memStates struct {
	mu       sync.Mutex
	statuses map[string]storage.StatusEntry
}

func (m *memStates) SetStatus(_ context.Context, id string, status task.Status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses == nil {
		m.statuses = map[string]storage.StatusEntry{}
	}
	m.statuses[id] = storage.StatusEntry{Status: status, Error: errMsg}
	return nil
}

func (m *memStates) GetStatus(_ context.Context, id string) (*storage.StatusEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.statuses[id]
	if !ok {
		return nil, storage.ErrStateNotFound
	}
	return &entry, nil
}

func (m *memStates) LinkTask(_ context.Context, dialogueID, finalTaskID string, status task.Status) error {
	_ = m.SetStatus(context.Background(), dialogueID, status, "")
	return m.SetStatus(context.Background(), finalTaskID, status, "")
}

func (m *memStates) SaveDialogue(context.Context, string, []byte, string) error { return nil }

func (m *memStates) GetDialogue(context.Context, string) ([]byte, error) {
	return nil, storage.ErrStateNotFound
}

func (m *memStates) SaveSpec(context.Context, string, *task.Specification) error { return nil }

func (m *memStates) GetSpec(context.Context, string) (*task.Specification, error) {
	return nil, storage.ErrStateNotFound
}

func (m *memStates) LockDialogue(context.Context, string) (func(), error) {
	return func() {}, nil
}

type submission struct {
	taskID  string
	planURI string
	ids     []string
	prices  []float64
}

type memBackend struct {
	mu          sync.Mutex
	submissions []submission
	submitErr   error
}

func (m *memBackend) CreateTaskOnContract(_ context.Context, _, _ string) (string, error) {
	return "task-created", nil
}

func (m *memBackend) UpdateTaskCandidates(_ context.Context, sub *event.CandidateSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return m.submitErr
	}
	m.submissions = append(m.submissions, submission{
		taskID:  sub.TaskID,
		planURI: sub.WorkflowPlanURI,
		ids:     sub.CandidateProcessorIDs,
		prices:  sub.CandidatePrices,
	})
	return nil
}

func (m *memBackend) all() []submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]submission(nil), m.submissions...)
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type matcherFixture struct {
	component *Component
	tasks     *memTasks
	procs     *memProcessors
	vectors   *memVectors
	blobs     *memBlobs
	states    *memStates
	backend   *memBackend
	llm       *testutil.MockLLMClient
}

func newMatcher(t *testing.T, cfg Config, procs *memProcessors, mock *testutil.MockLLMClient) *matcherFixture {
	t.Helper()
	fix := &matcherFixture{
		tasks:   newMemTasks(),
		procs:   procs,
		vectors: &memVectors{},
		blobs:   &memBlobs{},
		states:  &memStates{},
		backend: &memBackend{},
		llm:     mock,
	}

	deps := Deps{
		Tasks:      fix.tasks,
		Processors: fix.procs,
		Vectors:    fix.vectors,
		Blobs:      fix.blobs,
		States:     fix.states,
		Backend:    fix.backend,
		Prompts:    prompt.NewStore("", nil),
	}
	if mock != nil {
		deps.LLM = mock
	}

	comp, err := New(cfg, deps)
	require.NoError(t, err)
	fix.component = comp
	return fix
}

// seedTask stores a spec blob and a task row pointing at it.
func (f *matcherFixture) seedTask(t *testing.T, taskID string, spec *task.Specification, status task.Status) {
	t.Helper()
	uri, err := f.blobs.PutJSON(context.Background(), "task-specs/"+taskID+".json", spec)
	require.NoError(t, err)
	require.NoError(t, f.tasks.CreateTask(context.Background(), &task.Task{
		TaskID:           taskID,
		RequesterID:      "u1",
		SpecificationURI: uri,
		Status:           status,
	}))
}

func activeProcessor(id string, tags []string, price float64) *task.Processor {
	return &task.Processor{
		ProcessorID:    id,
		Name:           "proc " + id,
		Description:    "processor " + id,
		CapabilityTags: tags,
		EndpointURL:    "http://" + id + ".invalid",
		Status:         task.ProcessorActive,
		Pricing:        task.Pricing{Model: "fixed", Price: price},
	}
}
