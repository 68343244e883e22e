package registryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/agentbus/buserr"
	"github.com/c360studio/agentbus/llm/testutil"
	"github.com/c360studio/agentbus/storage"
	"github.com/c360studio/agentbus/task"
)

type fakeProcessors struct {
	mu   sync.Mutex
	rows map[string]*task.Processor
}

func newFakeProcessors() *fakeProcessors {
	return &fakeProcessors{rows: map[string]*task.Processor{}}
}

func (f *fakeProcessors) Register(_ context.Context, p *task.Processor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.rows[p.ProcessorID] = &cp
	return nil
}

func (f *fakeProcessors) GetProcessor(_ context.Context, id string) (*task.Processor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return nil, storage.ErrProcessorNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProcessors) ListActive(_ context.Context, limit int) ([]*task.Processor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*task.Processor
	for _, p := range f.rows {
		if p.Status == task.ProcessorActive && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProcessors) FindByTags(context.Context, []string) ([]*task.Processor, error) {
	return nil, nil
}

func (f *fakeProcessors) UpdateProcessorStatus(context.Context, string, task.ProcessorStatus) error {
	return nil
}

type fakeVectors struct {
	mu       sync.Mutex
	upserted map[string][]float32
	err      error
}

func (f *fakeVectors) Upsert(_ context.Context, id string, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.upserted == nil {
		f.upserted = map[string][]float32{}
	}
	f.upserted[id] = embedding
	return nil
}

func (f *fakeVectors) Query(context.Context, []float32, int) ([]storage.VectorMatch, error) {
	return nil, nil
}

func (f *fakeVectors) Fetch(context.Context, string) ([]float32, error) {
	return nil, storage.ErrProcessorNotFound
}

func (f *fakeVectors) stored(id string) []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserted[id]
}

type registryFixture struct {
	component *Component
	procs     *fakeProcessors
	vectors   *fakeVectors
}

func newRegistry(t *testing.T, embedder Embedder) *registryFixture {
	t.Helper()
	fix := &registryFixture{procs: newFakeProcessors(), vectors: &fakeVectors{}}

	comp, err := New(Config{}, Deps{
		Processors: fix.procs,
		Vectors:    fix.vectors,
		Embedder:   embedder,
	})
	require.NoError(t, err)
	fix.component = comp
	return fix
}

func validProcessor() *task.Processor {
	return &task.Processor{
		ProcessorID:     "proc-1",
		Name:            "PDF summariser",
		Description:     "Summarises PDF documents",
		CapabilityTags:  []string{"PDF", " summary ", "pdf"},
		EndpointURL:     "http://proc-1.example.com",
		ReputationScore: 4.2,
		SuccessRate:     0.97,
		Pricing:         task.Pricing{Model: "fixed", Price: 2},
	}
}

func TestRegisterProcessorNormalisesTags(t *testing.T) {
	mock := &testutil.MockLLMClient{Embeddings: [][]float32{{0.1, 0.2}}}
	fix := newRegistry(t, mock)

	p := validProcessor()
	require.NoError(t, fix.component.RegisterProcessor(context.Background(), p))

	stored, err := fix.procs.GetProcessor(context.Background(), "proc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pdf", "summary"}, stored.CapabilityTags)
	assert.Equal(t, task.ProcessorActive, stored.Status)

	assert.Equal(t, []float32{0.1, 0.2}, fix.vectors.stored("proc-1"))
}

func TestRegisterProcessorValidation(t *testing.T) {
	fix := newRegistry(t, nil)

	cases := map[string]func(*task.Processor){
		"missing id":          func(p *task.Processor) { p.ProcessorID = "" },
		"missing name":        func(p *task.Processor) { p.Name = " " },
		"missing description": func(p *task.Processor) { p.Description = "" },
		"missing endpoint":    func(p *task.Processor) { p.EndpointURL = "" },
		"reputation range":    func(p *task.Processor) { p.ReputationScore = 6 },
		"success rate range":  func(p *task.Processor) { p.SuccessRate = 1.5 },
		"bad status":          func(p *task.Processor) { p.Status = "Sleeping" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validProcessor()
			mutate(p)
			err := fix.component.RegisterProcessor(context.Background(), p)
			assert.True(t, buserr.Is(err, buserr.KindValidation))
		})
	}
}

func TestRegisterProcessorWithoutEmbedder(t *testing.T) {
	fix := newRegistry(t, nil)

	require.NoError(t, fix.component.RegisterProcessor(context.Background(), validProcessor()))
	assert.Nil(t, fix.vectors.stored("proc-1"))
}

func TestRegisterProcessorEmbeddingFailureDegrades(t *testing.T) {
	t.Run("embed error", func(t *testing.T) {
		// EmbedErr also flips SupportsEmbedding off; either path must
		// leave the registration intact.
		mock := &testutil.MockLLMClient{EmbedErr: assert.AnError}
		fix := newRegistry(t, mock)

		require.NoError(t, fix.component.RegisterProcessor(context.Background(), validProcessor()))
		assert.Nil(t, fix.vectors.stored("proc-1"))
	})

	t.Run("upsert error", func(t *testing.T) {
		mock := &testutil.MockLLMClient{Embeddings: [][]float32{{0.1}}}
		fix := newRegistry(t, mock)
		fix.vectors.err = assert.AnError

		require.NoError(t, fix.component.RegisterProcessor(context.Background(), validProcessor()))

		stored, err := fix.procs.GetProcessor(context.Background(), "proc-1")
		require.NoError(t, err)
		assert.Equal(t, task.ProcessorActive, stored.Status)
	})
}

func TestProcessorEndpoints(t *testing.T) {
	fix := newRegistry(t, nil)
	mux := http.NewServeMux()
	fix.component.RegisterHTTPHandlers("api", mux)

	raw, err := json.Marshal(validProcessor())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/processors", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/processors", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []*task.Processor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "proc-1", listed[0].ProcessorID)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/processors/proc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/processors/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessorEndpointsRejectBadRegistration(t *testing.T) {
	fix := newRegistry(t, nil)
	mux := http.NewServeMux()
	fix.component.RegisterHTTPHandlers("api", mux)

	req := httptest.NewRequest(http.MethodPost, "/api/processors", bytes.NewReader([]byte(`{"name": "no id"}`)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "error")
}

func TestNormaliseTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, normaliseTags([]string{"A", "b", " a ", ""}))
	assert.Empty(t, normaliseTags(nil))
}
