package matcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/agentbus/buserr"
	"github.com/c360studio/agentbus/llm/testutil"
	"github.com/c360studio/agentbus/storage"
	"github.com/c360studio/agentbus/task"
)

func TestMatchHappyPath(t *testing.T) {
	srv := healthyServer(t)

	p1 := activeProcessor("p1", []string{"pdf"}, 2)
	p1.EndpointURL = srv.URL
	p2 := activeProcessor("p2", []string{"pdf", "summary"}, 1)
	p2.EndpointURL = srv.URL

	fix := newMatcher(t, Config{MaxCandidates: 3}, newMemProcessors(p1, p2), nil)
	fix.seedTask(t, "t1", &task.Specification{
		Description: "summarise PDF",
		Tags:        []string{"pdf"},
	}, task.StatusPendingMatch)

	require.NoError(t, fix.component.Match(context.Background(), "t1"))

	// Durable lifecycle: PendingMatch -> Matching -> PendingConfirmation.
	assert.Equal(t, []task.Status{task.StatusMatching, task.StatusPendingConfirmation}, fix.tasks.statusMoves())

	row, err := fix.tasks.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusPendingConfirmation, row.Status)

	subs := fix.backend.all()
	require.Len(t, subs, 1)
	assert.Equal(t, "t1", subs[0].taskID)
	// Cheaper p2 outranks p1; prices stay aligned with ids.
	assert.Equal(t, []string{"p2", "p1"}, subs[0].ids)
	assert.Equal(t, []float64{1, 2}, subs[0].prices)
	assert.Empty(t, subs[0].planURI)

	entry, err := fix.states.GetStatus(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusPendingConfirmation, entry.Status)
}

func TestMatchIdempotentSkip(t *testing.T) {
	for _, status := range []task.Status{
		task.StatusMatching,
		task.StatusPendingConfirmation,
		task.StatusConfirmed,
		task.StatusExecuting,
		task.StatusCompleted,
	} {
		t.Run(string(status), func(t *testing.T) {
			fix := newMatcher(t, Config{}, newMemProcessors(), nil)
			fix.seedTask(t, "t1", &task.Specification{}, status)

			require.NoError(t, fix.component.Match(context.Background(), "t1"))

			// No status movement, no backend call.
			assert.Empty(t, fix.tasks.statusMoves())
			assert.Empty(t, fix.backend.all())
		})
	}
}

func TestMatchUnknownTask(t *testing.T) {
	fix := newMatcher(t, Config{}, newMemProcessors(), nil)

	err := fix.component.Match(context.Background(), "t-missing")
	assert.True(t, buserr.Is(err, buserr.KindNotFound))

	entry, gerr := fix.states.GetStatus(context.Background(), "t-missing")
	require.NoError(t, gerr)
	assert.Equal(t, task.StatusFailed, entry.Status)
}

func TestMatchUnexpectedStatus(t *testing.T) {
	fix := newMatcher(t, Config{}, newMemProcessors(), nil)
	fix.seedTask(t, "t1", &task.Specification{}, task.StatusPendingClarification)

	err := fix.component.Match(context.Background(), "t1")
	assert.True(t, buserr.Is(err, buserr.KindConflict))
	assert.Empty(t, fix.backend.all())
}

func TestMatchNoCandidates(t *testing.T) {
	fix := newMatcher(t, Config{}, newMemProcessors(), nil)
	fix.seedTask(t, "t1", &task.Specification{
		Description: "quantum teleport",
		Tags:        []string{"quantum-teleport"},
	}, task.StatusPendingMatch)

	err := fix.component.Match(context.Background(), "t1")
	assert.True(t, buserr.Is(err, buserr.KindNoMatch))

	row, gerr := fix.tasks.GetTask(context.Background(), "t1")
	require.NoError(t, gerr)
	assert.Equal(t, task.StatusNoMatchFound, row.Status)

	// NoMatchFound is retry-eligible: a later event runs again.
	err = fix.component.Match(context.Background(), "t1")
	assert.True(t, buserr.Is(err, buserr.KindNoMatch))
}

func TestMatchNoneHealthy(t *testing.T) {
	p := activeProcessor("p1", []string{"pdf"}, 1)
	p.EndpointURL = "http://127.0.0.1:1" // nothing listens here

	fix := newMatcher(t, Config{HealthCheckTimeoutMs: 100}, newMemProcessors(p), nil)
	fix.seedTask(t, "t1", &task.Specification{Tags: []string{"pdf"}}, task.StatusPendingMatch)

	err := fix.component.Match(context.Background(), "t1")
	assert.True(t, buserr.Is(err, buserr.KindNoMatch))

	row, gerr := fix.tasks.GetTask(context.Background(), "t1")
	require.NoError(t, gerr)
	assert.Equal(t, task.StatusNoMatchFound, row.Status)
}

func TestMatchBackendFailure(t *testing.T) {
	srv := healthyServer(t)
	p := activeProcessor("p1", []string{"pdf"}, 1)
	p.EndpointURL = srv.URL

	fix := newMatcher(t, Config{}, newMemProcessors(p), nil)
	fix.backend.submitErr = assert.AnError
	fix.seedTask(t, "t1", &task.Specification{Tags: []string{"pdf"}}, task.StatusPendingMatch)

	err := fix.component.Match(context.Background(), "t1")
	require.Error(t, err)

	// Submission failure leaves the task retry-eligible.
	row, gerr := fix.tasks.GetTask(context.Background(), "t1")
	require.NoError(t, gerr)
	assert.Equal(t, task.StatusMatchingFailed, row.Status)

	fix.backend.submitErr = nil
	require.NoError(t, fix.component.Match(context.Background(), "t1"))
	row, gerr = fix.tasks.GetTask(context.Background(), "t1")
	require.NoError(t, gerr)
	assert.Equal(t, task.StatusPendingConfirmation, row.Status)
}

func TestMatchDisableFiltering(t *testing.T) {
	srv := healthyServer(t)
	p1 := activeProcessor("p1", nil, 1) // no tag overlap with the task
	p1.EndpointURL = srv.URL

	fix := newMatcher(t, Config{DisableFiltering: true}, newMemProcessors(p1), nil)
	fix.seedTask(t, "t1", &task.Specification{Tags: []string{"pdf"}}, task.StatusPendingMatch)

	require.NoError(t, fix.component.Match(context.Background(), "t1"))
	subs := fix.backend.all()
	require.Len(t, subs, 1)
	assert.Equal(t, []string{"p1"}, subs[0].ids)
}

func TestDiscoveryEmptyWithoutEmbedder(t *testing.T) {
	fix := newMatcher(t, Config{}, newMemProcessors(activeProcessor("p1", []string{"pdf"}, 1)), nil)

	// Empty tag list and no embedder wired: nothing to discover.
	pool, embedding, err := fix.component.discover(context.Background(), &task.Specification{})
	require.NoError(t, err)
	assert.Empty(t, pool)
	assert.Nil(t, embedding)
}

func TestDiscoveryUnionDeduplicates(t *testing.T) {
	p1 := activeProcessor("p1", []string{"pdf"}, 1)
	p2 := activeProcessor("p2", nil, 1)
	procs := newMemProcessors(p1, p2)

	mock := &testutil.MockLLMClient{Embeddings: [][]float32{{1, 0}}}
	fix := newMatcher(t, Config{MaxCandidates: 5}, procs, mock)
	fix.vectors.queryHits = []storage.VectorMatch{
		{ProcessorID: "p1", Score: 0.92},
		{ProcessorID: "p2", Score: 0.81},
	}

	pool, embedding, err := fix.component.discover(context.Background(), &task.Specification{
		Description: "summarise PDF",
		Tags:        []string{"pdf"},
	})
	require.NoError(t, err)
	require.NotNil(t, embedding)

	// p1 appears in both branches but only once in the union; tag hits
	// come first.
	require.Len(t, pool, 2)
	assert.Equal(t, "p1", pool[0].ProcessorID)
	assert.Equal(t, "p2", pool[1].ProcessorID)
}
