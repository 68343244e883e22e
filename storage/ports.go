// Package storage defines the persistence ports of the bus: the durable
// task and processor stores, the vector index, the blob store, and the
// ephemeral state cache. Concrete implementations live in the postgres,
// statestore and blobstore subpackages.
package storage

import (
	"context"
	"time"

	"github.com/c360studio/agentbus/task"
)

// StatusEntry is the cached status record kept per task (or dialogue)
// id. FinalTaskID, when set, points at the durable id a dialogue was
// linked to; reads through the dialogue id follow the pointer.
type StatusEntry struct {
	Status      task.Status `json:"status"`
	Error       string      `json:"error,omitempty"`
	FinalTaskID string      `json:"final_task_id,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TaskStore is the durable task record store. It exclusively owns the
// task row; status updates are guarded by the lifecycle graph.
type TaskStore interface {
	// CreateTask inserts a task row. Inserting an existing TaskID is a
	// no-op so registration stays idempotent.
	CreateTask(ctx context.Context, t *task.Task) error
	// GetTask returns the row or ErrTaskNotFound.
	GetTask(ctx context.Context, taskID string) (*task.Task, error)
	// UpdateStatus moves the task along a legal lifecycle edge. Illegal
	// moves return ErrInvalidTransition.
	UpdateStatus(ctx context.Context, taskID string, to task.Status) error
	// SetAssignment records the matching outcome on the row.
	SetAssignment(ctx context.Context, taskID, processorID, workflowPlanURI string) error
	// SetError records a failure message on the row.
	SetError(ctx context.Context, taskID, errMsg string) error
}

// ProcessorStore is the durable processor catalog.
type ProcessorStore interface {
	// Register upserts a processor row keyed by ProcessorID.
	Register(ctx context.Context, p *task.Processor) error
	// GetProcessor returns the row or ErrProcessorNotFound.
	GetProcessor(ctx context.Context, processorID string) (*task.Processor, error)
	// ListActive returns up to limit Active processors in insertion order.
	ListActive(ctx context.Context, limit int) ([]*task.Processor, error)
	// FindByTags returns Active processors whose capability tags overlap
	// the given set.
	FindByTags(ctx context.Context, tags []string) ([]*task.Processor, error)
	// UpdateProcessorStatus writes a new availability status and bumps
	// LastCheckedAt.
	UpdateProcessorStatus(ctx context.Context, processorID string, status task.ProcessorStatus) error
}

// VectorMatch is one semantic-query hit.
type VectorMatch struct {
	ProcessorID string
	// Score is cosine similarity in [-1,1].
	Score float64
}

// VectorIndex stores one description embedding per processor and
// answers nearest-neighbour queries filtered to Active processors.
type VectorIndex interface {
	Upsert(ctx context.Context, processorID string, embedding []float32) error
	Query(ctx context.Context, embedding []float32, topK int) ([]VectorMatch, error)
	// Fetch returns the stored embedding or ErrProcessorNotFound.
	Fetch(ctx context.Context, processorID string) ([]float32, error)
}

// BlobStore holds immutable JSON documents (task specifications,
// workflow plans) addressed by opaque URIs.
type BlobStore interface {
	// PutJSON stores v at the given path and returns its URI.
	PutJSON(ctx context.Context, path string, v any) (string, error)
	// GetJSON resolves a URI and unmarshals the document into out.
	GetJSON(ctx context.Context, uri string, out any) error
}

// StateStore is the ephemeral cache: dialogue state, cached status and
// the optional spec copy. Every write carries the store's TTL.
type StateStore interface {
	// SetStatus writes the status entry for id. Error is optional.
	SetStatus(ctx context.Context, id string, status task.Status, errMsg string) error
	// GetStatus reads the entry for id, transparently following the
	// FinalTaskID pointer. Returns ErrStateNotFound when absent.
	GetStatus(ctx context.Context, id string) (*StatusEntry, error)
	// LinkTask atomically points the dialogue id at the final task id
	// and writes the same status under both keys.
	LinkTask(ctx context.Context, dialogueID, finalTaskID string, status task.Status) error
	// SaveDialogue writes serialised dialogue state and refreshes the
	// derived status entry for the same id.
	SaveDialogue(ctx context.Context, dialogueID string, state []byte, stage string) error
	// GetDialogue returns the serialised state or ErrStateNotFound.
	GetDialogue(ctx context.Context, dialogueID string) ([]byte, error)
	// SaveSpec keeps a cache copy of the formatted specification.
	SaveSpec(ctx context.Context, id string, spec *task.Specification) error
	// GetSpec returns the cached spec or ErrStateNotFound.
	GetSpec(ctx context.Context, id string) (*task.Specification, error)
	// LockDialogue serialises concurrent turns on one dialogue. The
	// returned release function must be called; acquisition blocks
	// until the lock frees or ctx expires (then ErrLockHeld).
	LockDialogue(ctx context.Context, dialogueID string) (func(), error)
}
