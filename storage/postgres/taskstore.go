package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/c360studio/agentbus/storage"
	"github.com/c360studio/agentbus/task"
)

// TaskStore is the PostgreSQL-backed storage.TaskStore.
type TaskStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewTaskStore creates a TaskStore.
func NewTaskStore(db *sqlx.DB, logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{db: db, logger: logger.With("component", "taskstore")}
}

// CreateTask inserts a task row. Re-inserting an existing TaskID is a
// no-op so intake finalisation stays idempotent across retries.
func (s *TaskStore) CreateTask(ctx context.Context, t *task.Task) error {
	if t.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("unknown status %q", t.Status)
	}

	const q = `
        INSERT INTO tasks (task_id, requester_id, specification_uri, status)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (task_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, t.TaskID, t.RequesterID, t.SpecificationURI, t.Status); err != nil {
		return fmt.Errorf("create task %s: %w", t.TaskID, err)
	}
	return nil
}

// GetTask returns the task row or storage.ErrTaskNotFound.
func (s *TaskStore) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	const q = `
        SELECT task_id, requester_id, specification_uri, status,
               assigned_processor_id, workflow_plan_uri, result_uri, error,
               created_at, updated_at
        FROM tasks WHERE task_id = $1`

	var t task.Task
	if err := s.db.GetContext(ctx, &t, q, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return &t, nil
}

// UpdateStatus moves the task along a legal lifecycle edge. The current
// status is read under a row lock so concurrent updates serialise.
func (s *TaskStore) UpdateStatus(ctx context.Context, taskID string, to task.Status) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition %s: %w", taskID, err)
	}
	defer func() { _ = tx.Rollback() }()

	var current task.Status
	err = tx.GetContext(ctx, &current,
		`SELECT status FROM tasks WHERE task_id = $1 FOR UPDATE`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("read status %s: %w", taskID, err)
	}

	if current == to {
		// Retried delivery landing on the same edge; nothing to do.
		return tx.Commit()
	}
	if err := task.Transition(current, to); err != nil {
		s.logger.Warn("rejected status transition",
			"task_id", taskID, "from", current, "to", to)
		return fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, current, to)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = $2 WHERE task_id = $1`, taskID, to); err != nil {
		return fmt.Errorf("update status %s: %w", taskID, err)
	}
	return tx.Commit()
}

// SetAssignment records the matching outcome on the row. Either field
// may be empty; empty values leave the column untouched.
func (s *TaskStore) SetAssignment(ctx context.Context, taskID, processorID, workflowPlanURI string) error {
	const q = `
        UPDATE tasks
        SET assigned_processor_id = CASE WHEN $2 <> '' THEN $2 ELSE assigned_processor_id END,
            workflow_plan_uri     = CASE WHEN $3 <> '' THEN $3 ELSE workflow_plan_uri END
        WHERE task_id = $1`
	res, err := s.db.ExecContext(ctx, q, taskID, processorID, workflowPlanURI)
	if err != nil {
		return fmt.Errorf("set assignment %s: %w", taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrTaskNotFound
	}
	return nil
}

// SetError records a failure message on the row.
func (s *TaskStore) SetError(ctx context.Context, taskID, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET error = $2 WHERE task_id = $1`, taskID, errMsg)
	if err != nil {
		return fmt.Errorf("set error %s: %w", taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrTaskNotFound
	}
	return nil
}
