// Package postgres implements the durable task store, the processor
// catalog and the vector index on PostgreSQL (pgvector for the
// embedding column).
package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// EmbeddingDim is the dimensionality of stored description embeddings.
const EmbeddingDim = 1536

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS tasks (
    task_id               TEXT PRIMARY KEY,
    requester_id          TEXT NOT NULL,
    specification_uri     TEXT NOT NULL,
    status                TEXT NOT NULL,
    assigned_processor_id TEXT NOT NULL DEFAULT '',
    workflow_plan_uri     TEXT NOT NULL DEFAULT '',
    result_uri            TEXT NOT NULL DEFAULT '',
    error                 TEXT NOT NULL DEFAULT '',
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE OR REPLACE FUNCTION touch_updated_at() RETURNS trigger AS $$
BEGIN
    NEW.updated_at = now();
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS tasks_touch_updated_at ON tasks;
CREATE TRIGGER tasks_touch_updated_at
    BEFORE UPDATE ON tasks
    FOR EACH ROW EXECUTE FUNCTION touch_updated_at();

CREATE TABLE IF NOT EXISTS processors (
    seq                       BIGSERIAL,
    processor_id              TEXT PRIMARY KEY,
    name                      TEXT NOT NULL,
    description               TEXT NOT NULL,
    capability_tags           TEXT[] NOT NULL DEFAULT '{}',
    input_schema              JSONB,
    output_schema             JSONB,
    endpoint_url              TEXT NOT NULL,
    status                    TEXT NOT NULL DEFAULT 'Active',
    reputation_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
    completed_tasks           BIGINT NOT NULL DEFAULT 0,
    success_rate              DOUBLE PRECISION NOT NULL DEFAULT 0,
    average_execution_time_ms BIGINT NOT NULL DEFAULT 0,
    pricing                   JSONB NOT NULL DEFAULT '{}',
    last_checked_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS processors_capability_tags_idx
    ON processors USING GIN (capability_tags);

CREATE TABLE IF NOT EXISTS processor_embeddings (
    processor_id TEXT PRIMARY KEY REFERENCES processors (processor_id) ON DELETE CASCADE,
    embedding    vector(%d) NOT NULL
);
`

// EnsureSchema creates tables, indexes and the updated-at trigger.
// Every statement is idempotent so repeated startup is safe.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf(schema, EmbeddingDim)); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
