package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/c360studio/agentbus/storage"
	"github.com/c360studio/agentbus/task"
)

// ProcessorStore is the PostgreSQL-backed storage.ProcessorStore.
type ProcessorStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewProcessorStore creates a ProcessorStore.
func NewProcessorStore(db *sqlx.DB, logger *slog.Logger) *ProcessorStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessorStore{db: db, logger: logger.With("component", "processorstore")}
}

const processorColumns = `
    processor_id, name, description, capability_tags,
    input_schema, output_schema, endpoint_url, status,
    reputation_score, completed_tasks, success_rate,
    average_execution_time_ms, pricing, last_checked_at`

// Register upserts a processor row keyed by ProcessorID.
func (s *ProcessorStore) Register(ctx context.Context, p *task.Processor) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = task.ProcessorActive
	}

	pricing, err := json.Marshal(p.Pricing)
	if err != nil {
		return fmt.Errorf("marshal pricing: %w", err)
	}

	const q = `
        INSERT INTO processors (
            processor_id, name, description, capability_tags,
            input_schema, output_schema, endpoint_url, status,
            reputation_score, completed_tasks, success_rate,
            average_execution_time_ms, pricing
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (processor_id) DO UPDATE SET
            name = EXCLUDED.name,
            description = EXCLUDED.description,
            capability_tags = EXCLUDED.capability_tags,
            input_schema = EXCLUDED.input_schema,
            output_schema = EXCLUDED.output_schema,
            endpoint_url = EXCLUDED.endpoint_url,
            status = EXCLUDED.status,
            reputation_score = EXCLUDED.reputation_score,
            completed_tasks = EXCLUDED.completed_tasks,
            success_rate = EXCLUDED.success_rate,
            average_execution_time_ms = EXCLUDED.average_execution_time_ms,
            pricing = EXCLUDED.pricing`

	_, err = s.db.ExecContext(ctx, q,
		p.ProcessorID, p.Name, p.Description, pq.Array(p.CapabilityTags),
		nullableJSON(p.InputSchema), nullableJSON(p.OutputSchema),
		p.EndpointURL, p.Status,
		p.ReputationScore, p.CompletedTasks, p.SuccessRate,
		p.AverageExecutionTimeMs, pricing)
	if err != nil {
		return fmt.Errorf("register processor %s: %w", p.ProcessorID, err)
	}
	return nil
}

// GetProcessor returns the row or storage.ErrProcessorNotFound.
func (s *ProcessorStore) GetProcessor(ctx context.Context, processorID string) (*task.Processor, error) {
	q := `SELECT` + processorColumns + ` FROM processors WHERE processor_id = $1`
	row := s.db.QueryRowxContext(ctx, q, processorID)
	p, err := scanProcessor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrProcessorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get processor %s: %w", processorID, err)
	}
	return p, nil
}

// ListActive returns up to limit Active processors in insertion order.
func (s *ProcessorStore) ListActive(ctx context.Context, limit int) ([]*task.Processor, error) {
	q := `SELECT` + processorColumns + `
        FROM processors WHERE status = $1 ORDER BY seq LIMIT $2`
	rows, err := s.db.QueryxContext(ctx, q, task.ProcessorActive, limit)
	if err != nil {
		return nil, fmt.Errorf("list active processors: %w", err)
	}
	defer rows.Close()
	return scanProcessors(rows)
}

// FindByTags returns Active processors whose capability tags overlap
// the given set, in insertion order.
func (s *ProcessorStore) FindByTags(ctx context.Context, tags []string) ([]*task.Processor, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	q := `SELECT` + processorColumns + `
        FROM processors
        WHERE status = $1 AND capability_tags && $2
        ORDER BY seq`
	rows, err := s.db.QueryxContext(ctx, q, task.ProcessorActive, pq.Array(tags))
	if err != nil {
		return nil, fmt.Errorf("find processors by tags: %w", err)
	}
	defer rows.Close()
	return scanProcessors(rows)
}

// UpdateProcessorStatus writes a new availability status and bumps
// last_checked_at.
func (s *ProcessorStore) UpdateProcessorStatus(ctx context.Context, processorID string, status task.ProcessorStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("unknown processor status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE processors SET status = $2, last_checked_at = now() WHERE processor_id = $1`,
		processorID, status)
	if err != nil {
		return fmt.Errorf("update processor status %s: %w", processorID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrProcessorNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcessor(row rowScanner) (*task.Processor, error) {
	var (
		p            task.Processor
		tags         pq.StringArray
		inputSchema  []byte
		outputSchema []byte
		pricing      []byte
	)
	err := row.Scan(
		&p.ProcessorID, &p.Name, &p.Description, &tags,
		&inputSchema, &outputSchema, &p.EndpointURL, &p.Status,
		&p.ReputationScore, &p.CompletedTasks, &p.SuccessRate,
		&p.AverageExecutionTimeMs, &pricing, &p.LastCheckedAt)
	if err != nil {
		return nil, err
	}

	p.CapabilityTags = []string(tags)
	p.InputSchema = inputSchema
	p.OutputSchema = outputSchema
	if len(pricing) > 0 {
		if err := json.Unmarshal(pricing, &p.Pricing); err != nil {
			return nil, fmt.Errorf("decode pricing for %s: %w", p.ProcessorID, err)
		}
	}
	return &p, nil
}

func scanProcessors(rows *sqlx.Rows) ([]*task.Processor, error) {
	var out []*task.Processor
	for rows.Next() {
		p, err := scanProcessor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processors: %w", err)
	}
	return out, nil
}

// nullableJSON maps an empty JSON payload to SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
