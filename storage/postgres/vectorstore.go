package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/c360studio/agentbus/storage"
	"github.com/c360studio/agentbus/task"
)

// VectorStore is the pgvector-backed storage.VectorIndex. One
// description embedding per processor; queries are filtered to Active
// processors via the catalog table.
type VectorStore struct {
	db *sqlx.DB
}

// NewVectorStore creates a VectorStore.
func NewVectorStore(db *sqlx.DB) *VectorStore {
	return &VectorStore{db: db}
}

// Upsert stores the embedding for a processor.
func (s *VectorStore) Upsert(ctx context.Context, processorID string, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("empty embedding for %s", processorID)
	}
	const q = `
        INSERT INTO processor_embeddings (processor_id, embedding)
        VALUES ($1, $2::vector)
        ON CONFLICT (processor_id) DO UPDATE SET embedding = EXCLUDED.embedding`
	if _, err := s.db.ExecContext(ctx, q, processorID, vectorLiteral(embedding)); err != nil {
		return fmt.Errorf("upsert embedding %s: %w", processorID, err)
	}
	return nil
}

// Query returns the topK nearest Active processors by cosine distance.
func (s *VectorStore) Query(ctx context.Context, embedding []float32, topK int) ([]storage.VectorMatch, error) {
	if len(embedding) == 0 || topK <= 0 {
		return nil, nil
	}

	const q = `
        SELECT pe.processor_id, 1 - (pe.embedding <=> $1::vector) AS score
        FROM processor_embeddings pe
        JOIN processors p ON p.processor_id = pe.processor_id
        WHERE p.status = $2
        ORDER BY pe.embedding <=> $1::vector
        LIMIT $3`

	rows, err := s.db.QueryContext(ctx, q, vectorLiteral(embedding), task.ProcessorActive, topK)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	var matches []storage.VectorMatch
	for rows.Next() {
		var m storage.VectorMatch
		if err := rows.Scan(&m.ProcessorID, &m.Score); err != nil {
			return nil, fmt.Errorf("scan vector match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector matches: %w", err)
	}
	return matches, nil
}

// Fetch returns the stored embedding or storage.ErrProcessorNotFound.
func (s *VectorStore) Fetch(ctx context.Context, processorID string) ([]float32, error) {
	var literal string
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding::text FROM processor_embeddings WHERE processor_id = $1`,
		processorID).Scan(&literal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrProcessorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch embedding %s: %w", processorID, err)
	}
	return parseVector(literal)
}

// vectorLiteral renders the pgvector input form "[v1,v2,...]".
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector inverts vectorLiteral.
func parseVector(literal string) ([]float32, error) {
	trimmed := strings.TrimSpace(literal)
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")
	if trimmed == "" {
		return nil, nil
	}

	parts := strings.Split(trimmed, ",")
	out := make([]float32, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector element %q: %w", part, err)
		}
		out = append(out, float32(f))
	}
	return out, nil
}
