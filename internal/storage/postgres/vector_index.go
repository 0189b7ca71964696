package postgres

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/korelabs/kore/internal/vector"
)

// NativeVectorIndex returns the pgvector-backed index, or nil when the
// extension is not installed (callers then fall back to the cache index).
func (s *Store) NativeVectorIndex() vector.Index {
	if !s.vectorOK {
		return nil
	}
	return &vectorIndex{store: s}
}

// vectorIndex implements vector.Index on the embedding_vec column. Writes are
// immediately durable, so invalidation is a no-op.
type vectorIndex struct {
	store *Store
}

var _ vector.Index = (*vectorIndex)(nil)

// Upsert writes the vector column for an existing row. A missing row is not
// an error: the record may have been deleted between embed and index.
func (v *vectorIndex) Upsert(ctx context.Context, id int64, agentID string, vec []float32) error {
	_, err := v.store.db.ExecContext(ctx, `
		UPDATE memories SET embedding_vec = $1
		WHERE id = $2 AND agent_id = $3`,
		pgvector.NewVector(vec), id, agentID,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert vector for %d: %w", id, err)
	}
	return nil
}

// Remove clears the vector column. The row itself may already be gone.
func (v *vectorIndex) Remove(ctx context.Context, id int64, agentID string) error {
	_, err := v.store.db.ExecContext(ctx, `
		UPDATE memories SET embedding_vec = NULL
		WHERE id = $1 AND agent_id = $2`,
		id, agentID,
	)
	if err != nil {
		return fmt.Errorf("postgres: remove vector for %d: %w", id, err)
	}
	return nil
}

// Search ranks active rows by cosine distance and converts it to similarity.
// The <=> operator is served by the ivfflat index once it exists.
func (v *vectorIndex) Search(ctx context.Context, query []float32, agentID, category string, limit int, minSimilarity float64) ([]vector.Match, error) {
	if len(query) == 0 || limit <= 0 {
		return nil, nil
	}

	var args []any
	bind := func(val any) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", len(args))
	}

	vec := bind(pgvector.NewVector(query))
	sql := `
		SELECT id, 1 - (embedding_vec <=> ` + vec + `::vector) AS similarity
		FROM memories
		WHERE embedding_vec IS NOT NULL
		  AND agent_id = ` + bind(agentID) + `
		  AND ` + activeFilter
	if category != "" {
		sql += " AND category = " + bind(category)
	}
	sql += `
		  AND 1 - (embedding_vec <=> ` + vec + `::vector) >= ` + bind(minSimilarity) + `
		ORDER BY embedding_vec <=> ` + vec + `::vector
		LIMIT ` + bind(limit)

	rows, err := v.store.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []vector.Match
	for rows.Next() {
		var m vector.Match
		if err := rows.Scan(&m.ID, &m.Similarity); err != nil {
			return nil, fmt.Errorf("postgres: scan vector match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: vector search rows: %w", err)
	}
	return matches, nil
}

// Invalidate is a no-op: pgvector writes are durable the moment they commit.
func (v *vectorIndex) Invalidate(string) {}

// InvalidateAll is a no-op for the same reason.
func (v *vectorIndex) InvalidateAll() {}
