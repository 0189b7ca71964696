package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/korelabs/kore/internal/embedding"
	"github.com/korelabs/kore/pkg/types"
)

// LoadVectors returns the embeddings of every non-compressed record for the
// agent. It serves the cache-backed vector index when pgvector is missing;
// rows with corrupt blobs are skipped.
func (s *Store) LoadVectors(ctx context.Context, agentID string) (map[int64][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, embedding
		FROM memories
		WHERE embedding IS NOT NULL AND compressed_into IS NULL AND agent_id = $1`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: load vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	vectors := make(map[int64][]float32)
	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("postgres: scan vector row: %w", err)
		}
		vec, decErr := embedding.Decode(blob)
		if decErr != nil || len(vec) == 0 {
			continue
		}
		vectors[id] = vec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load vectors rows: %w", err)
	}
	return vectors, nil
}

// CompressionCandidates returns active records with embeddings whose
// compression depth is below maxDepth. Depth counts how many merge
// generations sit beneath a record, walked via compressed_into links.
func (s *Store) CompressionCandidates(ctx context.Context, agentID string, maxDepth int) ([]types.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM memories
		WHERE agent_id = $1 AND embedding IS NOT NULL AND `+activeFilter+`
		ORDER BY id`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: compression candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	depths, err := s.compressionDepths(ctx, ids)
	if err != nil {
		return nil, err
	}

	filtered := records[:0]
	for _, r := range records {
		if depths[r.ID] < maxDepth {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// compressionDepths computes, for each given id, the longest chain of records
// merged (directly or transitively) into it.
func (s *Store) compressionDepths(ctx context.Context, ids []int64) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE chain(root, id, depth) AS (
			SELECT id, id, 0 FROM memories WHERE id = ANY($1)
			UNION ALL
			SELECT c.root, m.id, c.depth + 1
			FROM memories m
			JOIN chain c ON m.compressed_into = c.id
		)
		SELECT root, MAX(depth) FROM chain GROUP BY root`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: compression depths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	depths := make(map[int64]int, len(ids))
	for rows.Next() {
		var (
			root  int64
			depth int
		)
		if err := rows.Scan(&root, &depth); err != nil {
			return nil, fmt.Errorf("postgres: scan depth row: %w", err)
		}
		depths[root] = depth
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: compression depths rows: %w", err)
	}
	return depths, nil
}

// ApplyMerge finalises one compression cluster atomically: tags are copied to
// the merged record, relation edges are re-pointed, self-loops produced by the
// re-pointing are removed, and every member is marked compressed.
func (s *Store) ApplyMerge(ctx context.Context, newID int64, memberIDs []int64) error {
	if len(memberIDs) == 0 {
		return nil
	}
	members := pq.Array(memberIDs)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin merge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Copy member tags to the merged record, deduplicated by the PK.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO memory_tags (memory_id, tag)
		SELECT $1, tag FROM memory_tags WHERE memory_id = ANY($2)
		ON CONFLICT DO NOTHING`,
		newID, members,
	)
	if err != nil {
		return fmt.Errorf("postgres: merge tags: %w", err)
	}

	// Re-point relation edges via insert-then-delete so edges that collide
	// with an existing (source, target, relation) key are merged, not lost.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO memory_relations (source_id, target_id, relation)
		SELECT DISTINCT $1, target_id, relation
		FROM memory_relations WHERE source_id = ANY($2)
		ON CONFLICT DO NOTHING`,
		newID, members,
	)
	if err != nil {
		return fmt.Errorf("postgres: repoint relation sources: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM memory_relations WHERE source_id = ANY($1)`, members,
	); err != nil {
		return fmt.Errorf("postgres: drop old relation sources: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memory_relations (source_id, target_id, relation)
		SELECT DISTINCT source_id, $1, relation
		FROM memory_relations WHERE target_id = ANY($2)
		ON CONFLICT DO NOTHING`,
		newID, members,
	)
	if err != nil {
		return fmt.Errorf("postgres: repoint relation targets: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM memory_relations WHERE target_id = ANY($1)`, members,
	); err != nil {
		return fmt.Errorf("postgres: drop old relation targets: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM memory_relations WHERE source_id = target_id`,
	); err != nil {
		return fmt.Errorf("postgres: drop self loops: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE memories SET compressed_into = $1, updated_at = $2
		WHERE id = ANY($3)`,
		newID, time.Now().UTC(), members,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark compressed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: mark compressed rows affected: %w", err)
	}
	if int(affected) != len(memberIDs) {
		return fmt.Errorf("postgres: merge marked %d of %d members", affected, len(memberIDs))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit merge tx: %w", err)
	}
	return nil
}
