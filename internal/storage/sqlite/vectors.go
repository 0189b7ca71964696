package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/korelabs/kore/internal/embedding"
	"github.com/korelabs/kore/pkg/types"
)

// LoadVectors returns the embeddings of every non-compressed record for the
// agent. This is the reload source for the cache-backed vector index; rows
// with corrupt blobs are skipped.
func (s *Store) LoadVectors(ctx context.Context, agentID string) (map[int64][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, embedding
		FROM memories
		WHERE embedding IS NOT NULL AND compressed_into IS NULL AND agent_id = ?`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	vectors := make(map[int64][]float32)
	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("sqlite: scan vector row: %w", err)
		}
		vec, decErr := embedding.Decode(blob)
		if decErr != nil || len(vec) == 0 {
			continue
		}
		vectors[id] = vec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load vectors rows: %w", err)
	}
	return vectors, nil
}

// CompressionCandidates returns active records with embeddings whose
// compression depth is below maxDepth. Depth counts how many merge
// generations sit beneath a record, walked via compressed_into links.
func (s *Store) CompressionCandidates(ctx context.Context, agentID string, maxDepth int) ([]types.MemoryRecord, error) {
	now := time.Now().UTC()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM memories
		WHERE agent_id = ? AND embedding IS NOT NULL AND `+activeFilter+`
		ORDER BY id`,
		agentID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: compression candidates: %w", err)
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
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE chain(root, id, depth) AS (
			SELECT id, id, 0 FROM memories WHERE id IN (`+placeholders+`)
			UNION ALL
			SELECT c.root, m.id, c.depth + 1
			FROM memories m
			JOIN chain c ON m.compressed_into = c.id
		)
		SELECT root, MAX(depth) FROM chain GROUP BY root`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: compression depths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	depths := make(map[int64]int, len(ids))
	for rows.Next() {
		var (
			root  int64
			depth int
		)
		if err := rows.Scan(&root, &depth); err != nil {
			return nil, fmt.Errorf("sqlite: scan depth row: %w", err)
		}
		depths[root] = depth
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: compression depths rows: %w", err)
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

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(memberIDs)), ",")
	memberArgs := make([]any, len(memberIDs))
	for i, id := range memberIDs {
		memberArgs[i] = id
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin merge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Copy member tags to the merged record, deduplicated by the PK.
	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO memory_tags (memory_id, tag)
		SELECT ?, tag FROM memory_tags WHERE memory_id IN (`+placeholders+`)`,
		append([]any{newID}, memberArgs...)...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: merge tags: %w", err)
	}

	// Re-point relation edges via insert-then-delete so edges that collide
	// with an existing (source, target, relation) key are merged, not lost.
	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO memory_relations (source_id, target_id, relation)
		SELECT DISTINCT ?, target_id, relation
		FROM memory_relations WHERE source_id IN (`+placeholders+`)`,
		append([]any{newID}, memberArgs...)...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: repoint relation sources: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM memory_relations WHERE source_id IN (`+placeholders+`)`,
		memberArgs...,
	); err != nil {
		return fmt.Errorf("sqlite: drop old relation sources: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO memory_relations (source_id, target_id, relation)
		SELECT DISTINCT source_id, ?, relation
		FROM memory_relations WHERE target_id IN (`+placeholders+`)`,
		append([]any{newID}, memberArgs...)...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: repoint relation targets: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM memory_relations WHERE target_id IN (`+placeholders+`)`,
		memberArgs...,
	); err != nil {
		return fmt.Errorf("sqlite: drop old relation targets: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM memory_relations WHERE source_id = target_id`,
	); err != nil {
		return fmt.Errorf("sqlite: drop self loops: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE memories SET compressed_into = ?, updated_at = ?
		WHERE id IN (`+placeholders+`)`,
		append([]any{newID, time.Now().UTC()}, memberArgs...)...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: mark compressed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: mark compressed rows affected: %w", err)
	}
	if int(affected) != len(memberIDs) {
		return fmt.Errorf("sqlite: merge marked %d of %d members", affected, len(memberIDs))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit merge tx: %w", err)
	}
	return nil
}
