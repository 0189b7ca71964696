package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/korelabs/kore/internal/storage"
	"github.com/korelabs/kore/pkg/types"
)

// normalizeTag lowercases and trims a tag; empty results are dropped.
func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// owns verifies that the record exists within the agent scope.
func (s *Store) owns(ctx context.Context, agentID string, id int64) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM memories WHERE id = $1 AND agent_id = $2`, id, agentID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: ownership check for %d: %w", id, err)
	}
	return nil
}

// AddTags attaches tags to a record, ignoring duplicates. Returns the number
// of tags newly added.
func (s *Store) AddTags(ctx context.Context, agentID string, id int64, tags []string) (int, error) {
	if err := s.owns(ctx, agentID, id); err != nil {
		return 0, err
	}

	added := 0
	for _, tag := range tags {
		tag = normalizeTag(tag)
		if tag == "" {
			continue
		}
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO memory_tags (memory_id, tag) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, id, tag)
		if err != nil {
			return added, fmt.Errorf("postgres: add tag %q: %w", tag, err)
		}
		affected, _ := res.RowsAffected()
		added += int(affected)
	}
	return added, nil
}

// RemoveTags detaches tags from a record. Returns the number removed.
func (s *Store) RemoveTags(ctx context.Context, agentID string, id int64, tags []string) (int, error) {
	if err := s.owns(ctx, agentID, id); err != nil {
		return 0, err
	}

	removed := 0
	for _, tag := range tags {
		tag = normalizeTag(tag)
		if tag == "" {
			continue
		}
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM memory_tags WHERE memory_id = $1 AND tag = $2`, id, tag)
		if err != nil {
			return removed, fmt.Errorf("postgres: remove tag %q: %w", tag, err)
		}
		affected, _ := res.RowsAffected()
		removed += int(affected)
	}
	return removed, nil
}

// GetTags returns a record's tags in alphabetical order.
func (s *Store) GetTags(ctx context.Context, agentID string, id int64) ([]string, error) {
	if err := s.owns(ctx, agentID, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT tag FROM memory_tags WHERE memory_id = $1 ORDER BY tag`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: get tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("postgres: scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get tags rows: %w", err)
	}
	return tags, nil
}

// SearchByTag returns active records carrying the exact tag, most important
// and newest first.
func (s *Store) SearchByTag(ctx context.Context, agentID, tag string, limit int) ([]types.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM memories
		WHERE id IN (SELECT memory_id FROM memory_tags WHERE tag = $1)
		  AND agent_id = $2
		  AND `+activeFilter+`
		ORDER BY importance DESC, created_at DESC
		LIMIT $3`,
		normalizeTag(tag), agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: search by tag %q: %w", tag, err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// AddRelation creates a directed edge between two records of the same agent.
// Duplicate edges are ignored; self-loops are rejected.
func (s *Store) AddRelation(ctx context.Context, agentID string, sourceID, targetID int64, relation string) error {
	if sourceID == targetID {
		return fmt.Errorf("%w: relation cannot reference itself", storage.ErrInvalidInput)
	}
	if relation == "" {
		relation = "related"
	}
	if err := s.owns(ctx, agentID, sourceID); err != nil {
		return err
	}
	if err := s.owns(ctx, agentID, targetID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_relations (source_id, target_id, relation, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`,
		sourceID, targetID, relation, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: add relation: %w", err)
	}
	return nil
}

// GetRelations returns every edge touching the record, in either direction.
func (s *Store) GetRelations(ctx context.Context, agentID string, id int64) ([]types.Relation, error) {
	if err := s.owns(ctx, agentID, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, relation, created_at
		FROM memory_relations
		WHERE source_id = $1 OR target_id = $1
		ORDER BY created_at, source_id, target_id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: get relations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var relations []types.Relation
	for rows.Next() {
		var rel types.Relation
		if err := rows.Scan(&rel.SourceID, &rel.TargetID, &rel.Relation, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan relation: %w", err)
		}
		relations = append(relations, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get relations rows: %w", err)
	}
	return relations, nil
}
