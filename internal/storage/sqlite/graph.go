package sqlite

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
		`SELECT 1 FROM memories WHERE id = ? AND agent_id = ?`, id, agentID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("sqlite: ownership check for %d: %w", id, err)
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
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO memory_tags (memory_id, tag) VALUES (?, ?)`, id, tag)
		if err != nil {
			return added, fmt.Errorf("sqlite: add tag %q: %w", tag, err)
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
			`DELETE FROM memory_tags WHERE memory_id = ? AND tag = ?`, id, tag)
		if err != nil {
			return removed, fmt.Errorf("sqlite: remove tag %q: %w", tag, err)
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
		`SELECT tag FROM memory_tags WHERE memory_id = ? ORDER BY tag`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("sqlite: scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: get tags rows: %w", err)
	}
	return tags, nil
}

// SearchByTag returns active records carrying the exact tag, most important
// and newest first.
func (s *Store) SearchByTag(ctx context.Context, agentID, tag string, limit int) ([]types.MemoryRecord, error) {
	now := time.Now().UTC()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+qualify(recordColumns, "m")+`
		FROM memories m
		JOIN memory_tags t ON m.id = t.memory_id
		WHERE t.tag = ? AND m.agent_id = ?
		  AND m.compressed_into IS NULL AND m.archived_at IS NULL
		  AND (m.expires_at IS NULL OR m.expires_at > ?)
		ORDER BY m.importance DESC, m.created_at DESC
		LIMIT ?`,
		normalizeTag(tag), agentID, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search by tag %q: %w", tag, err)
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
		INSERT OR IGNORE INTO memory_relations (source_id, target_id, relation, created_at)
		VALUES (?, ?, ?, ?)`,
		sourceID, targetID, relation, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: add relation: %w", err)
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
		WHERE source_id = ? OR target_id = ?
		ORDER BY created_at, source_id, target_id`,
		id, id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get relations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var relations []types.Relation
	for rows.Next() {
		var rel types.Relation
		if err := rows.Scan(&rel.SourceID, &rel.TargetID, &rel.Relation, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan relation: %w", err)
		}
		relations = append(relations, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: get relations rows: %w", err)
	}
	return relations, nil
}
