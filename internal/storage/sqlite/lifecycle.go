package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/korelabs/kore/internal/storage"
	"github.com/korelabs/kore/pkg/types"
)

// Archive soft-deletes a record. Returns false when it does not exist or is
// already archived.
func (s *Store) Archive(ctx context.Context, agentID string, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET archived_at = ?, updated_at = ?
		WHERE id = ? AND agent_id = ? AND archived_at IS NULL`,
		time.Now().UTC(), time.Now().UTC(), id, agentID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: archive memory %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: archive rows affected: %w", err)
	}
	return affected > 0, nil
}

// Restore reverses Archive. Returns false when the record was not archived.
func (s *Store) Restore(ctx context.Context, agentID string, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET archived_at = NULL, updated_at = ?
		WHERE id = ? AND agent_id = ? AND archived_at IS NOT NULL`,
		time.Now().UTC(), id, agentID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: restore memory %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: restore rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListArchived returns archived records, most recently archived first.
func (s *Store) ListArchived(ctx context.Context, agentID string, limit int) ([]types.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM memories
		WHERE agent_id = ? AND archived_at IS NOT NULL
		ORDER BY archived_at DESC
		LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list archived: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// CleanupExpired hard-deletes records whose TTL elapsed.
func (s *Store) CleanupExpired(ctx context.Context, agentID string) (int, error) {
	query := `DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at <= ?`
	args := []any{time.Now().UTC()}
	if agentID != "" {
		query += " AND agent_id = ?"
		args = append(args, agentID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: cleanup expired: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: cleanup rows affected: %w", err)
	}
	return int(affected), nil
}

// DecayCandidates returns the decay inputs for every active record.
func (s *Store) DecayCandidates(ctx context.Context, agentID string) ([]storage.DecayCandidate, error) {
	query := `
		SELECT id, importance, access_count, created_at, last_accessed
		FROM memories
		WHERE compressed_into IS NULL AND archived_at IS NULL`
	var args []any
	if agentID != "" {
		query += " AND agent_id = ?"
		args = append(args, agentID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: decay candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []storage.DecayCandidate
	for rows.Next() {
		var (
			c            storage.DecayCandidate
			lastAccessed sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Importance, &c.AccessCount, &c.CreatedAt, &lastAccessed); err != nil {
			return nil, fmt.Errorf("sqlite: scan decay candidate: %w", err)
		}
		if lastAccessed.Valid {
			t := lastAccessed.Time
			c.LastAccessed = &t
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: decay candidates rows: %w", err)
	}
	return candidates, nil
}

// ApplyDecayScores writes recomputed scores back in one transaction.
func (s *Store) ApplyDecayScores(ctx context.Context, updates []storage.DecayUpdate, now time.Time) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin decay tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE memories SET decay_score = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare decay update: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	updated := 0
	for _, u := range updates {
		res, err := stmt.ExecContext(ctx, u.Score, now.UTC(), u.ID)
		if err != nil {
			return 0, fmt.Errorf("sqlite: apply decay score for %d: %w", u.ID, err)
		}
		affected, _ := res.RowsAffected()
		updated += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit decay tx: %w", err)
	}
	return updated, nil
}

// Export returns all active records for the agent, newest first. Embeddings
// are intentionally omitted; an import regenerates them.
func (s *Store) Export(ctx context.Context, agentID string) ([]types.MemoryRecord, error) {
	now := time.Now().UTC()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, content, category, importance,
		       decay_score, access_count, last_accessed,
		       compressed_into, archived_at, expires_at,
		       NULL, created_at, updated_at
		FROM memories
		WHERE agent_id = ? AND `+activeFilter+`
		ORDER BY created_at DESC`,
		agentID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: export: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// Stats reports store-level counts for one agent, or all agents when agentID
// is empty.
func (s *Store) Stats(ctx context.Context, agentID string) (types.Stats, error) {
	var stats types.Stats

	scope := ""
	var args []any
	if agentID != "" {
		scope = " AND agent_id = ?"
		args = []any{agentID}
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE compressed_into IS NULL`+scope, args...,
	).Scan(&stats.TotalMemories)
	if err != nil {
		return stats, fmt.Errorf("sqlite: stats total: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE compressed_into IS NULL AND decay_score >= ?`+scope,
		append([]any{forgetThreshold}, args...)...,
	).Scan(&stats.ActiveMemories)
	if err != nil {
		return stats, fmt.Errorf("sqlite: stats active: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE archived_at IS NOT NULL`+scope, args...,
	).Scan(&stats.ArchivedMemories)
	if err != nil {
		return stats, fmt.Errorf("sqlite: stats archived: %w", err)
	}

	return stats, nil
}

// storedTimeLayouts are the text forms a timestamp can take in the database.
// The driver binds time.Time as text, but an aggregate like MAX() loses the
// column's declared type, so the raw string comes back and must be parsed
// here rather than by the driver.
var storedTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func parseStoredTime(s string) (time.Time, bool) {
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ListAgents returns every agent namespace with a memory count and last
// activity, most recently active first.
func (s *Store) ListAgents(ctx context.Context) ([]types.AgentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, COUNT(*), MAX(created_at)
		FROM memories
		WHERE compressed_into IS NULL
		GROUP BY agent_id
		ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []types.AgentInfo
	for rows.Next() {
		var (
			info       types.AgentInfo
			lastActive sql.NullString
		)
		if err := rows.Scan(&info.AgentID, &info.MemoryCount, &lastActive); err != nil {
			return nil, fmt.Errorf("sqlite: scan agent: %w", err)
		}
		if lastActive.Valid {
			if t, ok := parseStoredTime(lastActive.String); ok {
				info.LastActive = &t
			}
		}
		agents = append(agents, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list agents rows: %w", err)
	}
	return agents, nil
}
