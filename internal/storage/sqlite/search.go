package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/korelabs/kore/internal/storage"
	"github.com/korelabs/kore/pkg/types"
)

// forgetThreshold mirrors the decay model's forgetting cutoff; CountActive
// must count exactly what a ranked search can ever surface.
const forgetThreshold = 0.05

// sanitizeFTSQuery strips FTS5 operators from user input and rewrites it as
// an OR of quoted prefix tokens. Returns "" when nothing usable remains; the
// caller then falls back to LIKE matching.
func sanitizeFTSQuery(query string) string {
	const special = `"^():-*+<>&|`
	var b strings.Builder
	for _, r := range query {
		if strings.ContainsRune(special, r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}

	// At most 10 tokens of at least 2 characters; keeps pathological queries
	// from exploding the FTS match.
	var tokens []string
	for _, t := range strings.Fields(b.String()) {
		if len(t) >= 2 {
			tokens = append(tokens, t)
		}
		if len(tokens) == 10 {
			break
		}
	}
	if len(tokens) == 0 {
		return ""
	}

	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = fmt.Sprintf("%q*", t)
	}
	return strings.Join(parts, " OR ")
}

// escapeLike escapes LIKE wildcards for use with ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// LexicalSearch returns active candidates for q.Text, ordered by
// (decay_score DESC, id DESC) with the cursor applied. FTS5 is tried first;
// a query that sanitises to nothing (or "*") uses LIKE matching instead.
func (s *Store) LexicalSearch(ctx context.Context, q storage.SearchQuery) ([]types.MemoryRecord, error) {
	now := time.Now().UTC()
	safe := sanitizeFTSQuery(q.Text)

	var (
		sb   strings.Builder
		args []any
	)

	if safe != "" && q.Text != "*" {
		sb.WriteString(`
			SELECT ` + qualify(recordColumns, "m") + `
			FROM memories_fts
			JOIN memories m ON memories_fts.rowid = m.id
			WHERE memories_fts MATCH ?
			  AND m.agent_id = ?
			  AND m.compressed_into IS NULL AND m.archived_at IS NULL
			  AND (m.expires_at IS NULL OR m.expires_at > ?)`)
		args = append(args, safe, q.AgentID, now)
		if q.Category != "" {
			sb.WriteString(" AND m.category = ?")
			args = append(args, q.Category)
		}
		if q.Cursor != nil {
			sb.WriteString(" AND (m.decay_score, m.id) < (?, ?)")
			args = append(args, q.Cursor.DecayScore, q.Cursor.ID)
		}
		sb.WriteString(" ORDER BY m.decay_score DESC, m.id DESC LIMIT ?")
		args = append(args, q.Limit)
	} else {
		// "*" lists everything; an unsanitizable query matches literally.
		pattern := "%%"
		if q.Text != "*" {
			pattern = "%" + escapeLike(q.Text) + "%"
		}
		sb.WriteString(`
			SELECT ` + recordColumns + `
			FROM memories
			WHERE content LIKE ? ESCAPE '\'
			  AND agent_id = ?
			  AND ` + activeFilter)
		args = append(args, pattern, q.AgentID, now)
		if q.Category != "" {
			sb.WriteString(" AND category = ?")
			args = append(args, q.Category)
		}
		if q.Cursor != nil {
			sb.WriteString(" AND (decay_score, id) < (?, ?)")
			args = append(args, q.Cursor.DecayScore, q.Cursor.ID)
		}
		sb.WriteString(" ORDER BY decay_score DESC, id DESC LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: lexical search %q: %w", q.Text, err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// FetchByIDs loads active records from the id set, with filters and cursor,
// ordered (decay_score DESC, id DESC). Used by the semantic search path.
func (s *Store) FetchByIDs(ctx context.Context, agentID string, ids []int64, category string, cursor *storage.Cursor) ([]types.MemoryRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	var args []any
	for _, id := range ids {
		args = append(args, id)
	}

	query := `
		SELECT ` + recordColumns + `
		FROM memories
		WHERE id IN (` + placeholders + `)
		  AND agent_id = ?
		  AND ` + activeFilter
	args = append(args, agentID, now)

	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	if cursor != nil {
		query += " AND (decay_score, id) < (?, ?)"
		args = append(args, cursor.DecayScore, cursor.ID)
	}
	query += " ORDER BY decay_score DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetch by ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// CountActive counts all records a ranked search could surface for the query,
// unbounded by page size.
func (s *Store) CountActive(ctx context.Context, agentID, text, category string) (int, error) {
	now := time.Now().UTC()
	safe := sanitizeFTSQuery(text)

	var (
		query string
		args  []any
	)

	if safe != "" && text != "*" {
		query = `
			SELECT COUNT(*)
			FROM memories_fts
			JOIN memories m ON memories_fts.rowid = m.id
			WHERE memories_fts MATCH ?
			  AND m.agent_id = ?
			  AND m.compressed_into IS NULL AND m.archived_at IS NULL
			  AND m.decay_score >= ?
			  AND (m.expires_at IS NULL OR m.expires_at > ?)`
		args = append(args, safe, agentID, forgetThreshold, now)
		if category != "" {
			query += " AND m.category = ?"
			args = append(args, category)
		}
	} else {
		pattern := "%%"
		if text != "*" {
			pattern = "%" + escapeLike(text) + "%"
		}
		query = `
			SELECT COUNT(*)
			FROM memories
			WHERE content LIKE ? ESCAPE '\'
			  AND agent_id = ?
			  AND decay_score >= ?
			  AND ` + activeFilter
		args = append(args, pattern, agentID, forgetThreshold, now)
		if category != "" {
			query += " AND category = ?"
			args = append(args, category)
		}
	}

	var total int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sqlite: count active: %w", err)
	}
	return total, nil
}

// Reinforce applies the retrieval side effect to the given records.
func (s *Store) Reinforce(ctx context.Context, ids []int64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := []any{now.UTC(), now.UTC()}
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET access_count = access_count + 1,
		    last_accessed = ?,
		    decay_score   = MIN(1.0, decay_score + 0.05),
		    updated_at    = ?
		WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: reinforce: %w", err)
	}
	return nil
}

// qualify prefixes each column in a comma-separated list with an alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
