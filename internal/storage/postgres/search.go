package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/korelabs/kore/internal/storage"
	"github.com/korelabs/kore/pkg/types"
)

// forgetThreshold mirrors the decay model's forgetting cutoff; CountActive
// must count exactly what a ranked search can ever surface.
const forgetThreshold = 0.05

// sanitizeTSQuery strips tsquery operators from user input and rewrites it as
// an OR of prefix-matched lexemes for to_tsquery. Returns "" when nothing
// usable remains; the caller then falls back to ILIKE matching.
func sanitizeTSQuery(query string) string {
	const special = `"^():-*+<>&|!'`
	var b strings.Builder
	for _, r := range query {
		if strings.ContainsRune(special, r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}

	// At most 10 tokens of at least 2 characters; keeps pathological queries
	// from exploding the match.
	var tokens []string
	for _, t := range strings.Fields(b.String()) {
		if len(t) >= 2 {
			tokens = append(tokens, t+":*")
		}
		if len(tokens) == 10 {
			break
		}
	}
	return strings.Join(tokens, " | ")
}

// escapeLike escapes LIKE wildcards for use with ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// LexicalSearch returns active candidates for q.Text, ordered by
// (decay_score DESC, id DESC) with the cursor applied. The tsvector index is
// tried first; a query that sanitises to nothing (or "*") uses ILIKE instead.
func (s *Store) LexicalSearch(ctx context.Context, q storage.SearchQuery) ([]types.MemoryRecord, error) {
	safe := sanitizeTSQuery(q.Text)

	var (
		sb   strings.Builder
		args []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sb.WriteString(`
		SELECT ` + recordColumns + `
		FROM memories
		WHERE agent_id = ` + bind(q.AgentID) + `
		  AND ` + activeFilter)

	if safe != "" && q.Text != "*" {
		sb.WriteString(" AND tsv @@ to_tsquery('english', " + bind(safe) + ")")
	} else if q.Text != "*" {
		// "*" lists everything; an unsanitizable query matches literally.
		sb.WriteString(` AND content ILIKE ` + bind("%"+escapeLike(q.Text)+"%") + ` ESCAPE '\'`)
	}
	if q.Category != "" {
		sb.WriteString(" AND category = " + bind(q.Category))
	}
	if q.Cursor != nil {
		sb.WriteString(" AND (decay_score, id) < (" +
			bind(q.Cursor.DecayScore) + ", " + bind(q.Cursor.ID) + ")")
	}
	sb.WriteString(" ORDER BY decay_score DESC, id DESC LIMIT " + bind(q.Limit))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: lexical search %q: %w", q.Text, err)
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

	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	query := `
		SELECT ` + recordColumns + `
		FROM memories
		WHERE id = ANY(` + bind(pq.Array(ids)) + `)
		  AND agent_id = ` + bind(agentID) + `
		  AND ` + activeFilter

	if category != "" {
		query += " AND category = " + bind(category)
	}
	if cursor != nil {
		query += " AND (decay_score, id) < (" +
			bind(cursor.DecayScore) + ", " + bind(cursor.ID) + ")"
	}
	query += " ORDER BY decay_score DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch by ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// CountActive counts all records a ranked search could surface for the query,
// unbounded by page size.
func (s *Store) CountActive(ctx context.Context, agentID, text, category string) (int, error) {
	safe := sanitizeTSQuery(text)

	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	query := `
		SELECT COUNT(*)
		FROM memories
		WHERE agent_id = ` + bind(agentID) + `
		  AND decay_score >= ` + bind(forgetThreshold) + `
		  AND ` + activeFilter

	if safe != "" && text != "*" {
		query += " AND tsv @@ to_tsquery('english', " + bind(safe) + ")"
	} else if text != "*" {
		query += ` AND content ILIKE ` + bind("%"+escapeLike(text)+"%") + ` ESCAPE '\'`
	}
	if category != "" {
		query += " AND category = " + bind(category)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres: count active: %w", err)
	}
	return total, nil
}

// Reinforce applies the retrieval side effect to the given records.
func (s *Store) Reinforce(ctx context.Context, ids []int64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET access_count = access_count + 1,
		    last_accessed = $1,
		    decay_score   = LEAST(1.0, decay_score + 0.05),
		    updated_at    = $1
		WHERE id = ANY($2)`,
		now.UTC(), pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("postgres: reinforce: %w", err)
	}
	return nil
}
