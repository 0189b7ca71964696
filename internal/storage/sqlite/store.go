// Package sqlite implements storage.Store on SQLite via modernc.org/sqlite,
// with FTS5 providing the lexical search primitive. It is the default backend
// and needs no external services.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/korelabs/kore/internal/embedding"
	"github.com/korelabs/kore/internal/storage"
	"github.com/korelabs/kore/pkg/types"
)

// Ensure Store satisfies the full contract at compile time.
var _ storage.Store = (*Store)(nil)

// Store implements storage.Store using a single SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and applies the schema.
// Use ":memory:" for an ephemeral store in tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}

	// SQLite supports one concurrent writer. A single shared connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load; WAL
	// mode lets readers proceed while a write is in flight.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// recordColumns is the canonical SELECT list; scanRecord must match it.
const recordColumns = `
	id, agent_id, content, category, importance,
	decay_score, access_count, last_accessed,
	compressed_into, archived_at, expires_at,
	embedding, created_at, updated_at
`

// activeFilter excludes compressed, archived and expired rows. It expects one
// bound parameter: the current time, compared against expires_at.
const activeFilter = `compressed_into IS NULL AND archived_at IS NULL
	AND (expires_at IS NULL OR expires_at > ?)`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row in recordColumns order.
func scanRecord(row rowScanner) (types.MemoryRecord, error) {
	var (
		rec            types.MemoryRecord
		lastAccessed   sql.NullTime
		compressedInto sql.NullInt64
		archivedAt     sql.NullTime
		expiresAt      sql.NullTime
		blob           []byte
	)

	err := row.Scan(
		&rec.ID, &rec.AgentID, &rec.Content, &rec.Category, &rec.Importance,
		&rec.DecayScore, &rec.AccessCount, &lastAccessed,
		&compressedInto, &archivedAt, &expiresAt,
		&blob, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return rec, err
	}

	if lastAccessed.Valid {
		t := lastAccessed.Time
		rec.LastAccessed = &t
	}
	if compressedInto.Valid {
		v := compressedInto.Int64
		rec.CompressedInto = &v
	}
	if archivedAt.Valid {
		t := archivedAt.Time
		rec.ArchivedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		rec.ExpiresAt = &t
	}
	if len(blob) > 0 {
		vec, decErr := embedding.Decode(blob)
		if decErr == nil {
			rec.Embedding = vec
		}
		// A corrupt blob leaves the record lexical-only; not an error.
	}

	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]types.MemoryRecord, error) {
	var records []types.MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	return records, nil
}

// Insert persists a new record and returns its id.
func (s *Store) Insert(ctx context.Context, rec *types.MemoryRecord) (int64, error) {
	if rec == nil || rec.Content == "" {
		return 0, fmt.Errorf("%w: content is required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	agentID := rec.AgentID
	if agentID == "" {
		agentID = "default"
	}

	var blob []byte
	if len(rec.Embedding) > 0 {
		blob = embedding.Encode(rec.Embedding)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (agent_id, content, category, importance,
			decay_score, access_count, embedding, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1.0, 0, ?, ?, ?, ?)`,
		agentID, rec.Content, rec.Category, rec.Importance,
		blob, rec.ExpiresAt, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert memory: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: last insert id: %w", err)
	}

	rec.ID = id
	rec.AgentID = agentID
	rec.DecayScore = 1.0
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return id, nil
}

// Get returns a record by id within the agent scope. Archived records are
// excluded; compressed ones remain reachable by direct id lookup.
func (s *Store) Get(ctx context.Context, agentID string, id int64) (*types.MemoryRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM memories
		WHERE id = ? AND agent_id = ? AND archived_at IS NULL`,
		id, agentID,
	)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: get memory %d: %w", id, err)
	}
	return &rec, true, nil
}

// Update applies a partial update in one atomic statement. Compressed records
// are frozen and never updated.
func (s *Store) Update(ctx context.Context, agentID string, id int64, fields storage.UpdateFields) (bool, error) {
	var (
		sets []string
		args []any
	)

	if fields.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *fields.Content)
	}
	if fields.ReplaceEmbedding {
		sets = append(sets, "embedding = ?")
		args = append(args, embedding.Encode(fields.Embedding))
	}
	if fields.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *fields.Category)
	}
	if fields.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, *fields.Importance)
	}

	if len(sets) == 0 {
		var one int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM memories WHERE id = ? AND agent_id = ? AND compressed_into IS NULL`,
			id, agentID,
		).Scan(&one)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("sqlite: check memory %d: %w", id, err)
		}
		return true, nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id, agentID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET `+strings.Join(sets, ", ")+
			` WHERE id = ? AND agent_id = ? AND compressed_into IS NULL`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: update memory %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: update rows affected: %w", err)
	}
	return affected > 0, nil
}

// Delete hard-deletes a record; tags and relations cascade.
func (s *Store) Delete(ctx context.Context, agentID string, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE id = ? AND agent_id = ?`, id, agentID)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete memory %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: delete rows affected: %w", err)
	}
	return affected > 0, nil
}
