// Package storage defines the relational store contract for the Kore memory
// system and the types shared by its SQLite and PostgreSQL implementations.
//
// The store is the single source of truth; the vector index is a derived
// projection that must be fully reconstructible from it (see LoadVectors).
// Every mutating method runs inside a transaction that fully commits or fully
// rolls back.
package storage

import (
	"context"
	"time"

	"github.com/korelabs/kore/pkg/types"
)

// Store is the full relational backend used by the engine. Both
// implementations (sqlite, postgres) satisfy it.
type Store interface {
	// Insert persists a new record and returns its id. CreatedAt/UpdatedAt
	// are assigned by the store; DecayScore starts at 1.0.
	Insert(ctx context.Context, rec *types.MemoryRecord) (int64, error)

	// Get returns a record by id within the agent scope. Archived records are
	// not returned. The boolean is false when no such record exists.
	Get(ctx context.Context, agentID string, id int64) (*types.MemoryRecord, bool, error)

	// Update applies a partial update to a non-compressed record in a single
	// atomic statement. Returns false when no matching record exists.
	Update(ctx context.Context, agentID string, id int64, fields UpdateFields) (bool, error)

	// Delete hard-deletes a record. Returns false when nothing was deleted.
	Delete(ctx context.Context, agentID string, id int64) (bool, error)

	// Archive soft-deletes, Restore reverses it. Both return false when the
	// record was not in the expected state.
	Archive(ctx context.Context, agentID string, id int64) (bool, error)
	Restore(ctx context.Context, agentID string, id int64) (bool, error)
	ListArchived(ctx context.Context, agentID string, limit int) ([]types.MemoryRecord, error)

	// CleanupExpired hard-deletes records whose TTL elapsed. An empty agentID
	// cleans all agents. Returns the number of rows removed.
	CleanupExpired(ctx context.Context, agentID string) (int, error)

	// LexicalSearch returns active candidates matching q.Text by full-text
	// search, ordered by (decay_score DESC, id DESC) with the cursor applied.
	LexicalSearch(ctx context.Context, q SearchQuery) ([]types.MemoryRecord, error)

	// FetchByIDs loads active records from the given id set, applying the
	// optional category filter and cursor, ordered (decay_score DESC, id DESC).
	// Records missing from the store are silently omitted.
	FetchByIDs(ctx context.Context, agentID string, ids []int64, category string, cursor *Cursor) ([]types.MemoryRecord, error)

	// CountActive counts all active records matching the lexical predicate,
	// unbounded by any limit. Used for pagination totals.
	CountActive(ctx context.Context, agentID, text, category string) (int, error)

	// Reinforce applies the retrieval side effect to the given records:
	// access_count+1, last_accessed=now, decay_score=min(1, +0.05).
	Reinforce(ctx context.Context, ids []int64, now time.Time) error

	// DecayCandidates returns decay inputs for every active record, optionally
	// scoped to one agent. ApplyDecayScores writes recomputed scores back and
	// returns the number of rows updated.
	DecayCandidates(ctx context.Context, agentID string) ([]DecayCandidate, error)
	ApplyDecayScores(ctx context.Context, updates []DecayUpdate, now time.Time) (int, error)

	// LoadVectors returns embeddings of all active records for one agent.
	// It is the reload source for the cache-backed vector index.
	LoadVectors(ctx context.Context, agentID string) (map[int64][]float32, error)

	// CompressionCandidates returns active records with embeddings whose
	// compression depth is below maxDepth.
	CompressionCandidates(ctx context.Context, agentID string, maxDepth int) ([]types.MemoryRecord, error)

	// ApplyMerge finalises one compression cluster in a single transaction:
	// tag migration, relation re-pointing, self-loop removal, and marking
	// every member with compressed_into = newID.
	ApplyMerge(ctx context.Context, newID int64, memberIDs []int64) error

	// Tags.
	AddTags(ctx context.Context, agentID string, id int64, tags []string) (int, error)
	RemoveTags(ctx context.Context, agentID string, id int64, tags []string) (int, error)
	GetTags(ctx context.Context, agentID string, id int64) ([]string, error)
	SearchByTag(ctx context.Context, agentID, tag string, limit int) ([]types.MemoryRecord, error)

	// Relations.
	AddRelation(ctx context.Context, agentID string, sourceID, targetID int64, relation string) error
	GetRelations(ctx context.Context, agentID string, id int64) ([]types.Relation, error)

	// Export returns all active records for the agent, newest first, without
	// embeddings.
	Export(ctx context.Context, agentID string) ([]types.MemoryRecord, error)

	// Stats and agent listing, for monitoring.
	Stats(ctx context.Context, agentID string) (types.Stats, error)
	ListAgents(ctx context.Context) ([]types.AgentInfo, error)

	Close() error
}
