// Package vector provides the semantic index over memory embeddings.
//
// Two interchangeable backends exist: a native index persisted inside the
// PostgreSQL store (pgvector), and an in-memory invalidate-and-reload cache
// that works with any storage.Store. The backend is selected once at startup;
// callers hold the Index interface and never branch on which is active.
package vector

import "context"

// DefaultMinSimilarity is the floor below which semantic candidates are
// dropped.
const DefaultMinSimilarity = 0.1

// Match is one semantic search hit.
type Match struct {
	ID         int64
	Similarity float64
}

// Index maintains a searchable mapping from memory id to embedding vector,
// partitioned by agent. Vectors are assumed unit L2 norm, so dot product and
// cosine similarity coincide.
type Index interface {
	// Upsert registers or refreshes a vector. The cache backend implements
	// this lazily by marking the agent dirty.
	Upsert(ctx context.Context, id int64, agentID string, vec []float32) error

	// Remove drops a vector from the index.
	Remove(ctx context.Context, id int64, agentID string) error

	// Search returns up to limit matches for the agent with similarity of at
	// least minSimilarity, best first. Category narrowing, when the backend
	// cannot express it, happens downstream when records are fetched.
	Search(ctx context.Context, query []float32, agentID, category string, limit int, minSimilarity float64) ([]Match, error)

	// Invalidate marks the agent's cached vectors stale. No-op for the
	// native backend, whose writes are immediately durable.
	Invalidate(agentID string)

	// InvalidateAll marks every agent stale.
	InvalidateAll()
}

// Source loads all vectors for one agent from the relational store. Both
// storage backends implement it; it is the reload path for the cache index.
type Source interface {
	LoadVectors(ctx context.Context, agentID string) (map[int64][]float32, error)
}

// NativeProvider is implemented by stores that can serve a persistent
// similarity index themselves. A nil result means the capability is absent
// (e.g. the pgvector extension is not installed).
type NativeProvider interface {
	NativeVectorIndex() Index
}

// Select picks the index backend for the given store: the store's native
// index when it offers one, otherwise the in-memory cache.
func Select(store Source) Index {
	if np, ok := store.(NativeProvider); ok {
		if idx := np.NativeVectorIndex(); idx != nil {
			return idx
		}
	}
	return NewCache(store)
}
