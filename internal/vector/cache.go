package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/korelabs/kore/internal/embedding"
)

// agentCache holds one agent's vectors. The dirty flag is atomic so that
// Invalidate never blocks, even while a reload is in flight; reloadMu
// serialises reloads; mu guards the map for the swap and for readers.
type agentCache struct {
	mu       sync.RWMutex
	reloadMu sync.Mutex
	dirty    atomic.Bool
	vectors  map[int64][]float32
}

// Cache is the fallback vector index: a per-agent in-memory map populated
// lazily from the relational store. Writes do not touch the map; they mark
// it dirty, and the next search reloads the agent's vectors in full.
type Cache struct {
	source Source

	mu     sync.Mutex
	agents map[string]*agentCache
}

// NewCache builds an empty cache over the given reload source.
func NewCache(source Source) *Cache {
	return &Cache{
		source: source,
		agents: make(map[string]*agentCache),
	}
}

func (c *Cache) agent(agentID string) *agentCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	ac, ok := c.agents[agentID]
	if !ok {
		ac = &agentCache{}
		ac.dirty.Store(true) // force load on first access
		c.agents[agentID] = ac
	}
	return ac
}

// Upsert marks the agent dirty; the vector itself is read back from the
// store on the next search.
func (c *Cache) Upsert(_ context.Context, _ int64, agentID string, _ []float32) error {
	c.Invalidate(agentID)
	return nil
}

// Remove marks the agent dirty.
func (c *Cache) Remove(_ context.Context, _ int64, agentID string) error {
	c.Invalidate(agentID)
	return nil
}

// Invalidate marks the agent's vectors stale without clearing them. It never
// blocks: concurrent readers of a fresh cache proceed, and the next search
// after this call performs the reload.
func (c *Cache) Invalidate(agentID string) {
	c.mu.Lock()
	ac, ok := c.agents[agentID]
	c.mu.Unlock()
	if ok {
		ac.dirty.Store(true)
	}
}

// InvalidateAll marks every known agent stale.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ac := range c.agents {
		ac.dirty.Store(true)
	}
}

// ensureFresh reloads the agent's vectors when dirty. The double-check under
// reloadMu collapses concurrent reload attempts into one.
func (c *Cache) ensureFresh(ctx context.Context, agentID string, ac *agentCache) error {
	if !ac.dirty.Load() {
		return nil
	}

	ac.reloadMu.Lock()
	defer ac.reloadMu.Unlock()
	if !ac.dirty.Load() {
		return nil
	}

	vectors, err := c.source.LoadVectors(ctx, agentID)
	if err != nil {
		return fmt.Errorf("vector: reload agent %q: %w", agentID, err)
	}

	ac.mu.Lock()
	ac.vectors = vectors
	ac.mu.Unlock()
	ac.dirty.Store(false)
	return nil
}

// Search scores every cached vector against the query by dot product and
// returns the top matches. The category argument is ignored here; category
// narrowing happens when the records are fetched from the store.
func (c *Cache) Search(ctx context.Context, query []float32, agentID, _ string, limit int, minSimilarity float64) ([]Match, error) {
	ac := c.agent(agentID)
	if err := c.ensureFresh(ctx, agentID, ac); err != nil {
		return nil, err
	}

	ac.mu.RLock()
	matches := make([]Match, 0, len(ac.vectors))
	for id, vec := range ac.vectors {
		sim := embedding.Dot(query, vec)
		if sim >= minSimilarity {
			matches = append(matches, Match{ID: id, Similarity: sim})
		}
	}
	ac.mu.RUnlock()

	// Tie-break on id so results are deterministic across map iterations.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID > matches[j].ID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
