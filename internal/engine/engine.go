// Package engine coordinates the memory lifecycle: saving with embedding and
// auto-scored importance, hybrid ranked retrieval with reinforcement, the
// periodic decay pass, and compression of near-duplicate records.
//
// The engine owns no storage of its own; the relational store is the source
// of truth and the vector index is a derived projection. All methods are safe
// for concurrent use.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/korelabs/kore/internal/embedding"
	"github.com/korelabs/kore/internal/metrics"
	"github.com/korelabs/kore/internal/scorer"
	"github.com/korelabs/kore/internal/storage"
	"github.com/korelabs/kore/internal/vector"
	"github.com/korelabs/kore/pkg/types"
)

// Engine is the facade over the store, the vector index and the embedder.
type Engine struct {
	store    storage.Store
	index    vector.Index
	embedder embedding.Embedder
	score    scorer.Func
	log      *slog.Logger

	// Non-blocking single-flight guards: a maintenance pass already running
	// turns a second call into an immediate no-op.
	decayMu    sync.Mutex
	compressMu sync.Mutex
}

// New wires an engine. embedder may be nil, which disables semantic search
// entirely; log nil falls back to slog.Default().
func New(store storage.Store, index vector.Index, embedder embedding.Embedder, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:    store,
		index:    index,
		embedder: embedder,
		score:    scorer.Score,
		log:      log.With("component", "engine"),
	}
}

// semanticReady reports whether embeddings can be produced right now.
func (e *Engine) semanticReady() bool {
	return e.embedder != nil && e.embedder.Available()
}

// embed returns the vector for text, or nil when the capability is absent or
// the backend failed. Embedding failures degrade the operation, never fail it.
func (e *Engine) embed(ctx context.Context, text string) []float32 {
	if !e.semanticReady() {
		return nil
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		metrics.EmbeddingFailuresTotal.Inc()
		e.log.Warn("embedding failed, record will be lexical-only", "error", err)
		return nil
	}
	return vec
}

// Save validates, scores and persists one memory, then indexes its vector.
func (e *Engine) Save(ctx context.Context, agentID string, req types.SaveRequest) (*types.MemoryRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	importance := 0
	if req.Importance != nil {
		importance = *req.Importance
	} else {
		importance = e.score(req.Content, req.Category)
	}

	rec := &types.MemoryRecord{
		AgentID:    agentID,
		Content:    req.Content,
		Category:   req.Category,
		Importance: importance,
	}
	if req.TTLHours > 0 {
		t := time.Now().UTC().Add(time.Duration(req.TTLHours) * time.Hour)
		rec.ExpiresAt = &t
	}

	// Embedding happens before any store write or lock; a failure here only
	// costs semantic retrieval for this record.
	rec.Embedding = e.embed(ctx, req.Content)

	id, err := e.store.Insert(ctx, rec)
	if err != nil {
		return nil, err
	}

	if len(rec.Embedding) > 0 {
		if err := e.index.Upsert(ctx, id, rec.AgentID, rec.Embedding); err != nil {
			e.log.Warn("vector index upsert failed", "id", id, "error", err)
		}
	}

	metrics.SavesTotal.Inc()
	e.log.Debug("memory saved", "id", id, "agent", rec.AgentID,
		"category", rec.Category, "importance", importance)
	return rec, nil
}

// SaveBatch saves several memories, embedding them in one backend call.
// Failures are per-item: the returned slice holds a nil for each request
// that failed validation or insertion.
func (e *Engine) SaveBatch(ctx context.Context, agentID string, reqs []types.SaveRequest) ([]*types.MemoryRecord, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	valid := make([]bool, len(reqs))
	var texts []string
	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			e.log.Warn("batch item rejected", "index", i, "error", err)
			continue
		}
		valid[i] = true
		texts = append(texts, reqs[i].Content)
	}

	var vecs [][]float32
	if e.semanticReady() && len(texts) > 0 {
		var err error
		vecs, err = e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			metrics.EmbeddingFailuresTotal.Inc()
			e.log.Warn("batch embedding failed, records will be lexical-only", "error", err)
			vecs = nil
		}
	}

	records := make([]*types.MemoryRecord, len(reqs))
	vi := 0
	for i := range reqs {
		if !valid[i] {
			continue
		}
		var vec []float32
		if vecs != nil {
			vec = vecs[vi]
		}
		vi++

		importance := 0
		if reqs[i].Importance != nil {
			importance = *reqs[i].Importance
		} else {
			importance = e.score(reqs[i].Content, reqs[i].Category)
		}

		rec := &types.MemoryRecord{
			AgentID:    agentID,
			Content:    reqs[i].Content,
			Category:   reqs[i].Category,
			Importance: importance,
			Embedding:  vec,
		}
		if reqs[i].TTLHours > 0 {
			t := time.Now().UTC().Add(time.Duration(reqs[i].TTLHours) * time.Hour)
			rec.ExpiresAt = &t
		}

		id, err := e.store.Insert(ctx, rec)
		if err != nil {
			e.log.Warn("batch insert failed", "index", i, "error", err)
			continue
		}
		if len(vec) > 0 {
			if err := e.index.Upsert(ctx, id, rec.AgentID, vec); err != nil {
				e.log.Warn("vector index upsert failed", "id", id, "error", err)
			}
		}
		metrics.SavesTotal.Inc()
		records[i] = rec
	}
	return records, nil
}

// Get returns one record by id. The boolean is false when it does not exist
// in the agent's scope. Reading by id is not an access: no reinforcement.
func (e *Engine) Get(ctx context.Context, agentID string, id int64) (*types.MemoryRecord, bool, error) {
	return e.store.Get(ctx, agentID, id)
}

// Update applies a partial update. A content change re-embeds the record;
// when embedding then fails the stale vector is dropped rather than kept.
func (e *Engine) Update(ctx context.Context, agentID string, id int64, req types.UpdateRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}

	fields := storage.UpdateFields{
		Content:    req.Content,
		Category:   req.Category,
		Importance: req.Importance,
	}
	if req.Content != nil {
		fields.ReplaceEmbedding = true
		fields.Embedding = e.embed(ctx, *req.Content)
	}

	ok, err := e.store.Update(ctx, agentID, id, fields)
	if err != nil || !ok {
		return ok, err
	}

	if fields.ReplaceEmbedding {
		if len(fields.Embedding) > 0 {
			if err := e.index.Upsert(ctx, id, agentID, fields.Embedding); err != nil {
				e.log.Warn("vector index upsert failed", "id", id, "error", err)
			}
		} else {
			if err := e.index.Remove(ctx, id, agentID); err != nil {
				e.log.Warn("vector index remove failed", "id", id, "error", err)
			}
		}
	}
	return true, nil
}

// Delete hard-deletes a record and drops it from the vector index.
func (e *Engine) Delete(ctx context.Context, agentID string, id int64) (bool, error) {
	ok, err := e.store.Delete(ctx, agentID, id)
	if err != nil || !ok {
		return ok, err
	}
	if err := e.index.Remove(ctx, id, agentID); err != nil {
		e.log.Warn("vector index remove failed", "id", id, "error", err)
	}
	return true, nil
}

// Archive soft-deletes a record. The vector index entry is left in place;
// archived records are filtered out when candidates are hydrated.
func (e *Engine) Archive(ctx context.Context, agentID string, id int64) (bool, error) {
	return e.store.Archive(ctx, agentID, id)
}

// Restore reverses Archive.
func (e *Engine) Restore(ctx context.Context, agentID string, id int64) (bool, error) {
	return e.store.Restore(ctx, agentID, id)
}

// ListArchived returns archived records, most recently archived first.
func (e *Engine) ListArchived(ctx context.Context, agentID string, limit int) ([]types.MemoryRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return e.store.ListArchived(ctx, agentID, limit)
}

// CleanupExpired hard-deletes records whose TTL elapsed and invalidates the
// agent's cached vectors. An empty agentID cleans every agent.
func (e *Engine) CleanupExpired(ctx context.Context, agentID string) (int, error) {
	n, err := e.store.CleanupExpired(ctx, agentID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if agentID == "" {
			e.index.InvalidateAll()
		} else {
			e.index.Invalidate(agentID)
		}
	}
	return n, nil
}

// Tags.

func (e *Engine) AddTags(ctx context.Context, agentID string, id int64, tags []string) (int, error) {
	return e.store.AddTags(ctx, agentID, id, tags)
}

func (e *Engine) RemoveTags(ctx context.Context, agentID string, id int64, tags []string) (int, error) {
	return e.store.RemoveTags(ctx, agentID, id, tags)
}

func (e *Engine) GetTags(ctx context.Context, agentID string, id int64) ([]string, error) {
	return e.store.GetTags(ctx, agentID, id)
}

func (e *Engine) SearchByTag(ctx context.Context, agentID, tag string, limit int) ([]types.MemoryRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return e.store.SearchByTag(ctx, agentID, tag, limit)
}

// Relations.

func (e *Engine) AddRelation(ctx context.Context, agentID string, sourceID, targetID int64, relation string) error {
	return e.store.AddRelation(ctx, agentID, sourceID, targetID, relation)
}

func (e *Engine) GetRelations(ctx context.Context, agentID string, id int64) ([]types.Relation, error) {
	return e.store.GetRelations(ctx, agentID, id)
}

// Export returns all active records for the agent, newest first.
func (e *Engine) Export(ctx context.Context, agentID string) ([]types.MemoryRecord, error) {
	return e.store.Export(ctx, agentID)
}

// Import re-saves exported records through the normal save path, so each gets
// a fresh embedding and decay trajectory. Returns the number imported.
func (e *Engine) Import(ctx context.Context, agentID string, records []types.MemoryRecord) (int, error) {
	imported := 0
	for i := range records {
		imp := records[i].Importance
		req := types.SaveRequest{
			Content:    records[i].Content,
			Category:   records[i].Category,
			Importance: &imp,
		}
		if _, err := e.Save(ctx, agentID, req); err != nil {
			e.log.Warn("import item skipped", "index", i, "error", err)
			continue
		}
		imported++
	}
	if imported == 0 && len(records) > 0 {
		return 0, fmt.Errorf("import: no records accepted out of %d", len(records))
	}
	return imported, nil
}

// Stats reports store-level counts.
func (e *Engine) Stats(ctx context.Context, agentID string) (types.Stats, error) {
	return e.store.Stats(ctx, agentID)
}

// ListAgents returns every agent namespace, most recently active first.
func (e *Engine) ListAgents(ctx context.Context) ([]types.AgentInfo, error) {
	return e.store.ListAgents(ctx)
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}
