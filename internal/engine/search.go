package engine

import (
	"context"
	"sort"
	"time"

	"github.com/korelabs/kore/internal/metrics"
	"github.com/korelabs/kore/internal/storage"
	"github.com/korelabs/kore/internal/vector"
	"github.com/korelabs/kore/pkg/types"
)

// Limit bounds for a search page.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Candidate over-fetch factors. Search fetches more than one page so the
// forget filter and re-ranking have material to work with; timeline needs
// less because it never re-ranks.
const (
	searchFetchFactor   = 3
	timelineFetchFactor = 2
)

// SearchRequest selects a page of memories for one agent.
type SearchRequest struct {
	AgentID  string
	Query    string // "*" lists everything
	Category string // empty = all categories
	Limit    int
	Semantic bool   // request vector retrieval; silently degrades to lexical
	Cursor   string // opaque token from a previous page, empty for the first
}

// SearchResult is one page plus pagination metadata.
type SearchResult struct {
	Records    []types.MemoryRecord
	NextCursor string // empty when this is the last page
	Total      int    // unbounded count of everything the query can surface
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Search runs hybrid ranked retrieval.
//
// Candidates come from the vector index when semantic mode is on and usable,
// otherwise from lexical full-text matching. Page membership follows the
// stored (decay_score DESC, id DESC) order, which is what the cursor encodes,
// so paging stays stable across score recomputation; the page itself is then
// presented re-ranked by similarity x effective score. Every record returned
// is reinforced.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	limit := clampLimit(req.Limit)

	var cursor *storage.Cursor
	if req.Cursor != "" {
		c, err := storage.DecodeCursor(req.Cursor)
		if err != nil {
			return nil, err
		}
		cursor = &c
	}

	semantic := req.Semantic && e.semanticReady() &&
		req.Query != "" && req.Query != "*"

	var (
		candidates []types.MemoryRecord
		sims       map[int64]float64
		mode       = "lexical"
	)

	if semantic {
		if vec := e.embed(ctx, req.Query); vec != nil {
			matches, err := e.index.Search(ctx, vec, req.AgentID, req.Category,
				limit*searchFetchFactor, vector.DefaultMinSimilarity)
			if err != nil {
				e.log.Warn("vector search failed, falling back to lexical", "error", err)
			} else {
				ids := make([]int64, len(matches))
				sims = make(map[int64]float64, len(matches))
				for i, m := range matches {
					ids[i] = m.ID
					sims[m.ID] = m.Similarity
				}
				candidates, err = e.store.FetchByIDs(ctx, req.AgentID, ids, req.Category, cursor)
				if err != nil {
					return nil, err
				}
				mode = "semantic"
			}
		}
	}

	if mode == "lexical" {
		var err error
		candidates, err = e.store.LexicalSearch(ctx, storage.SearchQuery{
			AgentID:  req.AgentID,
			Text:     req.Query,
			Category: req.Category,
			Limit:    limit * searchFetchFactor,
			Cursor:   cursor,
		})
		if err != nil {
			return nil, err
		}
		sims = nil
	}

	page, next := paginate(candidates, limit)

	// Presentation order: similarity (1.0 in lexical mode) times effective
	// score. Ties keep the stored order.
	sort.SliceStable(page, func(i, j int) bool {
		return rankScore(&page[i], sims) > rankScore(&page[j], sims)
	})
	for i := range page {
		page[i].Score = rankScore(&page[i], sims)
	}

	total, err := e.store.CountActive(ctx, req.AgentID, req.Query, req.Category)
	if err != nil {
		return nil, err
	}

	e.reinforce(ctx, page)
	metrics.SearchesTotal.WithLabelValues(mode).Inc()

	return &SearchResult{Records: page, NextCursor: next, Total: total}, nil
}

// Timeline returns memories mentioning subject in chronological order.
// Candidate sourcing matches Search; only the final page ordering differs.
// Browsing the timeline is not an access, so nothing is reinforced.
func (e *Engine) Timeline(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	limit := clampLimit(req.Limit)

	var cursor *storage.Cursor
	if req.Cursor != "" {
		c, err := storage.DecodeCursor(req.Cursor)
		if err != nil {
			return nil, err
		}
		cursor = &c
	}

	candidates, err := e.store.LexicalSearch(ctx, storage.SearchQuery{
		AgentID:  req.AgentID,
		Text:     req.Query,
		Category: req.Category,
		Limit:    limit * timelineFetchFactor,
		Cursor:   cursor,
	})
	if err != nil {
		return nil, err
	}

	page, next := paginate(candidates, limit)

	sort.SliceStable(page, func(i, j int) bool {
		return page[i].CreatedAt.Before(page[j].CreatedAt)
	})

	total, err := e.store.CountActive(ctx, req.AgentID, req.Query, req.Category)
	if err != nil {
		return nil, err
	}

	metrics.SearchesTotal.WithLabelValues("timeline").Inc()

	return &SearchResult{Records: page, NextCursor: next, Total: total}, nil
}

// paginate drops forgotten candidates, cuts one page in stored order, and
// derives the next cursor from the page's last record. Candidates arrive
// ordered (decay_score DESC, id DESC); having more survivors than fit on the
// page means another page exists.
func paginate(candidates []types.MemoryRecord, limit int) (page []types.MemoryRecord, next string) {
	var survivors []types.MemoryRecord
	for _, rec := range candidates {
		if ShouldForget(rec.DecayScore) {
			continue
		}
		survivors = append(survivors, rec)
		if len(survivors) == limit+1 {
			break
		}
	}

	if len(survivors) > limit {
		last := survivors[limit-1]
		next = storage.Cursor{DecayScore: last.DecayScore, ID: last.ID}.Encode()
		survivors = survivors[:limit]
	}
	return survivors, next
}

// rankScore combines similarity and effective score; similarity defaults to
// 1.0 for lexical hits.
func rankScore(rec *types.MemoryRecord, sims map[int64]float64) float64 {
	sim := 1.0
	if sims != nil {
		if s, ok := sims[rec.ID]; ok {
			sim = s
		}
	}
	return sim * EffectiveScore(rec.DecayScore, rec.Importance)
}

// reinforce applies the retrieval side effect to a returned page. It runs
// after the page is computed; failures only cost the boost.
func (e *Engine) reinforce(ctx context.Context, page []types.MemoryRecord) {
	if len(page) == 0 {
		return
	}
	ids := make([]int64, len(page))
	for i := range page {
		ids[i] = page[i].ID
	}
	if err := e.store.Reinforce(ctx, ids, time.Now().UTC()); err != nil {
		e.log.Warn("reinforcement failed", "error", err)
		return
	}
	metrics.ReinforcementsTotal.Add(float64(len(ids)))
}
