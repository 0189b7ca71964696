package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korelabs/kore/internal/storage"
	"github.com/korelabs/kore/pkg/types"
)

func TestCursorPaginationNoDuplicatesNoGaps(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	const total = 20
	for i := 0; i < total; i++ {
		mustSave(t, e, "a", fmt.Sprintf("paginated memory number %02d", i), "general", 2)
	}

	seen := make(map[int64]bool)
	cursor := ""
	pages := 0
	for {
		res, err := e.Search(ctx, SearchRequest{
			AgentID: "a", Query: "*", Limit: 5, Cursor: cursor,
		})
		require.NoError(t, err)
		assert.Equal(t, total, res.Total)

		for _, rec := range res.Records {
			assert.False(t, seen[rec.ID], "record %d repeated across pages", rec.ID)
			seen[rec.ID] = true
		}

		pages++
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
		require.Less(t, pages, 10, "pagination failed to terminate")
	}

	assert.Len(t, seen, total, "every record appears exactly once")
	assert.Equal(t, 4, pages)
}

func TestCursorStableAcrossReinforcement(t *testing.T) {
	// Reinforcement of page one must not duplicate or skip records on page
	// two: the cursor compares against stored scores at fetch time.
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		mustSave(t, e, "a", fmt.Sprintf("stability check entry %02d", i), "general", 2)
	}

	first, err := e.Search(ctx, SearchRequest{AgentID: "a", Query: "*", Limit: 5})
	require.NoError(t, err)
	require.Len(t, first.Records, 5)
	require.NotEmpty(t, first.NextCursor)

	// Page one was just reinforced. Page two must contain the other five.
	second, err := e.Search(ctx, SearchRequest{
		AgentID: "a", Query: "*", Limit: 5, Cursor: first.NextCursor,
	})
	require.NoError(t, err)
	require.Len(t, second.Records, 5)
	assert.Empty(t, second.NextCursor)

	overlap := 0
	firstIDs := make(map[int64]bool)
	for _, rec := range first.Records {
		firstIDs[rec.ID] = true
	}
	for _, rec := range second.Records {
		if firstIDs[rec.ID] {
			overlap++
		}
	}
	assert.Zero(t, overlap)
}

func TestSearchInvalidCursor(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	_, err := e.Search(context.Background(), SearchRequest{
		AgentID: "a", Query: "*", Limit: 5, Cursor: "not a cursor!!",
	})
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSemanticSearchRanksBySimilarity(t *testing.T) {
	emb := &stubEmbedder{
		vecs: map[string][]float32{
			"favorite fruit is mango":     {1, 0, 0},
			"mango smoothie recipe saved": {0.98, 0.199, 0},
			"car needs an oil change":     {0, 1, 0},
			"what do I like to eat":       {1, 0, 0},
		},
		fallback: []float32{0, 0, 1},
	}
	e, _ := newTestEngine(t, emb)
	ctx := context.Background()

	fruit := mustSave(t, e, "a", "favorite fruit is mango", "preference", 0)
	smoothie := mustSave(t, e, "a", "mango smoothie recipe saved", "preference", 0)
	mustSave(t, e, "a", "car needs an oil change", "task", 0)

	res, err := e.Search(ctx, SearchRequest{
		AgentID: "a", Query: "what do I like to eat", Limit: 5, Semantic: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 2, "the orthogonal record stays below min similarity")

	ids := []int64{res.Records[0].ID, res.Records[1].ID}
	assert.Contains(t, ids, fruit.ID)
	assert.Contains(t, ids, smoothie.ID)
	assert.Greater(t, res.Records[0].Score, 0.0)
}

func TestSemanticFallsBackWithoutEmbedder(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	rec := mustSave(t, e, "a", "lexical fallback target entry", "general", 2)

	res, err := e.Search(ctx, SearchRequest{
		AgentID: "a", Query: "fallback target", Limit: 5, Semantic: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, rec.ID, res.Records[0].ID)
}

func TestSearchLimitClamped(t *testing.T) {
	assert.Equal(t, DefaultLimit, clampLimit(0))
	assert.Equal(t, DefaultLimit, clampLimit(-3))
	assert.Equal(t, MaxLimit, clampLimit(5000))
	assert.Equal(t, 7, clampLimit(7))
}

func TestPaginateDropsForgotten(t *testing.T) {
	candidates := []types.MemoryRecord{
		{ID: 5, DecayScore: 0.9},
		{ID: 4, DecayScore: 0.01},
		{ID: 3, DecayScore: 0.7},
		{ID: 2, DecayScore: 0.6},
	}

	page, next := paginate(candidates, 2)
	require.Len(t, page, 2)
	assert.Equal(t, int64(5), page[0].ID)
	assert.Equal(t, int64(3), page[1].ID)
	require.NotEmpty(t, next)

	c, err := storage.DecodeCursor(next)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.ID)
	assert.Equal(t, 0.7, c.DecayScore)
}

func TestPaginateLastPageHasNoCursor(t *testing.T) {
	candidates := []types.MemoryRecord{
		{ID: 2, DecayScore: 0.9},
		{ID: 1, DecayScore: 0.8},
	}
	page, next := paginate(candidates, 5)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
}

func TestRankScoreLexicalDefaultsSimilarity(t *testing.T) {
	rec := types.MemoryRecord{DecayScore: 0.8, Importance: 5}
	assert.Equal(t, 0.8, rankScore(&rec, nil))

	sims := map[int64]float64{rec.ID: 0.5}
	assert.InDelta(t, 0.4, rankScore(&rec, sims), 0.0001)
}
