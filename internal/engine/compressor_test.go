package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korelabs/kore/pkg/types"
)

func TestSplitSentences(t *testing.T) {
	units := splitSentences("First point. Second point! Third? Trailing fragment")
	assert.Equal(t, []string{
		"First point.", "Second point!", "Third?", "Trailing fragment",
	}, units)

	assert.Equal(t, []string{"No terminator here"}, splitSentences("No terminator here"))
	assert.Empty(t, splitSentences("   "))

	// Punctuation not followed by whitespace does not split.
	assert.Equal(t, []string{"v1.2.3 released.", "Ship it"},
		splitSentences("v1.2.3 released. Ship it"))
}

func TestMergeContentsDeduplicates(t *testing.T) {
	cluster := []types.MemoryRecord{
		{Content: "The meeting is at noon. Bring the slides."},
		{Content: "Bring the slides. The room is 4B."},
	}
	merged := mergeContents(cluster)
	assert.Equal(t, "The meeting is at noon. Bring the slides. The room is 4B.", merged)
}

func TestMergeContentsCaseSensitiveDedup(t *testing.T) {
	cluster := []types.MemoryRecord{
		{Content: "Check the logs."},
		{Content: "check the logs."},
	}
	merged := mergeContents(cluster)
	assert.Equal(t, "Check the logs. check the logs.", merged)
}

func TestMergeContentsTruncates(t *testing.T) {
	var sentences []string
	for i := 0; i < 300; i++ {
		sentences = append(sentences, fmt.Sprintf("unique fact number %03d noted.", i))
	}
	cluster := []types.MemoryRecord{{Content: strings.Join(sentences, " ")}}

	merged := mergeContents(cluster)
	assert.LessOrEqual(t, utf8.RuneCountInString(merged), types.MaxContentLength)
	assert.True(t, strings.HasSuffix(merged, truncationMarker))
}

func TestMergeContentsTruncatesOnRuneBoundary(t *testing.T) {
	// 2100 runes is 6300 bytes: over the cap in bytes but well under it in
	// characters, so no truncation may happen.
	short := []types.MemoryRecord{{Content: strings.Repeat("記", 2100) + "."}}
	merged := mergeContents(short)
	assert.True(t, utf8.ValidString(merged))
	assert.Equal(t, 2101, utf8.RuneCountInString(merged))

	long := []types.MemoryRecord{{Content: strings.Repeat("記", 4500) + "."}}
	merged = mergeContents(long)
	assert.True(t, utf8.ValidString(merged))
	assert.Equal(t, types.MaxContentLength, utf8.RuneCountInString(merged))
	assert.True(t, strings.HasSuffix(merged, truncationMarker))
}

func TestDominantCategory(t *testing.T) {
	cluster := []types.MemoryRecord{
		{Category: "project"},
		{Category: "general"},
		{Category: "project"},
	}
	assert.Equal(t, "project", dominantCategory(cluster))

	// Tie resolves to the first seen.
	tie := []types.MemoryRecord{
		{Category: "task"},
		{Category: "general"},
	}
	assert.Equal(t, "task", dominantCategory(tie))
}

func TestClusterBySimilarityGreedy(t *testing.T) {
	records := []types.MemoryRecord{
		{ID: 1, Embedding: []float32{1, 0, 0}},
		{ID: 2, Embedding: []float32{0, 1, 0}},
		{ID: 3, Embedding: []float32{1, 0, 0}},
		{ID: 4, Embedding: []float32{0, 1, 0}},
		{ID: 5, Embedding: []float32{0, 0, 1}},
	}

	clusters := clusterBySimilarity(records, 0.88)
	require.Len(t, clusters, 2)
	assert.Equal(t, int64(1), clusters[0][0].ID)
	assert.Equal(t, int64(3), clusters[0][1].ID)
	assert.Equal(t, int64(2), clusters[1][0].ID)
	assert.Equal(t, int64(4), clusters[1][1].ID)
}

func TestClusterSkipsMissingEmbeddings(t *testing.T) {
	records := []types.MemoryRecord{
		{ID: 1, Embedding: []float32{1, 0}},
		{ID: 2}, // lexical-only record never clusters
		{ID: 3, Embedding: []float32{1, 0}},
	}
	clusters := clusterBySimilarity(records, 0.88)
	require.Len(t, clusters, 1)
	require.Len(t, clusters[0], 2)
}

func TestRunCompressionMergesCluster(t *testing.T) {
	dup := []float32{0.6, 0.8, 0}
	emb := &stubEmbedder{
		vecs: map[string][]float32{
			"prefers dark roast coffee in the morning": dup,
			"likes strong dark roast coffee at dawn":   dup,
			"the cat is named Biscuit":                 {0, 0, 1},
		},
		fallback: []float32{0, 1, 0},
	}
	e, store := newTestEngine(t, emb)
	ctx := context.Background()

	a := mustSave(t, e, "a", "prefers dark roast coffee in the morning", "preference", 3)
	b := mustSave(t, e, "a", "likes strong dark roast coffee at dawn", "preference", 5)
	c := mustSave(t, e, "a", "the cat is named Biscuit", "person", 2)

	_, err := e.AddTags(ctx, "a", a.ID, []string{"coffee"})
	require.NoError(t, err)
	require.NoError(t, e.AddRelation(ctx, "a", c.ID, a.ID, "mentions"))

	result, err := e.RunCompression(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ClustersFound)
	assert.Equal(t, 2, result.MemoriesMerged)
	assert.Equal(t, 1, result.NewRecordsCreated)

	// Members are marked compressed and leave retrieval.
	gotA, ok, err := store.Get(ctx, "a", a.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, gotA.CompressedInto)
	newID := *gotA.CompressedInto

	res, err := e.Search(ctx, SearchRequest{AgentID: "a", Query: "*", Limit: 20})
	require.NoError(t, err)
	for _, rec := range res.Records {
		assert.NotEqual(t, a.ID, rec.ID)
		assert.NotEqual(t, b.ID, rec.ID)
	}

	// The merge record carries the max importance and the migrated graph.
	mergedRec, ok, err := store.Get(ctx, "a", newID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, mergedRec.Importance)
	assert.Equal(t, "preference", mergedRec.Category)

	tags, err := store.GetTags(ctx, "a", newID)
	require.NoError(t, err)
	assert.Equal(t, []string{"coffee"}, tags)

	rels, err := store.GetRelations(ctx, "a", newID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, c.ID, rels[0].SourceID)
	assert.Equal(t, newID, rels[0].TargetID)
}

func TestRunCompressionNothingToMerge(t *testing.T) {
	emb := &stubEmbedder{
		vecs: map[string][]float32{
			"alpha topic entry": {1, 0, 0},
			"beta topic entry":  {0, 1, 0},
		},
		fallback: []float32{0, 0, 1},
	}
	e, _ := newTestEngine(t, emb)
	ctx := context.Background()

	mustSave(t, e, "a", "alpha topic entry", "general", 2)
	mustSave(t, e, "a", "beta topic entry", "general", 2)

	result, err := e.RunCompression(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, result.ClustersFound)
	assert.Zero(t, result.MemoriesMerged)
}

func TestRunCompressionSingleFlight(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	e.compressMu.Lock()
	result, err := e.RunCompression(ctx, "a")
	e.compressMu.Unlock()
	require.NoError(t, err)
	assert.Equal(t, types.CompressionResult{}, result)
}

func TestCompressedRecordsExitCandidatePool(t *testing.T) {
	dup := []float32{1, 0, 0}
	emb := &stubEmbedder{
		vecs: map[string][]float32{
			"repeat note about the same fact":  dup,
			"another note about the same fact": dup,
		},
		// The merge record embeds orthogonally so a second pass finds
		// nothing new to cluster.
		fallback: []float32{0, 1, 0},
	}
	e, store := newTestEngine(t, emb)
	ctx := context.Background()

	mustSave(t, e, "a", "repeat note about the same fact", "general", 2)
	mustSave(t, e, "a", "another note about the same fact", "general", 2)

	first, err := e.RunCompression(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, first.ClustersFound)

	candidates, err := store.CompressionCandidates(ctx, "a", maxCompressionDepth)
	require.NoError(t, err)
	require.Len(t, candidates, 1, "only the merge record remains eligible")

	second, err := e.RunCompression(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, second.ClustersFound)
}
