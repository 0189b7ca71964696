package vector_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korelabs/kore/internal/vector"
)

// fakeSource is an in-memory reload source that counts loads per agent.
type fakeSource struct {
	mu      sync.Mutex
	vectors map[string]map[int64][]float32
	loads   map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		vectors: make(map[string]map[int64][]float32),
		loads:   make(map[string]int),
	}
}

func (f *fakeSource) set(agentID string, id int64, vec []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vectors[agentID] == nil {
		f.vectors[agentID] = make(map[int64][]float32)
	}
	f.vectors[agentID][id] = vec
}

func (f *fakeSource) LoadVectors(_ context.Context, agentID string) (map[int64][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads[agentID]++
	out := make(map[int64][]float32, len(f.vectors[agentID]))
	for id, vec := range f.vectors[agentID] {
		out[id] = vec
	}
	return out, nil
}

func (f *fakeSource) loadCount(agentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[agentID]
}

func TestCacheSearchRanksBySimilarity(t *testing.T) {
	src := newFakeSource()
	src.set("a1", 1, []float32{1, 0})
	src.set("a1", 2, []float32{0.6, 0.8})
	src.set("a1", 3, []float32{0, 1})

	cache := vector.NewCache(src)
	matches, err := cache.Search(context.Background(), []float32{1, 0}, "a1", "", 10, vector.DefaultMinSimilarity)
	require.NoError(t, err)

	require.Len(t, matches, 2, "orthogonal vector falls below min similarity")
	assert.Equal(t, int64(1), matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Equal(t, int64(2), matches[1].ID)
	assert.InDelta(t, 0.6, matches[1].Similarity, 1e-6)
}

func TestCacheSearchHonorsLimit(t *testing.T) {
	src := newFakeSource()
	for i := int64(1); i <= 5; i++ {
		src.set("a1", i, []float32{1, 0})
	}

	cache := vector.NewCache(src)
	matches, err := cache.Search(context.Background(), []float32{1, 0}, "a1", "", 3, 0.1)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestCacheReloadsOnlyWhenDirty(t *testing.T) {
	src := newFakeSource()
	src.set("a1", 1, []float32{1, 0})

	cache := vector.NewCache(src)
	query := []float32{1, 0}

	_, err := cache.Search(context.Background(), query, "a1", "", 10, 0.1)
	require.NoError(t, err)
	_, err = cache.Search(context.Background(), query, "a1", "", 10, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 1, src.loadCount("a1"), "clean cache must not reload")

	cache.Invalidate("a1")
	_, err = cache.Search(context.Background(), query, "a1", "", 10, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 2, src.loadCount("a1"))
}

func TestCacheInvalidatePicksUpNewVectors(t *testing.T) {
	src := newFakeSource()
	src.set("a1", 1, []float32{1, 0})

	cache := vector.NewCache(src)
	query := []float32{1, 0}

	matches, err := cache.Search(context.Background(), query, "a1", "", 10, 0.1)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// A record saved after the initial load appears only after invalidation.
	src.set("a1", 2, []float32{1, 0})
	matches, err = cache.Search(context.Background(), query, "a1", "", 10, 0.1)
	require.NoError(t, err)
	assert.Len(t, matches, 1, "stale cache is served until invalidated")

	cache.Upsert(context.Background(), 2, "a1", []float32{1, 0})
	matches, err = cache.Search(context.Background(), query, "a1", "", 10, 0.1)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestCacheAgentsAreIsolated(t *testing.T) {
	src := newFakeSource()
	src.set("a1", 1, []float32{1, 0})
	src.set("a2", 2, []float32{1, 0})

	cache := vector.NewCache(src)
	query := []float32{1, 0}

	_, err := cache.Search(context.Background(), query, "a1", "", 10, 0.1)
	require.NoError(t, err)
	_, err = cache.Search(context.Background(), query, "a2", "", 10, 0.1)
	require.NoError(t, err)

	// Invalidating a1 must not force a reload for a2.
	cache.Invalidate("a1")
	_, err = cache.Search(context.Background(), query, "a2", "", 10, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 1, src.loadCount("a2"))

	_, err = cache.Search(context.Background(), query, "a1", "", 10, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 2, src.loadCount("a1"))
}

func TestCacheConcurrentSearchAndInvalidate(t *testing.T) {
	src := newFakeSource()
	for i := int64(1); i <= 50; i++ {
		src.set("a1", i, []float32{1, 0})
	}

	cache := vector.NewCache(src)
	query := []float32{1, 0}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := cache.Search(context.Background(), query, "a1", "", 10, 0.1)
				assert.NoError(t, err)
			}
		}()
	}
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				cache.Invalidate("a1")
			}
		}()
	}
	wg.Wait()
}
