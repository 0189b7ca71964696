package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korelabs/kore/internal/embedding"
	"github.com/korelabs/kore/internal/storage"
	"github.com/korelabs/kore/internal/storage/sqlite"
	"github.com/korelabs/kore/internal/vector"
	"github.com/korelabs/kore/pkg/types"
)

// stubEmbedder returns canned unit vectors by exact text, and a fallback
// vector for anything unknown.
type stubEmbedder struct {
	vecs     map[string][]float32
	fallback []float32
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := s.vecs[text]; ok {
		return v, nil
	}
	return s.fallback, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Available() bool { return true }

var _ embedding.Embedder = (*stubEmbedder)(nil)

func nowUTC() time.Time { return time.Now().UTC() }

func newTestEngine(t *testing.T, emb embedding.Embedder) (*Engine, storage.Store) {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, vector.Select(store), emb, log), store
}

func mustSave(t *testing.T, e *Engine, agentID, content, category string, importance int) *types.MemoryRecord {
	t.Helper()
	req := types.SaveRequest{Content: content, Category: category}
	if importance > 0 {
		req.Importance = &importance
	}
	rec, err := e.Save(context.Background(), agentID, req)
	require.NoError(t, err)
	return rec
}

func TestSaveAndLexicalRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	rec := mustSave(t, e, "agent-a", "the deploy pipeline uses blue-green rollout", "project", 0)
	assert.Equal(t, 1.0, rec.DecayScore)
	assert.Equal(t, 3, rec.Importance) // "deploy" keyword, project baseline

	res, err := e.Search(ctx, SearchRequest{AgentID: "agent-a", Query: "deploy pipeline", Limit: 5})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, rec.ID, res.Records[0].ID)
	assert.Equal(t, 1.0, res.Records[0].DecayScore)
	assert.Equal(t, 1, res.Total)
}

func TestSaveAutoScoresImportance(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	low := mustSave(t, e, "a", "random observation about weather", "general", 0)
	high := mustSave(t, e, "a", "the database password rotated today", "general", 0)

	assert.Equal(t, 1, low.Importance)
	assert.Equal(t, 5, high.Importance)
}

func TestSaveValidationRejectedBeforeMutation(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := e.Save(ctx, "a", types.SaveRequest{Content: "x"})
	require.ErrorIs(t, err, types.ErrValidation)

	bad := 9
	_, err = e.Save(ctx, "a", types.SaveRequest{Content: "long enough content", Importance: &bad})
	require.ErrorIs(t, err, types.ErrValidation)

	stats, err := store.Stats(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalMemories)
}

func TestSearchReinforcesReturnedPage(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()

	rec := mustSave(t, e, "a", "remember the staging server hostname", "general", 2)

	_, err := e.Search(ctx, SearchRequest{AgentID: "a", Query: "staging server", Limit: 5})
	require.NoError(t, err)

	got, ok, err := store.Get(ctx, "a", rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got.AccessCount)
	require.NotNil(t, got.LastAccessed)
	assert.Equal(t, 1.0, got.DecayScore) // already at ceiling
}

func TestTimelineChronologicalAndNoReinforcement(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()

	first := mustSave(t, e, "a", "meeting with Dana about budget", "general", 3)
	second := mustSave(t, e, "a", "Dana approved the budget", "general", 3)
	third := mustSave(t, e, "a", "Dana sent the budget spreadsheet", "general", 3)

	res, err := e.Timeline(ctx, SearchRequest{AgentID: "a", Query: "Dana", Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	assert.Equal(t, first.ID, res.Records[0].ID)
	assert.Equal(t, second.ID, res.Records[1].ID)
	assert.Equal(t, third.ID, res.Records[2].ID)

	got, ok, err := store.Get(ctx, "a", first.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, got.AccessCount)
}

func TestSearchAgentIsolation(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	mustSave(t, e, "alpha", "shared secret phrase xylophone", "general", 3)
	mustSave(t, e, "beta", "another xylophone mention", "general", 3)

	res, err := e.Search(ctx, SearchRequest{AgentID: "alpha", Query: "xylophone", Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "alpha", res.Records[0].AgentID)
	assert.Equal(t, 1, res.Total)
}

func TestForgottenRecordsExcluded(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()

	keep := mustSave(t, e, "a", "fresh memo about the quarterly report", "general", 3)
	faded := mustSave(t, e, "a", "faded memo about the quarterly report", "general", 3)

	_, err := store.ApplyDecayScores(ctx,
		[]storage.DecayUpdate{{ID: faded.ID, Score: 0.01}}, nowUTC())
	require.NoError(t, err)

	res, err := e.Search(ctx, SearchRequest{AgentID: "a", Query: "quarterly report", Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, keep.ID, res.Records[0].ID)
	assert.Equal(t, 1, res.Total, "forgotten records are excluded from the total")
}

func TestUpdateAndDelete(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()

	rec := mustSave(t, e, "a", "initial content for the note", "general", 2)

	newContent := "revised content for the note"
	newImportance := 4
	ok, err := e.Update(ctx, "a", rec.ID, types.UpdateRequest{
		Content: &newContent, Importance: &newImportance,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, ok, err := store.Get(ctx, "a", rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newContent, got.Content)
	assert.Equal(t, 4, got.Importance)

	ok, err = e.Delete(ctx, "a", rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = store.Get(ctx, "a", rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// A second delete is a clean not-found, not an error.
	ok, err = e.Delete(ctx, "a", rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArchiveHidesAndRestoreRevives(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	rec := mustSave(t, e, "a", "archive me when the sprint closes", "task", 2)

	ok, err := e.Archive(ctx, "a", rec.ID)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := e.Search(ctx, SearchRequest{AgentID: "a", Query: "sprint", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Records)

	archived, err := e.ListArchived(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, rec.ID, archived[0].ID)

	ok, err = e.Restore(ctx, "a", rec.ID)
	require.NoError(t, err)
	require.True(t, ok)

	res, err = e.Search(ctx, SearchRequest{AgentID: "a", Query: "sprint", Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
}

func TestTagsAndRelations(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	a := mustSave(t, e, "a", "kubernetes cluster went down at noon", "project", 4)
	b := mustSave(t, e, "a", "postmortem for the cluster outage", "project", 4)

	added, err := e.AddTags(ctx, "a", a.ID, []string{"Outage", "k8s", "outage"})
	require.NoError(t, err)
	assert.Equal(t, 2, added) // normalized duplicate collapses

	tags, err := e.GetTags(ctx, "a", a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"k8s", "outage"}, tags)

	byTag, err := e.SearchByTag(ctx, "a", "OUTAGE", 10)
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, a.ID, byTag[0].ID)

	require.NoError(t, e.AddRelation(ctx, "a", b.ID, a.ID, "follows_up"))
	rels, err := e.GetRelations(ctx, "a", a.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, b.ID, rels[0].SourceID)
	assert.Equal(t, "follows_up", rels[0].Relation)

	err = e.AddRelation(ctx, "a", a.ID, a.ID, "related")
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestExportImport(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	mustSave(t, e, "src", "first exported memory", "general", 2)
	mustSave(t, e, "src", "second exported memory", "general", 3)

	exported, err := e.Export(ctx, "src")
	require.NoError(t, err)
	require.Len(t, exported, 2)

	n, err := e.Import(ctx, "dst", exported)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err := e.Search(ctx, SearchRequest{AgentID: "dst", Query: "exported", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
}

func TestRunDecayPass(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()

	rec := mustSave(t, e, "a", "a memory that will decay over time", "general", 2)

	updated, err := e.RunDecayPass(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	// Saved just now, so the recomputed score stays at the ceiling.
	got, ok, err := store.Get(ctx, "a", rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, got.DecayScore)
}

func TestRunDecayPassRemovesExpired(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()

	past := time.Now().UTC().Add(-2 * time.Hour)
	expiredID, err := store.Insert(ctx, &types.MemoryRecord{
		AgentID: "a", Content: "stale note past its expiry", Category: "general",
		Importance: 2, ExpiresAt: &past,
	})
	require.NoError(t, err)
	kept := mustSave(t, e, "a", "a durable note without expiry", "general", 2)

	updated, err := e.RunDecayPass(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, updated, "only the surviving record gets rescored")

	_, ok, err := store.Get(ctx, "a", expiredID)
	require.NoError(t, err)
	assert.False(t, ok, "expired record is gone after the pass")

	_, ok, err = store.Get(ctx, "a", kept.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunDecayPassSingleFlight(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	mustSave(t, e, "a", "memory present during the contended pass", "general", 2)

	e.decayMu.Lock()
	updated, err := e.RunDecayPass(ctx, "a")
	e.decayMu.Unlock()
	require.NoError(t, err)
	assert.Zero(t, updated, "contended pass reports a no-op")

	updated, err = e.RunDecayPass(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
}

func TestStatsAndListAgents(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	mustSave(t, e, "a", "stat memory one for agent a", "general", 2)
	mustSave(t, e, "b", "stat memory for agent b", "general", 2)

	stats, err := e.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMemories)
	assert.Equal(t, 2, stats.ActiveMemories)

	agents, err := e.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 2)
}
