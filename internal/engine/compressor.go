package engine

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/korelabs/kore/internal/embedding"
	"github.com/korelabs/kore/internal/metrics"
	"github.com/korelabs/kore/pkg/types"
)

// SimilarityThreshold is the cosine similarity at which two memories are
// considered near-duplicates and eligible for merging.
const SimilarityThreshold = 0.88

// maxCompressionDepth bounds how many merge generations may stack beneath a
// record, preventing runaway re-compression of already merged content.
const maxCompressionDepth = 3

// truncationMarker terminates merged content that had to be cut.
const truncationMarker = "..."

// RunCompression finds clusters of near-duplicate memories for one agent and
// merges each cluster into a brand-new record. Members are marked with
// compressed_into and drop out of all retrieval; their tags and relations
// migrate to the merge record.
//
// Single-flighted per process: a pass already running turns this call into an
// immediate zero result.
func (e *Engine) RunCompression(ctx context.Context, agentID string) (types.CompressionResult, error) {
	var result types.CompressionResult

	if !e.compressMu.TryLock() {
		metrics.CompressionPassesTotal.WithLabelValues("skipped").Inc()
		e.log.Debug("compression pass already running, skipping")
		return result, nil
	}
	defer e.compressMu.Unlock()

	start := time.Now()
	records, err := e.store.CompressionCandidates(ctx, agentID, maxCompressionDepth)
	if err != nil {
		return result, err
	}

	clusters := clusterBySimilarity(records, SimilarityThreshold)
	for _, cluster := range clusters {
		if err := e.mergeCluster(ctx, agentID, cluster); err != nil {
			// One failed cluster does not abort the pass; the members stay
			// uncompressed and are retried next cycle.
			e.log.Warn("cluster merge failed", "size", len(cluster), "error", err)
			continue
		}
		result.ClustersFound++
		result.MemoriesMerged += len(cluster)
		result.NewRecordsCreated++
	}

	if result.ClustersFound > 0 {
		e.index.Invalidate(agentID)
	}

	metrics.CompressionPassesTotal.WithLabelValues("run").Inc()
	metrics.MemoriesMergedTotal.Add(float64(result.MemoriesMerged))
	e.log.Info("compression pass complete", "agent", agentID,
		"clusters", result.ClustersFound, "merged", result.MemoriesMerged,
		"elapsed", time.Since(start))
	return result, nil
}

// clusterBySimilarity greedily groups records whose embeddings score at or
// above threshold. Iteration order is the stored order (ascending id): each
// unassigned record anchors a cluster and claims every later unassigned
// record similar enough to it. A record joins at most one cluster per pass;
// singleton clusters are discarded.
//
// The greedy, order-dependent assignment is deliberate: it keeps successive
// passes deterministic and cheap, at the cost of not finding an optimal
// clustering.
func clusterBySimilarity(records []types.MemoryRecord, threshold float64) [][]types.MemoryRecord {
	assigned := make([]bool, len(records))
	var clusters [][]types.MemoryRecord

	for i := range records {
		if assigned[i] || len(records[i].Embedding) == 0 {
			continue
		}
		cluster := []types.MemoryRecord{records[i]}
		assigned[i] = true

		for j := i + 1; j < len(records); j++ {
			if assigned[j] || len(records[j].Embedding) == 0 {
				continue
			}
			if embedding.Dot(records[i].Embedding, records[j].Embedding) >= threshold {
				cluster = append(cluster, records[j])
				assigned[j] = true
			}
		}

		if len(cluster) > 1 {
			clusters = append(clusters, cluster)
		}
	}
	return clusters
}

// mergeCluster persists one merged record and finalises the cluster. The
// store-side finalisation is atomic; when it fails, the freshly inserted
// merge record is removed so the cluster stays fully uncompressed.
func (e *Engine) mergeCluster(ctx context.Context, agentID string, cluster []types.MemoryRecord) error {
	content := mergeContents(cluster)
	category := dominantCategory(cluster)
	importance := 0
	for _, rec := range cluster {
		if rec.Importance > importance {
			importance = rec.Importance
		}
	}

	merged := &types.MemoryRecord{
		AgentID:    agentID,
		Content:    content,
		Category:   category,
		Importance: importance,
		Embedding:  e.embed(ctx, content),
	}
	newID, err := e.store.Insert(ctx, merged)
	if err != nil {
		return err
	}
	if len(merged.Embedding) > 0 {
		if err := e.index.Upsert(ctx, newID, agentID, merged.Embedding); err != nil {
			e.log.Warn("vector index upsert failed", "id", newID, "error", err)
		}
	}

	memberIDs := make([]int64, len(cluster))
	for i, rec := range cluster {
		memberIDs[i] = rec.ID
	}
	if err := e.store.ApplyMerge(ctx, newID, memberIDs); err != nil {
		if _, delErr := e.store.Delete(ctx, agentID, newID); delErr != nil {
			e.log.Error("orphaned merge record could not be removed",
				"id", newID, "error", delErr)
		}
		return err
	}

	metrics.SavesTotal.Inc()
	return nil
}

// mergeContents splits each member into sentence-like units, deduplicates
// exact units across the cluster (case-sensitive), and joins the survivors in
// first-seen order. The result is hard-truncated at the content length cap.
func mergeContents(cluster []types.MemoryRecord) string {
	seen := make(map[string]struct{})
	var units []string
	for _, rec := range cluster {
		for _, unit := range splitSentences(rec.Content) {
			if _, dup := seen[unit]; dup {
				continue
			}
			seen[unit] = struct{}{}
			units = append(units, unit)
		}
	}

	merged := strings.Join(units, " ")
	// The length cap counts characters; cutting on a byte offset could split
	// a multibyte rune.
	if runes := []rune(merged); len(runes) > types.MaxContentLength {
		keep := types.MaxContentLength - utf8.RuneCountInString(truncationMarker)
		merged = string(runes[:keep]) + truncationMarker
	}
	return merged
}

// splitSentences cuts text at sentence-ending punctuation followed by
// whitespace. Units are trimmed; empty ones are dropped.
func splitSentences(text string) []string {
	var (
		units []string
		start int
	)
	runes := []rune(text)
	flush := func(end int) {
		unit := strings.TrimSpace(string(runes[start:end]))
		if unit != "" {
			units = append(units, unit)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				flush(i + 1)
			}
		}
	}
	flush(len(runes))
	return units
}

// dominantCategory returns the cluster's most frequent category, breaking
// ties by first occurrence.
func dominantCategory(cluster []types.MemoryRecord) string {
	counts := make(map[string]int)
	best := cluster[0].Category
	for _, rec := range cluster {
		counts[rec.Category]++
		if counts[rec.Category] > counts[best] {
			best = rec.Category
		}
	}
	return best
}
