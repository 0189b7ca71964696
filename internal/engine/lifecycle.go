package engine

import (
	"context"
	"time"

	"github.com/korelabs/kore/internal/metrics"
	"github.com/korelabs/kore/internal/storage"
)

// RunDecayPass hard-deletes TTL-expired records, then recomputes the decay
// score of every remaining active record, scoped to one agent or (with an
// empty agentID) the whole store. Returns the number of scores updated.
//
// The pass is single-flighted per process: when one is already running, the
// call returns 0 immediately. Forgetting is idempotent, so a skipped cycle
// just happens on the next invocation.
func (e *Engine) RunDecayPass(ctx context.Context, agentID string) (int, error) {
	if !e.decayMu.TryLock() {
		metrics.DecayPassesTotal.WithLabelValues("skipped").Inc()
		e.log.Debug("decay pass already running, skipping")
		return 0, nil
	}
	defer e.decayMu.Unlock()

	start := time.Now()

	expired, err := e.store.CleanupExpired(ctx, agentID)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		if agentID == "" {
			e.index.InvalidateAll()
		} else {
			e.index.Invalidate(agentID)
		}
	}

	candidates, err := e.store.DecayCandidates(ctx, agentID)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	updates := make([]storage.DecayUpdate, 0, len(candidates))
	for _, c := range candidates {
		updates = append(updates, storage.DecayUpdate{
			ID:    c.ID,
			Score: decayFor(c, now),
		})
	}

	updated, err := e.store.ApplyDecayScores(ctx, updates, now)
	if err != nil {
		return 0, err
	}

	metrics.DecayPassesTotal.WithLabelValues("run").Inc()
	metrics.DecayUpdatesTotal.Add(float64(updated))
	e.log.Info("decay pass complete", "agent", agentID,
		"expired", expired, "updated", updated, "elapsed", time.Since(start))
	return updated, nil
}
