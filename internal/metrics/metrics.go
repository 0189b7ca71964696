// Package metrics exports Prometheus counters for the memory engine.
// Collectors are package-level and registered once via promauto; the CLI
// decides whether an exposition endpoint is served.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kore"

var (
	// SavesTotal counts memories persisted, including merge records created
	// by the compression engine.
	SavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "saves_total",
		Help:      "Total memories saved",
	})

	// SearchesTotal counts searches by retrieval mode (semantic, lexical,
	// timeline).
	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "searches_total",
		Help:      "Total searches by retrieval mode",
	}, []string{"mode"})

	// ReinforcementsTotal counts records boosted by retrieval.
	ReinforcementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reinforcements_total",
		Help:      "Total records reinforced by retrieval",
	})

	// DecayPassesTotal counts decay passes by outcome (run, skipped).
	DecayPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decay_passes_total",
		Help:      "Total decay passes by outcome",
	}, []string{"outcome"})

	// DecayUpdatesTotal counts records whose score a decay pass rewrote.
	DecayUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decay_updates_total",
		Help:      "Total records updated by decay passes",
	})

	// CompressionPassesTotal counts compression passes by outcome
	// (run, skipped).
	CompressionPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "compression_passes_total",
		Help:      "Total compression passes by outcome",
	}, []string{"outcome"})

	// MemoriesMergedTotal counts records folded into merge records.
	MemoriesMergedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memories_merged_total",
		Help:      "Total memories merged by compression",
	})

	// EmbeddingFailuresTotal counts save/update operations that proceeded
	// without a vector because embedding failed.
	EmbeddingFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedding_failures_total",
		Help:      "Total operations degraded to lexical-only by embedding failures",
	})
)
