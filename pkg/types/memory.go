// Package types defines the shared data model for the Kore memory system.
// MemoryRecord is the unit of storage; request types carry validated input
// into the engine.
package types

import "time"

// MemoryRecord is a single memory owned by one agent.
//
// The relational store is the source of truth for every field. DecayScore,
// AccessCount and LastAccessed are mutated by retrieval (reinforcement) and by
// the periodic decay pass. CompressedInto and ArchivedAt are lifecycle flags:
// a record carrying either never appears in search, timeline, export or
// compression input.
type MemoryRecord struct {
	ID      int64  `json:"id"`
	AgentID string `json:"agent_id,omitempty"`

	Content    string `json:"content"`
	Category   string `json:"category"`
	Importance int    `json:"importance"` // 1 (lowest) to 5 (critical)

	// Retrieval state.
	DecayScore   float64    `json:"decay_score"` // [0.0, 1.0], 1.0 = fresh
	AccessCount  int        `json:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`

	// Lifecycle flags.
	CompressedInto *int64     `json:"compressed_into,omitempty"` // id of the superseding record
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`     // soft delete
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`      // hard TTL

	// Embedding is absent when the embedding backend was unavailable at save
	// time; such records are reachable through lexical search only.
	Embedding []float32 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Score is the retrieval-time relevance (similarity for semantic hits),
	// populated on search results only. Never persisted.
	Score float64 `json:"score,omitempty"`
}

// Active reports whether the record participates in search, timeline, export
// and compression. now is the instant used for TTL evaluation.
func (m *MemoryRecord) Active(now time.Time) bool {
	if m.CompressedInto != nil || m.ArchivedAt != nil {
		return false
	}
	if m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Relation is a directed edge between two memories.
type Relation struct {
	SourceID  int64     `json:"source_id"`
	TargetID  int64     `json:"target_id"`
	Relation  string    `json:"relation"`
	CreatedAt time.Time `json:"created_at"`
}

// AgentInfo summarises one agent namespace.
type AgentInfo struct {
	AgentID     string     `json:"agent_id"`
	MemoryCount int        `json:"memory_count"`
	LastActive  *time.Time `json:"last_active,omitempty"`
}

// Stats reports store-level counts used for monitoring.
type Stats struct {
	TotalMemories    int `json:"total_memories"`
	ActiveMemories   int `json:"active_memories"`
	ArchivedMemories int `json:"archived_memories"`
}

// CompressionResult reports the outcome of one compression pass.
// A pass skipped because another was already running reports all zeros.
type CompressionResult struct {
	ClustersFound     int `json:"clusters_found"`
	MemoriesMerged    int `json:"memories_merged"`
	NewRecordsCreated int `json:"new_records_created"`
}
