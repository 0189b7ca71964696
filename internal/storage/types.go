package storage

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates that the requested record does not exist in the
	// caller's agent scope. Store methods that return a boolean instead of
	// this error document it explicitly.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Cursor marks a position in a (decay_score DESC, id DESC) ordered scan.
// The next page contains only rows whose (decay_score, id) tuple is strictly
// less than the cursor, which keeps paging stable even when scores are
// recomputed between calls.
type Cursor struct {
	DecayScore float64 `json:"s"`
	ID         int64   `json:"i"`
}

// Encode returns the cursor as an opaque base64 token for transport.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token produced by Encode.
func DecodeCursor(token string) (Cursor, error) {
	var c Cursor
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return c, fmt.Errorf("%w: malformed cursor: %v", ErrInvalidInput, err)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%w: malformed cursor: %v", ErrInvalidInput, err)
	}
	return c, nil
}

// SearchQuery selects lexical candidates for one agent. Compressed, archived
// and expired records are always excluded.
type SearchQuery struct {
	AgentID  string
	Text     string // "*" lists everything
	Category string // empty = all categories
	Limit    int
	Cursor   *Cursor
}

// DecayCandidate carries the fields the decay model needs for one record.
type DecayCandidate struct {
	ID           int64
	Importance   int
	AccessCount  int
	CreatedAt    time.Time
	LastAccessed *time.Time
}

// DecayUpdate is one recomputed score to write back.
type DecayUpdate struct {
	ID    int64
	Score float64
}

// UpdateFields is a partial update; nil fields are left untouched.
// Embedding is replaced only when ReplaceEmbedding is set, so that a content
// change with a failed embedding keeps the record lexically searchable.
type UpdateFields struct {
	Content          *string
	Category         *string
	Importance       *int
	Embedding        []float32
	ReplaceEmbedding bool
}
