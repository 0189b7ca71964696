package types

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Content length bounds for a memory, in characters.
const (
	MinContentLength = 3
	MaxContentLength = 4000
)

// Importance bounds. Importance 1 is the lowest; 5 marks critical memories
// that take a year to fade.
const (
	MinImportance = 1
	MaxImportance = 5
)

// MaxTTLHours caps a record's time-to-live at one year.
const MaxTTLHours = 8760

// DefaultCategory is used when no category is supplied.
const DefaultCategory = "general"

// Categories is the fixed set of memory categories.
var Categories = []string{
	"general",
	"project",
	"trading",
	"finance",
	"person",
	"preference",
	"task",
	"decision",
}

var categorySet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(Categories))
	for _, c := range Categories {
		set[c] = struct{}{}
	}
	return set
}()

// ValidCategory reports whether c is one of the enumerated categories.
func ValidCategory(c string) bool {
	_, ok := categorySet[c]
	return ok
}

// ErrValidation marks input rejected before any mutation took place.
var ErrValidation = errors.New("validation failed")

// SaveRequest carries input for saving a new memory.
type SaveRequest struct {
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`

	// Importance is auto-scored from content when nil.
	Importance *int `json:"importance,omitempty"`

	// TTLHours, when set, gives the record a hard expiry.
	TTLHours int `json:"ttl_hours,omitempty"`
}

// Validate normalises and checks the request. Content is trimmed; an empty
// category defaults to DefaultCategory.
func (r *SaveRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	if n := utf8.RuneCountInString(r.Content); n < MinContentLength {
		return fmt.Errorf("%w: content must be at least %d characters", ErrValidation, MinContentLength)
	} else if n > MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrValidation, MaxContentLength)
	}
	if r.Category == "" {
		r.Category = DefaultCategory
	}
	if !ValidCategory(r.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, r.Category)
	}
	if r.Importance != nil && (*r.Importance < MinImportance || *r.Importance > MaxImportance) {
		return fmt.Errorf("%w: importance must be between %d and %d", ErrValidation, MinImportance, MaxImportance)
	}
	if r.TTLHours < 0 || r.TTLHours > MaxTTLHours {
		return fmt.Errorf("%w: ttl_hours must be between 0 and %d", ErrValidation, MaxTTLHours)
	}
	return nil
}

// UpdateRequest carries a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	Content    *string `json:"content,omitempty"`
	Category   *string `json:"category,omitempty"`
	Importance *int    `json:"importance,omitempty"`
}

// Empty reports whether the request changes nothing.
func (r *UpdateRequest) Empty() bool {
	return r.Content == nil && r.Category == nil && r.Importance == nil
}

// Validate checks whichever fields are present.
func (r *UpdateRequest) Validate() error {
	if r.Content != nil {
		trimmed := strings.TrimSpace(*r.Content)
		if n := utf8.RuneCountInString(trimmed); n < MinContentLength {
			return fmt.Errorf("%w: content must be at least %d characters", ErrValidation, MinContentLength)
		} else if n > MaxContentLength {
			return fmt.Errorf("%w: content exceeds %d characters", ErrValidation, MaxContentLength)
		}
		r.Content = &trimmed
	}
	if r.Category != nil && !ValidCategory(*r.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, *r.Category)
	}
	if r.Importance != nil && (*r.Importance < MinImportance || *r.Importance > MaxImportance) {
		return fmt.Errorf("%w: importance must be between %d and %d", ErrValidation, MinImportance, MaxImportance)
	}
	return nil
}
