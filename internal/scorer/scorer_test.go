package scorer_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/korelabs/kore/internal/scorer"
)

func TestScoreKeywordSignals(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		category string
		want     int
	}{
		{"secret_in_general", "the api key for staging is stored in vault", "general", 5},
		{"deadline_in_general", "deadline for the migration is next week", "general", 4},
		{"deploy_in_general", "deploy happens from the main branch", "general", 3},
		{"note_in_general", "note: the office is closed on mondays", "general", 2},
		{"plain_general", "the sky was clear today", "general", 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, scorer.Score(tc.content, tc.category))
		})
	}
}

func TestScoreCategoryBaseline(t *testing.T) {
	// Baselines apply even without keyword signals.
	assert.Equal(t, 4, scorer.Score("likes espresso over filter coffee", "preference"))
	assert.Equal(t, 3, scorer.Score("quarterly targets were revised", "finance"))
	assert.Equal(t, 2, scorer.Score("met at the conference", "person"))
	assert.Equal(t, 2, scorer.Score("anything at all", "unknown-category"))
}

func TestScoreKeywordBeatsBaseline(t *testing.T) {
	// A level-5 signal overrides a low category baseline.
	assert.Equal(t, 5, scorer.Score("never commit the password", "task"))
}

func TestScoreLengthBonus(t *testing.T) {
	long := strings.Repeat("word ", 70)
	assert.Equal(t, 2, scorer.Score(long, "general"))

	// The bonus never pushes past 5.
	assert.Equal(t, 5, scorer.Score(long+" password", "general"))
}

func TestScoreStaysInRange(t *testing.T) {
	for _, category := range []string{"general", "preference", "decision", ""} {
		got := scorer.Score("urgent critical password deadline", category)
		assert.GreaterOrEqual(t, got, 1)
		assert.LessOrEqual(t, got, 5)
	}
}
