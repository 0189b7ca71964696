package engine

import (
	"math"
	"time"

	"github.com/korelabs/kore/internal/storage"
)

// ForgetThreshold is the decay score below which a record is excluded from
// ranked results. Forgotten records are not deleted; a direct get or a decay
// recompute after reinforcement can still revive them.
const ForgetThreshold = 0.05

// halfLifeDays maps importance to the days until decay reaches ~0.5 absent
// reinforcement. Critical memories take a year to fade.
var halfLifeDays = map[int]float64{
	1: 7,
	2: 14,
	3: 30,
	4: 90,
	5: 365,
}

// defaultHalfLifeDays covers importance values outside the table.
const defaultHalfLifeDays = 14

// accessBonus extends the half-life by 15% per historical access.
const accessBonus = 0.15

// BaseHalfLife returns the half-life in days for an importance level.
func BaseHalfLife(importance int) float64 {
	if hl, ok := halfLifeDays[importance]; ok {
		return hl
	}
	return defaultHalfLifeDays
}

// EffectiveHalfLife stretches the base half-life by the access history, so
// frequently used memories forget slower.
func EffectiveHalfLife(importance, accessCount int) float64 {
	return BaseHalfLife(importance) * (1 + accessBonus*float64(accessCount))
}

// ComputeDecay returns the decay score after daysElapsed without access,
// clamped to [0, 1] and rounded to 4 decimal places.
func ComputeDecay(importance, accessCount int, daysElapsed float64) float64 {
	ehl := EffectiveHalfLife(importance, accessCount)
	decay := math.Exp(-daysElapsed * math.Ln2 / ehl)
	if decay > 1 {
		decay = 1
	}
	if decay < 0 {
		decay = 0
	}
	return round4(decay)
}

// EffectiveScore is the ranking weight combining freshness and stated
// importance, in [0, 1].
func EffectiveScore(decayScore float64, importance int) float64 {
	return round4(decayScore * float64(importance) / 5)
}

// ShouldForget reports whether the record is below the forgetting cutoff.
func ShouldForget(decayScore float64) bool {
	return decayScore < ForgetThreshold
}

// decayFor recomputes the score for one candidate at the given instant.
// Elapsed time counts from the last access, or creation when never accessed.
func decayFor(c storage.DecayCandidate, now time.Time) float64 {
	ref := c.CreatedAt
	if c.LastAccessed != nil {
		ref = *c.LastAccessed
	}
	days := now.Sub(ref).Hours() / 24
	return ComputeDecay(c.Importance, c.AccessCount, days)
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
