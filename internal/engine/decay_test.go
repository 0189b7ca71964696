package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/korelabs/kore/internal/storage"
)

func TestComputeDecayFreshIsOne(t *testing.T) {
	for importance := 1; importance <= 5; importance++ {
		assert.Equal(t, 1.0, ComputeDecay(importance, 0, 0),
			"importance %d at zero elapsed days", importance)
	}
}

func TestComputeDecayHalfLife(t *testing.T) {
	// At exactly one half-life the score lands on 0.5.
	assert.InDelta(t, 0.5, ComputeDecay(1, 0, 7), 0.0001)
	assert.InDelta(t, 0.5, ComputeDecay(2, 0, 14), 0.0001)
	assert.InDelta(t, 0.5, ComputeDecay(3, 0, 30), 0.0001)
	assert.InDelta(t, 0.5, ComputeDecay(4, 0, 90), 0.0001)
	assert.InDelta(t, 0.5, ComputeDecay(5, 0, 365), 0.0001)
}

func TestComputeDecayMonotonicInTime(t *testing.T) {
	for importance := 1; importance <= 5; importance++ {
		prev := 1.0
		for days := 0.0; days <= 400; days += 2.5 {
			cur := ComputeDecay(importance, 3, days)
			assert.LessOrEqual(t, cur, prev,
				"importance %d at %.1f days", importance, days)
			prev = cur
		}
	}
}

func TestAccessCountSlowsForgetting(t *testing.T) {
	for access := 0; access < 20; access++ {
		assert.GreaterOrEqual(t,
			EffectiveHalfLife(2, access+1), EffectiveHalfLife(2, access))
		assert.GreaterOrEqual(t,
			ComputeDecay(2, access+1, 30), ComputeDecay(2, access, 30))
	}
}

func TestBaseHalfLifeUnknownImportance(t *testing.T) {
	assert.Equal(t, 14.0, BaseHalfLife(0))
	assert.Equal(t, 14.0, BaseHalfLife(9))
}

func TestEffectiveScore(t *testing.T) {
	assert.Equal(t, 1.0, EffectiveScore(1.0, 5))
	assert.Equal(t, 0.2, EffectiveScore(1.0, 1))
	assert.Equal(t, 0.3, EffectiveScore(0.5, 3))
	assert.Equal(t, 0.0, EffectiveScore(0, 5))
}

func TestShouldForgetBoundary(t *testing.T) {
	assert.True(t, ShouldForget(0.0499))
	assert.False(t, ShouldForget(0.05))
	assert.False(t, ShouldForget(1.0))
}

func TestDecayForPrefersLastAccessed(t *testing.T) {
	now := time.Now().UTC()
	created := now.AddDate(0, 0, -60)
	accessed := now.AddDate(0, 0, -1)

	stale := decayFor(storage.DecayCandidate{
		ID: 1, Importance: 2, CreatedAt: created,
	}, now)
	fresh := decayFor(storage.DecayCandidate{
		ID: 2, Importance: 2, CreatedAt: created, LastAccessed: &accessed,
	}, now)

	assert.Greater(t, fresh, stale)
	assert.InDelta(t, ComputeDecay(2, 0, 1), fresh, 0.0001)
}
