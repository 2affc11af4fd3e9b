package stats_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/progression/internal/game/stats"
)

func TestKillReward_Table(t *testing.T) {
	cases := map[string]float64{
		"weak":   10,
		"normal": 25,
		"strong": 50,
		"elite":  100,
		"boss":   500,
		" Boss ": 500,
		"dragon": stats.DefaultKillReward,
		"":       stats.DefaultKillReward,
	}
	for tier, want := range cases {
		assert.Equal(t, want, stats.KillRewardFor(tier), "tier %q", tier)
	}
	assert.Equal(t, 15.0, stats.KillReward(stats.EnemyTier(42)))
}

func TestParseEnemyTier_RoundTrip(t *testing.T) {
	for _, tier := range []stats.EnemyTier{stats.Weak, stats.Normal, stats.Strong, stats.Elite, stats.Boss} {
		got, err := stats.ParseEnemyTier(tier.String())
		require.NoError(t, err)
		assert.Equal(t, tier, got)
	}
	_, err := stats.ParseEnemyTier("minion")
	assert.Error(t, err)
	assert.Equal(t, "tier(9)", stats.EnemyTier(9).String())
}

func TestDiscoveryReward_Defaults(t *testing.T) {
	assert.Equal(t, 50.0, stats.DiscoveryReward(0))
	assert.Equal(t, 50.0, stats.DiscoveryReward(-3))
	assert.Equal(t, 50.0, stats.DiscoveryReward(math.NaN()))
	assert.Equal(t, 50.0, stats.DiscoveryReward(math.Inf(1)))
	assert.Equal(t, 75.0, stats.DiscoveryReward(75))
}

func TestQuestReward_RejectsInvalid(t *testing.T) {
	assert.Equal(t, 0.0, stats.QuestReward(-1))
	assert.Equal(t, 0.0, stats.QuestReward(math.Inf(1)))
	assert.Equal(t, 0.0, stats.QuestReward(math.NaN()))
	assert.Equal(t, 120.0, stats.QuestReward(120))
}

func TestPropertyKillReward_AlwaysPositive(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tier := rapid.String().Draw(rt, "tier")
		assert.Greater(rt, stats.KillRewardFor(tier), 0.0)
	})
}
