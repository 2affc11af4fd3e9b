package stats

import (
	"fmt"
	"strings"
)

// EnemyTier grades a defeated enemy for kill rewards.
type EnemyTier int

const (
	Weak EnemyTier = iota
	Normal
	Strong
	Elite
	Boss

	numTiers
)

// DefaultKillReward is granted for an enemy whose tier is not recognised.
const DefaultKillReward = 15.0

// DefaultDiscoveryReward is granted for a discovery with no explicit bonus.
const DefaultDiscoveryReward = 50.0

var tierNames = [numTiers]string{
	Weak:   "weak",
	Normal: "normal",
	Strong: "strong",
	Elite:  "elite",
	Boss:   "boss",
}

var killRewards = [numTiers]float64{
	Weak:   10,
	Normal: 25,
	Strong: 50,
	Elite:  100,
	Boss:   500,
}

// Valid reports whether t is one of the declared tiers.
func (t EnemyTier) Valid() bool {
	return t >= 0 && t < numTiers
}

// String returns the lower-case name of t.
func (t EnemyTier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseEnemyTier returns the tier named s. Matching is case-insensitive.
func ParseEnemyTier(s string) (EnemyTier, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range tierNames {
		if n == name {
			return EnemyTier(t), nil
		}
	}
	return 0, fmt.Errorf("unknown enemy tier %q", s)
}

// KillReward returns the experience for defeating an enemy of tier t.
//
// Postcondition: Returns DefaultKillReward for an invalid tier.
func KillReward(t EnemyTier) float64 {
	if !t.Valid() {
		return DefaultKillReward
	}
	return killRewards[t]
}

// KillRewardFor is KillReward keyed by tier name; unknown names earn
// DefaultKillReward.
func KillRewardFor(tier string) float64 {
	t, err := ParseEnemyTier(tier)
	if err != nil {
		return DefaultKillReward
	}
	return KillReward(t)
}

// DiscoveryReward returns bonus, or DefaultDiscoveryReward when bonus is not
// a positive finite number.
func DiscoveryReward(bonus float64) float64 {
	if !finite(bonus) || bonus <= 0 {
		return DefaultDiscoveryReward
	}
	return bonus
}

// QuestReward returns the experience for completing a quest worth amount.
// Non-finite and negative amounts earn nothing.
func QuestReward(amount float64) float64 {
	if !finite(amount) || amount < 0 {
		return 0
	}
	return amount
}
