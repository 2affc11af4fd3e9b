package stats

import (
	"math"

	"github.com/cory-johannsen/progression/internal/game/event"
)

const (
	// DefaultExperienceToNextLevel is the level 1 threshold.
	DefaultExperienceToNextLevel = 100.0
	// DefaultLevelMultiplier grows the threshold on each level-up.
	DefaultLevelMultiplier = 1.5
	// DefaultMaxLevel is the level cap when none is configured.
	DefaultMaxLevel = 50
	// LevelCap bounds any configured MaxLevel.
	LevelCap = 1000
)

// MaxHealthSink receives the computed Health stat whenever it may have changed.
type MaxHealthSink interface {
	SetMaxHealth(max float64)
}

// Options configures a new AttributeSet. Zero fields fall back to defaults.
type Options struct {
	// Base holds starting base values keyed by kind. Missing kinds use DefaultBase.
	Base map[Kind]float64
	// ExperienceToNextLevel is the level 1 threshold; <= 0 uses the default.
	ExperienceToNextLevel float64
	// LevelMultiplier is the threshold growth factor; values <= 1 use the default.
	LevelMultiplier float64
	// MaxLevel caps progression; <= 0 uses DefaultMaxLevel, values above
	// LevelCap use LevelCap.
	MaxLevel int
	// ExperienceMultiplier scales every gain; <= 0 uses 1.
	ExperienceMultiplier float64
}

// DefaultBase returns the designer defaults for a fresh character.
func DefaultBase() map[Kind]float64 {
	return map[Kind]float64{
		Health:  100,
		Attack:  10,
		Defense: 5,
		Speed:   8,
		Stamina: 50,
		Mana:    30,
		Luck:    1,
	}
}

// AttributeSet tracks one character's base stats, modifiers, level and
// experience. It is not safe for concurrent use; the caller must serialise
// access.
type AttributeSet struct {
	base      [numKinds]float64
	modifiers [numKinds]float64

	level            int
	experience       float64
	initialThreshold float64
	threshold        float64
	multiplier       float64
	maxLevel         int
	xpMultiplier     float64

	sink MaxHealthSink
	bus  *event.Bus
}

// New creates an AttributeSet at level 1 with zero experience.
//
// Postcondition: Level() == 1; every Modifier is 0; ExperienceToNextLevel() > 0.
func New(opts Options) *AttributeSet {
	a := &AttributeSet{
		level:            1,
		initialThreshold: DefaultExperienceToNextLevel,
		multiplier:       DefaultLevelMultiplier,
		maxLevel:         DefaultMaxLevel,
		xpMultiplier:     1,
		bus:              event.NewBus(),
	}
	if opts.ExperienceToNextLevel > 0 && !math.IsInf(opts.ExperienceToNextLevel, 0) {
		a.initialThreshold = opts.ExperienceToNextLevel
	}
	if opts.LevelMultiplier > 1 && !math.IsInf(opts.LevelMultiplier, 0) {
		a.multiplier = opts.LevelMultiplier
	}
	if opts.MaxLevel > 0 {
		a.maxLevel = min(opts.MaxLevel, LevelCap)
	}
	if opts.ExperienceMultiplier > 0 && !math.IsInf(opts.ExperienceMultiplier, 0) {
		a.xpMultiplier = opts.ExperienceMultiplier
	}
	a.threshold = a.initialThreshold

	base := DefaultBase()
	for k, v := range opts.Base {
		base[k] = v
	}
	for k, v := range base {
		if k.Valid() && k != Experience {
			a.base[k] = v
		}
	}
	return a
}

// Subscribe registers fn for StatChanged, LevelUp and ExperienceGained events.
func (a *AttributeSet) Subscribe(fn event.Handler) (unsubscribe func()) {
	return a.bus.Subscribe(fn)
}

// Link installs sink as the max-health target and pushes the current Health
// value to it immediately. Passing nil unlinks.
func (a *AttributeSet) Link(sink MaxHealthSink) {
	a.sink = sink
	a.syncMaxHealth()
}

// Level returns the current level (>= 1).
func (a *AttributeSet) Level() int { return a.level }

// Experience returns progress toward the next level.
func (a *AttributeSet) Experience() float64 { return a.experience }

// ExperienceToNextLevel returns the current threshold.
func (a *AttributeSet) ExperienceToNextLevel() float64 { return a.threshold }

// ExperiencePercentage returns Experience / ExperienceToNextLevel in [0, 1),
// or 1 at the level cap.
func (a *AttributeSet) ExperiencePercentage() float64 {
	if a.AtMaxLevel() {
		return 1
	}
	return a.experience / a.threshold
}

// ExperienceRemaining returns the experience still needed to level up, or 0
// at the level cap.
func (a *AttributeSet) ExperienceRemaining() float64 {
	if a.AtMaxLevel() {
		return 0
	}
	return a.threshold - a.experience
}

// ExperienceForLevel returns the cumulative experience a fresh character
// spends to reach level. Levels past the cap count as the cap.
func (a *AttributeSet) ExperienceForLevel(level int) float64 {
	level = min(level, a.maxLevel)
	total := 0.0
	t := a.initialThreshold
	for l := 1; l < level; l++ {
		total += t
		t = nextThreshold(t, a.multiplier)
	}
	return total
}

// TotalExperience returns the experience earned over the character's
// lifetime: everything spent reaching the current level plus progress.
func (a *AttributeSet) TotalExperience() float64 {
	return a.ExperienceForLevel(a.level) + a.experience
}

// MaxLevel returns the level cap.
func (a *AttributeSet) MaxLevel() int { return a.maxLevel }

// AtMaxLevel reports whether the level cap has been reached.
func (a *AttributeSet) AtMaxLevel() bool { return a.level >= a.maxLevel }

// ExperienceMultiplier returns the factor applied to every gain.
func (a *AttributeSet) ExperienceMultiplier() float64 { return a.xpMultiplier }

// LevelMultiplier returns the threshold growth factor.
func (a *AttributeSet) LevelMultiplier() float64 { return a.multiplier }

// BaseStat returns the base value of k. The base of Experience is the
// current experience.
func (a *AttributeSet) BaseStat(k Kind) float64 {
	if !k.Valid() {
		return 0
	}
	if k == Experience {
		return a.experience
	}
	return a.base[k]
}

// Modifier returns the running modifier total for k.
func (a *AttributeSet) Modifier(k Kind) float64 {
	if !k.Valid() {
		return 0
	}
	return a.modifiers[k]
}

// EffectiveValue returns base + level bonus + modifier for k.
// Negative results are permitted.
func (a *AttributeSet) EffectiveValue(k Kind) float64 {
	if !k.Valid() {
		return 0
	}
	return a.BaseStat(k) + LevelBonus(k, a.level) + a.modifiers[k]
}

// AddModifier adds delta to k's modifier. A zero delta changes nothing and
// emits nothing.
func (a *AttributeSet) AddModifier(k Kind, delta float64) {
	if !k.Valid() || delta == 0 || !finite(delta) {
		return
	}
	a.modifiers[k] += delta
	a.statChanged(k)
}

// RemoveModifier subtracts delta from k's modifier. Removing more than was
// added drives the modifier negative.
func (a *AttributeSet) RemoveModifier(k Kind, delta float64) {
	a.AddModifier(k, -delta)
}

// SetModifier replaces k's modifier total. Non-finite values are ignored.
func (a *AttributeSet) SetModifier(k Kind, value float64) {
	if !k.Valid() || !finite(value) {
		return
	}
	a.modifiers[k] = value
	a.statChanged(k)
}

// SetBaseStat replaces k's base value. Experience is derived from progress
// and cannot be set here, though the change notification still fires.
func (a *AttributeSet) SetBaseStat(k Kind, value float64) {
	if !k.Valid() || !finite(value) {
		return
	}
	if k != Experience {
		a.base[k] = value
	}
	a.statChanged(k)
}

// GainExperience scales amount by ExperienceMultiplier, adds it and resolves
// every level-up it earns. Each level-up is announced separately, followed by
// a re-announcement of all stats. Non-finite amounts are ignored, and so is
// every gain at the level cap. Progress left over on reaching the cap is
// discarded.
//
// Postcondition: Experience() < ExperienceToNextLevel(); Level() is
// non-decreasing and <= MaxLevel().
func (a *AttributeSet) GainExperience(amount float64) {
	if !finite(amount) || a.AtMaxLevel() {
		return
	}
	amount *= a.xpMultiplier
	if !finite(amount) {
		return
	}
	a.experience = min(max(a.experience+amount, 0), math.MaxFloat64)
	a.bus.Publish(event.Event{Type: event.ExperienceGained, Value: amount})

	for !a.AtMaxLevel() && a.experience >= a.threshold {
		a.experience -= a.threshold
		a.level++
		a.threshold = nextThreshold(a.threshold, a.multiplier)
		a.bus.Publish(event.Event{Type: event.LevelUp, Level: a.level})
		a.syncMaxHealth()
		a.announceAll()
	}
	if a.AtMaxLevel() {
		a.experience = 0
	}
}

// SetLevel overrides the level without experience accounting. No LevelUp
// event fires; every stat is re-announced. Levels are clamped to
// [1, MaxLevel()].
func (a *AttributeSet) SetLevel(level int) {
	a.level = a.clampLevel(level)
	if a.AtMaxLevel() {
		a.experience = 0
	}
	a.syncMaxHealth()
	a.announceAll()
}

// ThresholdForLevel returns the threshold a fresh character would carry at
// level, growing the initial threshold once per level gained. Levels past the
// cap count as the cap.
func (a *AttributeSet) ThresholdForLevel(level int) float64 {
	level = min(level, a.maxLevel)
	t := a.initialThreshold
	for l := 1; l < level; l++ {
		t = nextThreshold(t, a.multiplier)
	}
	return t
}

// LoadFrom replaces level and base stats from a persisted snapshot. Progress
// toward the next level restarts at 0 against ThresholdForLevel(level).
func (a *AttributeSet) LoadFrom(s Snapshot) {
	level := a.clampLevel(s.Level)
	a.level = level
	a.base[Health] = s.BaseHealth
	a.base[Mana] = s.BaseMana
	a.base[Attack] = s.BaseAttack
	a.base[Defense] = s.BaseDefense
	a.base[Speed] = s.BaseSpeed
	a.base[Luck] = s.BaseLuck
	a.base[Stamina] = s.BaseStamina
	a.experience = 0
	a.threshold = a.ThresholdForLevel(level)

	a.syncMaxHealth()
	a.announceAll()
}

// RestoreProgress sets experience bookkeeping from persisted values without
// emitting events. Experience at or above the threshold is resolved into
// silent level-ups so the ordering invariant holds.
//
// Postcondition: 0 <= Experience() < ExperienceToNextLevel(); Level() <= MaxLevel().
func (a *AttributeSet) RestoreProgress(experience, threshold float64) {
	if !(threshold >= 1) || math.IsInf(threshold, 0) {
		threshold = a.ThresholdForLevel(a.level)
	}
	if !(experience >= 0) || math.IsInf(experience, 0) {
		experience = 0
	}
	a.threshold = threshold
	a.experience = experience
	levelled := false
	for !a.AtMaxLevel() && a.experience >= a.threshold {
		a.experience -= a.threshold
		a.level++
		a.threshold = nextThreshold(a.threshold, a.multiplier)
		levelled = true
	}
	if a.AtMaxLevel() {
		a.experience = 0
	}
	if levelled {
		a.syncMaxHealth()
	}
}

// Snapshot returns the persisted form of level and base stats.
func (a *AttributeSet) Snapshot() Snapshot {
	return Snapshot{
		Level:       a.level,
		BaseHealth:  a.base[Health],
		BaseMana:    a.base[Mana],
		BaseAttack:  a.base[Attack],
		BaseDefense: a.base[Defense],
		BaseSpeed:   a.base[Speed],
		BaseLuck:    a.base[Luck],
		BaseStamina: a.base[Stamina],
	}
}

func (a *AttributeSet) statChanged(k Kind) {
	if k == Health {
		a.syncMaxHealth()
	}
	a.bus.Publish(event.Event{Type: event.StatChanged, Stat: k.String(), Value: a.EffectiveValue(k)})
}

func (a *AttributeSet) announceAll() {
	for _, k := range Kinds {
		a.bus.Publish(event.Event{Type: event.StatChanged, Stat: k.String(), Value: a.EffectiveValue(k)})
	}
}

func (a *AttributeSet) syncMaxHealth() {
	if a.sink != nil {
		a.sink.SetMaxHealth(a.EffectiveValue(Health))
	}
}

func (a *AttributeSet) clampLevel(level int) int {
	return max(1, min(level, a.maxLevel))
}

// nextThreshold grows t by multiplier, rounding half to even. The result is
// always at least t+1, so thresholds grow strictly even when rounding would
// absorb the growth.
func nextThreshold(t, multiplier float64) float64 {
	return min(max(math.RoundToEven(t*multiplier), t+1, 1), math.MaxFloat64)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
