// Package character binds an AttributeSet and a vitality Pool into one
// character and defines its persisted record.
package character

import (
	"errors"
	"time"

	"github.com/cory-johannsen/progression/internal/game/event"
	"github.com/cory-johannsen/progression/internal/game/stats"
	"github.com/cory-johannsen/progression/internal/game/vitality"
)

// ErrNotFound is returned by stores when no record exists for an ID.
var ErrNotFound = errors.New("character not found")

// Record is the persisted state of a character.
//
// MaxHealth is informational: on restore the ceiling is recomputed from the
// stats, since modifiers are not persisted.
type Record struct {
	ID                    string         `json:"id"`
	Name                  string         `json:"name"`
	Archetype             string         `json:"archetype"`
	Stats                 stats.Snapshot `json:"stats"`
	Experience            float64        `json:"experience"`
	ExperienceToNextLevel float64        `json:"experience_to_next_level"`
	CurrentHealth         float64        `json:"current_health"`
	MaxHealth             float64        `json:"max_health"`
	Dead                  bool           `json:"dead"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// Character is one live character: stats, health pool and the link that keeps
// the pool's ceiling equal to the Health stat.
//
// Character is not safe for concurrent use; the caller must serialise access.
type Character struct {
	ID        string
	Name      string
	Archetype string

	Stats  *stats.AttributeSet
	Health *vitality.Pool

	bus *event.Bus
}

// New builds a level 1 character from arch with full health.
//
// Precondition: id must be non-empty; arch must be non-nil and valid.
// Postcondition: Health.Max() equals Stats.EffectiveValue(stats.Health)
// (or vitality.MinMaxHealth if that is lower); Health.Current() == Health.Max().
func New(id, name string, arch *Archetype) *Character {
	attrs := stats.New(arch.statOptions())
	pool := vitality.NewPool(vitality.Config{
		MaxHealth:           attrs.EffectiveValue(stats.Health),
		RegenerationEnabled: arch.Regeneration.Enabled,
		RegenerationRate:    arch.Regeneration.Rate,
		RegenerationDelay:   arch.Regeneration.Delay,
	})
	attrs.Link(pool)

	c := &Character{
		ID:        id,
		Name:      name,
		Archetype: arch.ID,
		Stats:     attrs,
		Health:    pool,
		bus:       event.NewBus(),
	}
	forward := func(e event.Event) {
		e.Source = c.ID
		c.bus.Publish(e)
	}
	attrs.Subscribe(forward)
	pool.Subscribe(forward)
	return c
}

// Subscribe registers fn for every event of both components, tagged with the
// character ID. Events from the two components interleave in the order they
// occur.
func (c *Character) Subscribe(fn event.Handler) (unsubscribe func()) {
	return c.bus.Subscribe(fn)
}

// Record returns the persisted state of c.
func (c *Character) Record() Record {
	return Record{
		ID:                    c.ID,
		Name:                  c.Name,
		Archetype:             c.Archetype,
		Stats:                 c.Stats.Snapshot(),
		Experience:            c.Stats.Experience(),
		ExperienceToNextLevel: c.Stats.ExperienceToNextLevel(),
		CurrentHealth:         c.Health.Current(),
		MaxHealth:             c.Health.Max(),
		Dead:                  !c.Health.IsAlive(),
	}
}

// Restore replaces c's persisted state with r. Level and base stats are
// loaded first so the health ceiling is in place before current health.
//
// Postcondition: Stats.Snapshot() == r.Stats (level normalized to >= 1);
// Health.IsAlive() == !r.Dead whenever r.CurrentHealth is consistent with r.Dead.
func (c *Character) Restore(r Record) {
	if r.Name != "" {
		c.Name = r.Name
	}
	c.Stats.LoadFrom(r.Stats)
	c.Stats.RestoreProgress(r.Experience, r.ExperienceToNextLevel)

	health := r.CurrentHealth
	if r.Dead {
		health = 0
	}
	c.Health.SetHealth(health)
}

// Tick advances passive regeneration. now is simulation time.
func (c *Character) Tick(now, elapsed time.Duration) {
	c.Health.Tick(now, elapsed)
}
