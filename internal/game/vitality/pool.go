// Package vitality implements the health pool: damage, healing, death,
// revival and delay-gated regeneration.
package vitality

import (
	"math"
	"time"

	"github.com/cory-johannsen/progression/internal/game/event"
)

// MinMaxHealth is the smallest ceiling a Pool accepts.
const MinMaxHealth = 1.0

// Config holds the starting parameters of a Pool.
type Config struct {
	// MaxHealth is the starting ceiling; values below MinMaxHealth are raised to it.
	MaxHealth float64
	// RegenerationEnabled turns passive healing on.
	RegenerationEnabled bool
	// RegenerationRate is health restored per second of simulation time.
	RegenerationRate float64
	// RegenerationDelay is how long after the last damage regeneration resumes.
	RegenerationDelay time.Duration
}

// DefaultConfig returns a 100 health pool regenerating 1/s after 5s.
func DefaultConfig() Config {
	return Config{
		MaxHealth:           100,
		RegenerationEnabled: true,
		RegenerationRate:    1,
		RegenerationDelay:   5 * time.Second,
	}
}

// Pool tracks current and maximum health for one character.
//
// Invariant: 0 <= Current() <= Max(); IsAlive() == (Current() > 0).
// Time is simulation time measured from the start of the simulation and is
// always supplied by the caller. Pool is not safe for concurrent use.
type Pool struct {
	max     float64
	current float64
	dead    bool

	regenEnabled bool
	regenRate    float64
	regenDelay   time.Duration
	lastDamage   time.Duration

	bus *event.Bus
}

// NewPool creates a full-health Pool.
//
// Postcondition: Current() == Max(); IsAlive() is true.
func NewPool(cfg Config) *Pool {
	p := &Pool{
		max: normalizeMax(cfg.MaxHealth),
		bus: event.NewBus(),
	}
	p.current = p.max
	p.SetRegeneration(cfg.RegenerationEnabled, cfg.RegenerationRate, cfg.RegenerationDelay)
	p.lastDamage = -p.regenDelay
	return p
}

// Subscribe registers fn for HealthChanged, DamageTaken, HealApplied, Death
// and Respawn events.
func (p *Pool) Subscribe(fn event.Handler) (unsubscribe func()) {
	return p.bus.Subscribe(fn)
}

// Current returns current health.
func (p *Pool) Current() float64 { return p.current }

// Max returns the health ceiling.
func (p *Pool) Max() float64 { return p.max }

// IsAlive reports whether current health is above zero.
func (p *Pool) IsAlive() bool { return !p.dead }

// Percentage returns Current / Max.
func (p *Pool) Percentage() float64 { return p.current / p.max }

// LastDamage returns the simulation time of the most recent damage.
func (p *Pool) LastDamage() time.Duration { return p.lastDamage }

// RegenerationEnabled reports whether passive healing is on.
func (p *Pool) RegenerationEnabled() bool { return p.regenEnabled }

// RegenerationRate returns health restored per second.
func (p *Pool) RegenerationRate() float64 { return p.regenRate }

// RegenerationDelay returns the post-damage quiet period.
func (p *Pool) RegenerationDelay() time.Duration { return p.regenDelay }

// SetRegeneration replaces the regeneration parameters. Negative rate and
// delay are treated as zero.
func (p *Pool) SetRegeneration(enabled bool, rate float64, delay time.Duration) {
	if !(rate > 0) || math.IsInf(rate, 0) {
		rate = 0
	}
	if delay < 0 {
		delay = 0
	}
	p.regenEnabled = enabled
	p.regenRate = rate
	p.regenDelay = delay
}

// ApplyDamage subtracts amount at simulation time now. It is a no-op on a
// dead pool or for amount <= 0. DamageTaken reports the requested amount,
// not the clamped delta.
//
// Postcondition: Death fires exactly once when health reaches 0.
func (p *Pool) ApplyDamage(amount float64, now time.Duration) {
	if p.dead || !(amount > 0) {
		return
	}
	p.current = math.Max(0, p.current-amount)
	p.lastDamage = now

	p.publish(event.HealthChanged, p.current)
	p.publish(event.DamageTaken, amount)

	if p.current <= 0 {
		p.die()
	}
}

// ApplyHeal restores amount, capped at Max. Events fire only on a strict
// increase. A dead pool is not healed; use Revive.
func (p *Pool) ApplyHeal(amount float64) {
	if p.dead || !(amount > 0) {
		return
	}
	old := p.current
	p.current = math.Min(p.current+amount, p.max)
	if restored := p.current - old; restored > 0 {
		p.publish(event.HealthChanged, p.current)
		p.publish(event.HealApplied, restored)
	}
}

// FullHeal restores the pool to Max.
func (p *Pool) FullHeal() {
	p.ApplyHeal(p.max)
}

// SetMaxHealth replaces the ceiling and re-clamps current health. Current
// health is never raised by a larger ceiling. The ceiling is always finite.
func (p *Pool) SetMaxHealth(max float64) {
	p.max = normalizeMax(max)
	if p.current > p.max {
		p.current = p.max
		p.publish(event.HealthChanged, p.current)
	}
}

// Revive brings the pool back with amount health, or full health when
// amount <= 0. The regeneration delay keeps running from the last damage.
//
// Postcondition: IsAlive() is true; 0 < Current() <= Max().
func (p *Pool) Revive(amount float64) {
	if !(amount > 0) {
		amount = p.max
	}
	p.current = math.Min(amount, p.max)
	p.dead = false
	p.publish(event.HealthChanged, p.current)
}

// SetHealth sets current health directly, clamped to [0, Max]. Used when
// restoring saved state. Zero on a living pool kills it; a positive value on
// a dead pool revives it.
func (p *Pool) SetHealth(value float64) {
	if math.IsNaN(value) {
		return
	}
	if p.dead {
		if value > 0 {
			p.Revive(value)
		}
		return
	}
	clamped := math.Min(math.Max(value, 0), p.max)
	if clamped == p.current {
		return
	}
	p.current = clamped
	p.publish(event.HealthChanged, p.current)
	if p.current <= 0 {
		p.die()
	}
}

// Tick applies passive regeneration for a step of length elapsed ending at
// now. Only the part of elapsed after the regeneration delay expired counts.
func (p *Pool) Tick(now, elapsed time.Duration) {
	if !p.regenEnabled || p.dead || p.current >= p.max || elapsed <= 0 {
		return
	}
	resume := p.lastDamage + p.regenDelay
	if now < resume {
		return
	}
	if since := now - resume; elapsed > since {
		elapsed = since
	}
	p.ApplyHeal(p.regenRate * elapsed.Seconds())
}

// TriggerRespawn announces a respawn request to subscribers without changing
// state.
func (p *Pool) TriggerRespawn() {
	p.bus.Publish(event.Event{Type: event.Respawn})
}

func (p *Pool) die() {
	if p.dead {
		return
	}
	p.current = 0
	p.dead = true
	p.bus.Publish(event.Event{Type: event.Death})
}

func (p *Pool) publish(t event.Type, v float64) {
	p.bus.Publish(event.Event{Type: t, Value: v})
}

// normalizeMax raises NaN and values below MinMaxHealth to MinMaxHealth and
// caps +Inf at math.MaxFloat64.
func normalizeMax(max float64) float64 {
	if !(max >= MinMaxHealth) {
		return MinMaxHealth
	}
	return math.Min(max, math.MaxFloat64)
}
