package gameserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/progression/internal/game/character"
	"github.com/cory-johannsen/progression/internal/game/event"
	"github.com/cory-johannsen/progression/internal/game/stats"
	"github.com/cory-johannsen/progression/internal/scripting"
)

// Lua hook names. Each receives the character ID as its first argument.
const (
	HookLevelUp    = "on_level_up"   // (id, level)
	HookDeath      = "on_death"      // (id)
	HookDamage     = "on_damage"     // (id, amount)
	HookExperience = "on_experience" // (id, amount)
	HookRespawn    = "on_respawn"    // (id)
)

// maxSettleRounds bounds hook -> effect -> hook cascades per operation.
const maxSettleRounds = 64

// saveConcurrency bounds concurrent store writes in SaveAll.
const saveConcurrency = 8

// ErrUnknownArchetype is returned when a character names an archetype that
// was not loaded.
var ErrUnknownArchetype = errors.New("unknown archetype")

// RosterConfig configures a Roster.
type RosterConfig struct {
	// Archetypes available to Spawn and Load. Empty uses DefaultArchetype().
	Archetypes map[string]*character.Archetype
	// DefaultArchetype is used when Spawn names no archetype.
	DefaultArchetype string
	// Store persists records; nil disables persistence.
	Store Store
	// Scripts dispatches Lua hooks; nil disables scripting.
	Scripts *scripting.Manager
	// Autosave saves a character after it levels up or dies.
	Autosave bool
	Logger   *zap.Logger
}

type member struct {
	c     *character.Character
	unsub func()
}

type hookCall struct {
	scope string
	hook  string
	args  []lua.LValue
}

type effectKind int

const (
	effectHeal effectKind = iota
	effectDamage
	effectExperience
	effectRevive
)

func (k effectKind) String() string {
	switch k {
	case effectHeal:
		return "heal"
	case effectDamage:
		return "damage"
	case effectExperience:
		return "grant_xp"
	case effectRevive:
		return "revive"
	default:
		return "unknown"
	}
}

type effect struct {
	kind   effectKind
	id     string
	amount float64
}

// Roster owns the live characters of one tick group and serialises every
// operation on them.
//
// Lua hooks run after the operation that triggered them, still under the
// roster lock. Effects requested by hooks are queued and applied once the
// hooks return, so a hook never observes a half-applied operation.
// Subscribers registered with Subscribe run under the lock and must not call
// back into the Roster.
type Roster struct {
	mu       sync.Mutex
	members  map[string]*member
	archs    map[string]*character.Archetype
	defArch  string
	store    Store
	scripts  *scripting.Manager
	autosave bool
	logger   *zap.Logger
	bus      *event.Bus

	now     time.Duration
	hooks   []hookCall
	effects []effect
	dirty   map[string]struct{}
	newID   func() string
}

// NewRoster creates an empty Roster and binds the engine.character Lua
// callbacks of cfg.Scripts to it.
//
// Precondition: cfg.Logger must be non-nil.
// Postcondition: Returns a Roster whose simulation clock is 0, or an error if
// cfg.DefaultArchetype is not among cfg.Archetypes.
func NewRoster(cfg RosterConfig) (*Roster, error) {
	if cfg.Logger == nil {
		panic("gameserver.NewRoster: logger must not be nil")
	}
	archs := cfg.Archetypes
	defArch := cfg.DefaultArchetype
	if len(archs) == 0 {
		d := character.DefaultArchetype()
		archs = map[string]*character.Archetype{d.ID: d}
		if defArch == "" {
			defArch = d.ID
		}
	}
	if _, ok := archs[defArch]; !ok {
		return nil, fmt.Errorf("default archetype %q: %w", defArch, ErrUnknownArchetype)
	}

	r := &Roster{
		members:  make(map[string]*member),
		archs:    archs,
		defArch:  defArch,
		store:    cfg.Store,
		scripts:  cfg.Scripts,
		autosave: cfg.Autosave && cfg.Store != nil,
		logger:   cfg.Logger,
		bus:      event.NewBus(),
		dirty:    make(map[string]struct{}),
		newID:    uuid.NewString,
	}
	if r.scripts != nil {
		r.scripts.GetCharacter = r.characterInfo
		r.scripts.Heal = r.enqueue(effectHeal)
		r.scripts.Damage = r.enqueue(effectDamage)
		r.scripts.GrantExperience = r.enqueue(effectExperience)
		r.scripts.Revive = r.enqueue(effectRevive)
		r.scripts.KillReward = stats.KillRewardFor
		r.scripts.DiscoveryReward = stats.DiscoveryReward
	}
	return r, nil
}

// Subscribe registers fn for every event of every character in the roster.
func (r *Roster) Subscribe(fn event.Handler) (unsubscribe func()) {
	return r.bus.Subscribe(fn)
}

// Now returns the simulation clock: the sum of all Tick steps.
func (r *Roster) Now() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

// Len returns the number of live characters.
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// IDs returns the IDs of all live characters in sorted order.
func (r *Roster) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Spawn creates a level 1 character of archetypeID (the default archetype
// when empty) with a fresh uuid and persists it.
//
// Postcondition: On success the character is live and, if a store is
// configured, saved.
func (r *Roster) Spawn(ctx context.Context, name, archetypeID string) (character.Record, error) {
	if archetypeID == "" {
		archetypeID = r.defArch
	}
	arch, ok := r.archs[archetypeID]
	if !ok {
		return character.Record{}, fmt.Errorf("spawning %q: archetype %q: %w", name, archetypeID, ErrUnknownArchetype)
	}

	r.mu.Lock()
	c := character.New(r.newID(), name, arch)
	r.add(c)
	rec := c.Record()
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Save(ctx, rec); err != nil {
			r.drop(c.ID)
			return character.Record{}, fmt.Errorf("saving new character: %w", err)
		}
	}
	r.logger.Info("character spawned",
		zap.String("character", rec.ID),
		zap.String("name", rec.Name),
		zap.String("archetype", rec.Archetype),
	)
	return rec, nil
}

// Load makes the stored character id live. A character that is already live
// is returned as is.
//
// Precondition: a store must be configured.
// Postcondition: Returns an error wrapping character.ErrNotFound if the
// store has no record for id.
func (r *Roster) Load(ctx context.Context, id string) (character.Record, error) {
	if rec, err := r.Record(id); err == nil {
		return rec, nil
	}
	if r.store == nil {
		return character.Record{}, fmt.Errorf("loading %q: no store configured", id)
	}
	rec, err := r.store.Load(ctx, id)
	if err != nil {
		return character.Record{}, err
	}
	return r.Restore(rec)
}

// Restore makes rec live without consulting the store. A character with the
// same ID that is already live wins and is returned unchanged.
//
// Postcondition: Returns an error wrapping ErrUnknownArchetype if rec names
// an archetype that was not loaded.
func (r *Roster) Restore(rec character.Record) (character.Record, error) {
	arch, ok := r.archs[rec.Archetype]
	if !ok {
		return character.Record{}, fmt.Errorf("loading %q: archetype %q: %w", rec.ID, rec.Archetype, ErrUnknownArchetype)
	}

	// Restore before joining the roster so loading fires no hooks.
	c := character.New(rec.ID, rec.Name, arch)
	c.Restore(rec)

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[rec.ID]; ok {
		return m.c.Record(), nil
	}
	r.add(c)
	r.logger.Debug("character loaded",
		zap.String("character", rec.ID),
		zap.Int("level", c.Stats.Level()),
	)
	return c.Record(), nil
}

// Record returns the current state of the live character id.
func (r *Roster) Record(id string) (character.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return character.Record{}, notLive(id)
	}
	return m.c.Record(), nil
}

// Stat returns the effective value of kind for the live character id.
func (r *Roster) Stat(id string, kind stats.Kind) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return 0, notLive(id)
	}
	return m.c.Stats.EffectiveValue(kind), nil
}

// Remove saves the character id and takes it out of the roster.
func (r *Roster) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	m, ok := r.members[id]
	if !ok {
		r.mu.Unlock()
		return notLive(id)
	}
	r.detach(id, m)
	rec := m.c.Record()
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Save(ctx, rec); err != nil {
			return fmt.Errorf("saving removed character %q: %w", id, err)
		}
	}
	return nil
}

// Delete takes the character id out of the roster, if live, and deletes its
// stored record.
func (r *Roster) Delete(ctx context.Context, id string) error {
	r.drop(id)
	if r.store == nil {
		return nil
	}
	return r.store.Delete(ctx, id)
}

// Damage applies amount damage at the current simulation time.
func (r *Roster) Damage(ctx context.Context, id string, amount float64) error {
	return r.mutate(ctx, id, func(c *character.Character) {
		c.Health.ApplyDamage(amount, r.now)
	})
}

// Heal restores amount health. Dead characters are not healed.
func (r *Roster) Heal(ctx context.Context, id string, amount float64) error {
	return r.mutate(ctx, id, func(c *character.Character) {
		c.Health.ApplyHeal(amount)
	})
}

// GrantExperience adds amount experience, levelling up as often as needed.
func (r *Roster) GrantExperience(ctx context.Context, id string, amount float64) error {
	return r.mutate(ctx, id, func(c *character.Character) {
		c.Stats.GainExperience(amount)
	})
}

// GrantKillExperience awards the kill reward for an enemy of tier. Unknown
// tiers earn stats.DefaultKillReward.
func (r *Roster) GrantKillExperience(ctx context.Context, id, tier string) error {
	return r.GrantExperience(ctx, id, stats.KillRewardFor(tier))
}

// GrantQuestExperience awards amount for a completed quest. Negative and
// non-finite amounts award nothing.
func (r *Roster) GrantQuestExperience(ctx context.Context, id string, amount float64) error {
	return r.GrantExperience(ctx, id, stats.QuestReward(amount))
}

// GrantDiscoveryExperience awards bonus for a discovery, or
// stats.DefaultDiscoveryReward when bonus <= 0.
func (r *Roster) GrantDiscoveryExperience(ctx context.Context, id string, bonus float64) error {
	return r.GrantExperience(ctx, id, stats.DiscoveryReward(bonus))
}

// Revive brings the character back with amount health (full when <= 0).
func (r *Roster) Revive(ctx context.Context, id string, amount float64) error {
	return r.mutate(ctx, id, func(c *character.Character) {
		c.Health.Revive(amount)
	})
}

// Respawn revives the character at full health and announces the respawn.
func (r *Roster) Respawn(ctx context.Context, id string) error {
	return r.mutate(ctx, id, func(c *character.Character) {
		c.Health.Revive(-1)
		c.Health.TriggerRespawn()
	})
}

// ApplyModifier adds delta to the modifier of kind.
func (r *Roster) ApplyModifier(ctx context.Context, id string, kind stats.Kind, delta float64) error {
	if !kind.Valid() {
		return fmt.Errorf("applying modifier to %q: invalid stat %s", id, kind)
	}
	return r.mutate(ctx, id, func(c *character.Character) {
		c.Stats.AddModifier(kind, delta)
	})
}

// SetBaseStat replaces the base value of kind.
func (r *Roster) SetBaseStat(ctx context.Context, id string, kind stats.Kind, value float64) error {
	if !kind.Valid() {
		return fmt.Errorf("setting base stat of %q: invalid stat %s", id, kind)
	}
	return r.mutate(ctx, id, func(c *character.Character) {
		c.Stats.SetBaseStat(kind, value)
	})
}

// Tick advances the simulation clock by elapsed and regenerates every live
// character.
//
// Precondition: elapsed >= 0; negative steps are ignored.
func (r *Roster) Tick(ctx context.Context, elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	r.mu.Lock()
	r.now += elapsed
	for _, m := range r.members {
		m.c.Tick(r.now, elapsed)
	}
	r.settle()
	pending := r.takeDirty()
	r.mu.Unlock()

	r.persist(ctx, pending)
}

// SaveAll persists every live character concurrently.
//
// Postcondition: Returns the first save error; other saves still run to
// completion unless ctx is cancelled.
func (r *Roster) SaveAll(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.mu.Lock()
	recs := make([]character.Record, 0, len(r.members))
	for _, m := range r.members {
		recs = append(recs, m.c.Record())
	}
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(saveConcurrency)
	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			if err := r.store.Save(gctx, rec); err != nil {
				return fmt.Errorf("saving character %q: %w", rec.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.logger.Debug("roster saved", zap.Int("characters", len(recs)))
	return nil
}

// RunAutosave calls SaveAll every interval until ctx is cancelled. Save
// errors are logged and do not stop the loop.
//
// Precondition: interval must be > 0.
func (r *Roster) RunAutosave(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.SaveAll(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("autosave failed", zap.Error(err))
			}
		}
	}
}

// mutate runs fn on the live character id, settles hooks, then persists any
// character that became dirty.
func (r *Roster) mutate(ctx context.Context, id string, fn func(c *character.Character)) error {
	r.mu.Lock()
	m, ok := r.members[id]
	if !ok {
		r.mu.Unlock()
		return notLive(id)
	}
	fn(m.c)
	r.settle()
	pending := r.takeDirty()
	r.mu.Unlock()

	r.persist(ctx, pending)
	return nil
}

// add registers c. Caller holds r.mu.
func (r *Roster) add(c *character.Character) {
	r.members[c.ID] = &member{c: c, unsub: c.Subscribe(r.handler(c))}
}

// detach removes id from the roster. Caller holds r.mu.
func (r *Roster) detach(id string, m *member) {
	m.unsub()
	delete(r.members, id)
	delete(r.dirty, id)
}

func (r *Roster) drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[id]; ok {
		r.detach(id, m)
	}
}

// handler forwards c's events to the roster bus and queues hooks and
// autosaves. It runs under r.mu.
func (r *Roster) handler(c *character.Character) event.Handler {
	return func(e event.Event) {
		r.bus.Publish(e)
		switch e.Type {
		case event.LevelUp:
			r.queueHook(c, HookLevelUp, lua.LNumber(e.Level))
			r.markDirty(c.ID)
		case event.Death:
			r.queueHook(c, HookDeath)
			r.markDirty(c.ID)
		case event.DamageTaken:
			r.queueHook(c, HookDamage, lua.LNumber(e.Value))
		case event.ExperienceGained:
			r.queueHook(c, HookExperience, lua.LNumber(e.Value))
		case event.Respawn:
			r.queueHook(c, HookRespawn)
		}
	}
}

func (r *Roster) queueHook(c *character.Character, hook string, args ...lua.LValue) {
	if r.scripts == nil {
		return
	}
	r.hooks = append(r.hooks, hookCall{
		scope: c.Archetype,
		hook:  hook,
		args:  append([]lua.LValue{lua.LString(c.ID)}, args...),
	})
}

func (r *Roster) markDirty(id string) {
	if r.autosave {
		r.dirty[id] = struct{}{}
	}
}

// settle runs queued hooks and applies the effects they request until both
// queues are empty. Caller holds r.mu.
func (r *Roster) settle() {
	for round := 0; len(r.hooks) > 0 || len(r.effects) > 0; round++ {
		if round == maxSettleRounds {
			r.logger.Warn("hook cascade truncated",
				zap.Int("hooks", len(r.hooks)),
				zap.Int("effects", len(r.effects)),
			)
			r.hooks, r.effects = nil, nil
			return
		}
		hooks := r.hooks
		r.hooks = nil
		for _, h := range hooks {
			if _, err := r.scripts.CallHook(h.scope, h.hook, h.args...); err != nil {
				r.logger.Warn("hook failed", zap.String("hook", h.hook), zap.Error(err))
			}
		}
		effects := r.effects
		r.effects = nil
		for _, e := range effects {
			r.apply(e)
		}
	}
}

func (r *Roster) apply(e effect) {
	m, ok := r.members[e.id]
	if !ok {
		r.logger.Debug("effect target gone",
			zap.String("effect", e.kind.String()),
			zap.String("character", e.id),
		)
		return
	}
	switch e.kind {
	case effectHeal:
		m.c.Health.ApplyHeal(e.amount)
	case effectDamage:
		m.c.Health.ApplyDamage(e.amount, r.now)
	case effectExperience:
		m.c.Stats.GainExperience(e.amount)
	case effectRevive:
		m.c.Health.Revive(e.amount)
	}
}

// enqueue returns the Lua callback for kind. Callbacks only run inside
// settle, so r.mu is already held.
func (r *Roster) enqueue(kind effectKind) func(id string, amount float64) error {
	return func(id string, amount float64) error {
		if _, ok := r.members[id]; !ok {
			return notLive(id)
		}
		r.effects = append(r.effects, effect{kind: kind, id: id, amount: amount})
		return nil
	}
}

// characterInfo backs engine.character.get. r.mu is already held.
func (r *Roster) characterInfo(id string) *scripting.CharacterInfo {
	m, ok := r.members[id]
	if !ok {
		return nil
	}
	c := m.c
	return &scripting.CharacterInfo{
		ID:         c.ID,
		Name:       c.Name,
		Archetype:  c.Archetype,
		Level:      c.Stats.Level(),
		MaxLevel:   c.Stats.MaxLevel(),
		Experience: c.Stats.Experience(),
		Remaining:  c.Stats.ExperienceRemaining(),
		Total:      c.Stats.TotalExperience(),
		Health:     c.Health.Current(),
		MaxHealth:  c.Health.Max(),
		Alive:      c.Health.IsAlive(),
	}
}

// takeDirty returns the records of dirty characters and clears the set.
// Caller holds r.mu.
func (r *Roster) takeDirty() []character.Record {
	if len(r.dirty) == 0 {
		return nil
	}
	recs := make([]character.Record, 0, len(r.dirty))
	for id := range r.dirty {
		if m, ok := r.members[id]; ok {
			recs = append(recs, m.c.Record())
		}
		delete(r.dirty, id)
	}
	return recs
}

func (r *Roster) persist(ctx context.Context, recs []character.Record) {
	for _, rec := range recs {
		if err := r.store.Save(ctx, rec); err != nil {
			r.logger.Error("autosave failed",
				zap.String("character", rec.ID),
				zap.Error(err),
			)
		}
	}
}

func notLive(id string) error {
	return fmt.Errorf("character %q: %w", id, character.ErrNotFound)
}
