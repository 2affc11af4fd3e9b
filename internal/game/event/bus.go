// Package event provides the ordered, synchronous observer list shared by the
// progression components.
package event

import "sync"

// Type identifies the kind of notification carried by an Event.
type Type int

const (
	// StatChanged carries the stat name in Stat and the new effective value in Value.
	StatChanged Type = iota
	// LevelUp carries the new level in Level.
	LevelUp
	// ExperienceGained carries the gained amount in Value.
	ExperienceGained
	// HealthChanged carries the new current health in Value.
	HealthChanged
	// DamageTaken carries the requested damage amount in Value.
	DamageTaken
	// HealApplied carries the actual amount restored in Value.
	HealApplied
	// Death has no payload.
	Death
	// Respawn has no payload.
	Respawn
)

var typeNames = map[Type]string{
	StatChanged:      "stat_changed",
	LevelUp:          "level_up",
	ExperienceGained: "experience_gained",
	HealthChanged:    "health_changed",
	DamageTaken:      "damage_taken",
	HealApplied:      "heal_applied",
	Death:            "death",
	Respawn:          "respawn",
}

// String returns the snake_case name of the event type.
func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "unknown"
}

// Event is a single notification.
type Event struct {
	Type Type
	// Source is the ID of the emitting character; empty for unbound components.
	Source string
	Stat   string
	Value  float64
	Level  int
}

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Bus delivers events to handlers in registration order.
//
// Publish is synchronous: every handler has returned before Publish returns.
// Handlers may Subscribe or unsubscribe from inside a callback; the change
// takes effect on the next Publish.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is a no-op.
//
// Precondition: fn must not be nil.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered handlers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers e to every handler in registration order.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(e)
	}
}

// Recorder is a Handler that keeps every event it receives. Useful for
// tests and for batching notifications within a tick.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Handle appends e to the recorded events.
func (r *Recorder) Handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events whose Type is t, in order.
func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
