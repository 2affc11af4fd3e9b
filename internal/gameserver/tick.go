package gameserver

import (
	"context"
	"sort"
	"sync"
	"time"
)

// TickFunc receives the wall-clock time elapsed since the previous tick.
type TickFunc func(elapsed time.Duration)

// TickManager drives registered tick groups from a single ticker. Each tick
// passes the measured elapsed time, so a slow tick is caught up on the next
// one instead of being dropped.
//
// Invariant: all callbacks are invoked at most once per tick interval, in
// name order.
type TickManager struct {
	interval time.Duration
	clock    func() time.Time
	mu       sync.Mutex
	ticks    map[string]TickFunc
}

// NewTickManager returns a manager that fires ticks every interval.
//
// Precondition: interval must be > 0.
func NewTickManager(interval time.Duration) *TickManager {
	if interval <= 0 {
		panic("gameserver.NewTickManager: interval must be > 0")
	}
	return &TickManager{
		interval: interval,
		clock:    time.Now,
		ticks:    make(map[string]TickFunc),
	}
}

// Interval returns the tick period.
func (m *TickManager) Interval() time.Duration { return m.interval }

// Register registers fn under name. Replaces any existing callback.
func (m *TickManager) Register(name string, fn TickFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks[name] = fn
}

// Unregister removes the callback registered under name.
func (m *TickManager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ticks, name)
}

// Start runs the tick loop in a new goroutine until ctx is cancelled.
func (m *TickManager) Start(ctx context.Context) {
	go m.Run(ctx)
}

// Run blocks, firing ticks until ctx is cancelled.
//
// Postcondition: all registered callbacks are invoked once per interval.
func (m *TickManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	last := m.clock()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := m.clock()
			elapsed := now.Sub(last)
			last = now
			if elapsed <= 0 {
				continue
			}
			for _, fn := range m.snapshot() {
				fn(elapsed)
			}
		}
	}
}

func (m *TickManager) snapshot() []TickFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.ticks))
	for name := range m.ticks {
		names = append(names, name)
	}
	sort.Strings(names)
	fns := make([]TickFunc, 0, len(names))
	for _, name := range names {
		fns = append(fns, m.ticks[name])
	}
	return fns
}
