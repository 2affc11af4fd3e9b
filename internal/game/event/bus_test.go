package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/progression/internal/game/event"
)

func TestBus_DeliversInRegistrationOrder(t *testing.T) {
	b := event.NewBus()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		b.Subscribe(func(event.Event) { order = append(order, i) })
	}
	b.Publish(event.Event{Type: event.Death})
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := event.NewBus()
	calls := 0
	unsub := b.Subscribe(func(event.Event) { calls++ })
	b.Publish(event.Event{})
	unsub()
	unsub()
	b.Publish(event.Event{})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.Len())
}

func TestBus_SubscribeDuringPublish_TakesEffectNextPublish(t *testing.T) {
	b := event.NewBus()
	late := 0
	b.Subscribe(func(event.Event) {
		b.Subscribe(func(event.Event) { late++ })
	})
	b.Publish(event.Event{})
	assert.Equal(t, 0, late)
	b.Publish(event.Event{})
	assert.Equal(t, 1, late)
}

func TestRecorder_OfType(t *testing.T) {
	rec := &event.Recorder{}
	rec.Handle(event.Event{Type: event.LevelUp, Level: 2})
	rec.Handle(event.Event{Type: event.Death})
	rec.Handle(event.Event{Type: event.LevelUp, Level: 3})
	ups := rec.OfType(event.LevelUp)
	assert.Len(t, ups, 2)
	assert.Equal(t, 3, ups[1].Level)
	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "level_up", event.LevelUp.String())
	assert.Equal(t, "unknown", event.Type(99).String())
}

func TestPropertyBus_RemovingOneKeepsOthersOrdered(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(t, "n")
		drop := rapid.IntRange(0, n-1).Draw(t, "drop")
		b := event.NewBus()
		var got []int
		unsubs := make([]func(), n)
		for i := 0; i < n; i++ {
			i := i
			unsubs[i] = b.Subscribe(func(event.Event) { got = append(got, i) })
		}
		unsubs[drop]()
		b.Publish(event.Event{})
		var want []int
		for i := 0; i < n; i++ {
			if i != drop {
				want = append(want, i)
			}
		}
		assert.Equal(t, want, got)
	})
}
