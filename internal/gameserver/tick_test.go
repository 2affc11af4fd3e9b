package gameserver_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/progression/internal/gameserver"
)

func TestNewTickManager_PanicsOnNonPositiveInterval(t *testing.T) {
	assert.Panics(t, func() { gameserver.NewTickManager(0) })
	assert.Panics(t, func() { gameserver.NewTickManager(-time.Second) })
}

func TestTickManager_StartsAndStops(t *testing.T) {
	tm := gameserver.NewTickManager(50 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tm.Run(ctx)
		close(done)
	}()
	time.Sleep(120 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTickManager_CallbackReceivesElapsed(t *testing.T) {
	tm := gameserver.NewTickManager(20 * time.Millisecond)
	got := make(chan time.Duration, 1)
	tm.Register("roster", func(elapsed time.Duration) {
		select {
		case got <- elapsed:
		default:
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	tm.Start(ctx)
	select {
	case elapsed := <-got:
		assert.Greater(t, elapsed, time.Duration(0))
	case <-ctx.Done():
		t.Fatal("tick callback not invoked within timeout")
	}
}

func TestTickManager_ElapsedSumsToWallTime(t *testing.T) {
	tm := gameserver.NewTickManager(10 * time.Millisecond)
	var mu sync.Mutex
	var total time.Duration
	tm.Register("sum", func(elapsed time.Duration) {
		mu.Lock()
		total += elapsed
		mu.Unlock()
	})
	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	done := make(chan struct{})
	go func() {
		tm.Run(ctx)
		close(done)
	}()
	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done
	wall := time.Since(start)

	mu.Lock()
	defer mu.Unlock()
	require.Greater(t, total, time.Duration(0))
	assert.LessOrEqual(t, total, wall)
}

func TestTickManager_UnregisterStopsCallback(t *testing.T) {
	tm := gameserver.NewTickManager(20 * time.Millisecond)
	var count atomic.Int64
	tm.Register("r1", func(time.Duration) { count.Add(1) })
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	tm.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	tm.Unregister("r1")
	countAfterUnregister := count.Load()
	time.Sleep(60 * time.Millisecond)
	if count.Load() > countAfterUnregister+1 {
		t.Fatalf("tick continued after unregister: before=%d after=%d", countAfterUnregister, count.Load())
	}
}
