package scripting_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/progression/internal/scripting"
)

func newTestManager(t testing.TB) (*scripting.Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	mgr := scripting.NewManager(zap.New(core), 0)
	t.Cleanup(mgr.Close)
	return mgr, logs
}

func writeTempLua(t testing.TB, filename, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(src), 0644))
	return dir
}

func TestManager_LoadScope_CallsHook(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "hooks.lua", `
		function test_hook(a, b)
			return a + b
		end
	`)
	require.NoError(t, mgr.LoadScope("bulwark", dir))
	assert.True(t, mgr.HasScope("bulwark"))
	ret, err := mgr.CallHook("bulwark", "test_hook", lua.LNumber(3), lua.LNumber(4))
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(7), ret)
}

func TestManager_CallHook_MissingHook_NoOp(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "empty.lua", `-- no functions`)
	require.NoError(t, mgr.LoadScope("adept", dir))
	ret, err := mgr.CallHook("adept", "on_level_up")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestManager_CallHook_UnknownScope_ReturnsNil(t *testing.T) {
	mgr, logs := newTestManager(t)
	ret, err := mgr.CallHook("no_such_scope", "some_hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.Equal(t, 1, logs.FilterMessage("scripting: no VM for scope").Len())
}

func TestManager_CallHook_RuntimeError_WarnLogNoPanic(t *testing.T) {
	mgr, logs := newTestManager(t)
	dir := writeTempLua(t, "bad.lua", `
		function bad_hook()
			error("intentional error")
		end
	`)
	require.NoError(t, mgr.LoadScope("bad", dir))
	ret, err := mgr.CallHook("bad", "bad_hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestManager_LoadGlobal_CallHookFallback(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadGlobal(writeTempLua(t, "global.lua", `
		function global_hook()
			return 42
		end
	`)))
	ret, err := mgr.CallHook("unknown", "global_hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(42), ret)
}

func TestManager_ScopeHookShadowsGlobal(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadGlobal(writeTempLua(t, "global.lua", `
		function on_level_up() return "global" end
		function on_death() return "global" end
	`)))
	require.NoError(t, mgr.LoadScope("adept", writeTempLua(t, "adept.lua", `
		function on_level_up() return "adept" end
	`)))

	ret, err := mgr.CallHook("adept", "on_level_up")
	require.NoError(t, err)
	assert.Equal(t, lua.LString("adept"), ret)

	// adept does not define on_death, so the global hook answers.
	ret, err = mgr.CallHook("adept", "on_death")
	require.NoError(t, err)
	assert.Equal(t, lua.LString("global"), ret)
}

func TestManager_LoadScope_EmptyDir_NoError(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadScope("empty", t.TempDir()))
	ret, err := mgr.CallHook("empty", "anything")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestManager_LoadScope_MissingDir_ReturnsError(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.LoadScope("missing", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
	assert.False(t, mgr.HasScope("missing"))
}

func TestManager_LoadScope_InvalidLua_ReturnsError(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.LoadScope("bad", writeTempLua(t, "bad.lua", `this is not valid lua @@@@`))
	assert.Error(t, err)
	assert.False(t, mgr.HasScope("bad"))
}

func TestManager_LoadScope_ReplacesExisting(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadScope("s", writeTempLua(t, "a.lua", `function v() return 1 end`)))
	require.NoError(t, mgr.LoadScope("s", writeTempLua(t, "a.lua", `function v() return 2 end`)))
	ret, err := mgr.CallHook("s", "v")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(2), ret)
}

func TestManager_LoadScope_MultipleFiles_OrderedByName(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.lua"), []byte(`base_val = 10`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.lua"), []byte(`
		function get_val() return base_val end
	`), 0644))
	require.NoError(t, mgr.LoadScope("ordered", dir))
	ret, err := mgr.CallHook("ordered", "get_val")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(10), ret)
}

func TestManager_InstructionBudgetIsPerCall(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	mgr := scripting.NewManager(zap.New(core), 5_000)
	t.Cleanup(mgr.Close)
	require.NoError(t, mgr.LoadScope("loop", writeTempLua(t, "loop.lua", `
		function small()
			local n = 0
			for i = 1, 100 do n = n + i end
			return n
		end
		function forever()
			while true do end
		end
	`)))

	// Many small calls together exceed the limit but each fits on its own.
	for i := 0; i < 50; i++ {
		ret, err := mgr.CallHook("loop", "small")
		require.NoError(t, err)
		require.Equal(t, lua.LNumber(5050), ret)
	}

	ret, err := mgr.CallHook("loop", "forever")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())

	ret, err = mgr.CallHook("loop", "small")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(5050), ret)
}

func TestNewManager_PanicsOnNilLogger(t *testing.T) {
	assert.Panics(t, func() {
		scripting.NewManager(nil, 0)
	})
}

func TestManager_Close_ReleasesScopes(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadScope("closing", writeTempLua(t, "init.lua", `function get_x() return 1 end`)))
	mgr.Close()
	assert.False(t, mgr.HasScope("closing"))
	ret, err := mgr.CallHook("closing", "get_x")
	assert.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestProperty_CallHookMissingScopeNeverPanics(t *testing.T) {
	mgr, _ := newTestManager(t)
	rapid.Check(t, func(rt *rapid.T) {
		scope := rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "scope")
		hook := rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "hook")
		count := rapid.IntRange(1, 20).Draw(rt, "count")
		for i := 0; i < count; i++ {
			mgr.CallHook(scope, hook) //nolint:errcheck
		}
	})
}

func TestProperty_CallHookConcurrentSameScope_NoRace(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadScope("conc", writeTempLua(t, "hooks.lua", `
		function concurrent_hook(a, b)
			return a + b
		end
	`)))

	const goroutines = 10
	const callsEach = 5
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsEach; j++ {
				ret, err := mgr.CallHook("conc", "concurrent_hook", lua.LNumber(1), lua.LNumber(2))
				assert.NoError(t, err)
				assert.Equal(t, lua.LNumber(3), ret)
			}
		}()
	}
	wg.Wait()
}
