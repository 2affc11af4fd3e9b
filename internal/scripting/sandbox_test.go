package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/progression/internal/scripting"
)

func TestNewSandboxedState_UnsafeLibsNil(t *testing.T) {
	L := scripting.NewSandboxedState(0)
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"os", "io", "debug", "channel"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_DangerousGlobalsNil(t *testing.T) {
	L := scripting.NewSandboxedState(0)
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require", "print"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_StringRepRemoved(t *testing.T) {
	L := scripting.NewSandboxedState(0)
	defer L.Close()
	require.NoError(t, L.DoString(`has_rep = string.rep ~= nil; has_format = string.format ~= nil`))
	assert.Equal(t, lua.LFalse, L.GetGlobal("has_rep"))
	assert.Equal(t, lua.LTrue, L.GetGlobal("has_format"))
}

func TestNewSandboxedState_SafeLibsAvailable(t *testing.T) {
	L := scripting.NewSandboxedState(0)
	require.NotNil(t, L)
	defer L.Close()
	err := L.DoString(`
		local x = math.floor(7 / 2)
		assert(x == 3, "math.floor failed")
		local s = string.upper("level")
		assert(s == "LEVEL", "string.upper failed")
	`)
	assert.NoError(t, err)
}

func TestNewSandboxedState_InstructionLimitExceeded(t *testing.T) {
	L := scripting.NewSandboxedState(10)
	require.NotNil(t, L)
	defer L.Close()
	err := L.DoString(`while true do end`)
	assert.Error(t, err, "expected instruction limit error")
}

func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(t, "limit")
		L := scripting.NewSandboxedState(limit)
		defer L.Close()
		err := L.DoString(`while true do end`)
		if err == nil {
			t.Fatalf("expected error with limit=%d but got nil", limit)
		}
	})
}

func TestNewSandboxedState_TableSortAndFormat(t *testing.T) {
	L := scripting.NewSandboxedState(0)
	defer L.Close()
	require.NoError(t, L.DoString(`
		local gains = {10, 25, 50}
		table.sort(gains, function(a, b) return a > b end)
		summary = string.format("%d/%d", gains[1], math.max(gains[2], gains[3]))
	`))
	assert.Equal(t, lua.LString("50/25"), L.GetGlobal("summary"))
}
