// Package scripting runs archetype and global progression hooks in
// sandboxed GopherLua states. It has no dependency on game domain packages;
// all game interactions are injected via Manager callback fields.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes allowed per
// hook call when no override is configured.
const DefaultInstructionLimit = 100_000

// hookLibs are the only standard libraries a hook state opens. Hooks compute
// amounts and call engine.*; they never touch files or the process.
var hookLibs = []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath}

// blockedGlobals are removed from every hook state after the base library
// is opened, keyed by name with the reason the hook surface excludes them.
var blockedGlobals = map[string]string{
	"dofile":         "hooks are loaded once from the archetype script_dir",
	"loadfile":       "hooks are loaded once from the archetype script_dir",
	"load":           "hook code is fixed when the scope loads",
	"loadstring":     "hook code is fixed when the scope loads",
	"require":        "scopes share nothing; cross-scope state belongs in the roster",
	"collectgarbage": "a hook runs inside the roster lock and must not stall the tick",
	"print":          "hook output goes through engine.log so it carries source=lua",
}

// blockedStringFuncs are removed from the string table. string.rep builds
// arbitrarily large strings in one opcode.
var blockedStringFuncs = []string{"rep"}

// opBudget is a context that cancels itself once Done has been polled limit
// times. GopherLua polls Done once per opcode, so the budget counts opcodes.
type opBudget struct {
	context.Context
	cancel context.CancelFunc
	left   atomic.Int64
}

func (b *opBudget) Done() <-chan struct{} {
	if b.left.Add(-1) <= 0 {
		b.cancel()
	}
	return b.Context.Done()
}

// resetBudget gives L a fresh budget of limit opcodes. The returned cancel
// releases the budget; call it once the hook returns.
//
// Precondition: limit > 0.
func resetBudget(L *lua.LState, limit int) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	b := &opBudget{Context: ctx, cancel: cancel}
	b.left.Store(int64(limit))
	L.SetContext(b)
	return cancel
}

// normalizeLimit maps non-positive limits to DefaultInstructionLimit.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultInstructionLimit
	}
	return limit
}

// NewSandboxedState creates a GopherLua state for progression hooks. Only
// hookLibs are opened, blockedGlobals and blockedStringFuncs are removed, and
// execution is capped at instLimit opcodes until the next resetBudget.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: Returns a non-nil LState ready for RegisterModules. The
// caller owns the LState and must call L.Close() when done.
func NewSandboxedState(instLimit int) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range hookLibs {
		open(L)
	}

	for name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	if str, ok := L.GetGlobal("string").(*lua.LTable); ok {
		for _, fn := range blockedStringFuncs {
			str.RawSetString(fn, lua.LNil)
		}
	}

	resetBudget(L, normalizeLimit(instLimit)) //nolint:govet // the budget cancels itself when spent
	return L
}
