package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers all engine.* Lua tables into L.
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine.log, engine.character and engine.rewards are defined in L.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()
	L.SetField(engine, "log", m.newLogModule(L))
	L.SetField(engine, "character", m.newCharacterModule(L))
	L.SetField(engine, "rewards", m.newRewardsModule(L))
	L.SetGlobal("engine", engine)
}

func (m *Manager) newLogModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	levels := map[string]func(string, ...zap.Field){
		"debug": m.logger.Debug,
		"info":  m.logger.Info,
		"warn":  m.logger.Warn,
		"error": m.logger.Error,
	}
	for name, logFn := range levels {
		logFn := logFn
		L.SetField(mod, name, L.NewFunction(func(L *lua.LState) int {
			logFn(L.CheckString(1), zap.String("source", "lua"))
			return 0
		}))
	}
	return mod
}

func (m *Manager) newCharacterModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "get", L.NewFunction(m.luaGetCharacter))
	L.SetField(mod, "heal", L.NewFunction(m.effectFunc("heal", func() func(string, float64) error { return m.Heal })))
	L.SetField(mod, "damage", L.NewFunction(m.effectFunc("damage", func() func(string, float64) error { return m.Damage })))
	L.SetField(mod, "grant_xp", L.NewFunction(m.effectFunc("grant_xp", func() func(string, float64) error { return m.GrantExperience })))
	L.SetField(mod, "revive", L.NewFunction(m.effectFunc("revive", func() func(string, float64) error { return m.Revive })))
	L.SetField(mod, "grant_kill_xp", L.NewFunction(m.luaGrantKillXP))
	return mod
}

// newRewardsModule exposes the reward table: kill(tier) and
// discovery([bonus]) each return an experience amount, or nil when no table
// is injected.
func (m *Manager) newRewardsModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "kill", L.NewFunction(func(L *lua.LState) int {
		tier := L.CheckString(1)
		if m.KillReward == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(m.KillReward(tier)))
		return 1
	}))
	L.SetField(mod, "discovery", L.NewFunction(func(L *lua.LState) int {
		bonus := float64(L.OptNumber(1, 0))
		if m.DiscoveryReward == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(m.DiscoveryReward(bonus)))
		return 1
	}))
	return mod
}

// luaGrantKillXP is grant_xp with the amount looked up from the kill table.
func (m *Manager) luaGrantKillXP(L *lua.LState) int {
	id := L.CheckString(1)
	tier := L.CheckString(2)
	if m.KillReward == nil {
		L.Push(lua.LFalse)
		return 1
	}
	return m.pushEffect(L, "grant_kill_xp", m.GrantExperience, id, m.KillReward(tier))
}

// effectFunc builds a Lua function (id, amount) -> bool. The callback is
// resolved at call time so it may be injected after the scope is loaded.
func (m *Manager) effectFunc(name string, cb func() func(string, float64) error) lua.LGFunction {
	return func(L *lua.LState) int {
		id := L.CheckString(1)
		amount := float64(L.OptNumber(2, 0))
		return m.pushEffect(L, name, cb(), id, amount)
	}
}

// pushEffect runs fn and pushes whether it succeeded. A nil fn or one that
// reports an error pushes false.
func (m *Manager) pushEffect(L *lua.LState, name string, fn func(string, float64) error, id string, amount float64) int {
	if fn == nil {
		L.Push(lua.LFalse)
		return 1
	}
	if err := fn(id, amount); err != nil {
		m.logger.Warn("scripting: effect rejected",
			zap.String("effect", name),
			zap.String("character", id),
			zap.Error(err),
		)
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LTrue)
	return 1
}
