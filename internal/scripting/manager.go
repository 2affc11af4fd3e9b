package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// GlobalScope is the reserved scope for hooks shared by every archetype.
// CallHook falls back to it when a scope has no VM of its own.
const GlobalScope = "__global__"

// CharacterInfo is a snapshot of a character passed to Lua callbacks.
type CharacterInfo struct {
	ID         string
	Name       string
	Archetype  string
	Level      int
	MaxLevel   int
	Experience float64
	Remaining  float64 // experience still needed for the next level
	Total      float64 // all experience earned, including spent levels
	Health     float64
	MaxHealth  float64
	Alive      bool
}

type vm struct {
	mu sync.Mutex
	L  *lua.LState
}

// Manager owns one sandboxed LState per scope (archetype ID or GlobalScope)
// and exposes hook dispatch.
//
// Manager is safe for concurrent CallHook after all Load calls complete.
// Each LState is single-threaded; calls to the same scope are serialised
// while different scopes run concurrently. Injected callbacks must not call
// back into CallHook synchronously.
type Manager struct {
	mu     sync.RWMutex
	vms    map[string]*vm
	limit  int
	logger *zap.Logger

	// Injected after construction. nil = no-op in engine.* modules.
	GetCharacter    func(id string) *CharacterInfo
	Heal            func(id string, amount float64) error
	Damage          func(id string, amount float64) error
	GrantExperience func(id string, amount float64) error
	Revive          func(id string, amount float64) error
	KillReward      func(tier string) float64
	DiscoveryReward func(bonus float64) float64
}

// NewManager creates a Manager whose hook calls are each limited to
// instLimit opcodes (0 uses DefaultInstructionLimit).
//
// Precondition: logger must be non-nil; instLimit >= 0.
// Postcondition: Returns a non-nil Manager with no scopes loaded.
func NewManager(logger *zap.Logger, instLimit int) *Manager {
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{
		vms:    make(map[string]*vm),
		limit:  normalizeLimit(instLimit),
		logger: logger,
	}
}

// LoadScope creates a sandboxed VM for scope, registers the engine.* modules,
// then executes every *.lua file in scriptDir in lexicographic order. An
// existing VM for the scope is replaced.
//
// Precondition: scope must be non-empty; scriptDir must be a readable directory.
// Postcondition: Scope VM is registered; returns error on Lua load failure.
func (m *Manager) LoadScope(scope, scriptDir string) error {
	L := NewSandboxedState(m.limit)
	m.RegisterModules(L)

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		L.Close()
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", scriptDir, scope, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	for _, path := range luaFiles {
		// Each file gets its own budget so large content sets still load.
		cancel := resetBudget(L, m.limit)
		err := L.DoFile(path)
		cancel()
		if err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", path, scope, err)
		}
	}

	m.mu.Lock()
	if old, ok := m.vms[scope]; ok {
		old.mu.Lock()
		old.L.Close()
		old.mu.Unlock()
	}
	m.vms[scope] = &vm{L: L}
	m.mu.Unlock()

	m.logger.Info("scripting: scope loaded",
		zap.String("scope", scope),
		zap.Int("files", len(luaFiles)),
	)
	return nil
}

// LoadGlobal loads scriptDir into GlobalScope.
//
// Precondition: scriptDir must be a readable directory.
func (m *Manager) LoadGlobal(scriptDir string) error {
	return m.LoadScope(GlobalScope, scriptDir)
}

// HasScope reports whether scope has its own VM.
func (m *Manager) HasScope(scope string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vms[scope]
	return ok
}

// CallHook calls the named Lua global function in scope's VM. If the scope
// has no VM, or its VM does not define the hook, the GlobalScope VM is
// tried. Returns (LNil, nil) if the hook is not defined anywhere. Lua
// runtime errors, including an exhausted instruction budget, are logged at
// Warn level and never propagated.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(scope, hook string, args ...lua.LValue) (lua.LValue, error) {
	m.mu.RLock()
	candidates := make([]*vm, 0, 2)
	if v, ok := m.vms[scope]; ok {
		candidates = append(candidates, v)
	}
	if scope != GlobalScope {
		if v, ok := m.vms[GlobalScope]; ok {
			candidates = append(candidates, v)
		}
	}
	m.mu.RUnlock()

	if len(candidates) == 0 {
		m.logger.Debug("scripting: no VM for scope",
			zap.String("scope", scope),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}

	for _, v := range candidates {
		ret, found := m.call(v, scope, hook, args)
		if found {
			return ret, nil
		}
	}
	return lua.LNil, nil
}

// call runs hook on v. found is false when v does not define hook.
func (m *Manager) call(v *vm, scope, hook string, args []lua.LValue) (ret lua.LValue, found bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.L.IsClosed() {
		return lua.LNil, false
	}

	fn := v.L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return lua.LNil, false
	}

	cancel := resetBudget(v.L, m.limit)
	defer cancel()

	if err := v.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("scope", scope),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, true
	}

	ret = v.L.Get(-1)
	v.L.Pop(1)
	return ret, true
}

// Close releases every VM. CallHook after Close returns LNil.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for scope, v := range m.vms {
		v.mu.Lock()
		v.L.Close()
		v.mu.Unlock()
		delete(m.vms, scope)
	}
}
