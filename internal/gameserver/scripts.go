package gameserver

import (
	"fmt"
	"sort"

	"github.com/cory-johannsen/progression/internal/game/character"
	"github.com/cory-johannsen/progression/internal/scripting"
)

// LoadScripts loads globalDir into the global scope and the script directory
// of every archetype that names one into a scope keyed by archetype ID.
//
// Precondition: mgr must be non-nil. An empty globalDir skips global hooks.
// Postcondition: Returns the first load error, wrapped with the archetype ID.
func LoadScripts(mgr *scripting.Manager, globalDir string, archs map[string]*character.Archetype) error {
	if globalDir != "" {
		if err := mgr.LoadGlobal(globalDir); err != nil {
			return err
		}
	}
	ids := make([]string, 0, len(archs))
	for id := range archs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		dir := archs[id].ScriptDir
		if dir == "" {
			continue
		}
		if err := mgr.LoadScope(id, dir); err != nil {
			return fmt.Errorf("archetype %q: %w", id, err)
		}
	}
	return nil
}
