package character

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/progression/internal/game/stats"
	"github.com/cory-johannsen/progression/internal/game/vitality"
)

// Regeneration holds the passive-healing settings of an archetype.
type Regeneration struct {
	Enabled bool          `yaml:"enabled"`
	Rate    float64       `yaml:"rate"`
	Delay   time.Duration `yaml:"delay"`
}

// Archetype is a character template loaded from YAML.
//
// Precondition: ID must be non-empty after loading.
type Archetype struct {
	ID                    string             `yaml:"id"`
	Name                  string             `yaml:"name"`
	Description           string             `yaml:"description"`
	BaseStats             map[string]float64 `yaml:"base_stats"`
	ExperienceToNextLevel float64            `yaml:"experience_to_next_level"`
	LevelMultiplier       float64            `yaml:"level_multiplier"`
	// MaxLevel caps progression; 0 uses stats.DefaultMaxLevel.
	MaxLevel int `yaml:"max_level"`
	// ExperienceMultiplier scales every experience gain; 0 means 1.
	ExperienceMultiplier float64      `yaml:"experience_multiplier"`
	Regeneration         Regeneration `yaml:"regeneration"`
	// ScriptDir optionally names a directory of Lua hooks for this archetype.
	ScriptDir string `yaml:"script_dir"`
}

// DefaultArchetype returns the built-in template: designer default stats and
// a 1/s regeneration after 5s.
func DefaultArchetype() *Archetype {
	base := make(map[string]float64)
	for k, v := range stats.DefaultBase() {
		base[k.String()] = v
	}
	cfg := vitality.DefaultConfig()
	return &Archetype{
		ID:                    "default",
		Name:                  "Wanderer",
		BaseStats:             base,
		ExperienceToNextLevel: stats.DefaultExperienceToNextLevel,
		LevelMultiplier:       stats.DefaultLevelMultiplier,
		MaxLevel:              stats.DefaultMaxLevel,
		Regeneration: Regeneration{
			Enabled: cfg.RegenerationEnabled,
			Rate:    cfg.RegenerationRate,
			Delay:   cfg.RegenerationDelay,
		},
	}
}

// Validate checks that every base stat names a known kind and that numeric
// settings are in range.
//
// Postcondition: Returns nil or an error listing every violation.
func (a *Archetype) Validate() error {
	var errs []string
	if a.ID == "" {
		errs = append(errs, "id must not be empty")
	}
	for name := range a.BaseStats {
		k, err := stats.ParseKind(name)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if k == stats.Experience {
			errs = append(errs, "base_stats.experience is derived and cannot be set")
		}
	}
	if a.ExperienceToNextLevel < 0 {
		errs = append(errs, fmt.Sprintf("experience_to_next_level must be >= 0, got %v", a.ExperienceToNextLevel))
	}
	if a.LevelMultiplier != 0 && a.LevelMultiplier <= 1 {
		errs = append(errs, fmt.Sprintf("level_multiplier must be > 1, got %v", a.LevelMultiplier))
	}
	if a.MaxLevel < 0 || a.MaxLevel > stats.LevelCap {
		errs = append(errs, fmt.Sprintf("max_level must be 0-%d, got %d", stats.LevelCap, a.MaxLevel))
	}
	if !(a.ExperienceMultiplier >= 0) || math.IsInf(a.ExperienceMultiplier, 0) {
		errs = append(errs, fmt.Sprintf("experience_multiplier must be a finite value >= 0, got %v", a.ExperienceMultiplier))
	}
	if a.Regeneration.Rate < 0 {
		errs = append(errs, "regeneration.rate must not be negative")
	}
	if a.Regeneration.Delay < 0 {
		errs = append(errs, "regeneration.delay must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("archetype %q: %s", a.ID, strings.Join(errs, "; "))
	}
	return nil
}

// statOptions converts the archetype into AttributeSet options.
//
// Precondition: Validate() returned nil.
func (a *Archetype) statOptions() stats.Options {
	base := make(map[stats.Kind]float64, len(a.BaseStats))
	for name, v := range a.BaseStats {
		if k, err := stats.ParseKind(name); err == nil {
			base[k] = v
		}
	}
	return stats.Options{
		Base:                  base,
		ExperienceToNextLevel: a.ExperienceToNextLevel,
		LevelMultiplier:       a.LevelMultiplier,
		MaxLevel:              a.MaxLevel,
		ExperienceMultiplier:  a.ExperienceMultiplier,
	}
}

// LoadArchetypes reads every .yaml/.yml file in dir, parses each as an
// Archetype and validates it. Unknown YAML fields are rejected.
//
// Precondition: dir must be a readable directory path.
// Postcondition: Returns archetypes keyed by ID, or a non-nil error.
func LoadArchetypes(dir string) (map[string]*Archetype, error) {
	files, err := yamlFiles(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Archetype, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var a Archetype
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&a); err != nil {
			return nil, fmt.Errorf("parsing archetype file %s: %w", path, err)
		}
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if _, dup := out[a.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate archetype id %q", path, a.ID)
		}
		if a.ScriptDir != "" && !filepath.IsAbs(a.ScriptDir) {
			a.ScriptDir = filepath.Join(dir, a.ScriptDir)
		}
		out[a.ID] = &a
	}
	return out, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
