package stats

// Snapshot is the persisted form of an AttributeSet: level and the seven
// designer-set base values. Experience progress is not part of it.
type Snapshot struct {
	Level       int     `json:"level" yaml:"level"`
	BaseHealth  float64 `json:"base_health" yaml:"base_health"`
	BaseMana    float64 `json:"base_mana" yaml:"base_mana"`
	BaseAttack  float64 `json:"base_attack" yaml:"base_attack"`
	BaseDefense float64 `json:"base_defense" yaml:"base_defense"`
	BaseSpeed   float64 `json:"base_speed" yaml:"base_speed"`
	BaseLuck    float64 `json:"base_luck" yaml:"base_luck"`
	BaseStamina float64 `json:"base_stamina" yaml:"base_stamina"`
}

// DefaultSnapshot returns the snapshot of a fresh level 1 character with
// DefaultBase values.
func DefaultSnapshot() Snapshot {
	b := DefaultBase()
	return Snapshot{
		Level:       1,
		BaseHealth:  b[Health],
		BaseMana:    b[Mana],
		BaseAttack:  b[Attack],
		BaseDefense: b[Defense],
		BaseSpeed:   b[Speed],
		BaseLuck:    b[Luck],
		BaseStamina: b[Stamina],
	}
}
