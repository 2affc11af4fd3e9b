// Package stats implements leveled character attributes: base values,
// additive modifiers, level scaling, and experience-driven level-ups.
package stats

import (
	"fmt"
	"strings"
)

// Kind is one of the closed set of character attributes.
type Kind int

const (
	Health Kind = iota
	Attack
	Defense
	Speed
	Stamina
	Mana
	Luck
	Experience

	numKinds
)

// Kinds lists every stat kind in declaration order.
var Kinds = [numKinds]Kind{Health, Attack, Defense, Speed, Stamina, Mana, Luck, Experience}

var kindNames = [numKinds]string{
	Health:     "health",
	Attack:     "attack",
	Defense:    "defense",
	Speed:      "speed",
	Stamina:    "stamina",
	Mana:       "mana",
	Luck:       "luck",
	Experience: "experience",
}

// levelCoefficients scales the per-level bonus for each kind.
var levelCoefficients = [numKinds]float64{
	Health:     10,
	Attack:     1,
	Defense:    0.5,
	Speed:      0.3,
	Stamina:    5,
	Mana:       3,
	Luck:       0.1,
	Experience: 0,
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

// String returns the lower-case name of k.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind returns the Kind named s. Matching is case-insensitive.
//
// Postcondition: Returns a valid Kind or a non-nil error.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown stat kind %q", s)
}

// Coefficient returns the level-scaling coefficient for k, or 0 for an
// invalid kind.
func Coefficient(k Kind) float64 {
	if !k.Valid() {
		return 0
	}
	return levelCoefficients[k]
}

// LevelBonus returns the portion of k's effective value granted by level:
// (level-1) * 2 * Coefficient(k).
//
// Precondition: level >= 1.
// Postcondition: Returns 0 at level 1 and for Experience.
func LevelBonus(k Kind, level int) float64 {
	bonus := float64(level-1) * 2
	return bonus * Coefficient(k)
}
