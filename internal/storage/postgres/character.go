package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/progression/internal/game/character"
)

// ErrCharacterNotFound is returned when a character lookup yields no results.
var ErrCharacterNotFound = character.ErrNotFound

const characterColumns = `
	id::text, name, archetype, level,
	base_health, base_mana, base_attack, base_defense, base_speed, base_luck, base_stamina,
	experience, experience_to_next_level, current_health, max_health, dead, updated_at`

// CharacterRepository provides character persistence operations.
type CharacterRepository struct {
	db *pgxpool.Pool
}

// NewCharacterRepository creates a CharacterRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewCharacterRepository(db *pgxpool.Pool) *CharacterRepository {
	return &CharacterRepository{db: db}
}

// Save inserts rec or replaces the stored row with the same ID.
//
// Precondition: rec.ID must be a valid UUID.
// Postcondition: The row reflects rec; updated_at is set to NOW().
func (r *CharacterRepository) Save(ctx context.Context, rec character.Record) error {
	if _, err := uuid.Parse(rec.ID); err != nil {
		return fmt.Errorf("saving character: invalid id %q: %w", rec.ID, err)
	}
	s := rec.Stats
	_, err := r.db.Exec(ctx, `
		INSERT INTO characters
			(id, name, archetype, level,
			 base_health, base_mana, base_attack, base_defense, base_speed, base_luck, base_stamina,
			 experience, experience_to_next_level, current_health, max_health, dead)
		VALUES ($1::uuid,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			archetype = EXCLUDED.archetype,
			level = EXCLUDED.level,
			base_health = EXCLUDED.base_health,
			base_mana = EXCLUDED.base_mana,
			base_attack = EXCLUDED.base_attack,
			base_defense = EXCLUDED.base_defense,
			base_speed = EXCLUDED.base_speed,
			base_luck = EXCLUDED.base_luck,
			base_stamina = EXCLUDED.base_stamina,
			experience = EXCLUDED.experience,
			experience_to_next_level = EXCLUDED.experience_to_next_level,
			current_health = EXCLUDED.current_health,
			max_health = EXCLUDED.max_health,
			dead = EXCLUDED.dead,
			updated_at = NOW()`,
		rec.ID, rec.Name, rec.Archetype, s.Level,
		s.BaseHealth, s.BaseMana, s.BaseAttack, s.BaseDefense, s.BaseSpeed, s.BaseLuck, s.BaseStamina,
		rec.Experience, rec.ExperienceToNextLevel, rec.CurrentHealth, rec.MaxHealth, rec.Dead,
	)
	if err != nil {
		return fmt.Errorf("saving character %s: %w", rec.ID, err)
	}
	return nil
}

// Load retrieves a character by ID.
//
// Postcondition: Returns the Record or an error wrapping ErrCharacterNotFound.
func (r *CharacterRepository) Load(ctx context.Context, id string) (character.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return character.Record{}, fmt.Errorf("loading character %q: %w", id, ErrCharacterNotFound)
	}
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE id = $1::uuid`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return character.Record{}, fmt.Errorf("loading character %q: %w", id, ErrCharacterNotFound)
		}
		return character.Record{}, fmt.Errorf("querying character: %w", err)
	}
	return rec, nil
}

// Delete removes a character by ID.
//
// Postcondition: Returns nil on success, or an error wrapping
// ErrCharacterNotFound if no row was deleted.
func (r *CharacterRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("deleting character %q: %w", id, ErrCharacterNotFound)
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM characters WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("deleting character: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting character %q: %w", id, ErrCharacterNotFound)
	}
	return nil
}

// ListByArchetype returns every character of archetype, most recently
// updated first.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *CharacterRepository) ListByArchetype(ctx context.Context, archetype string) ([]character.Record, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE archetype = $1 ORDER BY updated_at DESC, id`,
		archetype,
	)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	defer rows.Close()

	recs := make([]character.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning character row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ListIDs returns every stored character ID in sorted order.
func (r *CharacterRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id::text FROM characters ORDER BY id::text`)
	if err != nil {
		return nil, fmt.Errorf("listing character ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning character ids: %w", err)
	}
	return ids, nil
}

func scanRecord(row pgx.Row) (character.Record, error) {
	var rec character.Record
	s := &rec.Stats
	err := row.Scan(
		&rec.ID, &rec.Name, &rec.Archetype, &s.Level,
		&s.BaseHealth, &s.BaseMana, &s.BaseAttack, &s.BaseDefense, &s.BaseSpeed, &s.BaseLuck, &s.BaseStamina,
		&rec.Experience, &rec.ExperienceToNextLevel, &rec.CurrentHealth, &rec.MaxHealth, &rec.Dead, &rec.UpdatedAt,
	)
	return rec, err
}
