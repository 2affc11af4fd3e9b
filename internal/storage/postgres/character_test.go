package postgres_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/progression/internal/game/character"
	"github.com/cory-johannsen/progression/internal/game/stats"
	"github.com/cory-johannsen/progression/internal/storage/postgres"
	"github.com/cory-johannsen/progression/internal/testutil"
)

func setupRepo(t *testing.T) *postgres.CharacterRepository {
	t.Helper()
	return postgres.NewCharacterRepository(testutil.NewPool(t))
}

func makeRecord(name, archetype string) character.Record {
	return character.Record{
		ID:                    uuid.NewString(),
		Name:                  name,
		Archetype:             archetype,
		Stats:                 stats.DefaultSnapshot(),
		ExperienceToNextLevel: 100,
		CurrentHealth:         100,
		MaxHealth:             100,
	}
}

func TestCharacterRepository_SaveLoad(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	rec := makeRecord("Zara", "wanderer")
	rec.Stats.Level = 3
	rec.Stats.BaseAttack = 14.5
	rec.Experience = 42.25
	rec.ExperienceToNextLevel = 225
	rec.CurrentHealth = 61
	rec.MaxHealth = 140
	require.NoError(t, repo.Save(ctx, rec))

	got, err := repo.Load(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "Zara", got.Name)
	assert.Equal(t, "wanderer", got.Archetype)
	assert.Equal(t, rec.Stats, got.Stats)
	assert.Equal(t, 42.25, got.Experience)
	assert.Equal(t, 225.0, got.ExperienceToNextLevel)
	assert.Equal(t, 61.0, got.CurrentHealth)
	assert.Equal(t, 140.0, got.MaxHealth)
	assert.False(t, got.Dead)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestCharacterRepository_SaveUpserts(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	rec := makeRecord("Zara", "wanderer")
	require.NoError(t, repo.Save(ctx, rec))
	first, err := repo.Load(ctx, rec.ID)
	require.NoError(t, err)

	rec.CurrentHealth = 0
	rec.Dead = true
	rec.Stats.Level = 2
	require.NoError(t, repo.Save(ctx, rec))

	got, err := repo.Load(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Dead)
	assert.Equal(t, 2, got.Stats.Level)
	assert.False(t, got.UpdatedAt.Before(first.UpdatedAt))
}

func TestCharacterRepository_Save_InvalidID(t *testing.T) {
	repo := setupRepo(t)
	rec := makeRecord("Zara", "wanderer")
	rec.ID = "not-a-uuid"
	assert.Error(t, repo.Save(context.Background(), rec))
}

func TestCharacterRepository_LoadNotFound(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.Load(ctx, uuid.NewString())
	assert.ErrorIs(t, err, postgres.ErrCharacterNotFound)

	_, err = repo.Load(ctx, "garbage")
	assert.ErrorIs(t, err, character.ErrNotFound)
}

func TestCharacterRepository_Delete(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	rec := makeRecord("Zara", "wanderer")
	require.NoError(t, repo.Save(ctx, rec))
	require.NoError(t, repo.Delete(ctx, rec.ID))

	_, err := repo.Load(ctx, rec.ID)
	assert.ErrorIs(t, err, postgres.ErrCharacterNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, rec.ID), postgres.ErrCharacterNotFound)
}

func TestCharacterRepository_ListByArchetype(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	for _, name := range []string{"Alpha", "Beta"} {
		require.NoError(t, repo.Save(ctx, makeRecord(name, "bulwark")))
	}
	require.NoError(t, repo.Save(ctx, makeRecord("Gamma", "adept")))

	bulwarks, err := repo.ListByArchetype(ctx, "bulwark")
	require.NoError(t, err)
	assert.Len(t, bulwarks, 2)

	none, err := repo.ListByArchetype(ctx, "paladin")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCharacterRepository_ListIDs(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	empty, err := repo.ListIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	a, b := makeRecord("A", "wanderer"), makeRecord("B", "adept")
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))

	ids, err := repo.ListIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
	assert.IsNonDecreasing(t, ids)
}

func TestProperty_CharacterRepository_RoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		rec := makeRecord(rapid.StringMatching(`[A-Za-z]{1,20}`).Draw(rt, "name"), "wanderer")
		rec.Stats.Level = rapid.IntRange(1, 100).Draw(rt, "level")
		rec.Stats.BaseHealth = rapid.Float64Range(1, 1000).Draw(rt, "health")
		rec.Experience = rapid.Float64Range(0, 1000).Draw(rt, "xp")
		rec.ExperienceToNextLevel = rapid.Float64Range(1001, 1e6).Draw(rt, "threshold")
		rec.CurrentHealth = rapid.Float64Range(0, 1000).Draw(rt, "current")
		rec.Dead = rec.CurrentHealth == 0

		if err := repo.Save(ctx, rec); err != nil {
			rt.Fatalf("Save: %v", err)
		}
		got, err := repo.Load(ctx, rec.ID)
		if err != nil {
			rt.Fatalf("Load: %v", err)
		}
		got.UpdatedAt = rec.UpdatedAt
		if got != rec {
			rt.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", rec, got)
		}
	})
}
