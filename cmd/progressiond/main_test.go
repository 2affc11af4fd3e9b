package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/cory-johannsen/progression/internal/game/character"
	"github.com/cory-johannsen/progression/internal/game/stats"
	"github.com/cory-johannsen/progression/internal/gameserver"
	"github.com/cory-johannsen/progression/internal/gameserver/mocks"
	"github.com/cory-johannsen/progression/internal/storage/redis"
)

func storedRecord(id, archetype string) character.Record {
	return character.Record{
		ID:                    id,
		Name:                  "Stored " + id,
		Archetype:             archetype,
		Stats:                 stats.DefaultSnapshot(),
		ExperienceToNextLevel: 100,
		CurrentHealth:         60,
		MaxHealth:             100,
	}
}

func newTestRoster(t *testing.T, store gameserver.Store) *gameserver.Roster {
	t.Helper()
	r, err := gameserver.NewRoster(gameserver.RosterConfig{Store: store, Logger: zap.NewNop()})
	require.NoError(t, err)
	return r
}

func TestPreloadRoster_BulkLoadsFromRedis(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	mock.MatchExpectationsInOrder(false)
	mock.ExpectSMembers("progression:characters").SetVal([]string{"b", "a", "old"})
	for _, rec := range []character.Record{
		storedRecord("a", "default"),
		storedRecord("b", "default"),
		storedRecord("old", "paladin"),
	} {
		data, err := json.Marshal(rec)
		require.NoError(t, err)
		mock.ExpectGet("progression:character:" + rec.ID).SetVal(string(data))
	}

	store := redis.NewStore(client, "progression", nil)
	roster := newTestRoster(t, store)
	require.NoError(t, preloadRoster(ctx, roster, store, zap.NewNop()))

	assert.Equal(t, []string{"a", "b"}, roster.IDs())
	got, err := roster.Record("a")
	require.NoError(t, err)
	assert.Equal(t, 60.0, got.CurrentHealth)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreloadRoster_ListsThenLoads(t *testing.T) {
	ctx := context.Background()
	store := gameserver.NewMemoryStore()
	require.NoError(t, store.Save(ctx, storedRecord("m1", "default")))
	require.NoError(t, store.Save(ctx, storedRecord("m2", "default")))

	roster := newTestRoster(t, store)
	require.NoError(t, preloadRoster(ctx, roster, store, zap.NewNop()))
	assert.Equal(t, []string{"m1", "m2"}, roster.IDs())
}

func TestPreloadRoster_StoreWithoutEnumeration(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	roster := newTestRoster(t, store)
	require.NoError(t, preloadRoster(context.Background(), roster, store, zap.NewNop()))
	assert.Zero(t, roster.Len())
}

func TestPreloadRoster_PropagatesStoreError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectSMembers("progression:characters").SetErr(assert.AnError)
	store := redis.NewStore(client, "progression", nil)
	roster := newTestRoster(t, store)
	assert.ErrorIs(t, preloadRoster(context.Background(), roster, store, zap.NewNop()), assert.AnError)
}
