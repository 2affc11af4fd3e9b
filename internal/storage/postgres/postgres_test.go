package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/progression/internal/config"
	"github.com/cory-johannsen/progression/internal/storage/postgres"
	"github.com/cory-johannsen/progression/internal/testutil"
)

func TestPool_HealthAndStats(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	ctx := context.Background()

	require.NoError(t, pc.Pool.Health(ctx, 5*time.Second))

	stats := pc.Pool.Stats()
	assert.Equal(t, pc.Config.MaxConns, stats.Max)
	assert.GreaterOrEqual(t, stats.Total, stats.Idle)

	var app string
	require.NoError(t, pc.RawPool.QueryRow(ctx, `SELECT current_setting('application_name')`).Scan(&app))
	assert.Equal(t, postgres.ApplicationName, app)
}

func TestNewPool_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := postgres.NewPool(ctx, config.DatabaseConfig{
		Host:     "127.0.0.1",
		Port:     1,
		User:     "nobody",
		Name:     "nothing",
		SSLMode:  "disable",
		MaxConns: 1,
	})
	assert.Error(t, err)
}
